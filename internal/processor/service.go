// Package processor implementa el worker de inferencia. Si el motor no
// está disponible responde un placeholder en lugar de un error duro:
// degradación elegante decidida acá, no en el gateway.
package processor

import (
	"context"

	"go.uber.org/zap"

	"github.com/dropDatabas3/gridgate/internal/observability/logger"
	"github.com/dropDatabas3/gridgate/internal/transport"
)

// Respuesta cuando el motor está caído o inalcanzable.
const degradedResponse = "The model is currently unavailable, please try again in a moment."

type Service struct {
	engine Engine
	log    *zap.Logger
}

func NewService(engine Engine) *Service {
	return &Service{engine: engine, log: logger.Named("processor")}
}

// ProcessRequest genera texto para el prompt del envelope.
func (s *Service) ProcessRequest(ctx context.Context, env transport.Envelope) (any, error) {
	prompt, _ := env.Data["prompt"].(string)
	if prompt == "" {
		return nil, &transport.RemoteError{Code: transport.CodeValidation, Message: "prompt must be a non-empty string"}
	}

	text, err := s.engine.Generate(ctx, prompt)
	if err != nil {
		s.log.Warn("engine unavailable, degrading", logger.Err(err))
		return map[string]any{"response": degradedResponse, "degraded": true}, nil
	}
	return map[string]any{"response": text}, nil
}
