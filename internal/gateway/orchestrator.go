// Package gateway implementa el pipeline de orquestación por request:
// parse → autenticar → cuota → validar payload → forward → shape.
// Estados terminales: respuesta exitosa o fallo estructurado con status,
// mensaje y correlation id.
package gateway

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropDatabas3/gridgate/internal/metrics"
	"github.com/dropDatabas3/gridgate/internal/observability/logger"
	"github.com/dropDatabas3/gridgate/internal/rate"
	"github.com/dropDatabas3/gridgate/internal/token"
	"github.com/dropDatabas3/gridgate/internal/transport"
)

// Caller es el call client resiliente que el gateway usa para forward.
type Caller interface {
	Call(ctx context.Context, topic, op string, env transport.Envelope) (json.RawMessage, error)
}

type Orchestrator struct {
	calls   Caller
	limiter *rate.Limiter
	tokens  *token.Validator
	log     *zap.Logger
}

func New(calls Caller, limiter *rate.Limiter, tokens *token.Validator) *Orchestrator {
	return &Orchestrator{
		calls:   calls,
		limiter: limiter,
		tokens:  tokens,
		log:     logger.Named("gateway"),
	}
}

// Handle corre la máquina de estados para una request entrante y devuelve
// el payload shaped más el status code asociado.
func (o *Orchestrator) Handle(ctx context.Context, op string, env transport.Envelope) (map[string]any, int) {
	// 1. Parse: data siempre presente y es un mapa
	if env.Data == nil {
		return o.fail(op, ErrValidation.WithMessage("envelope data must be an object"))
	}

	if op == OpVerifySession {
		return o.verifySession(ctx, env)
	}

	r, ok := routes[op]
	if !ok {
		return o.fail(op, ErrValidation.WithMessage("unknown operation: "+op))
	}

	// 2. Autenticación (exenta para register/login)
	claims, err := o.tokens.Validate(op, env.Key())
	if err != nil {
		return o.fail(op, ErrAuth)
	}

	// 3. Cuota, solo para operaciones protegidas
	var quota *rate.Result
	if claims != nil {
		res := o.limiter.Admit(ctx, claims.Subject)
		if !res.Allowed {
			o.log.Info("request blocked by quota",
				logger.Operation(op), logger.Identity(claims.Subject))
			return o.fail(op, ErrRateLimit.WithRetryAfter(int(res.RetryAfter.Seconds())))
		}
		quota = &res
	}

	// 4. Shape check del payload
	if err := r.validate(env.Data); err != nil {
		return o.fail(op, ErrValidation.WithMessage(err.Error()))
	}

	// 5. Forward por el call client resiliente
	payload, err := o.calls.Call(ctx, r.topic, r.op, env)
	if err != nil {
		return o.fail(op, o.classify(err))
	}

	// 6. Shape de la respuesta + metadata de cuota
	out := map[string]any{}
	if err := json.Unmarshal(payload, &out); err != nil {
		o.log.Error("downstream payload not an object", logger.Operation(op), logger.Err(err))
		return o.fail(op, ErrInternal)
	}
	if quota != nil && quota.Known {
		out["rateLimitInfo"] = rateLimitInfo(*quota)
	}

	metrics.GatewayRequests.WithLabelValues(op, "ok").Inc()
	return out, 200
}

// verifySession es la variante local: autentica con un nombre de operación
// siempre protegido y adjunta Status() (solo lectura, no consume cuota).
// No forwardea a ningún lado.
func (o *Orchestrator) verifySession(ctx context.Context, env transport.Envelope) (map[string]any, int) {
	claims, err := o.tokens.Validate(OpVerifySession, env.Key())
	if err != nil || claims == nil {
		return o.fail(OpVerifySession, ErrAuth)
	}

	out := map[string]any{
		"success":  true,
		"identity": claims.Subject,
		"role":     claims.Role,
	}
	if st := o.limiter.Status(ctx, claims.Subject); st.Known {
		out["rateLimitInfo"] = rateLimitInfo(st)
	}

	metrics.GatewayRequests.WithLabelValues(OpVerifySession, "ok").Inc()
	return out, 200
}

// classify convierte el error del call client en un error del boundary,
// según la tabla fija de clases.
func (o *Orchestrator) classify(err error) *Error {
	f, ok := transport.AsFailure(err)
	if !ok {
		return ErrInternal
	}
	switch f.Kind {
	case transport.FailLookupEmpty:
		return ErrNotFound.WithMessage("service not found: no peers available")
	case transport.FailTimeout:
		return ErrTimeout
	case transport.FailConnectionRefused:
		return ErrUnavailable.WithMessage("connection refused by downstream service")
	case transport.FailConnectionClosed, transport.FailConnectionReset, transport.FailUnknownMethod:
		return ErrUnavailable
	case transport.FailFatal:
		switch f.Code {
		case transport.CodeAuthFailed:
			return ErrAuth.WithMessage(f.Message)
		case transport.CodeValidation:
			return ErrValidation.WithMessage(f.Message)
		default:
			return ErrInternal
		}
	default:
		return ErrInternal
	}
}

func (o *Orchestrator) fail(op string, e *Error) (map[string]any, int) {
	cid := uuid.NewString()
	o.log.Info("request failed",
		logger.Operation(op), logger.Status(e.Status),
		zap.String("code", e.Code), logger.CorrelationID(cid))
	metrics.GatewayRequests.WithLabelValues(op, e.Code).Inc()

	out := map[string]any{
		"success":       false,
		"status":        e.Status,
		"message":       e.Message,
		"correlationId": cid,
	}
	if e.RetryAfter > 0 {
		out["retryAfterSeconds"] = e.RetryAfter
	}
	return out, e.Status
}

func rateLimitInfo(r rate.Result) map[string]any {
	info := map[string]any{
		"remaining":             r.Remaining,
		"windowDurationSeconds": int(r.Window.Seconds()),
	}
	if r.Allowed {
		info["nextResetSeconds"] = int(r.NextReset.Seconds())
	} else {
		info["retryAfterSeconds"] = int(r.RetryAfter.Seconds())
	}
	return info
}
