// Package router define el front end HTTP del gateway: traducción 1:1 de
// requests humanos a operaciones del orquestador, sin lógica de negocio.
package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/gridgate/internal/gateway"
	"github.com/dropDatabas3/gridgate/internal/observability/logger"
	"github.com/dropDatabas3/gridgate/internal/transport"
)

// New arma el router chi sobre el orquestador del gateway.
func New(gw *gateway.Orchestrator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Post("/v1/register", dispatch(gw, gateway.OpRegister))
	r.Post("/v1/login", dispatch(gw, gateway.OpLogin))
	r.Post("/v1/prompt", dispatch(gw, gateway.OpProcessPrompt))
	r.Post("/v1/session/verify", dispatch(gw, gateway.OpVerifySession))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// dispatch decodifica el envelope del body y delega en el orquestador.
// El bearer del header Authorization, si está, pisa meta.key.
func dispatch(gw *gateway.Orchestrator, op string) http.HandlerFunc {
	log := logger.Named("http")
	return func(w http.ResponseWriter, r *http.Request) {
		var env transport.Envelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"status":  http.StatusBadRequest,
				"message": "invalid JSON body",
			})
			return
		}
		if key := bearer(r); key != "" {
			env.Meta = &transport.Meta{Key: key}
		}

		start := time.Now()
		out, status := gw.Handle(r.Context(), op, env)
		log.Debug("request dispatched",
			logger.Operation(op), logger.Status(status), logger.Duration(time.Since(start)))

		writeJSON(w, status, out)
	}
}

func bearer(r *http.Request) string {
	const prefix = "Bearer "
	ah := r.Header.Get("Authorization")
	if len(ah) > len(prefix) && ah[:len(prefix)] == prefix {
		return ah[len(prefix):]
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
