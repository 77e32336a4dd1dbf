// Package client es la contraparte del gateway que corre el caller: arma
// envelopes, adjunta la credencial de sesión y hace su propio retry loop
// resiliente con parámetros propios.
package client

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/gridgate/internal/gateway"
	"github.com/dropDatabas3/gridgate/internal/observability/logger"
	"github.com/dropDatabas3/gridgate/internal/token"
	"github.com/dropDatabas3/gridgate/internal/transport"
)

// Caller abstrae el call client (una instancia propia, no la del gateway).
type Caller interface {
	Call(ctx context.Context, topic, op string, env transport.Envelope) (json.RawMessage, error)
}

type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// StaleMaxDelay acota el backoff cuando el fallo huele a anuncio stale:
	// refused/closed/timeout contra un gateway que antes respondía. Esos se
	// curan rápido cuando el anuncio expira, no vale la pena esperar tanto.
	StaleMaxDelay time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts:   5,
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		StaleMaxDelay: 300 * time.Millisecond,
	}
}

// Orchestrator mantiene una credencial de sesión por contexto de caller.
type Orchestrator struct {
	calls Caller
	opts  Options
	log   *zap.Logger

	mu      sync.Mutex
	key     string
	reached bool // el gateway respondió al menos una vez
}

func New(calls Caller, opts Options) *Orchestrator {
	d := DefaultOptions()
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = d.MaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = d.BaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = d.MaxDelay
	}
	if opts.StaleMaxDelay <= 0 {
		opts.StaleMaxDelay = d.StaleMaxDelay
	}
	return &Orchestrator{calls: calls, opts: opts, log: logger.Named("client")}
}

// Register crea una cuenta. Operación exenta: no adjunta credencial.
func (o *Orchestrator) Register(ctx context.Context, identity, password string) (map[string]any, error) {
	return o.invoke(ctx, gateway.OpRegister, map[string]any{
		"identity": identity,
		"password": password,
	})
}

// Login autentica y guarda la credencial devuelta para llamadas siguientes.
func (o *Orchestrator) Login(ctx context.Context, identity, password string) (map[string]any, error) {
	out, err := o.invoke(ctx, gateway.OpLogin, map[string]any{
		"identity": identity,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	if key, ok := out["key"].(string); ok && key != "" {
		o.mu.Lock()
		o.key = key
		o.mu.Unlock()
	}
	return out, nil
}

// Prompt manda un prompt de inferencia por el gateway.
func (o *Orchestrator) Prompt(ctx context.Context, prompt string) (map[string]any, error) {
	return o.invoke(ctx, gateway.OpProcessPrompt, map[string]any{"prompt": prompt})
}

// VerifySession valida la credencial guardada contra el gateway.
func (o *Orchestrator) VerifySession(ctx context.Context) (map[string]any, error) {
	return o.invoke(ctx, gateway.OpVerifySession, map[string]any{})
}

// Logout descarta la credencial de sesión.
func (o *Orchestrator) Logout() {
	o.mu.Lock()
	o.key = ""
	o.mu.Unlock()
}

// Token devuelve la credencial actual, "" si no hay sesión.
func (o *Orchestrator) Token() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.key
}

// SetToken restaura una credencial persistida (la usa el CLI).
func (o *Orchestrator) SetToken(key string) {
	o.mu.Lock()
	o.key = key
	o.mu.Unlock()
}

func (o *Orchestrator) invoke(ctx context.Context, op string, data map[string]any) (map[string]any, error) {
	env := transport.Envelope{Data: data}
	if !token.IsExempt(op) {
		if key := o.Token(); key != "" {
			env.Meta = &transport.Meta{Key: key}
		}
	}

	var lastErr error
	for attempt := 1; attempt <= o.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, o.backoff(attempt, lastErr)); err != nil {
				return nil, err
			}
		}

		payload, err := o.calls.Call(ctx, "gateway", op, env)
		if err == nil {
			o.mu.Lock()
			o.reached = true
			o.mu.Unlock()

			out := map[string]any{}
			if uerr := json.Unmarshal(payload, &out); uerr != nil {
				return nil, uerr
			}
			return out, nil
		}

		if !transport.Retryable(err) {
			return nil, err
		}
		lastErr = err
		o.log.Debug("gateway call failed, retrying",
			logger.Operation(op), logger.Attempt(attempt),
			logger.FailureKind(transport.KindOf(err).String()))
	}
	return nil, lastErr
}

// backoff: exponencial con techo. Fallos que parecen anuncio stale contra
// un gateway ya visto usan el techo agresivo.
func (o *Orchestrator) backoff(attempt int, lastErr error) time.Duration {
	d := time.Duration(float64(o.opts.BaseDelay) * math.Pow(1.5, float64(attempt-2)))
	limit := o.opts.MaxDelay
	if o.looksStale(lastErr) {
		limit = o.opts.StaleMaxDelay
	}
	if d > limit {
		return limit
	}
	return d
}

func (o *Orchestrator) looksStale(err error) bool {
	o.mu.Lock()
	reached := o.reached
	o.mu.Unlock()
	if !reached {
		return false
	}
	switch transport.KindOf(err) {
	case transport.FailConnectionRefused, transport.FailConnectionClosed, transport.FailTimeout:
		return true
	default:
		return false
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
