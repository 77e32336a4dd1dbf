// Package rpc implementa el call client resiliente del mesh: resuelve
// candidatos vía el directorio, los recorre en orden, y reintenta con
// backoff exponencial para fallos de clase conexión.
//
// La asimetría es deliberada: los problemas de conectividad (churn normal
// de un directorio gossip) se reintentan hasta agotar presupuesto; los
// errores semánticos del peer (auth, validación) cortan al instante para
// no enmascararlos como transitorios.
package rpc

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/gridgate/internal/metrics"
	"github.com/dropDatabas3/gridgate/internal/observability/logger"
	"github.com/dropDatabas3/gridgate/internal/transport"
)

// Resolver es la capacidad de lookup del directorio que este cliente
// consume. fresh=true debe saltear cualquier cache local.
type Resolver interface {
	Lookup(ctx context.Context, topic string, fresh bool) ([]transport.Candidate, error)
}

// Invoker ejecuta un intento de llamada contra un candidato concreto.
type Invoker interface {
	Invoke(ctx context.Context, cand transport.Candidate, topic, op string, env transport.Envelope, timeout time.Duration) (json.RawMessage, error)
}

type Options struct {
	Timeout     time.Duration // timeout por intento
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration // techo del backoff
	// Fresh fuerza lookup fresco en todos los intentos. Lo usan instancias
	// cuyo loop de retry externo vive en otro lado (el orquestador cliente).
	Fresh bool
}

func DefaultOptions() Options {
	return Options{
		Timeout:     30 * time.Second,
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = d.BaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = d.MaxDelay
	}
	return o
}

type Client struct {
	dir  Resolver
	dial Invoker
	opts Options
	log  *zap.Logger
}

func New(dir Resolver, dial Invoker, opts Options) *Client {
	return &Client{
		dir:  dir,
		dial: dial,
		opts: opts.withDefaults(),
		log:  logger.Named("rpc"),
	}
}

// Call ejecuta op contra algún peer del topic.
//
// Loop externo: intentos con backoff base*1.5^(attempt-2); a partir del
// segundo intento el lookup es fresh, para darle tiempo al directorio a
// expirar anuncios stale. Loop interno: candidatos en el orden devuelto.
// Al agotar intentos propaga el último fallo anotado con attempts.
func (c *Client) Call(ctx context.Context, topic, op string, env transport.Envelope) (json.RawMessage, error) {
	var last *transport.Failure

	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		fresh := c.opts.Fresh || attempt > 1
		if attempt > 1 {
			if err := sleep(ctx, c.backoff(attempt)); err != nil {
				return nil, transport.Failf(transport.FailFatal, "call canceled: %v", err)
			}
			metrics.CallRetries.WithLabelValues(topic).Inc()
		}

		cands, err := c.dir.Lookup(ctx, topic, fresh)
		if err != nil {
			last = transport.Failf(transport.FailLookupEmpty, "directory lookup failed: %v", err)
			continue
		}
		if len(cands) == 0 {
			last = transport.Failf(transport.FailLookupEmpty, "no peers announced for topic %q", topic)
			continue
		}

		start := time.Now()
		payload, failure := c.tryCandidates(ctx, topic, op, env, cands)
		if failure == nil {
			metrics.CallDuration.WithLabelValues(topic, op).Observe(float64(time.Since(start).Milliseconds()))
			return payload, nil
		}
		if !failure.Kind.Retryable() {
			// fallo semántico: cortar ya, sin quemar más intentos
			return nil, failure
		}
		last = failure
		c.log.Debug("attempt failed",
			logger.Topic(topic), logger.Operation(op),
			logger.Attempt(attempt), logger.FailureKind(failure.Kind.String()))
	}

	last.Attempts = c.opts.MaxAttempts
	return nil, last
}

// tryCandidates recorre los candidatos en orden. Un fallo de conexión pasa
// al siguiente candidato; uno semántico corta la iteración.
func (c *Client) tryCandidates(ctx context.Context, topic, op string, env transport.Envelope, cands []transport.Candidate) (json.RawMessage, *transport.Failure) {
	var last *transport.Failure
	for _, cand := range cands {
		payload, err := c.dial.Invoke(ctx, cand, topic, op, env, c.opts.Timeout)
		if err == nil {
			return payload, nil
		}
		f, ok := transport.AsFailure(err)
		if !ok {
			f = transport.Failf(transport.FailFatal, "invoke failed: %v", err)
		}
		if !f.Kind.Retryable() {
			return nil, f
		}
		last = f
	}
	return nil, last
}

func (c *Client) backoff(attempt int) time.Duration {
	d := time.Duration(float64(c.opts.BaseDelay) * math.Pow(1.5, float64(attempt-2)))
	if d > c.opts.MaxDelay {
		return c.opts.MaxDelay
	}
	return d
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
