// Package rate implementa la cuota por identidad del gateway: ventana fija
// anclada al primer uso (sliding fixed window).
//
// El update es read-then-write sin atomicidad cross-request: dos admisiones
// concurrentes de la misma identidad pueden leer el mismo remaining y
// sobre-admitir levemente. Throttle best-effort, no cuota de facturación.
package rate

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/gridgate/internal/metrics"
	"github.com/dropDatabas3/gridgate/internal/observability/logger"
)

const keyPrefix = "rl:"

type Result struct {
	Allowed   bool
	Remaining int
	Window    time.Duration
	NextReset time.Duration
	// RetryAfter solo viene cuando Allowed == false.
	RetryAfter time.Duration
	// Known == false: el store falló y no hay información (fail-open).
	Known bool
}

type Limiter struct {
	store  Store
	max    int
	window time.Duration
	now    func() time.Time
	log    *zap.Logger
}

// New crea un Limiter con el store inyectado. max <= 0 usa 10,
// window <= 0 usa 1 minuto.
func New(store Store, max int, window time.Duration) *Limiter {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		store:  store,
		max:    max,
		window: window,
		now:    time.Now,
		log:    logger.Named("rate"),
	}
}

// WithClock reemplaza el reloj. Para tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Admit consume una unidad de cuota para identity.
//
// Cualquier error de storage es fail-open: ante un hiccup de infraestructura
// se prefiere dejar pasar tráfico legítimo antes que bloquearlo.
func (l *Limiter) Admit(ctx context.Context, identity string) Result {
	key := keyPrefix + identity
	now := l.now()

	rec, err := l.store.Get(ctx, key)
	if err != nil {
		l.log.Warn("store read failed, failing open", logger.Identity(identity), logger.Err(err))
		return Result{Allowed: true, Window: l.window}
	}

	// ventana nueva: primera llamada o rollover
	if rec == nil || now.Sub(msToTime(rec.WindowStart)) >= l.window {
		rec = &Record{Identity: identity, WindowStart: now.UnixMilli(), Remaining: l.max - 1}
		if err := l.store.Put(ctx, key, rec); err != nil {
			l.log.Warn("store write failed, failing open", logger.Identity(identity), logger.Err(err))
			return Result{Allowed: true, Window: l.window}
		}
		return Result{
			Allowed:   true,
			Known:     true,
			Remaining: rec.Remaining,
			Window:    l.window,
			NextReset: l.window,
		}
	}

	reset := msToTime(rec.WindowStart).Add(l.window).Sub(now)

	if rec.Remaining > 0 {
		rec.Remaining--
		if err := l.store.Put(ctx, key, rec); err != nil {
			l.log.Warn("store write failed, failing open", logger.Identity(identity), logger.Err(err))
			return Result{Allowed: true, Window: l.window}
		}
		return Result{
			Allowed:   true,
			Known:     true,
			Remaining: rec.Remaining,
			Window:    l.window,
			NextReset: reset,
		}
	}

	metrics.RateLimited.Inc()
	l.log.Debug("admission blocked", logger.Identity(identity), logger.Remaining(0))
	return Result{
		Allowed:    false,
		Known:      true,
		Window:     l.window,
		RetryAfter: ceilSeconds(reset),
	}
}

// Status reporta lo que Admit contestaría ahora mismo, sin escribir nunca.
// Sin record o con ventana vencida reporta cuota completa.
func (l *Limiter) Status(ctx context.Context, identity string) Result {
	now := l.now()

	rec, err := l.store.Get(ctx, keyPrefix+identity)
	if err != nil {
		l.log.Warn("store read failed, no status", logger.Identity(identity), logger.Err(err))
		return Result{Allowed: true, Window: l.window}
	}

	if rec == nil || now.Sub(msToTime(rec.WindowStart)) >= l.window {
		return Result{
			Allowed:   true,
			Known:     true,
			Remaining: l.max,
			Window:    l.window,
			NextReset: l.window,
		}
	}

	reset := msToTime(rec.WindowStart).Add(l.window).Sub(now)
	if rec.Remaining == 0 {
		return Result{
			Allowed:    false,
			Known:      true,
			Window:     l.window,
			RetryAfter: ceilSeconds(reset),
		}
	}
	return Result{
		Allowed:   true,
		Known:     true,
		Remaining: rec.Remaining,
		Window:    l.window,
		NextReset: reset,
	}
}

func msToTime(ms int64) time.Time { return time.UnixMilli(ms) }

func ceilSeconds(d time.Duration) time.Duration {
	return time.Duration(math.Ceil(d.Seconds())) * time.Second
}
