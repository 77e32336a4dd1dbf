package rate

import (
	"context"
	"encoding/json"

	gocache "github.com/patrickmn/go-cache"
	rdb "github.com/redis/go-redis/v9"
)

// Record es el estado persistido de una identidad: inicio de ventana y
// cuota restante. Se crea lazy en la primera llamada y nunca se borra
// explícitamente (crecimiento aceptado como característica operacional).
type Record struct {
	Identity    string `json:"identity"`
	WindowStart int64  `json:"window_start_ms"` // unix millis
	Remaining   int    `json:"remaining"`
}

// Store es el handle al KV persistente, inyectado al construir el Limiter.
// Get devuelve (nil, nil) cuando la key no existe.
type Store interface {
	Get(ctx context.Context, key string) (*Record, error)
	Put(ctx context.Context, key string, rec *Record) error
}

// RedisStore guarda records como JSON, sin TTL: el rollover de ventana se
// decide por timestamp, no por expiración de la key.
type RedisStore struct {
	Client *rdb.Client
	Prefix string
}

func NewRedisStore(client *rdb.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "gridgate:"
	}
	return &RedisStore{Client: client, Prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	b, err := s.Client.Get(ctx, s.Prefix+key).Bytes()
	if err == rdb.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, rec *Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.Client.Set(ctx, s.Prefix+key, b, 0).Err()
}

// MemoryStore: in-process, para desarrollo y tests.
type MemoryStore struct {
	c *gocache.Cache
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{c: gocache.New(gocache.NoExpiration, 0)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, nil
	}
	rec := v.(Record)
	return &rec, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, rec *Record) error {
	s.c.Set(key, *rec, gocache.NoExpiration)
	return nil
}
