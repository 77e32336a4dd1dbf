package account

import (
	"context"
	"encoding/json"
	"time"

	gocache "github.com/patrickmn/go-cache"
	rdb "github.com/redis/go-redis/v9"
)

// Record es la cuenta persistida, keyed por identity, JSON-valued.
type Record struct {
	Identity     string    `json:"identity"`
	PasswordHash string    `json:"password_hash"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store es el KV de cuentas. Get devuelve (nil, nil) cuando no existe.
type Store interface {
	Get(ctx context.Context, identity string) (*Record, error)
	Put(ctx context.Context, identity string, rec *Record) error
}

// MemoryStore: in-process, para desarrollo y tests.
type MemoryStore struct {
	c *gocache.Cache
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{c: gocache.New(gocache.NoExpiration, 0)}
}

func (s *MemoryStore) Get(_ context.Context, identity string) (*Record, error) {
	v, ok := s.c.Get(identity)
	if !ok {
		return nil, nil
	}
	rec := v.(Record)
	return &rec, nil
}

func (s *MemoryStore) Put(_ context.Context, identity string, rec *Record) error {
	s.c.Set(identity, *rec, gocache.NoExpiration)
	return nil
}

// RedisStore guarda cuentas como JSON bajo un prefijo.
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

func (s *RedisStore) key(identity string) string { return s.Prefix + "acct:" + identity }

func (s *RedisStore) Get(ctx context.Context, identity string) (*Record, error) {
	b, err := s.Client.Get(ctx, s.key(identity)).Bytes()
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

func (s *RedisStore) Put(ctx context.Context, identity string, rec *Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.Client.Set(ctx, s.key(identity), b, 0).Err()
}
