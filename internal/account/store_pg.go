package account

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	migrations "github.com/dropDatabas3/gridgate/migrations/postgres"
)

// PGStore persiste cuentas en postgres como documentos jsonb.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	s := &PGStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// ensureSchema aplica las migraciones embebidas en orden lexicográfico.
// Todas son idempotentes, no hay tabla de versiones.
func (s *PGStore) ensureSchema(ctx context.Context) error {
	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		sql, err := migrations.FS.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return err
		}
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, identity string) (*Record, error) {
	const q = `SELECT doc FROM accounts WHERE identity = $1`
	var doc []byte
	err := s.pool.QueryRow(ctx, q, identity).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PGStore) Put(ctx context.Context, identity string, rec *Record) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO accounts (identity, doc)
		VALUES ($1, $2)
		ON CONFLICT (identity)
		DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()`
	_, err = s.pool.Exec(ctx, q, identity, doc)
	return err
}

func (s *PGStore) Close() { s.pool.Close() }
