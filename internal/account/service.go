// Package account implementa el worker de cuentas: alta con hash argon2id
// y login que acuña la credencial de sesión.
package account

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/gridgate/internal/observability/logger"
	"github.com/dropDatabas3/gridgate/internal/token"
	"github.com/dropDatabas3/gridgate/internal/transport"
)

const defaultRole = "user"

type Service struct {
	store  Store
	issuer *token.Issuer
	log    *zap.Logger
}

func NewService(store Store, issuer *token.Issuer) *Service {
	return &Service{store: store, issuer: issuer, log: logger.Named("account")}
}

// Register da de alta una identidad nueva.
func (s *Service) Register(ctx context.Context, env transport.Envelope) (any, error) {
	identity, password, rerr := credentials(env)
	if rerr != nil {
		return nil, rerr
	}

	existing, err := s.store.Get(ctx, identity)
	if err != nil {
		s.log.Error("store read failed", logger.Identity(identity), logger.Err(err))
		return nil, err
	}
	if existing != nil {
		return nil, &transport.RemoteError{Code: transport.CodeValidation, Message: "identity already registered"}
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, &transport.RemoteError{Code: transport.CodeValidation, Message: "invalid password"}
	}
	rec := &Record{
		Identity:     identity,
		PasswordHash: hash,
		Role:         defaultRole,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.Put(ctx, identity, rec); err != nil {
		s.log.Error("store write failed", logger.Identity(identity), logger.Err(err))
		return nil, err
	}

	s.log.Info("account registered", logger.Identity(identity))
	return map[string]any{"success": true, "identity": identity}, nil
}

// Login verifica el password y emite una credencial de 24h.
// El mismo mensaje genérico para identidad inexistente y password malo.
func (s *Service) Login(ctx context.Context, env transport.Envelope) (any, error) {
	identity, password, rerr := credentials(env)
	if rerr != nil {
		return nil, rerr
	}

	rec, err := s.store.Get(ctx, identity)
	if err != nil {
		s.log.Error("store read failed", logger.Identity(identity), logger.Err(err))
		return nil, err
	}
	if rec == nil || !verifyPassword(password, rec.PasswordHash) {
		return nil, &transport.RemoteError{Code: transport.CodeAuthFailed, Message: "invalid identity or password"}
	}

	key, exp, err := s.issuer.Issue(rec.Identity, rec.Role)
	if err != nil {
		s.log.Error("credential mint failed", logger.Identity(identity), logger.Err(err))
		return nil, err
	}

	s.log.Info("login ok", logger.Identity(identity))
	return map[string]any{
		"success":   true,
		"identity":  rec.Identity,
		"role":      rec.Role,
		"key":       key,
		"expiresAt": exp.Unix(),
	}, nil
}

func credentials(env transport.Envelope) (identity, password string, err *transport.RemoteError) {
	identity, _ = env.Data["identity"].(string)
	password, _ = env.Data["password"].(string)
	if identity == "" || password == "" {
		return "", "", &transport.RemoteError{Code: transport.CodeValidation, Message: "identity and password are required"}
	}
	return identity, password, nil
}
