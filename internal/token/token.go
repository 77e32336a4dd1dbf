// Package token firma y verifica las credenciales bearer del mesh.
// HS256 contra un secreto compartido configurado; las credenciales viven
// 24 horas y nunca se persisten server-side.
package token

import (
	"errors"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// ErrInvalid es el único error que sale de Validate. Deliberadamente
// genérico: no distinguimos expirado de malformado de firma incorrecta
// para no filtrar internals de la validación al caller.
var ErrInvalid = errors.New("missing or invalid credential")

// Claims decodificadas de una credencial verificada.
type Claims struct {
	Subject   string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Operaciones exentas de credencial: alta de cuenta y login.
var exempt = map[string]struct{}{
	"register": {},
	"login":    {},
}

// IsExempt indica si la operación pasa sin inspeccionar credencial.
func IsExempt(op string) bool {
	_, ok := exempt[op]
	return ok
}

// Validator verifica firma y expiry y extrae claims.
type Validator struct {
	secret []byte
}

func NewValidator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

// Validate chequea la credencial para una operación. Si la operación es
// exenta devuelve (nil, nil) sin mirar la credencial. Cualquier fallo de
// verificación colapsa en ErrInvalid.
func (v *Validator) Validate(op, credential string) (*Claims, error) {
	if IsExempt(op) {
		return nil, nil
	}
	if strings.TrimSpace(credential) == "" {
		return nil, ErrInvalid
	}

	tok, err := jwtv5.Parse(credential, func(t *jwtv5.Token) (any, error) {
		return v.secret, nil
	}, jwtv5.WithValidMethods([]string{"HS256"}), jwtv5.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return nil, ErrInvalid
	}

	mc, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, ErrInvalid
	}
	sub, _ := mc["sub"].(string)
	if sub == "" {
		return nil, ErrInvalid
	}
	role, _ := mc["role"].(string)

	c := &Claims{Subject: sub, Role: role}
	if iat, ok := mc["iat"].(float64); ok {
		c.IssuedAt = time.Unix(int64(iat), 0)
	}
	if exp, ok := mc["exp"].(float64); ok {
		c.ExpiresAt = time.Unix(int64(exp), 0)
	}
	return c, nil
}

// Issuer emite credenciales firmadas. Lo usa el account worker en login.
type Issuer struct {
	secret []byte
	TTL    time.Duration
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), TTL: ttl}
}

// Issue firma una credencial para subject con el rol dado.
func (i *Issuer) Issue(subject, role string) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(i.TTL)

	claims := jwtv5.MapClaims{
		"sub":  subject,
		"role": role,
		"iat":  now.Unix(),
		"exp":  exp.Unix(),
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}
