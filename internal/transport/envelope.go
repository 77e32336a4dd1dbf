package transport

import (
	"encoding/json"
	"strings"
)

// Envelope es el wrapper de wire de toda request del mesh.
// data siempre presente y es un mapa; meta.key lleva la credencial bearer
// y es obligatoria para operaciones no exentas.
type Envelope struct {
	Data map[string]any `json:"data"`
	Meta *Meta          `json:"meta,omitempty"`
}

type Meta struct {
	Key string `json:"key,omitempty"`
}

// Key devuelve la credencial del envelope, "" si no hay.
func (e Envelope) Key() string {
	if e.Meta == nil {
		return ""
	}
	return e.Meta.Key
}

// Request es el frame completo que viaja por el stream: operación + envelope.
type Request struct {
	Op       string   `json:"op"`
	Envelope Envelope `json:"envelope"`
}

// Sentinel de error a nivel protocolo. Un reply exitoso es el payload JSON
// tal cual; un fallo de protocolo es un string JSON con este prefijo, para
// que el caller distinga fallos de transporte de payloads válidos.
const ErrPrefix = "[ERR]="

// Códigos remotos que viajan dentro del sentinel.
const (
	CodeUnknownMethod = "unknown_method"
	CodeAuthFailed    = "auth_failed"
	CodeValidation    = "validation"
	CodeInternal      = "internal"
)

// RemoteError es un error semántico que un handler quiere propagar al caller
// con un código estable. Cualquier otro error del handler se degrada a
// CodeInternal con mensaje genérico.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string { return e.Code + ": " + e.Message }

// EncodeReply serializa el resultado de un handler como línea de respuesta.
func EncodeReply(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// EncodeErrorReply serializa un fallo como sentinel [ERR]=<code>: <message>.
func EncodeErrorReply(code, message string) []byte {
	b, _ := json.Marshal(ErrPrefix + code + ": " + message)
	return append(b, '\n')
}

// DecodeReply interpreta una línea de respuesta: payload JSON o sentinel.
// Los sentinels se convierten en *Failure con la clase que corresponde:
// unknown_method es retryable (anuncio viejo), el resto es FailFatal.
func DecodeReply(line []byte) (json.RawMessage, *Failure) {
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return nil, Failf(FailConnectionClosed, "empty reply")
	}

	var s string
	if err := json.Unmarshal([]byte(trimmed), &s); err == nil {
		if !strings.HasPrefix(s, ErrPrefix) {
			// string plano: payload válido (poco común pero legal)
			return json.RawMessage(trimmed), nil
		}
		code, msg := splitRemote(strings.TrimPrefix(s, ErrPrefix))
		if code == CodeUnknownMethod {
			return nil, &Failure{Kind: FailUnknownMethod, Code: code, Message: msg}
		}
		return nil, &Failure{Kind: FailFatal, Code: code, Message: msg}
	}

	var raw json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, Failf(FailFatal, "malformed reply: %v", err)
	}
	return raw, nil
}

func splitRemote(s string) (code, msg string) {
	if i := strings.Index(s, ": "); i >= 0 {
		return s[:i], s[i+2:]
	}
	return CodeInternal, s
}
