package transport

import (
	"errors"
	"fmt"
)

// FailureKind clasifica un fallo de transporte. La clasificación se decide
// una sola vez, en esta capa; nadie más inspecciona mensajes de error.
type FailureKind int

const (
	FailUnknown FailureKind = iota
	FailConnectionClosed
	FailConnectionReset
	FailConnectionRefused
	FailTimeout
	FailLookupEmpty
	FailUnknownMethod
	// FailFatal: el peer respondió con un error semántico (auth, validación).
	// Nunca se reintenta.
	FailFatal
)

func (k FailureKind) String() string {
	switch k {
	case FailConnectionClosed:
		return "connection_closed"
	case FailConnectionReset:
		return "connection_reset"
	case FailConnectionRefused:
		return "connection_refused"
	case FailTimeout:
		return "timeout"
	case FailLookupEmpty:
		return "lookup_empty"
	case FailUnknownMethod:
		return "unknown_method"
	case FailFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Retryable indica si el fallo es de clase conexión: churn normal del
// directorio que se cura con retry + lookup fresco.
// unknown_method cuenta como retryable: el peer puede ser un anuncio
// viejo que ya no expone la operación.
func (k FailureKind) Retryable() bool {
	switch k {
	case FailConnectionClosed, FailConnectionReset, FailConnectionRefused,
		FailTimeout, FailLookupEmpty, FailUnknownMethod:
		return true
	default:
		return false
	}
}

// Failure es el resultado clasificado de un intento de llamada remota.
type Failure struct {
	Kind    FailureKind
	Code    string // código remoto cuando Kind == FailFatal
	Message string
	// Attempts lo anota el call client cuando agota su presupuesto.
	Attempts int
}

func (f *Failure) Error() string {
	if f.Attempts > 0 {
		return fmt.Sprintf("%s: %s (after %d attempts)", f.Kind, f.Message, f.Attempts)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Failf construye un Failure con mensaje formateado.
func Failf(kind FailureKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsFailure extrae el *Failure de un error, si lo hay.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	ok := errors.As(err, &f)
	return f, ok
}

// KindOf devuelve la clase del error, FailUnknown si no es un Failure.
func KindOf(err error) FailureKind {
	if f, ok := AsFailure(err); ok {
		return f.Kind
	}
	return FailUnknown
}

// Retryable reporta si un error arbitrario es de clase conexión.
func Retryable(err error) bool {
	if f, ok := AsFailure(err); ok {
		return f.Kind.Retryable()
	}
	return false
}
