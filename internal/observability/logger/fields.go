package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - MESH
// =================================================================================

// Topic crea un campo para el topic del directorio.
func Topic(v string) zap.Field {
	return zap.String("topic", v)
}

// Operation crea un campo para la operación remota.
func Operation(v string) zap.Field {
	return zap.String("op", v)
}

// Peer crea un campo para el peer remoto.
func Peer(v string) zap.Field {
	return zap.String("peer", v)
}

// Attempt crea un campo para el número de intento.
func Attempt(v int) zap.Field {
	return zap.Int("attempt", v)
}

// Candidates crea un campo para la cantidad de candidatos descubiertos.
func Candidates(v int) zap.Field {
	return zap.Int("candidates", v)
}

// FailureKind crea un campo para la clase de fallo de transporte.
func FailureKind(v string) zap.Field {
	return zap.String("failure_kind", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - NEGOCIO
// =================================================================================

// Identity crea un campo para la identidad autenticada.
func Identity(v string) zap.Field {
	return zap.String("identity", v)
}

// CorrelationID crea un campo para el correlation id de la respuesta.
func CorrelationID(v string) zap.Field {
	return zap.String("correlation_id", v)
}

// Remaining crea un campo para la cuota restante.
func Remaining(v int) zap.Field {
	return zap.Int("remaining", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Duration crea un campo para la duración de una operación.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// Status crea un campo para el status code de la respuesta.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}
