// Package migrations embebe los archivos SQL del account store.
package migrations

import "embed"

// FS contiene las migraciones, aplicadas en orden lexicográfico.
//
//go:embed *.sql
var FS embed.FS
