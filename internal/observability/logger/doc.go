// Package logger provides a singleton Zap logger for the mesh workers.
//
// # Design Decisions
//
//   - Singleton: Una sola instancia global inicializada con Init().
//   - Named loggers: cada subsistema (directory, rpc, gateway) usa Named()
//     para identificar el origen de sus logs.
//   - Environments: "dev" usa consola con colores, "prod" usa JSON.
//   - Levels: debug, info, warn, error (configurable via LOG_LEVEL).
//
// # Usage
//
// Inicialización (una vez en main.go):
//
//	logger.Init(logger.Config{
//	    Env:   os.Getenv("APP_ENV"),   // "dev" o "prod"
//	    Level: os.Getenv("LOG_LEVEL"), // "debug", "info", "warn", "error"
//	})
//	defer logger.Sync()
//
// En componentes:
//
//	log := logger.Named("rpc")
//	log.Info("call ok", logger.Topic(topic), logger.Attempt(n))
package logger
