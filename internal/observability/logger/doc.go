// Package logger provides a singleton Zap logger with context-based scoping.
//
//   - Singleton: una sola instancia global inicializada con Init().
//   - Context scoping: cada request puede llevar su logger "scoped" con campos
//     adicionales (request_id, client_id, ticket) sin crear un nuevo core.
//   - Environments: "dev" usa consola con colores, "prod" usa JSON.
//
// En handlers/services:
//
//	log := logger.From(ctx)
//	log.Info("rpt issued", logger.ClientID(clientID))
package logger
