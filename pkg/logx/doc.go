// Package logx configures finger's structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Hot-reconfiguration via Service.Apply without swapping loggers
package logx
