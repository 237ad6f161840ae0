// Package logx configures routined's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Components decoupled from a process-wide logger (each one receives a Logger;
//     the zero value and Nop() discard everything)
package logx
