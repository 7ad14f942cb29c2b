// Package logx provides the process-wide structured logger.
//
// It wraps zerolog behind a small Logger value type so components can hold a
// logger that stays live across runtime config changes: Service.Apply() swaps
// sinks and levels atomically without invalidating derived loggers.
package logx
