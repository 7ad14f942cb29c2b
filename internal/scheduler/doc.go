// Package scheduler owns the live task set. It is the single scheduling
// authority: at most one task per job id exists at any time, Schedule
// replaces atomically, and one fire loop drains due tasks into a worker
// pool. The engine knows nothing about storage or Telegram; it calls back
// into the service layer with (job id, owner id, due time).
package scheduler
