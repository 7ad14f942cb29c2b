package dialogue

import "remindbot/internal/service"

type step int

const (
	stepIdle step = iota
	stepAwaitText
	stepAwaitTime
	stepAwaitRecurrence
	stepAwaitAttachment
)

// session is one user's in-flight wizard state. Sessions live in memory
// only; a restart drops them (the user just starts the wizard over).
type session struct {
	step  step
	draft service.Draft
}

func (r *Router) session(userID int64) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	if !ok {
		s = &session{}
		r.sessions[userID] = s
	}
	return s
}

func (r *Router) resetSession(userID int64) {
	r.mu.Lock()
	delete(r.sessions, userID)
	r.mu.Unlock()
}
