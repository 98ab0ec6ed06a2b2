package session

import (
	"sync"

	"github.com/imrishuroy/pos-orderflow/internal/orders"
)

// Registry keeps one Session per terminal. Terminals share nothing else.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	factory  func(terminalID string) *Session
}

func NewRegistry(factory func(terminalID string) *Session) *Registry {
	return &Registry{sessions: map[string]*Session{}, factory: factory}
}

// Session returns the terminal's session, creating it on first use.
func (r *Registry) Session(terminalID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[terminalID]
	if !ok {
		s = r.factory(terminalID)
		r.sessions[terminalID] = s
	}
	return s
}

// Resolve forwards a reconciliation outcome to the terminal holding the order.
func (r *Registry) Resolve(orderID int64, st orders.Status) {
	r.mu.Lock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.Unlock()

	for _, s := range list {
		if s.Resolve(orderID, st) {
			return
		}
	}
}
