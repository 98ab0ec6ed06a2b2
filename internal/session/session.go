// Package session holds the concurrent draft orders of one cashier terminal
// and which of them is selected for editing.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/imrishuroy/pos-orderflow/internal/cancellation"
	"github.com/imrishuroy/pos-orderflow/internal/cart"
	"github.com/imrishuroy/pos-orderflow/internal/metrics"
	"github.com/imrishuroy/pos-orderflow/internal/orders"
	"github.com/imrishuroy/pos-orderflow/internal/retry"
)

const DefaultMaxDrafts = 5

// Backend is the order service as seen by a terminal.
type Backend interface {
	CreateDraft(ctx context.Context, terminalID string) (orders.DraftOrder, error)
	Get(ctx context.Context, id int64) (orders.DraftOrder, error)
	cart.Persister
	cart.Checkouter
}

// Canceller runs the cancellation workflow.
type Canceller interface {
	Cancel(ctx context.Context, orderID int64, req cancellation.Request) (cancellation.Result, error)
}

type Option func(*Session)

func WithMaxDrafts(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxDrafts = n
		}
	}
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Session) { s.policy = p }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(s *Session) { s.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.log = l }
}

type Session struct {
	terminalID string
	backend    Backend
	canceller  Canceller
	maxDrafts  int
	policy     retry.Policy
	metrics    metrics.Recorder
	log        *zap.Logger

	mu       sync.Mutex
	carts    map[int64]*cart.Cart
	selected int64
	// creating counts drafts being allocated so concurrent creates cannot
	// overshoot the cap.
	creating int
}

func New(terminalID string, backend Backend, canceller Canceller, opts ...Option) *Session {
	s := &Session{
		terminalID: terminalID,
		backend:    backend,
		canceller:  canceller,
		maxDrafts:  DefaultMaxDrafts,
		policy:     retry.DefaultPolicy,
		metrics:    metrics.Nop{},
		log:        zap.NewNop(),
		carts:      map[int64]*cart.Cart{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("terminal_id", terminalID))
	return s
}

func (s *Session) TerminalID() string { return s.terminalID }

// CreateOrder allocates a new draft and selects it. The cap is checked
// before the backend is called; orders settled elsewhere are released first.
func (s *Session) CreateOrder(ctx context.Context) (orders.DraftOrder, error) {
	if s.full() {
		s.Refresh(ctx)
	}
	s.mu.Lock()
	if len(s.carts)+s.creating >= s.maxDrafts {
		s.mu.Unlock()
		s.metrics.Count(ctx, metrics.DraftCapacityExceeded, map[string]string{"TerminalId": s.terminalID})
		return orders.DraftOrder{}, fmt.Errorf("terminal %s holds %d orders: %w", s.terminalID, s.maxDrafts, orders.ErrCapacityExceeded)
	}
	s.creating++
	s.mu.Unlock()

	var draft orders.DraftOrder
	err := retry.Do(ctx, s.policy, func() error {
		var err error
		draft, err = s.backend.CreateDraft(ctx, s.terminalID)
		if err != nil && orders.IsBusiness(err) {
			return retry.Permanent(err)
		}
		return err
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.creating--
	if err != nil {
		if orders.IsBusiness(err) {
			return orders.DraftOrder{}, err
		}
		s.log.Warn("create draft failed", zap.Error(err))
		return orders.DraftOrder{}, orders.Unavailable("create draft", err)
	}
	s.carts[draft.ID] = cart.New(draft, s.backend,
		cart.WithRetryPolicy(s.policy),
		cart.WithLogger(s.log.With(zap.Int64("order_id", draft.ID))))
	s.selected = draft.ID
	s.log.Info("draft opened", zap.Int64("order_id", draft.ID), zap.Int("open", len(s.carts)))
	return draft, nil
}

// SelectOrder makes id the target of cart edits.
func (s *Session) SelectOrder(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.carts[id]; !ok {
		return fmt.Errorf("order %d on terminal %s: %w", id, s.terminalID, orders.ErrOrderNotFound)
	}
	s.selected = id
	return nil
}

// Active returns the selected order id, if any.
func (s *Session) Active() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected, s.selected != 0
}

// Selected returns the cart of the selected order.
func (s *Session) Selected() (*cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == 0 {
		return nil, orders.ErrNoActiveOrder
	}
	return s.carts[s.selected], nil
}

func (s *Session) Cart(id int64) (*cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[id]
	if !ok {
		return nil, fmt.Errorf("order %d on terminal %s: %w", id, s.terminalID, orders.ErrOrderNotFound)
	}
	return c, nil
}

// Orders returns snapshots of every held order, most recently created first.
func (s *Session) Orders() []orders.DraftOrder {
	s.mu.Lock()
	list := make([]orders.DraftOrder, 0, len(s.carts))
	for _, c := range s.carts {
		list = append(list, c.Snapshot())
	}
	s.mu.Unlock()

	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
	return list
}

// RemoveOrder cancels id through the cancellation workflow and drops it from
// the terminal. A selected order leaves the terminal without a selection.
func (s *Session) RemoveOrder(ctx context.Context, id int64, req cancellation.Request) (cancellation.Result, error) {
	if _, err := s.Cart(id); err != nil {
		return cancellation.Result{}, err
	}
	res, err := s.canceller.Cancel(ctx, id, req)
	if err != nil {
		return cancellation.Result{}, err
	}
	s.evict(id)
	return res, nil
}

// Checkout locks id for payment.
func (s *Session) Checkout(ctx context.Context, id int64) (orders.DraftOrder, error) {
	c, err := s.Cart(id)
	if err != nil {
		return orders.DraftOrder{}, err
	}
	return c.Checkout(ctx, s.backend)
}

func (s *Session) full() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.carts)+s.creating >= s.maxDrafts
}

// Refresh re-reads the held orders from the backend and drops or unlocks
// those settled outside this terminal: paid by the sweep worker, cancelled
// from the back office, failed after a deferral. Unreachable orders are
// left as they are.
func (s *Session) Refresh(ctx context.Context) {
	s.mu.Lock()
	held := make([]*cart.Cart, 0, len(s.carts))
	for _, c := range s.carts {
		held = append(held, c)
	}
	s.mu.Unlock()

	for _, c := range held {
		o, err := s.backend.Get(ctx, c.ID())
		if err != nil {
			s.log.Warn("refresh order", zap.Int64("order_id", c.ID()), zap.Error(err))
			continue
		}
		switch o.Status {
		case orders.StatusPaid, orders.StatusDispatched, orders.StatusDelivered, orders.StatusFailedDelivery:
			s.Resolve(o.ID, orders.StatusPaid)
		case orders.StatusCancelled:
			s.Resolve(o.ID, orders.StatusCancelled)
		case orders.StatusPaymentFailed:
			if !c.Status().Editable() {
				s.Resolve(o.ID, orders.StatusPaymentFailed)
			}
		}
	}
}

// Resolve applies a status decided by payment reconciliation. It reports
// whether this terminal holds the order.
func (s *Session) Resolve(id int64, st orders.Status) bool {
	c, err := s.Cart(id)
	if err != nil {
		return false
	}
	switch st {
	case orders.StatusPaid, orders.StatusCancelled:
		s.evict(id)
	default:
		// PAYMENT_FAILED unlocks the cart, DEFERRED and MANUAL_REVIEW keep it locked
		c.SetStatus(st)
	}
	s.log.Info("order resolved", zap.Int64("order_id", id), zap.String("status", string(st)))
	return true
}

func (s *Session) evict(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, id)
	if s.selected == id {
		s.selected = 0
	}
}
