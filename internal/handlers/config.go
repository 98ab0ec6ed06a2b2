package handlers

import (
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/pos-orderflow/internal/cancellation"
	"github.com/imrishuroy/pos-orderflow/internal/customers"
	"github.com/imrishuroy/pos-orderflow/internal/orders"
	"github.com/imrishuroy/pos-orderflow/internal/payment"
	"github.com/imrishuroy/pos-orderflow/internal/session"
	"github.com/imrishuroy/pos-orderflow/internal/validation"
)

// HandlerConfig groups dependencies for the route groups.
type HandlerConfig struct {
	Sessions     *session.Registry
	Orders       *orders.Service
	Cancellation *cancellation.Workflow
	Reconciler   *payment.Reconciler
	Customers    *customers.Store
	Log          *zap.Logger
}

type api struct {
	cfg      HandlerConfig
	validate *validatorv10.Validate
	pickers  *pickers
}

func newAPI(cfg HandlerConfig) *api {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &api{cfg: cfg, validate: validation.New(), pickers: newPickers(cfg.Customers)}
}
