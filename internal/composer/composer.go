package composer

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pharmacy/admin/internal/domain"
)

const (
	MsgCreated = "Transaction added successfully"
	MsgUpdated = "Transaction updated successfully"
	// MsgSaveFailed is shown when ErrorMessage is not set.
	MsgSaveFailed = "Something went wrong"
)

var (
	ErrValidation       = errors.New("transaction form has validation errors")
	ErrSubmitInProgress = errors.New("a submit is already in progress")
	ErrClosed           = errors.New("transaction form is closed")
)

type TransactionWriter interface {
	CreateTransaction(ctx context.Context, in domain.TransactionInput) (domain.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, in domain.TransactionInput) (domain.Transaction, error)
}

type Notifier interface {
	Success(msg string)
	Error(msg string)
}

type Deps struct {
	Products ProductLister
	Writer   TransactionWriter
	Identity Identity
	Notifier Notifier
	// Refetch reloads the transaction list after a successful save.
	Refetch func(ctx context.Context)
	// ErrorMessage turns a failed save into the text the user sees.
	ErrorMessage func(err error) string
}

// View is what a form renders. Amount is derived from Draft on every call.
type View struct {
	Status        Status
	TransactionID string
	Draft         Draft
	Errors        Errors
	Amount        decimal.Decimal
	Submitting    bool
	Options       []Option
}

// Composer runs one transaction form at a time. Reopening replaces the
// current form.
type Composer struct {
	deps   Deps
	logger *zap.Logger

	mu     sync.Mutex
	state  State
	gen    uint64
	cancel context.CancelFunc
}

func New(deps Deps, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{deps: deps, logger: logger}
}

// OpenForCreate loads the catalog and starts a blank draft.
func (c *Composer) OpenForCreate(ctx context.Context) View {
	catalog := LoadCatalog(ctx, c.deps.Products, c.logger)
	return c.open(opened{catalog: catalog, draft: NewDraft()})
}

// OpenForEdit loads the catalog and hydrates the draft from tx.
func (c *Composer) OpenForEdit(ctx context.Context, tx domain.Transaction) View {
	catalog := LoadCatalog(ctx, c.deps.Products, c.logger)
	return c.open(opened{catalog: catalog, draft: HydrateDraft(tx, catalog), transactionID: tx.ID})
}

func (c *Composer) open(ev opened) View {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abandonLocked()
	c.state = Reduce(c.state, ev)
	return c.viewLocked()
}

// Close discards the draft. An in-flight submit is cancelled and its result,
// if it still arrives, is dropped without notification.
func (c *Composer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abandonLocked()
	c.state = Reduce(c.state, cancelled{})
}

func (c *Composer) abandonLocked() {
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Composer) Dispatch(ev Event) View {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Reduce(c.state, ev)
	return c.viewLocked()
}

func (c *Composer) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Composer) viewLocked() View {
	s := c.state
	return View{
		Status:        s.Status,
		TransactionID: s.TransactionID,
		Draft:         s.Draft.clone(),
		Errors:        copyErrors(s.Errors),
		Amount:        Amount(s.Draft.Lines),
		Submitting:    s.Status == StatusSubmitting,
		Options:       s.Catalog.Options(),
	}
}

// Submit validates the draft and saves it. Validation failures return
// ErrValidation and are left in View().Errors; save failures are reported to
// the notifier and keep the draft for another try.
func (c *Composer) Submit(ctx context.Context) (domain.Transaction, error) {
	c.mu.Lock()
	switch c.state.Status {
	case StatusClosed:
		c.mu.Unlock()
		return domain.Transaction{}, ErrClosed
	case StatusSubmitting:
		c.mu.Unlock()
		return domain.Transaction{}, ErrSubmitInProgress
	}
	if !c.state.Errors.Empty() {
		c.mu.Unlock()
		return domain.Transaction{}, ErrValidation
	}

	// Identity is read now; the session may have changed since the form opened.
	payload := Normalize(c.state.Draft, c.deps.Identity)
	txID := c.state.TransactionID
	c.state = Reduce(c.state, submitStarted{})
	submitCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	gen := c.gen
	c.mu.Unlock()

	var (
		saved domain.Transaction
		err   error
	)
	if txID != "" {
		saved, err = c.deps.Writer.UpdateTransaction(submitCtx, txID, payload)
	} else {
		saved, err = c.deps.Writer.CreateTransaction(submitCtx, payload)
	}
	cancel()

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.logger.Debug("dropping result of abandoned submit", zap.String("transaction", txID), zap.Error(err))
		return domain.Transaction{}, ErrClosed
	}
	c.cancel = nil
	if err != nil {
		c.state = Reduce(c.state, submitFailed{})
		c.mu.Unlock()
		c.logger.Warn("save transaction", zap.String("transaction", txID), zap.Error(err))
		c.notifyError(c.errorMessage(err))
		return domain.Transaction{}, err
	}
	c.state = Reduce(c.state, submitSucceeded{})
	c.mu.Unlock()

	if txID != "" {
		c.notifySuccess(MsgUpdated)
	} else {
		c.notifySuccess(MsgCreated)
	}
	if c.deps.Refetch != nil {
		c.deps.Refetch(ctx)
	}
	return saved, nil
}

func (c *Composer) notifySuccess(msg string) {
	if c.deps.Notifier != nil {
		c.deps.Notifier.Success(msg)
	}
}

func (c *Composer) notifyError(msg string) {
	if c.deps.Notifier != nil {
		c.deps.Notifier.Error(msg)
	}
}

func copyErrors(e Errors) Errors {
	out := make(Errors, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

func (c *Composer) errorMessage(err error) string {
	if c.deps.ErrorMessage != nil {
		if msg := c.deps.ErrorMessage(err); msg != "" {
			return msg
		}
	}
	return MsgSaveFailed
}
