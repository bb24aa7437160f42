// Package checkout drives a purchase from intent to confirmed entitlement.
//
// An Attempt moves through
//
//	payment_requested → awaiting_external_confirmation → reconciling_success → succeeded
//	                                                   → reconciling_failed  → failed
//
// and can be cancelled while awaiting confirmation. Only the first completion
// signal of an attempt counts; later ones are ignored.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/CourseKeeper/internal/access"
	"github.com/atinyakov/CourseKeeper/internal/catalog"
	"github.com/atinyakov/CourseKeeper/internal/client/api"
	"github.com/atinyakov/CourseKeeper/internal/client/storage"
	"github.com/atinyakov/CourseKeeper/internal/logger"
	"github.com/atinyakov/CourseKeeper/internal/models"
)

var (
	ErrNotFound             = errors.New("nothing to purchase with this id")
	ErrAlreadyPurchased     = errors.New("already purchased")
	ErrPaymentUnavailable   = errors.New("payment could not be started")
	ErrConfirmationRequired = errors.New("payment may be in progress, confirm to close")
)

// UnauthenticatedError is returned by Begin for a signed-out user. Intent is
// the purchase to resume after signing in.
type UnauthenticatedError struct {
	Intent Target
}

func (e *UnauthenticatedError) Error() string {
	return fmt.Sprintf("sign in to buy %s", e.Intent)
}

// Kind is what a Target buys.
type Kind int

const (
	KindCourse Kind = iota + 1
	KindStage
	KindFullAccess
)

// Target identifies a purchasable item.
type Target struct {
	Kind Kind
	ID   int
}

// Course targets a single course.
func Course(id int) Target { return Target{Kind: KindCourse, ID: id} }

// Stage targets a stage bundle.
func Stage(id int) Target { return Target{Kind: KindStage, ID: id} }

// FullAccess targets every course of the catalog.
func FullAccess() Target { return Target{Kind: KindFullAccess} }

func (t Target) String() string {
	switch t.Kind {
	case KindCourse:
		return fmt.Sprintf("course %d", t.ID)
	case KindStage:
		return fmt.Sprintf("stage %d", t.ID)
	case KindFullAccess:
		return "full access"
	}
	return "nothing"
}

// State of an Attempt.
type State string

const (
	StateIdle               State = "idle"
	StatePaymentRequested   State = "payment_requested"
	StateAwaiting           State = "awaiting_external_confirmation"
	StateReconcilingSuccess State = "reconciling_success"
	StateReconcilingFailed  State = "reconciling_failed"
	StateSucceeded          State = "succeeded"
	StateFailed             State = "failed"
	StateCancelled          State = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Outcome is the effect of delivering a signal to an Attempt.
type Outcome int

const (
	// OutcomeIgnored means the attempt had already completed or the signal
	// carried no verdict.
	OutcomeIgnored Outcome = iota
	OutcomePending
	OutcomeSucceeded
	OutcomeFailed
)

// Payments opens payment sessions.
type Payments interface {
	CreatePayment(ctx context.Context, req api.PaymentRequest) (api.PaymentSession, error)
	PaymentStatus(ctx context.Context, paymentID string) (models.PaymentStatus, error)
}

// Accounts reads the signed-in user and records confirmed purchases.
type Accounts interface {
	Cached(ctx context.Context) *models.User
	Commit(ctx context.Context, entries ...storage.Entry) (*models.User, error)
}

// Session reports whether credentials are stored.
type Session interface {
	Authenticated(ctx context.Context) bool
}

// Orchestrator starts purchase attempts.
type Orchestrator struct {
	catalog  *catalog.Index
	access   *access.Evaluator
	payments Payments
	accounts Accounts
	session  Session
	log      *zap.Logger
	now      func() time.Time
}

// New returns an Orchestrator.
func New(idx *catalog.Index, eval *access.Evaluator, payments Payments, accounts Accounts, session Session, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		catalog:  idx,
		access:   eval,
		payments: payments,
		accounts: accounts,
		session:  session,
		log:      log,
		now:      time.Now,
	}
}

// plan is a validated purchase.
type plan struct {
	req     api.PaymentRequest
	entries []storage.Entry
}

// Begin validates the purchase, computes the charge and opens a payment
// session. The returned attempt awaits a signal from the payment page. A
// purchase that costs nothing, such as a stage whose courses are all owned,
// is committed at once and returned already succeeded.
func (o *Orchestrator) Begin(ctx context.Context, target Target, lang models.Lang) (*Attempt, error) {
	var user *models.User
	if o.session.Authenticated(ctx) {
		user = o.accounts.Cached(ctx)
	}

	p, err := o.plan(user, target, lang)
	if err != nil {
		return nil, err
	}

	a := &Attempt{
		o:           o,
		Target:      target,
		OrderID:     p.req.OrderID,
		Amount:      p.req.Amount,
		Currency:    p.req.Currency,
		Description: p.req.Description,
		entries:     p.entries,
		state:       StatePaymentRequested,
	}

	if p.req.Amount <= 0 {
		a.state = StateAwaiting
		if _, err := a.signal(ctx, SignalSuccess); err != nil {
			return nil, err
		}
		return a, nil
	}

	sess, err := o.payments.CreatePayment(ctx, p.req)
	if err != nil {
		o.log.Error("failed to create payment",
			zap.String("target", target.String()),
			zap.String(logger.FieldOrderID, p.req.OrderID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrPaymentUnavailable, err)
	}

	a.PaymentID = sess.PaymentID
	a.PaymentURL = sess.PaymentURL
	a.state = StateAwaiting
	o.log.Info("payment started",
		zap.String("target", target.String()),
		zap.String(logger.FieldPaymentID, sess.PaymentID),
		zap.Float64("amount", p.req.Amount))
	return a, nil
}

func (o *Orchestrator) plan(user *models.User, target Target, lang models.Lang) (plan, error) {
	now := o.now().UnixMilli()
	var owned []int
	if user != nil {
		owned = user.OpenCategories
	}

	switch target.Kind {
	case KindCourse:
		if err := decisionErr(o.access.CanPurchaseCourse(user, target.ID), target); err != nil {
			return plan{}, err
		}
		c, _ := o.catalog.FindCourseByID(target.ID)
		return plan{
			req: api.PaymentRequest{
				Amount:      c.Price,
				Currency:    catalog.Currency,
				Description: c.Title.Get(lang),
				OrderID:     fmt.Sprintf("course_%d_%d", c.ID, now),
				CourseID:    c.ID,
			},
			entries: []storage.Entry{storage.CourseEntry(c.ID)},
		}, nil

	case KindStage:
		if err := decisionErr(o.access.CanPurchaseStage(user, target.ID), target); err != nil {
			return plan{}, err
		}
		st, _ := o.catalog.FindStageByID(target.ID)
		return plan{
			req: api.PaymentRequest{
				Amount:      catalog.RemainingStagePrice(st.Courses, owned),
				Currency:    catalog.Currency,
				Description: st.Title.Get(lang),
				OrderID:     fmt.Sprintf("stage_%d_%d", st.ID, now),
				StageID:     st.ID,
			},
			entries: []storage.Entry{storage.StageEntry(st.ID, st.CourseIDs())},
		}, nil

	case KindFullAccess:
		if err := decisionErr(o.access.CanPurchaseFullAccess(user), target); err != nil {
			return plan{}, err
		}
		stages := o.catalog.Stages()
		entries := make([]storage.Entry, 0, len(stages))
		for _, st := range stages {
			entries = append(entries, storage.StageEntry(st.ID, st.CourseIDs()))
		}
		return plan{
			req: api.PaymentRequest{
				Amount:      o.catalog.FullAccessPrice(owned),
				Currency:    catalog.Currency,
				Description: fullAccessTitle.Get(lang),
				OrderID:     fmt.Sprintf("full_access_%d", now),
			},
			entries: entries,
		}, nil
	}
	return plan{}, ErrNotFound
}

var fullAccessTitle = models.LocalizedString{EN: "Full access", RU: "Полный доступ"}

func decisionErr(d access.Decision, target Target) error {
	switch d.Reason {
	case access.ReasonNone:
		return nil
	case access.ReasonNotFound:
		return ErrNotFound
	case access.ReasonUnauthenticated:
		return &UnauthenticatedError{Intent: target}
	case access.ReasonAlreadyOwned:
		return ErrAlreadyPurchased
	case access.ReasonPrerequisite:
		return &access.PrerequisiteError{CourseID: target.ID, Missing: d.Missing}
	}
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("purchase of %s not allowed: %s", target, d.Reason)
}

// Attempt is one purchase in flight.
type Attempt struct {
	o *Orchestrator

	Target      Target
	OrderID     string
	PaymentID   string
	PaymentURL  string
	Amount      float64
	Currency    string
	Description string

	entries []storage.Entry

	mu    sync.Mutex
	state State
	user  *models.User
}

// State returns the current state.
func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// User returns the account after a successful purchase, or nil.
func (a *Attempt) User() *models.User {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user
}

// HandleNavigation feeds a URL the payment page navigated to.
func (a *Attempt) HandleNavigation(ctx context.Context, rawURL string) (Outcome, error) {
	if rawURL == a.PaymentURL {
		return OutcomeIgnored, nil
	}
	return a.signal(ctx, ParseURL(rawURL))
}

// HandleMessage feeds a payload posted by the payment page. Payloads naming
// another payment are ignored.
func (a *Attempt) HandleMessage(ctx context.Context, data []byte) (Outcome, error) {
	sig, paymentID := ParseMessage(data)
	if paymentID != "" && a.PaymentID != "" && paymentID != a.PaymentID {
		return OutcomeIgnored, nil
	}
	return a.signal(ctx, sig)
}

// Poll asks the backend for the payment status and applies it like a signal.
func (a *Attempt) Poll(ctx context.Context) (Outcome, error) {
	if a.State() != StateAwaiting {
		return OutcomeIgnored, nil
	}
	status, err := a.o.payments.PaymentStatus(ctx, a.PaymentID)
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("payment status: %w", err)
	}
	switch status {
	case models.PaymentSuccess:
		return a.signal(ctx, SignalSuccess)
	case models.PaymentFailed:
		return a.signal(ctx, SignalFailure)
	}
	return OutcomePending, nil
}

// Close ends the attempt from the user's side. While a payment may be in
// flight it needs confirmed set, otherwise ErrConfirmationRequired is returned
// and nothing changes.
func (a *Attempt) Close(confirmed bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateAwaiting {
		return nil
	}
	if !confirmed {
		return ErrConfirmationRequired
	}
	a.state = StateCancelled
	a.o.log.Info("payment closed by user", zap.String(logger.FieldPaymentID, a.PaymentID))
	return nil
}

func (a *Attempt) signal(ctx context.Context, sig Signal) (Outcome, error) {
	if sig == SignalNone {
		return OutcomeIgnored, nil
	}

	a.mu.Lock()
	if a.state != StateAwaiting {
		a.mu.Unlock()
		return OutcomeIgnored, nil
	}
	if sig == SignalFailure {
		a.state = StateReconcilingFailed
		a.mu.Unlock()
		a.o.log.Info("payment failed", zap.String(logger.FieldPaymentID, a.PaymentID))

		a.mu.Lock()
		a.state = StateFailed
		a.mu.Unlock()
		return OutcomeFailed, nil
	}
	a.state = StateReconcilingSuccess
	a.mu.Unlock()

	u, err := a.o.accounts.Commit(ctx, a.entries...)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.state = StateFailed
		a.o.log.Error("payment succeeded but purchase was not saved",
			zap.String(logger.FieldPaymentID, a.PaymentID),
			zap.String(logger.FieldOrderID, a.OrderID),
			zap.Error(err))
		return OutcomeFailed, fmt.Errorf("save purchase: %w", err)
	}
	a.state = StateSucceeded
	a.user = u
	return OutcomeSucceeded, nil
}
