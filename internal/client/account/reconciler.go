// Package account keeps the local purchase cache consistent with the backend.
//
// The server is authoritative. Purchases confirmed on this device are applied
// locally first and queued in the outbox until the server accepts them, so a
// resync never erases a purchase the server has not seen yet.
package account

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/atinyakov/CourseKeeper/internal/client/api"
	"github.com/atinyakov/CourseKeeper/internal/client/storage"
	"github.com/atinyakov/CourseKeeper/internal/models"
)

var (
	// ErrSuperseded is returned when a newer request already updated the cache.
	ErrSuperseded = errors.New("result superseded by a newer request")
	// ErrNoToken is returned when an auth response carries no token.
	ErrNoToken = errors.New("server response does not include a token")
)

// Remote is the subset of the backend client the reconciler needs.
type Remote interface {
	Login(ctx context.Context, email, password string) (api.AuthResult, error)
	Register(ctx context.Context, email, password string) (api.AuthResult, error)
	FetchCurrentUser(ctx context.Context) (models.User, error)
	UpdateCurrentUser(ctx context.Context, upd api.UserUpdate) (models.User, error)
}

// Options tune the push retries.
type Options struct {
	MaxRetries uint64
	BaseDelay  time.Duration
}

// DefaultOptions are used for zero fields.
var DefaultOptions = Options{MaxRetries: 3, BaseDelay: 200 * time.Millisecond}

// Reconciler applies server state to the local cache.
type Reconciler struct {
	remote  Remote
	cache   *storage.PurchaseCache
	session *storage.Session
	outbox  *storage.Outbox
	log     *zap.Logger
	opts    Options

	seq         atomic.Uint64
	mu          sync.Mutex
	lastApplied uint64
}

// New returns a Reconciler.
func New(remote Remote, cache *storage.PurchaseCache, session *storage.Session, outbox *storage.Outbox, log *zap.Logger, opts Options) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultOptions.MaxRetries
	}
	if opts.BaseDelay == 0 {
		opts.BaseDelay = DefaultOptions.BaseDelay
	}
	return &Reconciler{remote: remote, cache: cache, session: session, outbox: outbox, log: log, opts: opts}
}

// Cached returns the cached user without touching the network.
func (r *Reconciler) Cached(ctx context.Context) *models.User {
	return r.cache.StoredUser(ctx)
}

// Resync fetches the account and overwrites the cache with it, replaying
// purchases still waiting in the outbox on top.
//
// On any failure the cached user is returned with the error. A rejected
// token clears the stored credentials but keeps purchase data. A result is
// discarded when ctx is done before it arrives, or when a request started
// later has already been applied (ErrSuperseded).
func (r *Reconciler) Resync(ctx context.Context) (*models.User, error) {
	seq := r.seq.Add(1)
	remote, err := r.remote.FetchCurrentUser(ctx)
	if err != nil {
		return r.fallback(ctx, err)
	}
	return r.apply(ctx, seq, remote)
}

func (r *Reconciler) fallback(ctx context.Context, err error) (*models.User, error) {
	ctx = context.WithoutCancel(ctx)
	switch {
	case errors.Is(err, api.ErrTokenInvalid):
		r.log.Info("token rejected, clearing credentials")
		if cerr := r.session.ClearCredentials(ctx); cerr != nil {
			r.log.Error("failed to clear credentials", zap.Error(cerr))
		}
	case errors.Is(err, api.ErrMissingToken):
	default:
		r.log.Warn("resync failed, using cached user", zap.Error(err))
	}
	return r.cache.StoredUser(ctx), err
}

// apply persists server state fetched under seq.
func (r *Reconciler) apply(ctx context.Context, seq uint64, remote models.User) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return r.cache.StoredUser(context.WithoutCancel(ctx)), err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if seq <= r.lastApplied {
		return r.cache.StoredUser(ctx), ErrSuperseded
	}

	pending, err := r.outbox.PendingFor(ctx, remote.Email)
	if err != nil {
		r.log.Error("failed to read outbox", zap.Error(err))
	}
	merged := r.cache.Normalize(storage.ApplyEntries(remote, pending))
	if err := r.cache.Persist(ctx, merged); err != nil {
		return nil, fmt.Errorf("persist user: %w", err)
	}
	r.lastApplied = seq
	return &merged, nil
}

// Login signs in, stores the credentials and replaces the cache with the
// server's account. Queued purchases of that account are pushed afterwards.
func (r *Reconciler) Login(ctx context.Context, email, password string) (*models.User, error) {
	return r.authenticate(ctx, email, func(ctx context.Context) (api.AuthResult, error) {
		return r.remote.Login(ctx, email, password)
	})
}

// Register creates an account and signs it in the same way as Login.
func (r *Reconciler) Register(ctx context.Context, email, password string) (*models.User, error) {
	return r.authenticate(ctx, email, func(ctx context.Context) (api.AuthResult, error) {
		return r.remote.Register(ctx, email, password)
	})
}

func (r *Reconciler) authenticate(ctx context.Context, email string, call func(context.Context) (api.AuthResult, error)) (*models.User, error) {
	seq := r.seq.Add(1)
	res, err := call(ctx)
	if err != nil {
		return nil, err
	}
	if res.Token == "" {
		return nil, ErrNoToken
	}
	if res.User.Email == "" {
		res.User.Email = email
	}
	if err := r.session.SetCredentials(ctx, res.Token, res.User.Email); err != nil {
		return nil, err
	}
	u, err := r.apply(ctx, seq, res.User)
	if err != nil {
		return nil, err
	}
	if pushed, err := r.Flush(ctx); err == nil && pushed != nil {
		u = pushed
	}
	return u, nil
}

// Logout forgets the credentials. Cached purchases stay readable.
func (r *Reconciler) Logout(ctx context.Context) error {
	return r.session.ClearCredentials(ctx)
}

// Commit records confirmed purchases: they are queued in the outbox, applied to
// the cache and then pushed. A failed push is logged and retried by the next
// Flush; the local purchase stands either way.
func (r *Reconciler) Commit(ctx context.Context, entries ...storage.Entry) (*models.User, error) {
	email, err := r.session.Email(ctx)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Owner = email
	}
	if err := r.outbox.Append(ctx, entries...); err != nil {
		return nil, fmt.Errorf("queue purchase: %w", err)
	}

	u, err := r.cache.Mutate(ctx, func(cur *models.User) (*models.User, error) {
		base := models.User{Email: email}
		if cur != nil {
			base = *cur
		}
		next := storage.ApplyEntries(base, entries)
		return &next, nil
	})
	if err != nil {
		return nil, fmt.Errorf("apply purchase: %w", err)
	}

	if pushed, err := r.Flush(ctx); err != nil {
		r.log.Warn("purchase saved locally but not on server",
			zap.String("email", email),
			zap.Int("pending", len(entries)),
			zap.Error(err))
	} else if pushed != nil {
		u = pushed
	}
	return u, nil
}

// Flush pushes queued purchases of the signed-in account. The server's lists
// are merged with the queue so purchases made elsewhere are kept. Accepted
// entries leave the outbox and the cache is refreshed from the server.
// Flush returns a nil user when nothing was queued.
func (r *Reconciler) Flush(ctx context.Context) (*models.User, error) {
	email, err := r.session.Email(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := r.outbox.PendingFor(ctx, email)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	server, err := r.remote.FetchCurrentUser(ctx)
	if err != nil {
		if errors.Is(err, api.ErrTokenInvalid) {
			_, _ = r.fallback(ctx, err)
		}
		return nil, fmt.Errorf("fetch before push: %w", err)
	}
	target := storage.ApplyEntries(server, pending)

	var updated models.User
	b := retry.WithMaxRetries(r.opts.MaxRetries, retry.NewExponential(r.opts.BaseDelay))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		u, err := r.remote.UpdateCurrentUser(ctx, api.PurchasesUpdate(target))
		if err != nil {
			if retryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("push purchases: %w", err)
	}

	// The pushed state is sequenced after the push, so a resync that fetched
	// while it was in flight is discarded. Entries leave the outbox only once
	// that state is applied.
	seq := r.seq.Add(1)
	u, err := r.apply(ctx, seq, updated)
	if err != nil && !errors.Is(err, ErrSuperseded) {
		return nil, err
	}

	ids := make([]string, 0, len(pending))
	for _, e := range pending {
		ids = append(ids, e.ID)
	}
	if err := r.outbox.Remove(ctx, ids...); err != nil {
		r.log.Error("failed to drop flushed purchases", zap.Error(err))
	}
	if fresh, err := r.Resync(ctx); err == nil {
		u = fresh
	}
	return u, nil
}

func retryable(err error) bool {
	if errors.Is(err, api.ErrUnavailable) {
		return true
	}
	var apiErr *api.Error
	return errors.As(err, &apiErr) && apiErr.Status >= http.StatusInternalServerError
}
