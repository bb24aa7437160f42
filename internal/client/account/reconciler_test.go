package account

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/atinyakov/CourseKeeper/internal/client/api"
	"github.com/atinyakov/CourseKeeper/internal/client/storage"
	"github.com/atinyakov/CourseKeeper/internal/models"
)

type mockRemote struct {
	LoginFunc    func(ctx context.Context, email, password string) (api.AuthResult, error)
	RegisterFunc func(ctx context.Context, email, password string) (api.AuthResult, error)
	FetchFunc    func(ctx context.Context) (models.User, error)
	UpdateFunc   func(ctx context.Context, upd api.UserUpdate) (models.User, error)
}

func (m *mockRemote) Login(ctx context.Context, email, password string) (api.AuthResult, error) {
	return m.LoginFunc(ctx, email, password)
}

func (m *mockRemote) Register(ctx context.Context, email, password string) (api.AuthResult, error) {
	return m.RegisterFunc(ctx, email, password)
}

func (m *mockRemote) FetchCurrentUser(ctx context.Context) (models.User, error) {
	return m.FetchFunc(ctx)
}

func (m *mockRemote) UpdateCurrentUser(ctx context.Context, upd api.UserUpdate) (models.User, error) {
	return m.UpdateFunc(ctx, upd)
}

type fixture struct {
	rec     *Reconciler
	cache   *storage.PurchaseCache
	session *storage.Session
	outbox  *storage.Outbox
	logs    *observer.ObservedLogs
}

func newFixture(t *testing.T, remote *mockRemote) fixture {
	t.Helper()
	kv := storage.NewMemoryKV()
	core, logs := observer.New(zap.DebugLevel)
	log := zap.New(core)
	f := fixture{
		cache:   storage.NewPurchaseCache(kv, log),
		session: storage.NewSession(kv),
		outbox:  storage.NewOutbox(kv),
		logs:    logs,
	}
	f.rec = New(remote, f.cache, f.session, f.outbox, log, Options{MaxRetries: 2, BaseDelay: time.Millisecond})
	return f
}

func (f fixture) signIn(t *testing.T, u models.User) {
	t.Helper()
	require.NoError(t, f.session.SetCredentials(context.Background(), "tok", u.Email))
	require.NoError(t, f.cache.Persist(context.Background(), u))
}

func TestResync_ServerWins(t *testing.T) {
	remote := &mockRemote{FetchFunc: func(context.Context) (models.User, error) {
		return models.User{Email: "a@b.c", OpenCategories: []int{1}, PurchasedStages: []int{}}, nil
	}}
	f := newFixture(t, remote)
	f.signIn(t, models.User{Email: "a@b.c", OpenCategories: []int{1, 2}, UserName: "local"})

	u, err := f.rec.Resync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1}, u.OpenCategories)
	assert.Equal(t, "", u.UserName)
	assert.Equal(t, []int{1}, f.cache.StoredUser(context.Background()).OpenCategories)
}

func TestResync_FailureFallsBackToCache(t *testing.T) {
	netErr := errors.New("network down")
	remote := &mockRemote{FetchFunc: func(context.Context) (models.User, error) {
		return models.User{}, netErr
	}}
	f := newFixture(t, remote)
	f.signIn(t, models.User{Email: "a@b.c", OpenCategories: []int{4}})

	u, err := f.rec.Resync(context.Background())
	assert.ErrorIs(t, err, netErr)
	require.NotNil(t, u)
	assert.Equal(t, []int{4}, u.OpenCategories)
	assert.Equal(t, 1, f.logs.FilterMessage("resync failed, using cached user").Len())
	assert.True(t, f.session.Authenticated(context.Background()))
}

func TestResync_TokenInvalidKeepsPurchases(t *testing.T) {
	remote := &mockRemote{FetchFunc: func(context.Context) (models.User, error) {
		return models.User{}, api.ErrTokenInvalid
	}}
	f := newFixture(t, remote)
	f.signIn(t, models.User{Email: "a@b.c", OpenCategories: []int{4}})

	u, err := f.rec.Resync(context.Background())
	assert.ErrorIs(t, err, api.ErrTokenInvalid)
	assert.False(t, f.session.Authenticated(context.Background()))
	require.NotNil(t, u)
	assert.Equal(t, []int{4}, u.OpenCategories)
}

func TestResync_StaleResultDiscarded(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	remote := &mockRemote{FetchFunc: func(context.Context) (models.User, error) {
		if calls.Add(1) == 1 {
			<-release
			return models.User{Email: "a@b.c", OpenCategories: []int{1}}, nil
		}
		return models.User{Email: "a@b.c", OpenCategories: []int{1, 2}}, nil
	}}
	f := newFixture(t, remote)
	f.signIn(t, models.User{Email: "a@b.c"})

	type result struct {
		u   *models.User
		err error
	}
	first := make(chan result)
	go func() {
		u, err := f.rec.Resync(context.Background())
		first <- result{u, err}
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	u, err := f.rec.Resync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, u.OpenCategories)

	close(release)
	res := <-first
	assert.ErrorIs(t, res.err, ErrSuperseded)
	assert.Equal(t, []int{1, 2}, f.cache.StoredUser(context.Background()).OpenCategories)
}

func TestResync_CancelledResultDiscarded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	remote := &mockRemote{FetchFunc: func(context.Context) (models.User, error) {
		cancel()
		return models.User{Email: "a@b.c", OpenCategories: []int{9}}, nil
	}}
	f := newFixture(t, remote)
	f.signIn(t, models.User{Email: "a@b.c", OpenCategories: []int{1}})

	u, err := f.rec.Resync(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, u)
	assert.Equal(t, []int{1}, u.OpenCategories)
	assert.Equal(t, []int{1}, f.cache.StoredUser(context.Background()).OpenCategories)
}

func TestResync_ReplaysOutbox(t *testing.T) {
	remote := &mockRemote{FetchFunc: func(context.Context) (models.User, error) {
		return models.User{Email: "a@b.c", OpenCategories: []int{1}}, nil
	}}
	f := newFixture(t, remote)
	f.signIn(t, models.User{Email: "a@b.c"})

	e := storage.StageEntry(2, []int{3, 4})
	e.Owner = "a@b.c"
	require.NoError(t, f.outbox.Append(context.Background(), e))

	u, err := f.rec.Resync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 4}, u.OpenCategories)
	assert.Equal(t, []int{2}, u.PurchasedStages)
}

func TestCommit_PushesAndDrainsOutbox(t *testing.T) {
	server := models.User{Email: "a@b.c", OpenCategories: []int{7}}
	remote := &mockRemote{
		FetchFunc: func(context.Context) (models.User, error) { return server.Clone(), nil },
		UpdateFunc: func(_ context.Context, upd api.UserUpdate) (models.User, error) {
			server.OpenCategories = *upd.OpenCategories
			server.PurchasedStages = *upd.PurchasedStages
			return server.Clone(), nil
		},
	}
	f := newFixture(t, remote)
	f.signIn(t, models.User{Email: "a@b.c"})

	u, err := f.rec.Commit(context.Background(), storage.CourseEntry(10))
	require.NoError(t, err)
	assert.Equal(t, []int{7, 10}, u.OpenCategories, "purchases made elsewhere are kept")
	assert.Equal(t, []int{7, 10}, server.OpenCategories)

	pending, err := f.outbox.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCommit_PushFailureKeepsLocalPurchase(t *testing.T) {
	var updates atomic.Int32
	remote := &mockRemote{
		FetchFunc: func(context.Context) (models.User, error) {
			return models.User{Email: "a@b.c"}, nil
		},
		UpdateFunc: func(context.Context, api.UserUpdate) (models.User, error) {
			updates.Add(1)
			return models.User{}, &api.Error{Status: 503, Message: "busy"}
		},
	}
	f := newFixture(t, remote)
	f.signIn(t, models.User{Email: "a@b.c"})

	u, err := f.rec.Commit(context.Background(), storage.CourseEntry(10))
	require.NoError(t, err)
	assert.Equal(t, []int{10}, u.OpenCategories)
	assert.Equal(t, int32(3), updates.Load(), "one attempt plus two retries")
	assert.Equal(t, 1, f.logs.FilterMessage("purchase saved locally but not on server").Len())

	pending, _ := f.outbox.Pending(context.Background())
	assert.Len(t, pending, 1)

	// A later resync must not erase the unsynced purchase.
	u, err = f.rec.Resync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{10}, u.OpenCategories)
}

func TestCommit_ClientErrorNotRetried(t *testing.T) {
	var updates atomic.Int32
	remote := &mockRemote{
		FetchFunc: func(context.Context) (models.User, error) { return models.User{Email: "a@b.c"}, nil },
		UpdateFunc: func(context.Context, api.UserUpdate) (models.User, error) {
			updates.Add(1)
			return models.User{}, &api.Error{Status: 400, Message: "bad"}
		},
	}
	f := newFixture(t, remote)
	f.signIn(t, models.User{Email: "a@b.c"})

	_, err := f.rec.Commit(context.Background(), storage.CourseEntry(10))
	require.NoError(t, err)
	assert.Equal(t, int32(1), updates.Load())
}

func TestLogin_StoresCredentialsAndFlushes(t *testing.T) {
	var patched atomic.Bool
	remote := &mockRemote{
		LoginFunc: func(_ context.Context, email, _ string) (api.AuthResult, error) {
			return api.AuthResult{Token: "t1", User: models.User{Email: email, OpenCategories: []int{1}}}, nil
		},
		FetchFunc: func(context.Context) (models.User, error) {
			if patched.Load() {
				return models.User{Email: "a@b.c", OpenCategories: []int{1, 5}}, nil
			}
			return models.User{Email: "a@b.c", OpenCategories: []int{1}}, nil
		},
		UpdateFunc: func(_ context.Context, upd api.UserUpdate) (models.User, error) {
			patched.Store(true)
			return models.User{Email: "a@b.c", OpenCategories: *upd.OpenCategories}, nil
		},
	}
	f := newFixture(t, remote)
	e := storage.CourseEntry(5)
	e.Owner = "a@b.c"
	require.NoError(t, f.outbox.Append(context.Background(), e))

	u, err := f.rec.Login(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 5}, u.OpenCategories)
	assert.True(t, patched.Load())

	tok, _ := f.session.Token(context.Background())
	assert.Equal(t, "t1", tok)
	email, _ := f.session.Email(context.Background())
	assert.Equal(t, "a@b.c", email)
}

func TestLogin_Errors(t *testing.T) {
	remote := &mockRemote{LoginFunc: func(context.Context, string, string) (api.AuthResult, error) {
		return api.AuthResult{User: models.User{Email: "a@b.c"}}, nil
	}}
	f := newFixture(t, remote)
	_, err := f.rec.Login(context.Background(), "a@b.c", "pw")
	assert.ErrorIs(t, err, ErrNoToken)
	assert.False(t, f.session.Authenticated(context.Background()))

	remote.LoginFunc = func(context.Context, string, string) (api.AuthResult, error) {
		return api.AuthResult{}, &api.Error{Status: 401, Message: "Invalid credentials"}
	}
	_, err = f.rec.Login(context.Background(), "a@b.c", "bad")
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Invalid credentials", apiErr.Message)
}

func TestLogout_KeepsCache(t *testing.T) {
	f := newFixture(t, &mockRemote{})
	f.signIn(t, models.User{Email: "a@b.c", OpenCategories: []int{2}})

	require.NoError(t, f.rec.Logout(context.Background()))
	assert.False(t, f.session.Authenticated(context.Background()))
	assert.Equal(t, []int{2}, f.rec.Cached(context.Background()).OpenCategories)
}

type stageMap map[int][]int

func (m stageMap) StageCourseIDs(id int) []int { return m[id] }

func TestResync_OwnedStageUnlocksItsCourses(t *testing.T) {
	remote := &mockRemote{FetchFunc: func(context.Context) (models.User, error) {
		return models.User{Email: "a@b.c", OpenCategories: []int{}, PurchasedStages: []int{1}}, nil
	}}
	f := newFixture(t, remote)
	f.cache.WithStages(stageMap{1: {10, 30}, 2: {20}})
	f.signIn(t, models.User{Email: "a@b.c"})

	u, err := f.rec.Resync(context.Background())
	require.NoError(t, err)
	assert.True(t, storage.IsStagePurchased(u, 1))
	assert.Equal(t, []int{10, 30}, u.OpenCategories)

	stored := f.cache.StoredUser(context.Background())
	require.NotNil(t, stored)
	assert.True(t, storage.IsCoursePurchased(stored, 10))
	assert.True(t, storage.IsCoursePurchased(stored, 30))
	assert.False(t, storage.IsCoursePurchased(stored, 20))
}

// A resync whose fetch raced the push must not overwrite the pushed purchase,
// even when the trailing refresh fails.
func TestFlush_StaleConcurrentResyncDiscarded(t *testing.T) {
	var (
		fetches  atomic.Int32
		started  = make(chan struct{})
		release  = make(chan struct{})
		resynced = make(chan error, 1)
		rec      *Reconciler
	)
	remote := &mockRemote{
		FetchFunc: func(context.Context) (models.User, error) {
			switch fetches.Add(1) {
			case 1:
				return models.User{Email: "a@b.c"}, nil
			case 2:
				close(started)
				<-release
				return models.User{Email: "a@b.c"}, nil
			default:
				return models.User{}, api.ErrUnavailable
			}
		},
		UpdateFunc: func(context.Context, api.UserUpdate) (models.User, error) {
			go func() {
				_, err := rec.Resync(context.Background())
				resynced <- err
			}()
			<-started
			return models.User{Email: "a@b.c", OpenCategories: []int{10}}, nil
		},
	}
	f := newFixture(t, remote)
	rec = f.rec
	f.signIn(t, models.User{Email: "a@b.c"})

	u, err := f.rec.Commit(context.Background(), storage.CourseEntry(10))
	require.NoError(t, err)
	assert.Equal(t, []int{10}, u.OpenCategories)

	close(release)
	assert.ErrorIs(t, <-resynced, ErrSuperseded)

	stored := f.cache.StoredUser(context.Background())
	require.NotNil(t, stored)
	assert.Equal(t, []int{10}, stored.OpenCategories)
	pending, err := f.outbox.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}
