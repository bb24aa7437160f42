package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atinyakov/CourseKeeper/internal/catalog"
	"github.com/atinyakov/CourseKeeper/internal/config"
	"github.com/atinyakov/CourseKeeper/internal/models"
)

// fakeBackend serves the account and payment endpoints for one user.
type fakeBackend struct {
	mu       sync.Mutex
	email    string
	open     []int
	stages   []int
	status   string
	payments int
}

func (b *fakeBackend) userJSON() map[string]any {
	return map[string]any{
		"userId":           "u-1",
		"email":            b.email,
		"role":             models.RoleDefault,
		"open_categories":  append([]int{}, b.open...),
		"purchased_stages": append([]int{}, b.stages...),
	}
}

func (b *fakeBackend) handler() http.Handler {
	write := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	authed := func(r *http.Request) bool { return r.Header.Get("Authorization") == "Bearer tok" }

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		var creds struct{ Email, Password string }
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			write(w, map[string]string{"message": "invalid email or password"})
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		b.email = creds.Email
		write(w, map[string]any{"token": "tok", "user": b.userJSON()})
	})
	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		write(w, map[string]any{"user": b.userJSON()})
	})
	mux.HandleFunc("PATCH /me", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var upd struct {
			Open   *[]int `json:"open_categories"`
			Stages *[]int `json:"purchased_stages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&upd)
		b.mu.Lock()
		defer b.mu.Unlock()
		if upd.Open != nil {
			b.open = *upd.Open
		}
		if upd.Stages != nil {
			b.stages = *upd.Stages
		}
		write(w, map[string]any{"user": b.userJSON()})
	})
	mux.HandleFunc("POST /api/payment/create", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.payments++
		write(w, map[string]string{"paymentId": "pay-1", "paymentUrl": "https://pay.example/pay/pay-1"})
	})
	mux.HandleFunc("GET /api/payment/status/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		write(w, map[string]string{"paymentId": r.PathValue("id"), "status": b.status})
	})
	return mux
}

func writeCatalog(t *testing.T, dir string) string {
	t.Helper()
	ds := catalog.Dataset{Stages: []models.Stage{{
		ID:    1,
		Title: models.LocalizedString{EN: "Basics", RU: "Основы"},
		Courses: []models.Course{
			{ID: 1, Title: models.LocalizedString{EN: "Breathing"}, Price: 10, Details: models.CourseDetails{
				Lessons: []models.Lesson{
					{LessonID: 1, Title: models.LocalizedString{EN: "Intro"}, Access: models.AccessFree},
					{LessonID: 2, Title: models.LocalizedString{EN: "Practice"}, Access: models.AccessLocked},
				},
			}},
			{ID: 2, Title: models.LocalizedString{EN: "Posture"}, Price: 20},
		},
	}}}
	data, err := json.Marshal(ds)
	require.NoError(t, err)
	path := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// runShell runs the shell over input and returns everything it printed.
func runShell(t *testing.T, backend *fakeBackend, signedIn bool, input string) string {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	options := config.ClientOptions{
		ServerURL:     srv.URL,
		StoragePath:   filepath.Join(dir, "kv.json"),
		CatalogPath:   writeCatalog(t, dir),
		Prerequisites: "catalog",
		Lang:          "en",
		Timeout:       5 * time.Second,
	}

	var out bytes.Buffer
	ctx := context.Background()
	sh, closeStore, err := setup(ctx, options, strings.NewReader(input), &out, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(closeStore)

	if signedIn {
		backend.mu.Lock()
		backend.email = "a@example.com"
		backend.mu.Unlock()
		require.NoError(t, sh.session.SetCredentials(ctx, "tok", "a@example.com"))
	}
	sh.run(ctx)
	return out.String()
}

func TestShell_LessonGating(t *testing.T) {
	out := runShell(t, &fakeBackend{}, false, "lesson 1 1\nlesson 1 2\nlesson 1 9\nexit\n")

	assert.Contains(t, out, "Intro")
	assert.Contains(t, out, "This lesson is locked. Log in")
	assert.Contains(t, out, "Lesson not found")
	assert.Contains(t, out, "Bye")
}

func TestShell_BuyResumesAfterLogin(t *testing.T) {
	backend := &fakeBackend{status: string(models.PaymentSuccess)}
	out := runShell(t, backend, false, "buy course 1\na@example.com\nsecret\n\nlesson 1 2\nexit\n")

	assert.Contains(t, out, "Log in to continue")
	assert.Contains(t, out, "Signed in as a@example.com")
	assert.Contains(t, out, "https://pay.example/pay/pay-1")
	assert.Contains(t, out, "Payment successful")
	assert.Contains(t, out, "Practice")

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, []int{1}, backend.open)
	assert.Equal(t, 1, backend.payments)
}

func TestShell_BuyLoginFailureDoesNotResume(t *testing.T) {
	backend := &fakeBackend{}
	out := runShell(t, backend, false, "buy course 1\na@example.com\nwrong\nexit\n")

	assert.Contains(t, out, "Failed: invalid email or password")
	assert.Equal(t, 0, backend.payments)
}

func TestShell_BuyNeedsPrerequisite(t *testing.T) {
	backend := &fakeBackend{}
	out := runShell(t, backend, true, "buy course 2\nexit\n")

	assert.Contains(t, out, `Buy "Breathing" (course 1) first.`)
	assert.Equal(t, 0, backend.payments)
}

func TestShell_BuyAlreadyOwned(t *testing.T) {
	backend := &fakeBackend{open: []int{1}}
	out := runShell(t, backend, true, "buy course 1\nexit\n")

	assert.Contains(t, out, "You already own this.")
}

func TestShell_CancelPendingPayment(t *testing.T) {
	backend := &fakeBackend{status: string(models.PaymentPending)}
	out := runShell(t, backend, true, "buy course 1\n\ncancel\ny\nlesson 1 2\nexit\n")

	assert.Contains(t, out, "Payment is still pending.")
	assert.Contains(t, out, "Payment window closed.")
	assert.Contains(t, out, "Type 'buy course 1' to unlock it.")

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Empty(t, backend.open)
}

func TestShell_SuccessRedirect(t *testing.T) {
	backend := &fakeBackend{status: string(models.PaymentPending)}
	out := runShell(t, backend, true,
		"buy course 1\nhttps://pay.example/api/payment/success?paymentId=pay-1\nexit\n")

	assert.Contains(t, out, "Payment successful")
	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, []int{1}, backend.open)
}

func TestShell_Commands(t *testing.T) {
	out := runShell(t, &fakeBackend{}, false, "stages\nstage 1\ncourse 7\nlang ru\nstages\nfrobnicate\nme\n")

	assert.Contains(t, out, "1. Basics (2 courses")
	assert.Contains(t, out, "[1] Breathing  10 BYN  locked")
	assert.Contains(t, out, "Course not found")
	assert.Contains(t, out, "Language: ru")
	assert.Contains(t, out, "1. Основы")
	assert.Contains(t, out, "Unknown command.")
	assert.Contains(t, out, "Not logged in")
}

func TestShell_RetryAfterFailedPayment(t *testing.T) {
	backend := &fakeBackend{status: string(models.PaymentFailed)}
	out := runShell(t, backend, true, "buy course 1\n\ny\n\nn\nexit\n")

	assert.Equal(t, 2, strings.Count(out, "Payment failed."))
	assert.Equal(t, 2, strings.Count(out, "Retry? [y/N]"))

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, 2, backend.payments)
	assert.Empty(t, backend.open)
}

func TestSetup_FromParsedClientOptions(t *testing.T) {
	srv := httptest.NewServer((&fakeBackend{}).handler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	opts, err := config.ParseClient([]string{
		"-s", srv.URL,
		"-storage", filepath.Join(dir, "kv.json"),
		"-catalog", writeCatalog(t, dir),
		"-c", filepath.Join(dir, "missing.json"),
		"-env-file", filepath.Join(dir, "missing.env"),
	})
	require.NoError(t, err)

	var out bytes.Buffer
	sh, closeStore, err := setup(context.Background(), *opts, strings.NewReader("stages\nexit\n"), &out, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(closeStore)

	sh.run(context.Background())
	assert.Contains(t, out.String(), "1. Basics")
}
