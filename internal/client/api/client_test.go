package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/atinyakov/CourseKeeper/internal/models"
)

// roundTripperFunc lets a test stand in for the network.
type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(fn roundTripperFunc) *http.Client {
	return &http.Client{Transport: fn, Timeout: time.Second}
}

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestFetchCurrentUser_MissingToken(t *testing.T) {
	called := false
	c := New("http://example.com", newTestClient(func(*http.Request) (*http.Response, error) {
		called = true
		return nil, errors.New("network down")
	}), staticToken(""))

	_, err := c.FetchCurrentUser(context.Background())
	if !errors.Is(err, ErrMissingToken) {
		t.Fatalf("err = %v; want ErrMissingToken", err)
	}
	if called {
		t.Errorf("no request should be sent without a token")
	}
}

func TestFetchCurrentUser_NetworkErrorIsDistinct(t *testing.T) {
	c := New("http://example.com", newTestClient(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("network down")
	}), staticToken("tok"))

	_, err := c.FetchCurrentUser(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v; want ErrUnavailable", err)
	}
	if errors.Is(err, ErrMissingToken) {
		t.Errorf("network failure must not look like a missing token")
	}
}

func TestFetchCurrentUser_NormalizesSnakeCase(t *testing.T) {
	c := New("http://example.com", newTestClient(func(req *http.Request) (*http.Response, error) {
		if got := req.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q; want %q", got, "Bearer tok")
		}
		if req.Method != http.MethodGet || req.URL.Path != "/me" {
			t.Errorf("request = %s %s; want GET /me", req.Method, req.URL.Path)
		}
		return jsonResponse(http.StatusOK, `{"user":{"email":"a@b.c","userName":null,"id":17,"open_categories":[1,"2",2],"purchasedStages":[3]}}`), nil
	}), staticToken("tok"))

	got, err := c.FetchCurrentUser(context.Background())
	if err != nil {
		t.Fatalf("FetchCurrentUser failed: %v", err)
	}
	want := models.User{
		Email:           "a@b.c",
		UserID:          "17",
		OpenCategories:  []int{1, 2},
		PurchasedStages: []int{3},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("user mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchCurrentUser_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"message":"expired"}`,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrTokenInvalid) {
					t.Errorf("err = %v; want ErrTokenInvalid", err)
				}
			},
		},
		{
			name:   "server message",
			status: http.StatusInternalServerError,
			body:   `{"message":"db down"}`,
			check: func(t *testing.T, err error) {
				var apiErr *Error
				if !errors.As(err, &apiErr) || apiErr.Message != "db down" || apiErr.Status != 500 {
					t.Errorf("err = %v; want *Error{500, db down}", err)
				}
			},
		},
		{
			name:   "plain text body",
			status: http.StatusBadGateway,
			body:   "upstream gone\n",
			check: func(t *testing.T, err error) {
				var apiErr *Error
				if !errors.As(err, &apiErr) || apiErr.Message != "upstream gone" {
					t.Errorf("err = %v; want message %q", err, "upstream gone")
				}
			},
		},
		{
			name:   "missing user",
			status: http.StatusOK,
			body:   `{"message":"ok"}`,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrNoUser) {
					t.Errorf("err = %v; want ErrNoUser", err)
				}
			},
		},
		{
			name:   "invalid json",
			status: http.StatusOK,
			body:   "not-json",
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrUnavailable) || !strings.Contains(err.Error(), "invalid response") {
					t.Errorf("err = %v; want invalid response", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New("http://example.com", newTestClient(func(*http.Request) (*http.Response, error) {
				return jsonResponse(tt.status, tt.body), nil
			}), staticToken("tok"))
			_, err := c.FetchCurrentUser(context.Background())
			tt.check(t, err)
		})
	}
}

func TestUpdateCurrentUser_SendsOnlySetFields(t *testing.T) {
	c := New("http://example.com", newTestClient(func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPatch {
			t.Errorf("method = %s; want PATCH", req.Method)
		}
		var body map[string]json.RawMessage
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if len(body) != 2 {
			t.Errorf("body keys = %v; want open_categories and purchased_stages", body)
		}
		if string(body["open_categories"]) != "[]" {
			t.Errorf("open_categories = %s; want []", body["open_categories"])
		}
		return jsonResponse(http.StatusOK, `{"user":{"email":"a@b.c","open_categories":[],"purchased_stages":[1]}}`), nil
	}), staticToken("tok"))

	got, err := c.UpdateCurrentUser(context.Background(), PurchasesUpdate(models.User{PurchasedStages: []int{1}}))
	if err != nil {
		t.Fatalf("UpdateCurrentUser failed: %v", err)
	}
	if diff := cmp.Diff([]int{1}, got.PurchasedStages); diff != "" {
		t.Errorf("PurchasedStages mismatch (-want +got):\n%s", diff)
	}
}

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var creds credentials
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if r.URL.Path != "/login" || r.Header.Get("Authorization") != "" {
			t.Errorf("unexpected request %s auth=%q", r.URL.Path, r.Header.Get("Authorization"))
		}
		if creds.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Invalid credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"token":"t1","user":{"email":"` + creds.Email + `","userName":"Ann","role":"Default User"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", nil, staticToken("stale"))

	res, err := c.Login(context.Background(), "a@b.c", "secret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.Token != "t1" || res.User.UserName != "Ann" || res.User.OpenCategories == nil {
		t.Errorf("Login = %+v", res)
	}

	_, err = c.Login(context.Background(), "a@b.c", "wrong")
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Message != "Invalid credentials" {
		t.Errorf("err = %v; want server message", err)
	}
	if errors.Is(err, ErrTokenInvalid) {
		t.Errorf("bad credentials must not be reported as a rejected token")
	}
}

func TestRegister_MissingUser(t *testing.T) {
	c := New("http://example.com", newTestClient(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/register" {
			t.Errorf("path = %s; want /register", req.URL.Path)
		}
		return jsonResponse(http.StatusCreated, `{"message":"created"}`), nil
	}), nil)

	if _, err := c.Register(context.Background(), "a@b.c", "pw"); !errors.Is(err, ErrNoUser) {
		t.Errorf("err = %v; want ErrNoUser", err)
	}
}

func TestPayments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/payment/create", func(w http.ResponseWriter, r *http.Request) {
		var req PaymentRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Amount != 15 || req.Currency != "BYN" || req.StageID != 1 {
			t.Errorf("create request = %+v", req)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("token should be attached")
		}
		_, _ = w.Write([]byte(`{"success":true,"paymentId":"p1","paymentUrl":"http://pay/p1"}`))
	})
	mux.HandleFunc("/api/payment/status/p1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"paymentId":"p1","status":"success"}`))
	})
	mux.HandleFunc("/api/payment/status/p2", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"paymentId":"p2","status":"weird"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, srv.Client(), staticToken("tok"))
	ctx := context.Background()

	sess, err := c.CreatePayment(ctx, PaymentRequest{Amount: 15, Currency: "BYN", Description: "Stage 1", OrderID: "stage_1_1", StageID: 1})
	if err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}
	if sess.PaymentID != "p1" || sess.PaymentURL != "http://pay/p1" {
		t.Errorf("session = %+v", sess)
	}

	st, err := c.PaymentStatus(ctx, "p1")
	if err != nil || st != models.PaymentSuccess {
		t.Errorf("PaymentStatus(p1) = %q, %v; want success", st, err)
	}
	st, err = c.PaymentStatus(ctx, "p2")
	if err != nil || st != models.PaymentPending {
		t.Errorf("PaymentStatus(p2) = %q, %v; want pending", st, err)
	}
}

func TestNewHTTPClient(t *testing.T) {
	c, err := NewHTTPClient("", 0)
	if err != nil || c.Timeout != DefaultTimeout {
		t.Errorf("NewHTTPClient() = %v, %v", c, err)
	}
	if _, err := NewHTTPClient("/does/not/exist.pem", time.Second); err == nil {
		t.Errorf("expected error for missing CA file")
	}
}
