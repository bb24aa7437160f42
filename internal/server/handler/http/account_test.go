package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/atinyakov/CourseKeeper/internal/middleware"
	"github.com/atinyakov/CourseKeeper/internal/models"
)

func TestAccountHandler_Me(t *testing.T) {
	svc := &fakeAccountService{account: models.Account{ID: "u1", Email: "a@b.c", PurchasedStages: []int{1}}}
	h := &AccountHandler{AccountService: svc}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/me", nil)
	h.Me(rec, req.WithContext(middleware.WithUserID(req.Context(), "u1")))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var payload userResponse
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if payload.User.Email != "a@b.c" || !reflect.DeepEqual(payload.User.PurchasedStages, []int{1}) {
		t.Errorf("unexpected user: %+v", payload.User)
	}

	rec = httptest.NewRecorder()
	h.Me(rec, req.WithContext(middleware.WithUserID(req.Context(), "ghost")))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown user: expected status 404, got %d", rec.Code)
	}
}

func TestAccountHandler_UpdateMe(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantOpen  []int
		wantStage *[]int
	}{
		{"invalid body", `nope`, http.StatusBadRequest, nil, nil},
		{"snake case", `{"open_categories":[1,2]}`, http.StatusOK, []int{1, 2}, nil},
		{"camel case", `{"openCategories":[3],"purchasedStages":[]}`, http.StatusOK, []int{3}, &[]int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeAccountService{account: models.Account{ID: "u1"}}
			h := &AccountHandler{AccountService: svc}

			rec := httptest.NewRecorder()
			req := httptest.NewRequest("PATCH", "/me", bytes.NewBufferString(tt.body))
			h.UpdateMe(rec, req.WithContext(middleware.WithUserID(req.Context(), "u1")))

			if rec.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d", tt.wantCode, rec.Code)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			if svc.patch.OpenCategories == nil || !reflect.DeepEqual(*svc.patch.OpenCategories, tt.wantOpen) {
				t.Errorf("patch OpenCategories = %v; want %v", svc.patch.OpenCategories, tt.wantOpen)
			}
			if !reflect.DeepEqual(svc.patch.PurchasedStages, tt.wantStage) {
				t.Errorf("patch PurchasedStages = %v; want %v", svc.patch.PurchasedStages, tt.wantStage)
			}
		})
	}
}
