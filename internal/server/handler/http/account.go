package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/atinyakov/CourseKeeper/internal/middleware"
	"github.com/atinyakov/CourseKeeper/internal/models"
	"github.com/atinyakov/CourseKeeper/internal/service"
)

// AccountService defines the account operations required by AccountHandler.
type AccountService interface {
	Get(ctx context.Context, userID string) (models.Account, error)
	Update(ctx context.Context, userID string, p service.AccountPatch) (models.Account, error)
}

// AccountHandler serves the signed-in account.
type AccountHandler struct {
	AccountService AccountService
}

type userResponse struct {
	User userJSON `json:"user"`
}

// updateRequest accepts both snake_case and camelCase purchase lists.
type updateRequest struct {
	Email          *string `json:"email"`
	UserName       *string `json:"userName"`
	Avatar         *string `json:"avatar"`
	OpenSnake      *[]int  `json:"open_categories"`
	OpenCamel      *[]int  `json:"openCategories"`
	PurchasedSnake *[]int  `json:"purchased_stages"`
	PurchasedCamel *[]int  `json:"purchasedStages"`
}

func firstList(lists ...*[]int) *[]int {
	for _, l := range lists {
		if l != nil {
			return l
		}
	}
	return nil
}

// Me handles GET /me.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	a, err := h.AccountService.Get(r.Context(), middleware.GetUserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: toUserJSON(a)})
}

// UpdateMe handles PATCH /me.
func (h *AccountHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	patch := service.AccountPatch{
		Email:           req.Email,
		UserName:        req.UserName,
		Avatar:          req.Avatar,
		OpenCategories:  firstList(req.OpenSnake, req.OpenCamel),
		PurchasedStages: firstList(req.PurchasedSnake, req.PurchasedCamel),
	}
	a, err := h.AccountService.Update(r.Context(), middleware.GetUserIDFromContext(r.Context()), patch)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: toUserJSON(a)})
}
