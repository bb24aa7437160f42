// Package http provides the HTTP handlers of the development backend.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/atinyakov/CourseKeeper/internal/models"
	"github.com/atinyakov/CourseKeeper/internal/service"
)

// userJSON is the wire form of an account. Purchase lists are snake_case.
type userJSON struct {
	ID              string `json:"userId"`
	Email           string `json:"email"`
	UserName        string `json:"userName"`
	Role            string `json:"role"`
	Avatar          string `json:"avatar"`
	OpenCategories  []int  `json:"open_categories"`
	PurchasedStages []int  `json:"purchased_stages"`
}

func toUserJSON(a models.Account) userJSON {
	u := a.User()
	return userJSON{
		ID:              u.UserID,
		Email:           u.Email,
		UserName:        u.UserName,
		Role:            u.Role,
		Avatar:          u.Avatar,
		OpenCategories:  u.OpenCategories,
		PurchasedStages: u.PurchasedStages,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// writeServiceError maps service errors to status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
