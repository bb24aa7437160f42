package api

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/atinyakov/CourseKeeper/internal/models"
)

// wireUser is the server's user object. Purchase arrays arrive in snake_case
// from newer servers and camelCase from older ones.
type wireUser struct {
	Email          string  `json:"email"`
	UserName       *string `json:"userName"`
	Role           *string `json:"role"`
	UserID         rawID   `json:"userId"`
	ID             rawID   `json:"id"`
	Avatar         *string `json:"avatar"`
	OpenSnake      idList  `json:"open_categories"`
	OpenCamel      idList  `json:"openCategories"`
	PurchasedSnake idList  `json:"purchased_stages"`
	PurchasedCamel idList  `json:"purchasedStages"`
}

func (w wireUser) normalize() models.User {
	uid := string(w.UserID)
	if uid == "" {
		uid = string(w.ID)
	}
	return models.User{
		Email:           w.Email,
		UserName:        deref(w.UserName),
		Role:            deref(w.Role),
		UserID:          uid,
		Avatar:          deref(w.Avatar),
		OpenCategories:  w.OpenSnake.or(w.OpenCamel),
		PurchasedStages: w.PurchasedSnake.or(w.PurchasedCamel),
	}.Clone()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// rawID accepts a string or numeric identifier.
type rawID string

func (r *rawID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = rawID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*r = rawID(n.String())
	return nil
}

// idList is an id array that tolerates numeric strings and drops duplicates.
// set reports whether the field held an array. Malformed values are ignored.
type idList struct {
	ids []int
	set bool
}

func (l *idList) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return nil
	}
	l.set = true
	l.ids = make([]int, 0, len(items))
outer:
	for _, item := range items {
		id, ok := parseID(item)
		if !ok {
			continue
		}
		for _, have := range l.ids {
			if have == id {
				continue outer
			}
		}
		l.ids = append(l.ids, id)
	}
	return nil
}

func (l idList) or(other idList) []int {
	if l.set {
		return l.ids
	}
	return other.ids
}

func parseID(raw json.RawMessage) (int, bool) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
	}
	return 0, false
}

// UserUpdate is a partial account update. Nil fields are not sent.
type UserUpdate struct {
	Email           *string `json:"email,omitempty"`
	UserName        *string `json:"userName,omitempty"`
	Avatar          *string `json:"avatar,omitempty"`
	OpenCategories  *[]int  `json:"open_categories,omitempty"`
	PurchasedStages *[]int  `json:"purchased_stages,omitempty"`
}

// PurchasesUpdate returns an update carrying only the purchase lists of u.
func PurchasesUpdate(u models.User) UserUpdate {
	u = u.Clone()
	return UserUpdate{OpenCategories: &u.OpenCategories, PurchasedStages: &u.PurchasedStages}
}
