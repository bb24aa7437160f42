package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/atinyakov/CourseKeeper/internal/models"
)

// currentSchemaVersion is written with every user record.
//
//	0/1: unversioned records, `name` instead of `userName`, optionally with
//	     snake_case purchase arrays copied from server payloads.
//	2:   camelCase fields, always-present purchase arrays.
const currentSchemaVersion = 2

type storedUser struct {
	SchemaVersion int `json:"schemaVersion"`
	models.User
}

// rawUser is wide enough to read every schema version.
type rawUser struct {
	SchemaVersion         int             `json:"schemaVersion"`
	Email                 string          `json:"email"`
	UserName              *string         `json:"userName"`
	Name                  *string         `json:"name"`
	Role                  *string         `json:"role"`
	UserID                json.RawMessage `json:"userId"`
	ID                    json.RawMessage `json:"id"`
	Avatar                *string         `json:"avatar"`
	OpenCategories        json.RawMessage `json:"openCategories"`
	OpenCategoriesLegacy  json.RawMessage `json:"open_categories"`
	PurchasedStages       json.RawMessage `json:"purchasedStages"`
	PurchasedStagesLegacy json.RawMessage `json:"purchased_stages"`
}

func encodeUser(u models.User) (string, error) {
	b, err := json.Marshal(storedUser{SchemaVersion: currentSchemaVersion, User: u.Clone()})
	if err != nil {
		return "", fmt.Errorf("encode user: %w", err)
	}
	return string(b), nil
}

// decodeUser is the single normalization step applied to every stored record.
// Owned stages are expanded into their courses when stages is set.
func decodeUser(data string, stages StageCourses) (models.User, error) {
	var raw rawUser
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return models.User{}, fmt.Errorf("decode user: %w", err)
	}
	if raw.SchemaVersion > currentSchemaVersion {
		return models.User{}, fmt.Errorf("decode user: unsupported schema version %d", raw.SchemaVersion)
	}

	u := models.User{
		Email:           raw.Email,
		UserName:        firstString(raw.UserName, raw.Name),
		Role:            firstString(raw.Role),
		UserID:          firstID(raw.UserID, raw.ID),
		Avatar:          firstString(raw.Avatar),
		OpenCategories:  decodeIDs(raw.OpenCategories, raw.OpenCategoriesLegacy),
		PurchasedStages: decodeIDs(raw.PurchasedStages, raw.PurchasedStagesLegacy),
	}
	return ExpandStages(u, stages), nil
}

func firstString(vals ...*string) string {
	for _, v := range vals {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}

func firstID(vals ...json.RawMessage) string {
	for _, raw := range vals {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

// decodeIDs returns the first well-formed id array among candidates, with
// duplicates removed. Malformed or absent arrays yield an empty list.
func decodeIDs(candidates ...json.RawMessage) []int {
	for _, raw := range candidates {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			continue
		}
		ids := make([]int, 0, len(items))
		for _, item := range items {
			if id, ok := parseID(item); ok {
				ids = addUnique(ids, id)
			}
		}
		return ids
	}
	return []int{}
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
