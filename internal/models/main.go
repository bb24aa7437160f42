// Package models defines the core data structures for users, accounts and payments.
package models

import "time"

// Well-known role markers recognized by the access rules.
const (
	// RolePremium grants access to every lesson regardless of purchases.
	RolePremium = "Premium User"
	// RolePartialPremium is the legacy role whose grants are configured per deployment.
	RolePartialPremium = "User with party premium access"
	// RoleDefault is assigned to freshly registered accounts.
	RoleDefault = "Default User"
)

// User is the client-side view of an authenticated account and its purchase state.
type User struct {
	// Email identifies the user.
	Email string `json:"email"`
	// UserName is the display name.
	UserName string `json:"userName"`
	// Role is a free-form role marker, compared against RolePremium and role grants.
	Role string `json:"role"`
	// UserID is the backend identifier, if known.
	UserID string `json:"userId"`
	// Avatar is an image URL.
	Avatar string `json:"avatar"`
	// OpenCategories holds the ids of owned courses.
	OpenCategories []int `json:"openCategories"`
	// PurchasedStages holds the ids of owned stages.
	PurchasedStages []int `json:"purchasedStages"`
}

// Clone returns a deep copy of u with nil id lists replaced by empty ones.
func (u User) Clone() User {
	u.OpenCategories = append(make([]int, 0, len(u.OpenCategories)), u.OpenCategories...)
	u.PurchasedStages = append(make([]int, 0, len(u.PurchasedStages)), u.PurchasedStages...)
	return u
}

// Account is the backend record of a user.
type Account struct {
	// ID is the unique identifier for the account.
	ID string
	// Email is the login name chosen by the user.
	Email string
	// PasswordHash is the bcrypt hash of the user's password.
	PasswordHash []byte
	UserName     string
	Role         string
	Avatar       string
	// OpenCategories holds the ids of owned courses.
	OpenCategories []int
	// PurchasedStages holds the ids of owned stages.
	PurchasedStages []int
	CreatedAt       time.Time
}

// User projects the account onto the client-facing shape.
func (a Account) User() User {
	return User{
		Email:           a.Email,
		UserName:        a.UserName,
		Role:            a.Role,
		UserID:          a.ID,
		Avatar:          a.Avatar,
		OpenCategories:  a.OpenCategories,
		PurchasedStages: a.PurchasedStages,
	}.Clone()
}

// PaymentStatus is the lifecycle state of a payment session.
type PaymentStatus string

const (
	// PaymentPending is a session that has not been completed yet.
	PaymentPending PaymentStatus = "pending"
	// PaymentSuccess is a session confirmed by the payment page.
	PaymentSuccess PaymentStatus = "success"
	// PaymentFailed is a session that was cancelled, declined or expired.
	PaymentFailed PaymentStatus = "failed"
)

// Payment is a backend payment session.
type Payment struct {
	ID          string
	UserID      string
	OrderID     string
	Amount      float64
	Currency    string
	Description string
	// CourseID and StageID are zero when not applicable.
	CourseID  int
	StageID   int
	Status    PaymentStatus
	CreatedAt time.Time
}
