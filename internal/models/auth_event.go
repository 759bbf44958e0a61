package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AuthEventType string

const (
	AuthEventRegistered      AuthEventType = "registered"
	AuthEventLoginSucceeded  AuthEventType = "login_succeeded"
	AuthEventLoginFailed     AuthEventType = "login_failed"
	AuthEventAccountLocked   AuthEventType = "account_locked"
	AuthEventLoginWhileLock  AuthEventType = "login_rejected_locked"
	AuthEventLoginDisabled   AuthEventType = "login_rejected_disabled"
	AuthEventAccountUnlocked AuthEventType = "account_unlocked"
)

// AuthEvent is one entry of the authentication audit log.
type AuthEvent struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`

	Type   AuthEventType `bson:"type" json:"type"`
	UserID string        `bson:"user_id,omitempty" json:"userId,omitempty"`
	Email  string        `bson:"user_email" json:"email"`

	IPAddress string `bson:"ip_address,omitempty" json:"ipAddress,omitempty"`
	UserAgent string `bson:"user_agent,omitempty" json:"userAgent,omitempty"`

	FailedAttempts int `bson:"failed_attempts,omitempty" json:"failedAttempts,omitempty"`
}

// ExpenseEventType names a change to a user's expenses.
type ExpenseEventType string

const (
	ExpenseCreated ExpenseEventType = "expense.created"
	ExpenseUpdated ExpenseEventType = "expense.updated"
	ExpenseDeleted ExpenseEventType = "expense.deleted"
)

// ExpenseEvent is pushed to the owner's live feed connections.
type ExpenseEvent struct {
	Type      ExpenseEventType `json:"type"`
	UserID    string           `json:"userId"`
	ExpenseID string           `json:"expenseId"`
	Expense   *ExpenseResponse `json:"expense,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}
