package db

import (
	"time"

	"github.com/google/uuid"
)

// PolicySnapshot is a read-only view of a policy joined with its client,
// carrying everything the reminder pipeline needs: who to message, on
// what number, and the policy facts that go into the message body.
type PolicySnapshot struct {
	ID               uuid.UUID `json:"id"`
	PolicyNumber     string    `json:"policy_number"`
	PolicyType       string    `json:"policy_type"`
	ExpiryDate       time.Time `json:"expiry_date"`
	Premium          string    `json:"premium"`
	PremiumFrequency string    `json:"premium_frequency"`
	ClientName       string    `json:"client_name"`
	ClientPhone      string    `json:"client_phone"`
	Status           string    `json:"status"`
}

// DeliveryRecord is one row of the delivery ledger: a single reminder
// attempt for one (policy, milestone) pair. Rows are append-only and
// the pair is unique, which is what makes repeated scheduler runs safe.
type DeliveryRecord struct {
	ID                uuid.UUID `json:"id"`
	PolicyID          uuid.UUID `json:"policy_id"`
	Milestone         string    `json:"milestone"`
	RecipientPhone    string    `json:"recipient_phone"`
	MessageBody       string    `json:"message_body"`
	Status            string    `json:"status"`
	ExternalMessageID *string   `json:"external_message_id,omitempty"`
	ErrorMessage      *string   `json:"error_message,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Policy status constants
const (
	PolicyStatusActive  = "ACTIVE"
	PolicyStatusExpired = "EXPIRED"
	PolicyStatusLapsed  = "LAPSED"
)

// Delivery status constants
const (
	DeliveryStatusSent    = "SENT"
	DeliveryStatusFailed  = "FAILED"
	DeliveryStatusPending = "PENDING"
)
