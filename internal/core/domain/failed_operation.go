package domain

import (
	"encoding/json"
	"time"
)

// FailedOperation is a bulk item that failed with a transient error and is
// parked for replay.
type FailedOperation struct {
	ID          string                `json:"id"`
	RunID       string                `json:"run_id"`
	Type        OperationType         `json:"type"`
	Payload     json.RawMessage       `json:"payload"`
	Error       string                `json:"error_msg"`
	ErrorKind   string                `json:"error_kind"`
	RetryCount  int                   `json:"retry_count"`
	Status      FailedOperationStatus `json:"status"`
	LastAttempt time.Time             `json:"last_attempt"`
	CreatedAt   time.Time             `json:"created_at"`
}

type FailedOperationStatus string

const (
	FailedOperationPending   FailedOperationStatus = "pending"
	FailedOperationResolved  FailedOperationStatus = "resolved"
	FailedOperationAbandoned FailedOperationStatus = "abandoned"
)

type OperationType string

const (
	OperationAddSubscriber  OperationType = "add_subscriber"
	OperationCreateCampaign OperationType = "create_campaign"
	OperationSendEmail      OperationType = "send_email"
)

// SubscriberPayload is the replay payload of OperationAddSubscriber.
type SubscriberPayload struct {
	ListID int               `json:"list_id"`
	Email  string            `json:"email"`
	Fields map[string]string `json:"fields,omitempty"`
}
