package audit

import "time"

// Action names a mint lifecycle transition.
type Action string

const (
	ActionAuthorized           Action = "mint.authorized"
	ActionReissued             Action = "mint.reissued"
	ActionConfirmed            Action = "mint.confirmed"
	ActionRegistrationRejected Action = "mint.registration_rejected"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	Timestamp       time.Time `json:"timestamp"`
	Action          Action    `json:"action"`
	Owner           string    `json:"owner,omitempty"`
	TokenID         int64     `json:"token_id,omitempty"`
	Category        int       `json:"category"`
	TransactionHash string    `json:"transaction_hash,omitempty"`
	Source          string    `json:"source,omitempty"`
	RequestID       string    `json:"request_id,omitempty"`
	Reason          string    `json:"reason,omitempty"`
}
