package models

import (
	"strconv"
	"strings"
)

// State is the lifecycle position of a MintRecord.
type State string

const (
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
)

// ConfirmationSource records which path moved a record to confirmed.
type ConfirmationSource string

const (
	SourceChainEvent   ConfirmationSource = "chain_event"
	SourceRegistration ConfirmationSource = "registration"
	SourceRestore      ConfirmationSource = "restore"
)

// CounterName is the allocation counter of a category.
func CounterName(category int) string {
	return "category" + strconv.Itoa(category)
}

// NormalizeAddress lowercases a hex address. Every owner comparison and
// lookup goes through it.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// WhitelistEntry grants an address a category.
type WhitelistEntry struct {
	Address  string
	Category int
}

// MintRecord tracks one allocated identifier through pending to confirmed.
type MintRecord struct {
	TokenID  int64
	Category int
	Owner    string
	Nonce    string
	IssuedAt int64 // unix seconds
	State    State

	TokenURI        string
	TransactionHash string
	BlockNumber     uint64
	GasUsed         uint64
	ConfirmedAt     int64
	ConfirmedBy     ConfirmationSource
}

// IsConfirmed reports whether the token exists on chain.
func (r MintRecord) IsConfirmed() bool {
	return r.State == StateConfirmed
}

// Authorization is the signed permission handed to the client.
type Authorization struct {
	Signature string
	Nonce     string
	TokenID   int64
	Timestamp int64
	Category  int
	Reissued  bool
}

// ConfirmationEvidence is an on-chain mint as seen by the chain watcher or
// reported by the client.
type ConfirmationEvidence struct {
	TokenID         int64
	TokenURI        string
	Recipient       string
	TransactionHash string
	BlockNumber     uint64
	GasUsed         uint64
	Source          ConfirmationSource
}

// RegistrationClaim is the client's report of a completed mint.
type RegistrationClaim struct {
	SignedMessage   string
	OriginalMessage string
	Nonce           string
	TokenID         int64
	TokenURI        string
	TransactionHash string
	BlockNumber     uint64
	GasUsed         uint64
}

// CategoryStatus summarises allocation progress for operators.
type CategoryStatus struct {
	Category  int   `json:"category"`
	Start     int64 `json:"start"`
	Capacity  int64 `json:"capacity"`
	Allocated int64 `json:"allocated"`
	Remaining int64 `json:"remaining"`
}
