package models

// Eligibility is the resolver's verdict for an address that may proceed.
// It is either NewAllocation or Reissue.
type Eligibility interface {
	isEligibility()
}

// NewAllocation asks for a fresh identifier from Category.
type NewAllocation struct {
	Category int
}

// Reissue re-signs an existing pending authorization without allocating.
type Reissue struct {
	Nonce    string
	TokenID  int64
	Category int
}

func (NewAllocation) isEligibility() {}
func (Reissue) isEligibility()       {}
