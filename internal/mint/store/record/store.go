// Package record persists MintRecords keyed by identifier with an owner index.
package record

import "mintgate/internal/mint/models"

// Fields is a partial overwrite of a record. Nil fields are left untouched.
type Fields struct {
	Owner           *string
	IssuedAt        *int64
	State           *models.State
	TokenURI        *string
	TransactionHash *string
	BlockNumber     *uint64
	GasUsed         *uint64
	ConfirmedAt     *int64
	ConfirmedBy     *models.ConfirmationSource
}

// ConfirmedFields builds the overwrite that moves a record to confirmed.
func ConfirmedFields(ev models.ConfirmationEvidence, confirmedAt int64) Fields {
	state := models.StateConfirmed
	owner := models.NormalizeAddress(ev.Recipient)
	return Fields{
		Owner:           &owner,
		State:           &state,
		TokenURI:        &ev.TokenURI,
		TransactionHash: &ev.TransactionHash,
		BlockNumber:     &ev.BlockNumber,
		GasUsed:         &ev.GasUsed,
		ConfirmedAt:     &confirmedAt,
		ConfirmedBy:     &ev.Source,
	}
}

func (f Fields) apply(r *models.MintRecord) {
	if f.Owner != nil {
		r.Owner = *f.Owner
	}
	if f.IssuedAt != nil {
		r.IssuedAt = *f.IssuedAt
	}
	if f.State != nil {
		r.State = *f.State
	}
	if f.TokenURI != nil {
		r.TokenURI = *f.TokenURI
	}
	if f.TransactionHash != nil {
		r.TransactionHash = *f.TransactionHash
	}
	if f.BlockNumber != nil {
		r.BlockNumber = *f.BlockNumber
	}
	if f.GasUsed != nil {
		r.GasUsed = *f.GasUsed
	}
	if f.ConfirmedAt != nil {
		r.ConfirmedAt = *f.ConfirmedAt
	}
	if f.ConfirmedBy != nil {
		r.ConfirmedBy = *f.ConfirmedBy
	}
}
