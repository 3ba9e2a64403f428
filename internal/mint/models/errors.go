package models

import (
	"errors"
	"fmt"

	dErrors "mintgate/pkg/domain-errors"
)

// Domain failures. Each carries the code its HTTP status derives from.
var (
	ErrNotWhitelisted       = dErrors.New(dErrors.CodeUnauthorized, "Address not whitelisted.")
	ErrTooSoonToRetry       = dErrors.New(dErrors.CodeInternal, "Please try again in a few minutes.")
	ErrCategoryExhausted    = dErrors.New(dErrors.CodeInternal, "No identifiers left in category.")
	ErrRegistrationMismatch = dErrors.New(dErrors.CodeForbidden, "Error registering token.")
	ErrStoreUnavailable     = dErrors.New(dErrors.CodeInternal, "Store unavailable.")
	ErrSignatureInvalid     = dErrors.New(dErrors.CodeUnauthorized, "Signature is invalid.")
	ErrMissingFields        = dErrors.New(dErrors.CodeUnauthorized, "Signed message and original message are required.")
	ErrReplayedMessage      = dErrors.New(dErrors.CodeUnauthorized, "Signed message was already used.")
)

// AlreadyMintedText is the client-facing message for AlreadyMintedError.
const AlreadyMintedText = "NFT already minted."

// AlreadyMintedError reports that the address owns a confirmed token.
type AlreadyMintedError struct {
	TokenID  int64
	TokenURI string
}

func (e *AlreadyMintedError) Error() string {
	return fmt.Sprintf("token %d already minted", e.TokenID)
}

// Unwrap exposes the forbidden domain error so handlers map it to 403.
func (e *AlreadyMintedError) Unwrap() error {
	return dErrors.New(dErrors.CodeForbidden, AlreadyMintedText)
}

// AsAlreadyMinted extracts an AlreadyMintedError from err's chain.
func AsAlreadyMinted(err error) (*AlreadyMintedError, bool) {
	var am *AlreadyMintedError
	if errors.As(err, &am) {
		return am, true
	}
	return nil, false
}

// StoreFailure wraps an I/O error so it surfaces as ErrStoreUnavailable while
// keeping the cause for logs.
func StoreFailure(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrStoreUnavailable, err))
}
