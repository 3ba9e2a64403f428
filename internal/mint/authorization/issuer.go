package authorization

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"mintgate/internal/mint/models"
	"mintgate/pkg/platform/sentinel"
	"mintgate/pkg/requestcontext"
)

// Allocator hands out a fresh identifier for a category.
type Allocator interface {
	Allocate(ctx context.Context, category int) (int64, error)
}

// RecordWriter persists pending records.
type RecordWriter interface {
	Create(ctx context.Context, rec models.MintRecord) error
	Reissue(ctx context.Context, id int64, issuedAt int64) error
}

// IssueRequest asks for an authorization. A non-empty Nonce with a TokenID
// marks a reissue of that pending record.
type IssueRequest struct {
	Address  string
	Category int
	TokenID  int64
	Nonce    string
}

// RequestFor turns a resolver verdict into an IssueRequest.
func RequestFor(address string, e models.Eligibility) IssueRequest {
	switch v := e.(type) {
	case models.Reissue:
		return IssueRequest{Address: address, Category: v.Category, TokenID: v.TokenID, Nonce: v.Nonce}
	case models.NewAllocation:
		return IssueRequest{Address: address, Category: v.Category}
	default:
		return IssueRequest{Address: address}
	}
}

func (r IssueRequest) isReissue() bool {
	return r.Nonce != "" && r.TokenID != 0
}

// Issuer allocates, signs and records authorizations.
type Issuer struct {
	allocator Allocator
	records   RecordWriter
	signer    *Signer
	entropy   io.Reader
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithEntropy replaces crypto/rand as the nonce source.
func WithEntropy(r io.Reader) IssuerOption {
	return func(i *Issuer) {
		if r != nil {
			i.entropy = r
		}
	}
}

func NewIssuer(allocator Allocator, records RecordWriter, signer *Signer, opts ...IssuerOption) *Issuer {
	i := &Issuer{
		allocator: allocator,
		records:   records,
		signer:    signer,
		entropy:   rand.Reader,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue signs {nonce, owner, tokenId, timestamp} and leaves a pending record
// carrying the nonce. A reissue keeps nonce and identifier and only moves the
// issue time forward.
func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (*models.Authorization, error) {
	owner := models.NormalizeAddress(req.Address)
	if !common.IsHexAddress(owner) {
		return nil, fmt.Errorf("issue: invalid owner address %q", req.Address)
	}
	timestamp := requestcontext.Now(ctx).Unix()

	var (
		nonce   [32]byte
		tokenID int64
		err     error
	)
	if req.isReissue() {
		if nonce, err = ParseNonce(req.Nonce); err != nil {
			return nil, fmt.Errorf("issue: stored nonce: %w", err)
		}
		tokenID = req.TokenID
	} else {
		if _, err := io.ReadFull(i.entropy, nonce[:]); err != nil {
			return nil, fmt.Errorf("issue: generate nonce: %w", err)
		}
		if tokenID, err = i.allocator.Allocate(ctx, req.Category); err != nil {
			return nil, err
		}
	}

	sig, err := i.signer.SignPersonal(MessageHash(nonce, common.HexToAddress(owner), tokenID, timestamp))
	if err != nil {
		return nil, err
	}
	nonceHex := hexutil.Encode(nonce[:])

	if req.isReissue() {
		if err := i.records.Reissue(ctx, tokenID, timestamp); err != nil {
			return nil, models.StoreFailure("reissue record", err)
		}
	} else {
		err := i.records.Create(ctx, models.MintRecord{
			TokenID:  tokenID,
			Category: req.Category,
			Owner:    owner,
			Nonce:    nonceHex,
			IssuedAt: timestamp,
			State:    models.StatePending,
		})
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, fmt.Errorf("issue: identifier %d already recorded: %w", tokenID, err)
		}
		if err != nil {
			return nil, models.StoreFailure("create record", err)
		}
	}

	return &models.Authorization{
		Signature: hexutil.Encode(sig),
		Nonce:     nonceHex,
		TokenID:   tokenID,
		Timestamp: timestamp,
		Category:  req.Category,
		Reissued:  req.isReissue(),
	}, nil
}
