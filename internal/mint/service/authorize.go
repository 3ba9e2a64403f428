package service

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"mintgate/internal/audit"
	"mintgate/internal/mint/authorization"
	"mintgate/internal/mint/models"
)

// AuthorizeRequest is the caller's proof of wallet ownership.
type AuthorizeRequest struct {
	SignedMessage   string
	OriginalMessage string
}

// Authorize verifies the caller's wallet, resolves eligibility and issues a
// fresh or reissued authorization. Concurrent calls for one owner are
// serialised by an owner claim; the loser sees TooSoonToRetry.
func (s *Service) Authorize(ctx context.Context, req AuthorizeRequest) (auth *models.Authorization, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "mint.Authorize")
	defer func() {
		s.metrics.ObserveAuthorizeLatency(time.Since(start))
		s.metrics.IncrementOutcome(outcomeOf(auth, err))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcomeOf(nil, err))
		}
		span.End()
	}()

	if strings.TrimSpace(req.SignedMessage) == "" || strings.TrimSpace(req.OriginalMessage) == "" {
		return nil, models.ErrMissingFields
	}
	signer, err := authorization.RecoverPersonalSigner(req.OriginalMessage, req.SignedMessage)
	if err != nil {
		return nil, err
	}
	owner := models.NormalizeAddress(signer.Hex())
	span.SetAttributes(attribute.String("mint.owner", owner))

	// Keyed on what was signed and by whom, so re-encoding the signature (V as
	// 0/1 instead of 27/28, or the malleable high-S twin) is still a replay.
	replayKey := "msg:" + owner + ":" + hex.EncodeToString(ethcrypto.Keccak256([]byte(req.OriginalMessage)))
	replayToken, fresh, err := s.claims.Acquire(ctx, replayKey, s.resolver.GraceWindow())
	if err != nil {
		return nil, models.StoreFailure("acquire replay guard", err)
	}
	if !fresh {
		return nil, models.ErrReplayedMessage
	}
	defer func() {
		// Only a successful authorization consumes the signed message.
		if err != nil {
			s.release(ctx, replayKey, replayToken)
		}
	}()

	ownerKey := "owner:" + owner
	ownerToken, ok, err := s.claims.Acquire(ctx, ownerKey, s.ownerClaimTTL)
	if err != nil {
		return nil, models.StoreFailure("acquire owner claim", err)
	}
	if !ok {
		return nil, models.ErrTooSoonToRetry
	}
	defer s.release(ctx, ownerKey, ownerToken)

	eligibility, err := s.resolver.Resolve(ctx, owner)
	if err != nil {
		s.logger.InfoContext(ctx, "authorization refused", "owner", owner, "reason", err.Error())
		return nil, err
	}

	auth, err = s.issuer.Issue(ctx, authorization.RequestFor(owner, eligibility))
	if err != nil {
		s.logger.ErrorContext(ctx, "authorization issue failed", "owner", owner, "error", err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("mint.token_id", auth.TokenID),
		attribute.Int("mint.category", auth.Category),
		attribute.Bool("mint.reissued", auth.Reissued),
	)
	action := audit.ActionAuthorized
	if auth.Reissued {
		action = audit.ActionReissued
	} else {
		s.metrics.IncrementAllocation(auth.Category)
	}
	s.emit(ctx, audit.Event{Action: action, Owner: owner, TokenID: auth.TokenID, Category: auth.Category})
	s.logger.InfoContext(ctx, "authorized to mint",
		"owner", owner,
		"token_id", auth.TokenID,
		"category", auth.Category,
		"reissued", auth.Reissued,
	)
	return auth, nil
}

func (s *Service) release(ctx context.Context, key, token string) {
	if err := s.claims.Release(context.WithoutCancel(ctx), key, token); err != nil {
		s.logger.WarnContext(ctx, "claim release failed", "key", key, "error", err)
	}
}

func outcomeOf(auth *models.Authorization, err error) string {
	if err == nil {
		if auth != nil && auth.Reissued {
			return "reissued"
		}
		return "issued"
	}
	if _, ok := models.AsAlreadyMinted(err); ok {
		return "already_minted"
	}
	switch {
	case errors.Is(err, models.ErrTooSoonToRetry):
		return "too_soon"
	case errors.Is(err, models.ErrNotWhitelisted):
		return "not_whitelisted"
	case errors.Is(err, models.ErrCategoryExhausted):
		return "exhausted"
	case errors.Is(err, models.ErrSignatureInvalid):
		return "invalid_signature"
	case errors.Is(err, models.ErrMissingFields):
		return "missing_fields"
	case errors.Is(err, models.ErrReplayedMessage):
		return "replayed"
	case errors.Is(err, models.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}
