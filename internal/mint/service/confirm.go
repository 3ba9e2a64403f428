package service

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"mintgate/internal/audit"
	"mintgate/internal/mint/authorization"
	"mintgate/internal/mint/models"
	"mintgate/pkg/platform/sentinel"
	"mintgate/pkg/requestcontext"
)

// Confirm moves the record of ev.TokenID to confirmed, creating it when the
// chain reports a mint this service never authorized. Applying the same
// evidence twice leaves the record unchanged.
func (s *Service) Confirm(ctx context.Context, ev models.ConfirmationEvidence) error {
	ctx, span := s.tracer.Start(ctx, "mint.Confirm")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("mint.token_id", ev.TokenID),
		attribute.String("mint.source", string(ev.Source)),
	)

	ev.Recipient = models.NormalizeAddress(ev.Recipient)
	category, known := s.categories.CategoryOf(ev.TokenID)
	if !known {
		s.logger.WarnContext(ctx, "confirmed token outside configured categories", "token_id", ev.TokenID)
	}

	if err := s.records.Confirm(ctx, category, ev, requestcontext.Now(ctx).Unix()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "confirm failed")
		return models.StoreFailure("confirm record", err)
	}

	s.metrics.IncrementConfirmation(string(ev.Source))
	s.emit(ctx, audit.Event{
		Action:          audit.ActionConfirmed,
		Owner:           ev.Recipient,
		TokenID:         ev.TokenID,
		Category:        category,
		TransactionHash: ev.TransactionHash,
		Source:          string(ev.Source),
	})
	s.logger.InfoContext(ctx, "mint confirmed",
		"token_id", ev.TokenID,
		"owner", ev.Recipient,
		"transaction_hash", ev.TransactionHash,
		"block_number", ev.BlockNumber,
		"source", ev.Source,
	)
	return nil
}

// Register accepts a client's report of a completed mint. The wallet that
// signed originalMessage must own the record whose nonce and identifier match.
func (s *Service) Register(ctx context.Context, claim models.RegistrationClaim) (err error) {
	ctx, span := s.tracer.Start(ctx, "mint.Register")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "registration failed")
		}
		span.End()
	}()

	if strings.TrimSpace(claim.SignedMessage) == "" || strings.TrimSpace(claim.OriginalMessage) == "" ||
		strings.TrimSpace(claim.Nonce) == "" || claim.TokenID <= 0 {
		return models.ErrMissingFields
	}
	signer, err := authorization.RecoverPersonalSigner(claim.OriginalMessage, claim.SignedMessage)
	if err != nil {
		return err
	}
	owner := models.NormalizeAddress(signer.Hex())

	rec, err := s.records.FindByID(ctx, claim.TokenID)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.reject(ctx, owner, claim.TokenID, "no record for token")
		return models.ErrRegistrationMismatch
	}
	if err != nil {
		return models.StoreFailure("find record", err)
	}
	if !strings.EqualFold(rec.Nonce, claim.Nonce) {
		s.reject(ctx, owner, claim.TokenID, "nonce mismatch")
		return models.ErrRegistrationMismatch
	}
	if rec.Owner != owner {
		s.reject(ctx, owner, claim.TokenID, "signer is not the record owner")
		return models.ErrRegistrationMismatch
	}
	if rec.IsConfirmed() && rec.ConfirmedBy == models.SourceChainEvent {
		// Chain evidence is authoritative; the client's copy is not applied.
		s.logger.InfoContext(ctx, "registration acknowledged for chain-confirmed token",
			"token_id", claim.TokenID,
			"owner", owner,
		)
		return nil
	}

	return s.Confirm(ctx, models.ConfirmationEvidence{
		TokenID:         claim.TokenID,
		TokenURI:        claim.TokenURI,
		Recipient:       owner,
		TransactionHash: claim.TransactionHash,
		BlockNumber:     claim.BlockNumber,
		GasUsed:         claim.GasUsed,
		Source:          models.SourceRegistration,
	})
}

func (s *Service) reject(ctx context.Context, owner string, tokenID int64, reason string) {
	s.logger.WarnContext(ctx, "registration rejected", "owner", owner, "token_id", tokenID, "reason", reason)
	s.emit(ctx, audit.Event{
		Action:  audit.ActionRegistrationRejected,
		Owner:   owner,
		TokenID: tokenID,
		Reason:  reason,
	})
}

// Status reports allocation progress per category.
func (s *Service) Status(ctx context.Context) ([]models.CategoryStatus, error) {
	if s.status == nil {
		return nil, errors.New("status reporting not configured")
	}
	return s.status.Status(ctx)
}
