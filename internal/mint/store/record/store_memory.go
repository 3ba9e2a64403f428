package record

import (
	"context"
	"sort"
	"sync"

	"mintgate/internal/mint/models"
	"mintgate/pkg/platform/sentinel"
)

// InMemoryStore keeps records in a map guarded by a mutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[int64]models.MintRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[int64]models.MintRecord)}
}

// FindByOwner returns the owner's records ordered by identifier.
func (s *InMemoryStore) FindByOwner(_ context.Context, owner string) ([]models.MintRecord, error) {
	owner = models.NormalizeAddress(owner)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.MintRecord
	for _, r := range s.records {
		if r.Owner == owner {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id int64) (*models.MintRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &r, nil
}

// Create inserts rec unless its identifier is already recorded.
func (s *InMemoryStore) Create(_ context.Context, rec models.MintRecord) error {
	rec.Owner = models.NormalizeAddress(rec.Owner)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.TokenID]; exists {
		return sentinel.ErrConflict
	}
	s.records[rec.TokenID] = rec
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, id int64, f Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	f.apply(&r)
	s.records[id] = r
	return nil
}

// Reissue stamps a new issue time on a pending record.
func (s *InMemoryStore) Reissue(ctx context.Context, id int64, issuedAt int64) error {
	return s.Update(ctx, id, Fields{IssuedAt: &issuedAt})
}

// Confirm overwrites the record with the confirmation, creating it when the
// chain reports a token this service never saw.
func (s *InMemoryStore) Confirm(_ context.Context, category int, ev models.ConfirmationEvidence, confirmedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[ev.TokenID]
	if !ok {
		r = models.MintRecord{TokenID: ev.TokenID, Category: category}
	}
	ConfirmedFields(ev, confirmedAt).apply(&r)
	s.records[ev.TokenID] = r
	return nil
}

// ListIDs returns every recorded identifier.
func (s *InMemoryStore) ListIDs(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
