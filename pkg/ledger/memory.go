package ledger

import (
	"context"
	"sync"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
)

type donorKey struct {
	campaignID uint64
	donor      campaign.Principal
}

// MemoryStore is the in-process Store used by tests and the demo.
// All methods return copies; callers never see shared state.
type MemoryStore struct {
	mu        sync.RWMutex
	nextID    uint64
	campaigns map[uint64]campaign.Campaign
	donors    map[donorKey]campaign.DonorRecord
}

// NewMemoryStore returns an empty store with the id counter at 1.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:    1,
		campaigns: make(map[uint64]campaign.Campaign),
		donors:    make(map[donorKey]campaign.DonorRecord),
	}
}

func (s *MemoryStore) CreateCampaign(_ context.Context, c campaign.Campaign) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.nextID
	s.nextID++
	s.campaigns[c.ID] = c
	return c.ID, nil
}

func (s *MemoryStore) Campaign(_ context.Context, id uint64) (campaign.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[id]
	if !ok {
		return campaign.Campaign{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) PutCampaign(_ context.Context, c campaign.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[c.ID]; !ok {
		return ErrNotFound
	}
	s.campaigns[c.ID] = c
	return nil
}

func (s *MemoryStore) DonorRecord(_ context.Context, id uint64, donor campaign.Principal) (campaign.DonorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.donors[donorKey{id, donor}], nil
}

func (s *MemoryStore) PutDonorRecord(_ context.Context, id uint64, donor campaign.Principal, rec campaign.DonorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.donors[donorKey{id, donor}] = rec
	return nil
}

func (s *MemoryStore) Close() error { return nil }
