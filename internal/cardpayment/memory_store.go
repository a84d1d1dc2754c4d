package cardpayment

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	payments    map[AuthID]*Payment
	revocations map[AuthID]uint64
	revokedTx   map[string]bool
	reversedTx  map[string]bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments:    make(map[AuthID]*Payment),
		revocations: make(map[AuthID]uint64),
		revokedTx:   make(map[string]bool),
		reversedTx:  make(map[string]bool),
	}
}

func (s *MemoryStore) GetPayment(_ context.Context, id AuthID) (*Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, nil
	}
	return p.clone(), nil
}

func (s *MemoryStore) SavePayment(_ context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.AuthorizationID] = p.clone()
	return nil
}

func (s *MemoryStore) ListActivePayments(_ context.Context) ([]*Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Payment
	for _, p := range s.payments {
		if p.Status.Active() {
			out = append(out, p.clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) RevocationCount(_ context.Context, id AuthID) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revocations[id], nil
}

func (s *MemoryStore) SetRevocationCount(_ context.Context, id AuthID, count uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revocations[id] = count
	return nil
}

func (s *MemoryStore) MarkRevoked(_ context.Context, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokedTx[txHash] = true
	return nil
}

func (s *MemoryStore) MarkReversed(_ context.Context, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reversedTx[txHash] = true
	return nil
}

func (s *MemoryStore) IsRevoked(_ context.Context, txHash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revokedTx[txHash], nil
}

func (s *MemoryStore) IsReversed(_ context.Context, txHash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reversedTx[txHash], nil
}
