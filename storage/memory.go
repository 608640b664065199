package storage

import (
	"context"
	"sync"
	"time"

	"github.com/c360studio/agora/governance"
)

// MemoryStore is an in-memory implementation of all four storage interfaces.
// Used in tests and for running the pipeline without a NATS server.
type MemoryStore struct {
	mu        sync.Mutex
	proposals map[string]governance.Proposal
	decisions map[string]governance.Decision
	processed map[string]time.Time
	retry     map[string]RetryEntry
}

var (
	_ DedupStore    = (*MemoryStore)(nil)
	_ Ledger        = (*MemoryStore)(nil)
	_ ProposalStore = (*MemoryStore)(nil)
	_ RetryStore    = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		proposals: make(map[string]governance.Proposal),
		decisions: make(map[string]governance.Decision),
		processed: make(map[string]time.Time),
		retry:     make(map[string]RetryEntry),
	}
}

// CheckAndMark atomically marks a proposal as processed.
func (m *MemoryStore) CheckAndMark(_ context.Context, dao, proposalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := governance.DecisionKey(dao, proposalID)
	if _, ok := m.processed[key]; ok {
		return ErrAlreadyProcessed
	}
	m.processed[key] = time.Now()
	return nil
}

// Unmark removes a processed marking.
func (m *MemoryStore) Unmark(_ context.Context, dao, proposalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.processed, governance.DecisionKey(dao, proposalID))
	return nil
}

// IsProcessed reports whether the proposal has been marked.
func (m *MemoryStore) IsProcessed(_ context.Context, dao, proposalID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.processed[governance.DecisionKey(dao, proposalID)]
	return ok, nil
}

// Append records a decision once.
func (m *MemoryStore) Append(_ context.Context, d *governance.Decision) error {
	if err := d.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := d.Key()
	if _, ok := m.decisions[key]; ok {
		return ErrDuplicateDecision
	}
	m.decisions[key] = *d
	return nil
}

// Get returns the decision for a proposal.
func (m *MemoryStore) Get(_ context.Context, dao, proposalID string) (*governance.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.decisions[governance.DecisionKey(dao, proposalID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

// List returns decisions matching the filter.
func (m *MemoryStore) List(_ context.Context, filter DecisionFilter) ([]*governance.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var decisions []*governance.Decision
	for _, d := range m.decisions {
		cp := d
		if !filter.Matches(&cp) {
			continue
		}
		decisions = append(decisions, &cp)
	}
	return decisions, nil
}

// Upsert stores or replaces a proposal.
func (m *MemoryStore) Upsert(_ context.Context, p *governance.Proposal) error {
	if err := p.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.proposals[p.Key()] = *p
	return nil
}

// GetProposal returns a stored proposal.
func (m *MemoryStore) GetProposal(_ context.Context, dao, proposalID string) (*governance.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.proposals[governance.DecisionKey(dao, proposalID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// ListProposals returns stored proposals, optionally filtered by DAO.
func (m *MemoryStore) ListProposals(_ context.Context, dao string) ([]*governance.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var proposals []*governance.Proposal
	for _, p := range m.proposals {
		if dao != "" && p.DAO != dao {
			continue
		}
		cp := p
		proposals = append(proposals, &cp)
	}
	return proposals, nil
}

// Record registers a failed analysis attempt.
func (m *MemoryStore) Record(_ context.Context, p *governance.Proposal) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := p.Key()
	now := time.Now().UTC()
	entry, ok := m.retry[key]
	if !ok {
		entry = RetryEntry{Proposal: *p, FirstFailed: now}
	}
	entry.Attempts++
	entry.LastFailed = now
	m.retry[key] = entry

	return entry.Attempts, nil
}

// Pending returns all entries awaiting retry.
func (m *MemoryStore) Pending(_ context.Context) ([]*RetryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var entries []*RetryEntry
	for _, e := range m.retry {
		cp := e
		entries = append(entries, &cp)
	}
	return entries, nil
}

// Clear removes a retry entry.
func (m *MemoryStore) Clear(_ context.Context, dao, proposalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.retry, governance.DecisionKey(dao, proposalID))
	return nil
}
