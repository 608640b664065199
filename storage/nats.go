// Package storage provides the pipeline's persistence: the processed-proposal
// dedup set, the append-only decision ledger, the observed-proposal store, and
// the analysis retry queue, all backed by NATS KV.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/c360studio/agora/governance"
	"github.com/nats-io/nats.go/jetstream"
)

// Bucket names for each store.
const (
	BucketProposals = "AGORA_PROPOSALS"
	BucketDecisions = "AGORA_DECISIONS"
	BucketProcessed = "AGORA_PROCESSED"
	BucketRetry     = "AGORA_RETRY"
)

// Store implements all four storage interfaces over NATS KV buckets.
type Store struct {
	proposals jetstream.KeyValue
	decisions jetstream.KeyValue
	processed jetstream.KeyValue
	retry     jetstream.KeyValue
}

// Interface guards.
var (
	_ DedupStore    = (*Store)(nil)
	_ Ledger        = (*Store)(nil)
	_ ProposalStore = (*Store)(nil)
	_ RetryStore    = (*Store)(nil)
)

// NewStore creates a Store with the given JetStream context, creating the
// KV buckets if they don't exist.
func NewStore(ctx context.Context, js jetstream.JetStream) (*Store, error) {
	proposals, err := getOrCreateBucket(ctx, js, BucketProposals)
	if err != nil {
		return nil, fmt.Errorf("create proposals bucket: %w", err)
	}

	decisions, err := getOrCreateBucket(ctx, js, BucketDecisions)
	if err != nil {
		return nil, fmt.Errorf("create decisions bucket: %w", err)
	}

	processed, err := getOrCreateBucket(ctx, js, BucketProcessed)
	if err != nil {
		return nil, fmt.Errorf("create processed bucket: %w", err)
	}

	retry, err := getOrCreateBucket(ctx, js, BucketRetry)
	if err != nil {
		return nil, fmt.Errorf("create retry bucket: %w", err)
	}

	return &Store{
		proposals: proposals,
		decisions: decisions,
		processed: processed,
		retry:     retry,
	}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Agora %s storage", strings.ToLower(strings.TrimPrefix(name, "AGORA_"))),
		History:     5,
	})
}

// CheckAndMark atomically marks a proposal as processed. KV Create fails if
// the key exists, which is exactly the dedup semantic needed: concurrent
// callers race on the Create and exactly one wins.
func (s *Store) CheckAndMark(ctx context.Context, dao, proposalID string) error {
	key := governance.DecisionKey(dao, proposalID)
	marker := []byte(time.Now().UTC().Format(time.RFC3339))

	if _, err := s.processed.Create(ctx, key, marker); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return ErrAlreadyProcessed
		}
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// Unmark rolls back a processed marking.
func (s *Store) Unmark(ctx context.Context, dao, proposalID string) error {
	key := governance.DecisionKey(dao, proposalID)
	if err := s.processed.Purge(ctx, key); err != nil {
		return fmt.Errorf("unmark processed: %w", err)
	}
	return nil
}

// IsProcessed reports whether the proposal has been marked.
func (s *Store) IsProcessed(ctx context.Context, dao, proposalID string) (bool, error) {
	key := governance.DecisionKey(dao, proposalID)
	_, err := s.processed.Get(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("check processed: %w", err)
	}
	return true, nil
}

// Append records a decision. The Create-only write makes the ledger
// append-once per proposal at the storage layer, not just by convention.
func (s *Store) Append(ctx context.Context, d *governance.Decision) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("invalid decision: %w", err)
	}

	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}

	if _, err := s.decisions.Create(ctx, d.Key(), data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return ErrDuplicateDecision
		}
		return fmt.Errorf("append decision: %w", err)
	}
	return nil
}

// Get returns the decision for a proposal.
func (s *Store) Get(ctx context.Context, dao, proposalID string) (*governance.Decision, error) {
	entry, err := s.decisions.Get(ctx, governance.DecisionKey(dao, proposalID))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get decision: %w", err)
	}

	var d governance.Decision
	if err := json.Unmarshal(entry.Value(), &d); err != nil {
		return nil, fmt.Errorf("unmarshal decision: %w", err)
	}
	return &d, nil
}

// List returns decisions matching the filter.
func (s *Store) List(ctx context.Context, filter DecisionFilter) ([]*governance.Decision, error) {
	keys, err := s.decisions.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list decision keys: %w", err)
	}

	decisions := make([]*governance.Decision, 0, len(keys))
	for _, key := range keys {
		entry, err := s.decisions.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}
		var d governance.Decision
		if err := json.Unmarshal(entry.Value(), &d); err != nil {
			continue
		}
		if !filter.Matches(&d) {
			continue
		}
		decisions = append(decisions, &d)
	}

	return decisions, nil
}

// Upsert stores or replaces a proposal.
func (s *Store) Upsert(ctx context.Context, p *governance.Proposal) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid proposal: %w", err)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal proposal: %w", err)
	}

	if _, err := s.proposals.Put(ctx, p.Key(), data); err != nil {
		return fmt.Errorf("store proposal: %w", err)
	}
	return nil
}

// GetProposal returns a stored proposal.
func (s *Store) GetProposal(ctx context.Context, dao, proposalID string) (*governance.Proposal, error) {
	entry, err := s.proposals.Get(ctx, governance.DecisionKey(dao, proposalID))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get proposal: %w", err)
	}

	var p governance.Proposal
	if err := json.Unmarshal(entry.Value(), &p); err != nil {
		return nil, fmt.Errorf("unmarshal proposal: %w", err)
	}
	return &p, nil
}

// ListProposals returns stored proposals, optionally filtered by DAO.
func (s *Store) ListProposals(ctx context.Context, dao string) ([]*governance.Proposal, error) {
	keys, err := s.proposals.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list proposal keys: %w", err)
	}

	proposals := make([]*governance.Proposal, 0, len(keys))
	for _, key := range keys {
		entry, err := s.proposals.Get(ctx, key)
		if err != nil {
			continue
		}
		var p governance.Proposal
		if err := json.Unmarshal(entry.Value(), &p); err != nil {
			continue
		}
		if dao != "" && p.DAO != dao {
			continue
		}
		proposals = append(proposals, &p)
	}

	return proposals, nil
}

// Record registers a failed analysis attempt for a proposal.
func (s *Store) Record(ctx context.Context, p *governance.Proposal) (int, error) {
	key := p.Key()
	now := time.Now().UTC()

	entry := &RetryEntry{
		Proposal:    *p,
		Attempts:    1,
		FirstFailed: now,
		LastFailed:  now,
	}

	if existing, err := s.retry.Get(ctx, key); err == nil {
		var prev RetryEntry
		if err := json.Unmarshal(existing.Value(), &prev); err == nil {
			entry.Attempts = prev.Attempts + 1
			entry.FirstFailed = prev.FirstFailed
		}
	} else if !isNotFound(err) {
		return 0, fmt.Errorf("get retry entry: %w", err)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return 0, fmt.Errorf("marshal retry entry: %w", err)
	}
	if _, err := s.retry.Put(ctx, key, data); err != nil {
		return 0, fmt.Errorf("store retry entry: %w", err)
	}

	return entry.Attempts, nil
}

// Pending returns all entries awaiting retry.
func (s *Store) Pending(ctx context.Context) ([]*RetryEntry, error) {
	keys, err := s.retry.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list retry keys: %w", err)
	}

	entries := make([]*RetryEntry, 0, len(keys))
	for _, key := range keys {
		kvEntry, err := s.retry.Get(ctx, key)
		if err != nil {
			continue
		}
		var e RetryEntry
		if err := json.Unmarshal(kvEntry.Value(), &e); err != nil {
			continue
		}
		entries = append(entries, &e)
	}

	return entries, nil
}

// Clear removes a retry entry.
func (s *Store) Clear(ctx context.Context, dao, proposalID string) error {
	key := governance.DecisionKey(dao, proposalID)
	if err := s.retry.Purge(ctx, key); err != nil {
		return fmt.Errorf("clear retry entry: %w", err)
	}
	return nil
}

// isNotFound checks if an error indicates a missing key.
func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted)
}
