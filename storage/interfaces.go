package storage

import (
	"context"
	"time"

	"github.com/c360studio/agora/governance"
)

// DedupStore tracks which proposals have entered the decision pipeline.
// CheckAndMark is the pipeline's dedup gate: it must be atomic so that
// concurrent cycles collapse to a single processing attempt per proposal.
type DedupStore interface {
	// CheckAndMark atomically marks the proposal as processed. Returns
	// ErrAlreadyProcessed if it was already marked.
	CheckAndMark(ctx context.Context, dao, proposalID string) error

	// Unmark removes the processed marking. Used to roll back when the
	// decision could not be durably recorded.
	Unmark(ctx context.Context, dao, proposalID string) error

	// IsProcessed reports whether the proposal has been marked.
	IsProcessed(ctx context.Context, dao, proposalID string) (bool, error)
}

// DecisionFilter narrows a ledger listing. Zero values match everything.
type DecisionFilter struct {
	DAO            string
	Classification governance.Classification

	// From and Until bound DecidedAt: From is inclusive, Until exclusive.
	// A zero time means no bound on that side.
	From  time.Time
	Until time.Time
}

// Matches reports whether a decision passes the filter.
func (f DecisionFilter) Matches(d *governance.Decision) bool {
	if f.DAO != "" && d.DAO != f.DAO {
		return false
	}
	if f.Classification != "" && d.Classification != f.Classification {
		return false
	}
	if !f.From.IsZero() && d.DecidedAt.Before(f.From) {
		return false
	}
	if !f.Until.IsZero() && !d.DecidedAt.Before(f.Until) {
		return false
	}
	return true
}

// Ledger is the append-only decision audit trail. At most one decision ever
// exists per (DAO, proposal); appends never overwrite.
type Ledger interface {
	// Append records a decision. Returns ErrDuplicateDecision if one
	// already exists for the same proposal.
	Append(ctx context.Context, d *governance.Decision) error

	// Get returns the decision for a proposal, or ErrNotFound.
	Get(ctx context.Context, dao, proposalID string) (*governance.Decision, error)

	// List returns decisions matching the filter, in no particular order.
	List(ctx context.Context, filter DecisionFilter) ([]*governance.Decision, error)
}

// ProposalStore holds the observed proposals. Unlike the ledger it is
// mutable: vote tallies and status refresh on every poll until a proposal
// closes.
type ProposalStore interface {
	// Upsert stores or replaces a proposal.
	Upsert(ctx context.Context, p *governance.Proposal) error

	// GetProposal returns a proposal, or ErrNotFound.
	GetProposal(ctx context.Context, dao, proposalID string) (*governance.Proposal, error)

	// ListProposals returns proposals, optionally filtered to one DAO.
	ListProposals(ctx context.Context, dao string) ([]*governance.Proposal, error)
}

// RetryEntry is a proposal waiting for another analysis attempt. The entry
// carries a snapshot of the proposal so retries survive restarts without
// re-fetching the chain.
type RetryEntry struct {
	Proposal    governance.Proposal `json:"proposal"`
	Attempts    int                 `json:"attempts"`
	FirstFailed time.Time           `json:"first_failed"`
	LastFailed  time.Time           `json:"last_failed"`
}

// RetryStore tracks proposals whose analysis backend was unavailable.
type RetryStore interface {
	// Record registers a failed analysis attempt and returns the total
	// attempt count including this one.
	Record(ctx context.Context, p *governance.Proposal) (int, error)

	// Pending returns all entries awaiting retry.
	Pending(ctx context.Context) ([]*RetryEntry, error)

	// Clear removes the entry once the proposal has been decided.
	Clear(ctx context.Context, dao, proposalID string) error
}
