package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c360studio/agora/governance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDecision(dao, id string) *governance.Decision {
	return &governance.Decision{
		ProposalID:     id,
		DAO:            dao,
		Classification: governance.ClassEscalate,
		Reason:         "no automation rule matched",
		DecidedAt:      time.Now().UTC(),
	}
}

func TestDedup_CheckAndMark(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.CheckAndMark(ctx, "mango", "p1"))
	assert.ErrorIs(t, store.CheckAndMark(ctx, "mango", "p1"), ErrAlreadyProcessed)

	// Different DAO, same proposal ID: independent.
	require.NoError(t, store.CheckAndMark(ctx, "pyth", "p1"))

	processed, err := store.IsProcessed(ctx, "mango", "p1")
	require.NoError(t, err)
	assert.True(t, processed)

	require.NoError(t, store.Unmark(ctx, "mango", "p1"))
	processed, err = store.IsProcessed(ctx, "mango", "p1")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestDedup_ConcurrentMarkCollapses(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	const workers = 32
	var wins atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.CheckAndMark(ctx, "mango", "p1"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "exactly one concurrent mark must win")
}

func TestLedger_AppendOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Append(ctx, testDecision("mango", "p1")))
	assert.ErrorIs(t, store.Append(ctx, testDecision("mango", "p1")), ErrDuplicateDecision)

	d, err := store.Get(ctx, "mango", "p1")
	require.NoError(t, err)
	assert.Equal(t, governance.ClassEscalate, d.Classification)

	_, err = store.Get(ctx, "mango", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedger_ListFilter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	approve := testDecision("mango", "p1")
	approve.Classification = governance.ClassAutoApprove
	require.NoError(t, store.Append(ctx, approve))
	require.NoError(t, store.Append(ctx, testDecision("mango", "p2")))
	require.NoError(t, store.Append(ctx, testDecision("pyth", "p3")))

	all, err := store.List(ctx, DecisionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mango, err := store.List(ctx, DecisionFilter{DAO: "mango"})
	require.NoError(t, err)
	assert.Len(t, mango, 2)

	approved, err := store.List(ctx, DecisionFilter{Classification: governance.ClassAutoApprove})
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "p1", approved[0].ProposalID)
}

func TestLedger_ListTimeRange(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	day := func(d int) time.Time {
		return time.Date(2026, 8, d, 12, 0, 0, 0, time.UTC)
	}
	for i, id := range []string{"p1", "p2", "p3"} {
		d := testDecision("mango", id)
		d.DecidedAt = day(i + 1)
		require.NoError(t, store.Append(ctx, d))
	}

	// From is inclusive, Until exclusive.
	got, err := store.List(ctx, DecisionFilter{From: day(2)})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = store.List(ctx, DecisionFilter{Until: day(3)})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = store.List(ctx, DecisionFilter{From: day(2), Until: day(3)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p2", got[0].ProposalID)

	// Range bounds combine with the other filter fields.
	got, err = store.List(ctx, DecisionFilter{DAO: "pyth", From: day(1)})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestProposalStore_UpsertRefreshesTallies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	p := &governance.Proposal{
		ID: "p1", DAO: "mango", Title: "t",
		Tallies: governance.VoteTallies{Yes: 10, No: 1},
		Status:  governance.ProposalActive,
	}
	require.NoError(t, store.Upsert(ctx, p))

	p.Tallies.Yes = 50
	p.Status = governance.ProposalClosed
	require.NoError(t, store.Upsert(ctx, p))

	got, err := store.GetProposal(ctx, "mango", "p1")
	require.NoError(t, err)
	assert.Equal(t, uint64(50), got.Tallies.Yes)
	assert.Equal(t, governance.ProposalClosed, got.Status)
}

func TestRetryStore_CountsAndSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	p := &governance.Proposal{ID: "p1", DAO: "mango", Title: "original title"}

	n, err := store.Record(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.Record(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Attempts)
	assert.Equal(t, "original title", pending[0].Proposal.Title)
	assert.False(t, pending[0].FirstFailed.IsZero())

	require.NoError(t, store.Clear(ctx, "mango", "p1"))
	pending, err = store.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
