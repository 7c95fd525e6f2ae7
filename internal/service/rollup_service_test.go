package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitecrew/sitesync/internal/domain"
	"github.com/sitecrew/sitesync/internal/storage"
)

func setupRollupTest(t *testing.T) (*RollupService, *storage.Storage) {
	t.Helper()
	store, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewRollupService(store, 0), store
}

func day(d int) time.Time {
	return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
}

func addAssignment(t *testing.T, store *storage.Storage, assigneeID string, start, end time.Time, rate *float64) {
	t.Helper()
	var endPtr *time.Time
	if !end.IsZero() {
		endPtr = &end
	}
	err := store.CreateAssignment(&domain.CalendarAssignment{
		EntityType:  domain.EntityWorkOrder,
		EntityID:    "wo-100",
		AssigneeID:  assigneeID,
		CalendarID:  "crew@example.com",
		StartDate:   start,
		EndDate:     endPtr,
		RatePerHour: rate,
	})
	require.NoError(t, err)
}

func TestRollupClipsToQueryRange(t *testing.T) {
	svc, store := setupRollupTest(t)
	rate := 50.0

	// 5 assigned days, but the query covers only 3 of them.
	addAssignment(t, store, "emp-1", day(10), day(15), &rate)

	summary, err := svc.Rollup(domain.EntityWorkOrder, "wo-100", day(12), day(15))
	require.NoError(t, err)

	// 3 days x 8h.
	assert.InDelta(t, 24.0, summary.TotalHours, 1e-9)
	assert.InDelta(t, 24.0*rate, summary.TotalCost, 1e-9)
	require.Len(t, summary.PerAssignee, 1)
	assert.True(t, summary.PerAssignee[0].RateKnown)
}

func TestRollupUnknownRateCountsHoursNotCost(t *testing.T) {
	svc, store := setupRollupTest(t)

	addAssignment(t, store, "sub-7", day(10), day(15), nil)

	summary, err := svc.Rollup(domain.EntityWorkOrder, "wo-100", day(12), day(15))
	require.NoError(t, err)

	// Hours still count; cost stays zero and is flagged as unpriced, so an
	// unknown rate is never mistaken for free labor.
	assert.InDelta(t, 24.0, summary.TotalHours, 1e-9)
	assert.Zero(t, summary.TotalCost)
	require.Len(t, summary.PerAssignee, 1)
	assert.False(t, summary.PerAssignee[0].RateKnown)
}

func TestRollupOutsideRangeIsEmpty(t *testing.T) {
	svc, store := setupRollupTest(t)
	rate := 50.0

	addAssignment(t, store, "emp-1", day(10), day(15), &rate)

	summary, err := svc.Rollup(domain.EntityWorkOrder, "wo-100", day(20), day(25))
	require.NoError(t, err)

	assert.Zero(t, summary.TotalHours)
	assert.Zero(t, summary.TotalCost)
	assert.Empty(t, summary.PerAssignee)
}

func TestRollupAggregatesPerAssignee(t *testing.T) {
	svc, store := setupRollupTest(t)
	rateA := 50.0
	rateB := 80.0

	// emp-1 has two separate assignment stretches, sub-7 one.
	addAssignment(t, store, "emp-1", day(10), day(12), &rateA)
	addAssignment(t, store, "emp-1", day(14), day(16), &rateA)
	addAssignment(t, store, "sub-7", day(10), day(11), &rateB)

	summary, err := svc.Rollup(domain.EntityWorkOrder, "wo-100", day(1), day(30))
	require.NoError(t, err)

	// emp-1: (2 + 2) days x 8h = 32h; sub-7: 1 day x 8h = 8h.
	assert.InDelta(t, 40.0, summary.TotalHours, 1e-9)
	assert.InDelta(t, 32*rateA+8*rateB, summary.TotalCost, 1e-9)
	require.Len(t, summary.PerAssignee, 2)

	// Deterministic order by assignee id.
	assert.Equal(t, "emp-1", summary.PerAssignee[0].AssigneeID)
	assert.InDelta(t, 32.0, summary.PerAssignee[0].Hours, 1e-9)
	assert.Equal(t, "sub-7", summary.PerAssignee[1].AssigneeID)
	assert.InDelta(t, 8.0, summary.PerAssignee[1].Hours, 1e-9)
}

func TestRollupOpenEndedRunsThroughRange(t *testing.T) {
	svc, store := setupRollupTest(t)

	addAssignment(t, store, "emp-1", day(10), time.Time{}, nil)

	summary, err := svc.Rollup(domain.EntityWorkOrder, "wo-100", day(12), day(14))
	require.NoError(t, err)

	// Open-ended assignment covers the whole 2-day query window.
	assert.InDelta(t, 16.0, summary.TotalHours, 1e-9)
}

func TestRollupRejectsEmptyRange(t *testing.T) {
	svc, _ := setupRollupTest(t)

	_, err := svc.Rollup(domain.EntityWorkOrder, "wo-100", day(15), day(10))
	assert.Error(t, err)
}

func TestRollupCustomWorkday(t *testing.T) {
	store, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc := NewRollupService(store, 10)
	rate := 50.0
	addAssignment(t, store, "emp-1", day(10), day(12), &rate)

	summary, err := svc.Rollup(domain.EntityWorkOrder, "wo-100", day(1), day(30))
	require.NoError(t, err)
	assert.InDelta(t, 20.0, summary.TotalHours, 1e-9)
}
