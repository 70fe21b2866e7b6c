package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"reportmap/guard"
	"reportmap/models"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreConcurrentInsertAdmitsOne(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	const n = 64
	results := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := models.Candidate{Latitude: 41.8781, Longitude: -87.6298 + float64(i)*0.000001}
			_, results[i] = m.InsertIfNoneWithin(ctx, c, 20)
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range results {
		var conflict *guard.ConflictError
		if err == nil {
			admitted++
			continue
		}
		require.True(t, errors.As(err, &conflict), "unexpected error %v", err)
	}
	assert.Equal(t, 1, admitted)
}

func TestMemoryStoreSnapshotOrder(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	ids := []string{"c", "a", "b"}
	next := 0
	m := NewMemoryStore(WithClock(clock), WithIDGenerator(func() string {
		id := ids[next]
		next++
		return id
	}))
	ctx := context.Background()

	_, err := m.InsertIfNoneWithin(ctx, models.Candidate{Latitude: 1, Longitude: 1}, 20)
	require.NoError(t, err)
	_, err = m.InsertIfNoneWithin(ctx, models.Candidate{Latitude: 2, Longitude: 2}, 20)
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = m.InsertIfNoneWithin(ctx, models.Candidate{Latitude: 3, Longitude: 3}, 20)
	require.NoError(t, err)

	all, err := m.Snapshot(ctx, nil)
	require.NoError(t, err)
	got := make([]string, len(all))
	for i, r := range all {
		got[i] = r.ID
	}
	assert.Equal(t, []string{"a", "c", "b"}, got)

	inside, err := m.Snapshot(ctx, &models.Bounds{South: 1.5, West: 1.5, North: 2.5, East: 2.5})
	require.NoError(t, err)
	require.Len(t, inside, 1)
	assert.Equal(t, "a", inside[0].ID)
}

func TestMemoryStoreMutations(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	r, err := m.InsertIfNoneWithin(ctx, chicago(), 20)
	require.NoError(t, err)

	r, err = m.Confirm(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Confirmations)

	r, err = m.UpdateStatus(ctx, r.ID, models.StatusFixed)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFixed, r.Status)
	assert.Equal(t, 1, r.Confirmations)

	_, err = m.UpdateStatus(ctx, "missing", models.StatusFixed)
	assert.ErrorIs(t, err, models.ErrReportNotFound)
}

func TestMemoryStoreInsertAndSweep(t *testing.T) {
	m := NewMemoryStore()
	for i, lng := range []float64{-87.6298, -87.6299, -87.7} {
		require.NoError(t, m.Insert(models.Report{ID: fmt.Sprintf("r%d", i), Latitude: 41.8781, Longitude: lng}))
	}
	assert.Error(t, m.Insert(models.Report{ID: "r0", Latitude: 1, Longitude: 1}))
	assert.ErrorIs(t, m.Insert(models.Report{ID: "bad", Latitude: 100}), models.ErrInvalidCoordinates)

	all, err := m.Snapshot(context.Background(), nil)
	require.NoError(t, err)
	pairs := guard.FindDuplicates(all, 20)
	require.Len(t, pairs, 1)
	assert.Equal(t, "r0", pairs[0].FirstID)
	assert.Equal(t, "r1", pairs[0].SecondID)
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	m := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.InsertIfNoneWithin(ctx, chicago(), 20)
	assert.ErrorIs(t, err, guard.ErrStoreUnavailable)
}
