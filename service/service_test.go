package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"reportmap/database"
	"reportmap/guard"
	"reportmap/map_aggr"
	"reportmap/models"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []models.Report
	err       error
}

func (p *fakePublisher) PublishReport(r models.Report) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, r)
	return p.err
}

type countingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *countingNotifier) ReportsChanged() {
	n.mu.Lock()
	n.calls++
	n.mu.Unlock()
}

// brokenStore fails every call.
type brokenStore struct {
	*database.MemoryStore
}

var errConnRefused = errors.New("dial tcp: connection refused")

func (brokenStore) FindWithinRadius(context.Context, float64, float64, float64) ([]models.Report, error) {
	return nil, errConnRefused
}

func (brokenStore) InsertIfNoneWithin(context.Context, models.Candidate, float64) (models.Report, error) {
	return models.Report{}, errConnRefused
}

func (brokenStore) Snapshot(context.Context, *models.Bounds) ([]models.Report, error) {
	return nil, errConnRefused
}

func (brokenStore) Confirm(context.Context, string) (models.Report, error) {
	return models.Report{}, errConnRefused
}

func newTestService(store Store) (*ReportService, *fakePublisher, *countingNotifier) {
	pub := &fakePublisher{}
	n := &countingNotifier{}
	svc := NewReportService(store, map_aggr.NewDispatcher(), Options{
		RadiusMeters: 20,
		StoreTimeout: time.Second,
		Publisher:    pub,
		Notifier:     n,
	})
	return svc, pub, n
}

func TestSubmitReportChicago(t *testing.T) {
	svc, pub, n := newTestService(database.NewMemoryStore())
	ctx := context.Background()

	first, err := svc.SubmitReport(ctx, models.Candidate{Latitude: 41.8781, Longitude: -87.6298, Description: "pothole"}, 0)
	require.NoError(t, err)

	_, err = svc.SubmitReport(ctx, models.Candidate{Latitude: 41.8781, Longitude: -87.6299}, 0)
	var conflict *guard.ConflictError
	require.True(t, errors.As(err, &conflict))
	require.Len(t, conflict.Nearby, 1)
	assert.Equal(t, first.ID, conflict.Nearby[0].ID)
	assert.InDelta(t, 8.3, conflict.Nearby[0].DistanceMeters, 0.1)

	_, err = svc.SubmitReport(ctx, models.Candidate{Latitude: 41.87855, Longitude: -87.6298}, 0)
	require.NoError(t, err)

	assert.Len(t, pub.published, 2)
	assert.Equal(t, 2, n.calls)
}

func TestSubmitReportCustomRadius(t *testing.T) {
	svc, _, _ := newTestService(database.NewMemoryStore())
	ctx := context.Background()
	_, err := svc.SubmitReport(ctx, models.Candidate{Latitude: 41.8781, Longitude: -87.6298}, 0)
	require.NoError(t, err)

	// ~50 m away passes the default radius but not a 100 m one.
	_, err = svc.SubmitReport(ctx, models.Candidate{Latitude: 41.87855, Longitude: -87.6298}, 100)
	var conflict *guard.ConflictError
	assert.True(t, errors.As(err, &conflict))
}

func TestSubmitReportInvalid(t *testing.T) {
	svc, pub, _ := newTestService(database.NewMemoryStore())
	_, err := svc.SubmitReport(context.Background(), models.Candidate{Latitude: 41, Longitude: 181}, 0)
	assert.ErrorIs(t, err, models.ErrInvalidCoordinates)
	assert.Empty(t, pub.published)
}

func TestSubmitReportStoreUnavailable(t *testing.T) {
	svc, pub, n := newTestService(brokenStore{database.NewMemoryStore()})
	_, err := svc.SubmitReport(context.Background(), models.Candidate{Latitude: 1, Longitude: 1}, 0)
	assert.True(t, errors.Is(err, guard.ErrStoreUnavailable))
	var conflict *guard.ConflictError
	assert.False(t, errors.As(err, &conflict))
	assert.Empty(t, pub.published)
	assert.Zero(t, n.calls)
}

func TestSubmitReportPublishFailureIsNotFatal(t *testing.T) {
	svc, pub, _ := newTestService(database.NewMemoryStore())
	pub.err = errors.New("broker down")
	_, err := svc.SubmitReport(context.Background(), models.Candidate{Latitude: 1, Longitude: 1}, 0)
	assert.NoError(t, err)
}

func TestCheckDuplicates(t *testing.T) {
	svc, _, _ := newTestService(database.NewMemoryStore())
	ctx := context.Background()
	c := models.Coordinate{Lat: 41.8781, Lng: -87.6298}

	nearby, err := svc.CheckDuplicates(ctx, c, 0)
	require.NoError(t, err)
	assert.Empty(t, nearby)
	assert.NotNil(t, nearby)

	_, err = svc.SubmitReport(ctx, models.Candidate{Latitude: c.Lat, Longitude: c.Lng}, 0)
	require.NoError(t, err)
	nearby, err = svc.CheckDuplicates(ctx, models.Coordinate{Lat: 41.8781, Lng: -87.6299}, 0)
	require.NoError(t, err)
	assert.Len(t, nearby, 1)

	broken, _, _ := newTestService(brokenStore{database.NewMemoryStore()})
	_, err = broken.CheckDuplicates(ctx, c, 0)
	assert.ErrorIs(t, err, guard.ErrStoreUnavailable)
}

func TestAggregateChicagoEndToEnd(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	store := database.NewMemoryStore(database.WithClock(clock))
	svc, _, _ := newTestService(store)
	ctx := context.Background()

	candidates := []models.Candidate{
		{Latitude: 41.8781, Longitude: -87.6298},
		{Latitude: 41.8827, Longitude: -87.6233},
		{Latitude: 41.8675, Longitude: -87.6140},
	}
	confirmations := []int{1, 5, 0}
	for i, c := range candidates {
		r, err := svc.SubmitReport(ctx, c, 0)
		require.NoError(t, err)
		for k := 0; k < confirmations[i]; k++ {
			_, err := svc.Confirm(ctx, r.ID)
			require.NoError(t, err)
		}
		clock.Advance(time.Second)
	}

	res, err := svc.Aggregate(ctx, models.ViewportState{
		Zoom:   9,
		Bounds: &models.Bounds{South: 41.5, West: -88.2, North: 42.2, East: -87.2},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ModeHeatmap, res.Mode)
	require.Len(t, res.Samples, 3)
	assert.Equal(t, 0.5, res.Samples[0].Weight)
	assert.Equal(t, 1.0, res.Samples[1].Weight)
	assert.Equal(t, 0.5, res.Samples[2].Weight)
}

func TestAggregatePadsBounds(t *testing.T) {
	store := database.NewMemoryStore()
	svc, _, _ := newTestService(store)
	ctx := context.Background()
	_, err := svc.SubmitReport(ctx, models.Candidate{Latitude: 10.4, Longitude: 20.4}, 0)
	require.NoError(t, err)

	// The report is outside the view but inside the padded rectangle.
	res, err := svc.Aggregate(ctx, models.ViewportState{Zoom: 16, Bounds: &models.Bounds{South: 10, West: 20, North: 10.3, East: 20.3}})
	require.NoError(t, err)
	assert.Equal(t, models.ModeMarkers, res.Mode)
	assert.Len(t, res.Markers, 1)

	_, err = svc.Aggregate(ctx, models.ViewportState{Zoom: 16, Bounds: &models.Bounds{South: 10, West: 20, North: 9, East: 20.3}})
	assert.ErrorIs(t, err, models.ErrInvalidCoordinates)
}

func TestAggregateStoreUnavailable(t *testing.T) {
	svc, _, _ := newTestService(brokenStore{database.NewMemoryStore()})
	_, err := svc.Aggregate(context.Background(), models.ViewportState{Zoom: 3})
	assert.ErrorIs(t, err, guard.ErrStoreUnavailable)
}

func TestMutations(t *testing.T) {
	svc, _, n := newTestService(database.NewMemoryStore())
	ctx := context.Background()
	r, err := svc.SubmitReport(ctx, models.Candidate{Latitude: 1, Longitude: 1}, 0)
	require.NoError(t, err)

	r, err = svc.UpdateStatus(ctx, r.ID, models.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, r.Status)

	r, err = svc.Confirm(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Confirmations)
	assert.Equal(t, 3, n.calls)

	_, err = svc.UpdateStatus(ctx, "missing", models.StatusFixed)
	assert.ErrorIs(t, err, ErrReportNotFound)
	assert.False(t, errors.Is(err, guard.ErrStoreUnavailable))

	broken, _, _ := newTestService(brokenStore{database.NewMemoryStore()})
	_, err = broken.Confirm(ctx, r.ID)
	assert.ErrorIs(t, err, guard.ErrStoreUnavailable)
}

func TestFindDuplicates(t *testing.T) {
	store := database.NewMemoryStore()
	require.NoError(t, store.Insert(models.Report{ID: "a", Latitude: 41.8781, Longitude: -87.6298}))
	require.NoError(t, store.Insert(models.Report{ID: "b", Latitude: 41.8781, Longitude: -87.6299}))
	svc, _, _ := newTestService(store)

	pairs, err := svc.FindDuplicates(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "a", pairs[0].FirstID)

	pairs, err = svc.FindDuplicates(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}
