package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"reportmap/geo"
	"reportmap/guard"
	"reportmap/models"
)

// MemoryStore is a process-local store for development and tests. One mutex
// covers the duplicate check and the insert.
type MemoryStore struct {
	mu      sync.RWMutex
	reports []models.Report
	byID    map[string]int
	opts    options
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]int),
		opts: buildOptions(opts),
	}
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

func (m *MemoryStore) FindWithinRadius(ctx context.Context, lat, lng, radiusMeters float64) ([]models.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := models.Coordinate{Lat: lat, Lng: lng}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.within(c, radiusMeters), nil
}

func (m *MemoryStore) within(c models.Coordinate, radiusMeters float64) []models.Report {
	box := geo.BoundingBox(c, radiusMeters)
	var res []models.Report
	for _, r := range m.reports {
		if box.Contains(r.Coordinate()) && geo.DistanceMeters(c, r.Coordinate()) <= radiusMeters {
			res = append(res, r)
		}
	}
	return res
}

func (m *MemoryStore) InsertIfNoneWithin(ctx context.Context, candidate models.Candidate, radiusMeters float64) (models.Report, error) {
	if err := ctx.Err(); err != nil {
		return models.Report{}, guard.Unavailable(err)
	}
	c := candidate.Coordinate()
	if err := c.Validate(); err != nil {
		return models.Report{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := guard.Check(c, m.within(c, radiusMeters), radiusMeters); err != nil {
		return models.Report{}, err
	}
	r := models.Report{
		ID:          m.opts.newID(),
		Latitude:    candidate.Latitude,
		Longitude:   candidate.Longitude,
		Status:      models.StatusReported,
		Description: candidate.Description,
		CreatedAt:   m.opts.clock.Now().UTC().Truncate(time.Microsecond),
	}
	m.add(r)
	return r, nil
}

// Insert stores a report without the duplicate check. It backs imports of
// already-admitted reports.
func (m *MemoryStore) Insert(r models.Report) error {
	if err := r.Coordinate().Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[r.ID]; ok {
		return fmt.Errorf("report %s already exists", r.ID)
	}
	m.add(r)
	return nil
}

func (m *MemoryStore) add(r models.Report) {
	m.byID[r.ID] = len(m.reports)
	m.reports = append(m.reports, r)
}

func (m *MemoryStore) Snapshot(ctx context.Context, bounds *models.Bounds) ([]models.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	res := make([]models.Report, 0, len(m.reports))
	for _, r := range m.reports {
		if bounds == nil || bounds.Contains(r.Coordinate()) {
			res = append(res, r)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.Before(res[j].CreatedAt)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (models.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byID[id]
	if !ok {
		return models.Report{}, fmt.Errorf("%w: %s", models.ErrReportNotFound, id)
	}
	return m.reports[i], nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id string, status models.Status) (models.Report, error) {
	return m.update(id, func(r *models.Report) { r.Status = status })
}

func (m *MemoryStore) Confirm(_ context.Context, id string) (models.Report, error) {
	return m.update(id, func(r *models.Report) { r.Confirmations++ })
}

func (m *MemoryStore) update(id string, f func(*models.Report)) (models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.byID[id]
	if !ok {
		return models.Report{}, fmt.Errorf("%w: %s", models.ErrReportNotFound, id)
	}
	f(&m.reports[i])
	return m.reports[i], nil
}
