// Package service runs the report submission flow and serves map snapshots
// and aggregates on top of a report store.
package service

import (
	"context"
	"errors"
	"time"

	"reportmap/guard"
	"reportmap/map_aggr"
	"reportmap/metrics"
	"reportmap/models"

	"github.com/apex/log"
)

var ErrReportNotFound = models.ErrReportNotFound

// Store is the report store the service consumes.
type Store interface {
	guard.Finder
	InsertIfNoneWithin(ctx context.Context, candidate models.Candidate, radiusMeters float64) (models.Report, error)
	Snapshot(ctx context.Context, bounds *models.Bounds) ([]models.Report, error)
	Get(ctx context.Context, id string) (models.Report, error)
	UpdateStatus(ctx context.Context, id string, status models.Status) (models.Report, error)
	Confirm(ctx context.Context, id string) (models.Report, error)
	Ping(ctx context.Context) error
}

// Publisher fans admitted reports out to other services.
type Publisher interface {
	PublishReport(r models.Report) error
}

// Notifier is told whenever the set of reports changed.
type Notifier interface {
	ReportsChanged()
}

type Options struct {
	RadiusMeters float64
	StoreTimeout time.Duration
	Publisher    Publisher
	Notifier     Notifier
}

type ReportService struct {
	store      Store
	dispatcher *map_aggr.Dispatcher
	radius     float64
	timeout    time.Duration
	publisher  Publisher
	notifier   Notifier
}

func NewReportService(store Store, dispatcher *map_aggr.Dispatcher, opts Options) *ReportService {
	s := &ReportService{
		store:      store,
		dispatcher: dispatcher,
		radius:     opts.RadiusMeters,
		timeout:    opts.StoreTimeout,
		publisher:  opts.Publisher,
		notifier:   opts.Notifier,
	}
	if s.radius <= 0 {
		s.radius = guard.DefaultRadiusMeters
	}
	if s.timeout <= 0 {
		s.timeout = 5 * time.Second
	}
	if s.dispatcher == nil {
		s.dispatcher = map_aggr.NewDispatcher()
	}
	return s
}

// SetNotifier attaches the change notifier after construction; the live map
// hub needs the service before it exists.
func (s *ReportService) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *ReportService) RadiusMeters() float64 {
	return s.radius
}

// storeCall bounds one store call by the store timeout and records its
// duration.
func storeCall[T any](ctx context.Context, s *ReportService, op string, f func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	v, err := f(ctx)
	metrics.StoreDurationSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
	return v, err
}

func (s *ReportService) radiusOrDefault(radiusMeters float64) float64 {
	if radiusMeters <= 0 {
		return s.radius
	}
	return radiusMeters
}

// SubmitReport admits candidate unless a stored report lies within
// radiusMeters (the configured radius when zero). A conflict is returned as
// *guard.ConflictError; a store failure wraps guard.ErrStoreUnavailable.
func (s *ReportService) SubmitReport(ctx context.Context, candidate models.Candidate, radiusMeters float64) (models.Report, error) {
	if err := candidate.Coordinate().Validate(); err != nil {
		metrics.SubmissionsTotal.WithLabelValues("invalid").Inc()
		return models.Report{}, err
	}
	radius := s.radiusOrDefault(radiusMeters)

	r, err := storeCall(ctx, s, "insert", func(ctx context.Context) (models.Report, error) {
		return s.store.InsertIfNoneWithin(ctx, candidate, radius)
	})
	if err != nil {
		var conflict *guard.ConflictError
		switch {
		case errors.As(err, &conflict):
			metrics.SubmissionsTotal.WithLabelValues("conflict").Inc()
			log.WithFields(log.Fields{
				"latitude":  candidate.Latitude,
				"longitude": candidate.Longitude,
				"nearby":    len(conflict.Nearby),
			}).Info("report rejected as duplicate")
		case errors.Is(err, models.ErrInvalidCoordinates):
			metrics.SubmissionsTotal.WithLabelValues("invalid").Inc()
		default:
			err = guard.Unavailable(err)
			metrics.SubmissionsTotal.WithLabelValues("unavailable").Inc()
			log.WithError(err).Error("report submission failed")
		}
		return models.Report{}, err
	}

	metrics.SubmissionsTotal.WithLabelValues("admitted").Inc()
	log.WithFields(log.Fields{"report_id": r.ID, "latitude": r.Latitude, "longitude": r.Longitude}).Info("report admitted")
	s.publish(r)
	s.changed()
	return r, nil
}

// CheckDuplicates previews the duplicate check without inserting. It is the
// single-writer path; SubmitReport re-checks atomically.
func (s *ReportService) CheckDuplicates(ctx context.Context, candidate models.Coordinate, radiusMeters float64) ([]guard.NearbyReport, error) {
	radius := s.radiusOrDefault(radiusMeters)
	nearby, err := storeCall(ctx, s, "find", func(ctx context.Context) ([]guard.NearbyReport, error) {
		err := guard.Admit(ctx, candidate, radius, s.store)
		var conflict *guard.ConflictError
		if errors.As(err, &conflict) {
			return conflict.Nearby, nil
		}
		return nil, err
	})
	if err != nil {
		return nil, err
	}
	if nearby == nil {
		nearby = []guard.NearbyReport{}
	}
	return nearby, nil
}

func (s *ReportService) Snapshot(ctx context.Context, bounds *models.Bounds) ([]models.Report, error) {
	if bounds != nil {
		if err := bounds.Validate(); err != nil {
			return nil, err
		}
	}
	reports, err := storeCall(ctx, s, "snapshot", func(ctx context.Context) ([]models.Report, error) {
		return s.store.Snapshot(ctx, bounds)
	})
	if err != nil {
		return nil, guard.Unavailable(err)
	}
	return reports, nil
}

// Aggregate reads the reports around the viewport, padded by half its size
// on each side, and aggregates them for the viewport zoom.
func (s *ReportService) Aggregate(ctx context.Context, viewport models.ViewportState) (models.AggregationResult, error) {
	var bounds *models.Bounds
	if viewport.Bounds != nil {
		if err := viewport.Bounds.Validate(); err != nil {
			return models.AggregationResult{}, err
		}
		padded := viewport.Bounds.Padded()
		bounds = &padded
	}
	reports, err := s.Snapshot(ctx, bounds)
	if err != nil {
		return models.AggregationResult{}, err
	}
	return s.AggregateReports(reports, viewport), nil
}

// AggregateReports runs the dispatcher and records what it returned.
func (s *ReportService) AggregateReports(reports []models.Report, viewport models.ViewportState) models.AggregationResult {
	start := time.Now()
	res := s.dispatcher.Aggregate(reports, viewport)
	mode := string(res.Mode)
	metrics.AggregationDurationSeconds.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	metrics.AggregationsTotal.WithLabelValues(mode).Inc()
	metrics.RejectedReportsTotal.Add(float64(len(res.Rejected)))
	if res.Degraded {
		metrics.DegradedAggregationsTotal.Inc()
	}
	return res
}

func (s *ReportService) UpdateStatus(ctx context.Context, id string, status models.Status) (models.Report, error) {
	r, err := storeCall(ctx, s, "update_status", func(ctx context.Context) (models.Report, error) {
		return s.store.UpdateStatus(ctx, id, status)
	})
	if err != nil {
		return models.Report{}, mutationError(err)
	}
	log.WithFields(log.Fields{"report_id": id, "status": status}).Info("report status updated")
	s.changed()
	return r, nil
}

func (s *ReportService) Confirm(ctx context.Context, id string) (models.Report, error) {
	r, err := storeCall(ctx, s, "confirm", func(ctx context.Context) (models.Report, error) {
		return s.store.Confirm(ctx, id)
	})
	if err != nil {
		return models.Report{}, mutationError(err)
	}
	s.changed()
	return r, nil
}

func mutationError(err error) error {
	if errors.Is(err, ErrReportNotFound) {
		return err
	}
	return guard.Unavailable(err)
}

// FindDuplicates reports stored pairs closer than radiusMeters. Such pairs
// can only come from writers that bypassed the atomic insert.
func (s *ReportService) FindDuplicates(ctx context.Context, radiusMeters float64) ([]guard.DuplicatePair, error) {
	reports, err := s.Snapshot(ctx, nil)
	if err != nil {
		return nil, err
	}
	pairs := guard.FindDuplicates(reports, s.radiusOrDefault(radiusMeters))
	if len(pairs) > 0 {
		log.WithField("pairs", len(pairs)).Warn("duplicate reports found")
	}
	if pairs == nil {
		pairs = []guard.DuplicatePair{}
	}
	return pairs, nil
}

func (s *ReportService) Ping(ctx context.Context) error {
	_, err := storeCall(ctx, s, "ping", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.Ping(ctx)
	})
	return err
}

func (s *ReportService) publish(r models.Report) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishReport(r); err != nil {
		metrics.PublishErrorsTotal.Inc()
		log.WithError(err).WithField("report_id", r.ID).Error("failed to publish report")
	}
}

func (s *ReportService) changed() {
	if s.notifier != nil {
		s.notifier.ReportsChanged()
	}
}
