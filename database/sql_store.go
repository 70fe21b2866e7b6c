package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"reportmap/common"
	"reportmap/geo"
	"reportmap/guard"
	"reportmap/models"

	"github.com/apex/log"
)

const reportColumns = "id, latitude, longitude, status, confirmations, description, created_at"

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLStore keeps reports in the map_reports table of MySQL or SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	opts    options
}

func NewMySQLStore(db *sql.DB, opts ...Option) *SQLStore {
	return &SQLStore{db: db, dialect: mysqlDialect, opts: buildOptions(opts)}
}

// NewSQLiteStore expects a handle opened with common.SQLiteDSN.
func NewSQLiteStore(db *sql.DB, opts ...Option) *SQLStore {
	return &SQLStore{db: db, dialect: sqliteDialect, opts: buildOptions(opts)}
}

// InitSchema creates the map_reports table if it does not exist.
func (s *SQLStore) InitSchema(ctx context.Context) error {
	log.Infof("Initializing %s report schema...", s.dialect.name)
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create map_reports schema: %w", err)
		}
	}
	log.Info("map_reports table created/verified")
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// FindWithinRadius returns the stored reports within radiusMeters of the
// point. The bounding box narrows the query; the distance check is exact.
func (s *SQLStore) FindWithinRadius(ctx context.Context, lat, lng, radiusMeters float64) ([]models.Report, error) {
	c := models.Coordinate{Lat: lat, Lng: lng}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	found, err := s.queryBox(ctx, s.db, c, radiusMeters, "")
	if err != nil {
		return nil, err
	}
	res := make([]models.Report, 0, len(found))
	for _, r := range found {
		if r.Coordinate().Validate() == nil && geo.DistanceMeters(c, r.Coordinate()) <= radiusMeters {
			res = append(res, r)
		}
	}
	return res, nil
}

// InsertIfNoneWithin admits the candidate only if no stored report lies
// within radiusMeters, checking and inserting in one transaction. Aborted
// transactions are retried; a conflict is returned as *guard.ConflictError
// and any other failure wraps guard.ErrStoreUnavailable.
func (s *SQLStore) InsertIfNoneWithin(ctx context.Context, candidate models.Candidate, radiusMeters float64) (models.Report, error) {
	if err := candidate.Coordinate().Validate(); err != nil {
		return models.Report{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= s.opts.maxAttempts; attempt++ {
		r, err := s.insertOnce(ctx, candidate, radiusMeters)
		if err == nil {
			return r, nil
		}
		var conflict *guard.ConflictError
		if errors.As(err, &conflict) {
			return models.Report{}, err
		}
		if !s.dialect.retryable(err) {
			return models.Report{}, guard.Unavailable(err)
		}
		lastErr = err
		log.WithError(err).WithField("attempt", attempt).Warn("insert transaction aborted, retrying")
		select {
		case <-ctx.Done():
			return models.Report{}, guard.Unavailable(ctx.Err())
		case <-time.After(time.Duration(attempt) * s.opts.retryBackoff):
		}
	}
	return models.Report{}, guard.Unavailable(fmt.Errorf("insert gave up after %d attempts: %w", s.opts.maxAttempts, lastErr))
}

func (s *SQLStore) insertOnce(ctx context.Context, candidate models.Candidate, radiusMeters float64) (models.Report, error) {
	tx, err := s.db.BeginTx(ctx, s.dialect.txOptions)
	if err != nil {
		return models.Report{}, fmt.Errorf("begin insert transaction: %w", err)
	}
	defer tx.Rollback()

	c := candidate.Coordinate()
	found, err := s.queryBox(ctx, tx, c, radiusMeters, s.dialect.lockClause)
	if err != nil {
		return models.Report{}, err
	}
	if err := guard.Check(c, found, radiusMeters); err != nil {
		return models.Report{}, err
	}

	r := models.Report{
		ID:          s.opts.newID(),
		Latitude:    candidate.Latitude,
		Longitude:   candidate.Longitude,
		Status:      models.StatusReported,
		Description: candidate.Description,
		CreatedAt:   s.opts.clock.Now().UTC().Truncate(time.Microsecond),
	}
	if err := insertReport(ctx, tx, r); err != nil {
		return models.Report{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Report{}, fmt.Errorf("commit insert transaction: %w", err)
	}
	return r, nil
}

func insertReport(ctx context.Context, ex execer, r models.Report) error {
	result, err := ex.ExecContext(ctx, `INSERT
	  INTO map_reports (`+reportColumns+`)
	  VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Latitude, r.Longitude, string(r.Status), r.Confirmations, r.Description, r.CreatedAt)
	common.LogResult("insertReport", result, err, true)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *SQLStore) queryBox(ctx context.Context, q queryer, c models.Coordinate, radiusMeters float64, lockClause string) ([]models.Report, error) {
	where, args := boxFilter(geo.BoundingBox(c, radiusMeters))
	rows, err := q.QueryContext(ctx, `SELECT `+reportColumns+`
	  FROM map_reports
	  WHERE `+where+`
	  ORDER BY seq`+lockClause, args...)
	if err != nil {
		return nil, fmt.Errorf("query reports near (%v, %v): %w", c.Lat, c.Lng, err)
	}
	defer rows.Close()
	return scanReports(rows)
}

func boxFilter(box geo.Box) (string, []any) {
	where := "latitude BETWEEN ? AND ?"
	args := []any{box.MinLat, box.MaxLat}
	if len(box.Lng) == 1 && box.Lng[0] == [2]float64{-180, 180} {
		return where, args
	}
	parts := make([]string, len(box.Lng))
	for i, r := range box.Lng {
		parts[i] = "longitude BETWEEN ? AND ?"
		args = append(args, r[0], r[1])
	}
	return where + " AND (" + strings.Join(parts, " OR ") + ")", args
}

// Snapshot returns the reports inside bounds, or all reports when bounds is
// nil, ordered by creation time.
func (s *SQLStore) Snapshot(ctx context.Context, bounds *models.Bounds) ([]models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM map_reports`
	var args []any
	if bounds != nil {
		query += ` WHERE latitude BETWEEN ? AND ?`
		args = append(args, bounds.South, bounds.North)
		if bounds.CrossesAntimeridian() {
			query += ` AND (longitude >= ? OR longitude <= ?)`
		} else {
			query += ` AND longitude BETWEEN ? AND ?`
		}
		args = append(args, bounds.West, bounds.East)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query report snapshot: %w", err)
	}
	defer rows.Close()
	return scanReports(rows)
}

func (s *SQLStore) Get(ctx context.Context, id string) (models.Report, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+reportColumns+` FROM map_reports WHERE id = ?`, id)
	if err != nil {
		return models.Report{}, fmt.Errorf("query report %s: %w", id, err)
	}
	defer rows.Close()
	reports, err := scanReports(rows)
	if err != nil {
		return models.Report{}, err
	}
	if len(reports) == 0 {
		return models.Report{}, fmt.Errorf("%w: %s", models.ErrReportNotFound, id)
	}
	return reports[0], nil
}

func (s *SQLStore) UpdateStatus(ctx context.Context, id string, status models.Status) (models.Report, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE map_reports SET status = ? WHERE id = ?`, string(status), id)
	common.LogResult("updateReportStatus", result, err, false)
	if err := affectedOne(result, err, id); err != nil {
		return models.Report{}, err
	}
	return s.Get(ctx, id)
}

func (s *SQLStore) Confirm(ctx context.Context, id string) (models.Report, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE map_reports SET confirmations = confirmations + 1 WHERE id = ?`, id)
	common.LogResult("confirmReport", result, err, false)
	if err := affectedOne(result, err, id); err != nil {
		return models.Report{}, err
	}
	return s.Get(ctx, id)
}

func affectedOne(result sql.Result, err error, id string) error {
	if err != nil {
		return fmt.Errorf("update report %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update report %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", models.ErrReportNotFound, id)
	}
	return nil
}

func scanReports(rows *sql.Rows) ([]models.Report, error) {
	reports := make([]models.Report, 0, 16)
	for rows.Next() {
		var (
			r      models.Report
			status string
		)
		if err := rows.Scan(&r.ID, &r.Latitude, &r.Longitude, &status, &r.Confirmations, &r.Description, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		r.Status = normalizeStatus(r.ID, status)
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report rows: %w", err)
	}
	return reports, nil
}

// normalizeStatus maps stored spellings onto the canonical statuses. An
// unknown value keeps the report visible as reported.
func normalizeStatus(id, raw string) models.Status {
	st, err := models.ParseStatus(raw)
	if err != nil {
		log.WithError(err).WithField("report_id", id).Warn("unknown stored status, treating as reported")
	}
	return st
}
