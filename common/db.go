package common

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"reportmap/config"

	"github.com/apex/log"
	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

const maxPingInterval = 30 * time.Second

// DBConnect opens the MySQL pool and waits for the server to answer a ping,
// backing off exponentially until cfg.DBPingMaxWait has passed.
func DBConnect(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.MySQLDSN())
	if err != nil {
		log.Errorf("Failed to connect to the database: %v", err)
		return nil, err
	}

	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
	if cfg.DBConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	}

	if err := waitForPing(ctx, db, cfg.DBPingMaxWait); err != nil {
		db.Close()
		return nil, err
	}

	log.Infof("Established db connection pool: open=%d idle=%d max_lifetime=%v", cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime)
	return db, nil
}

// SQLiteDSN makes every transaction take the write lock at BEGIN and wait
// for a busy lock instead of failing immediately.
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
}

// SQLiteConnect opens a single-file store for local runs and tests.
func SQLiteConnect(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", SQLiteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	log.Infof("Opened sqlite store at %s", path)
	return db, nil
}

func waitForPing(ctx context.Context, db *sql.DB, maxWait time.Duration) error {
	deadline := time.Now().Add(maxWait)
	waitInterval := time.Second
	for {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		pingErr := db.PingContext(pingCtx)
		cancel()
		if pingErr == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("database ping timeout after %v: %w", maxWait, pingErr)
		}
		log.Warnf("Database connection failed, retrying in %v: %v", waitInterval, pingErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitInterval):
		}
		waitInterval *= 2
		if waitInterval > maxPingInterval {
			waitInterval = maxPingInterval
		}
	}
}
