package database

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// dialect holds what differs between the SQL backends.
type dialect struct {
	name      string
	schema    []string
	txOptions *sql.TxOptions
	// lockClause is appended to the bounding-box read inside the insert
	// transaction.
	lockClause string
	retryable  func(error) bool
}

var mysqlDialect = dialect{
	name: "mysql",
	schema: []string{`
	CREATE TABLE IF NOT EXISTS map_reports(
		seq INT NOT NULL AUTO_INCREMENT,
		id CHAR(36) NOT NULL,
		latitude DOUBLE NOT NULL,
		longitude DOUBLE NOT NULL,
		status VARCHAR(32) NOT NULL DEFAULT 'reported',
		confirmations INT NOT NULL DEFAULT 0,
		description VARCHAR(255) NOT NULL DEFAULT '',
		created_at TIMESTAMP(6) NOT NULL,
		PRIMARY KEY (seq),
		UNIQUE INDEX id_index (id),
		INDEX lat_lng_index (latitude, longitude)
	)`},
	// Under SERIALIZABLE the locking read takes next-key locks on the box, so
	// a concurrent insert into the same box blocks or deadlocks.
	txOptions:  &sql.TxOptions{Isolation: sql.LevelSerializable},
	lockClause: " FOR UPDATE",
	retryable:  mysqlRetryable,
}

// The sqlite DSN sets _txlock=immediate, so the write lock is taken at BEGIN
// and the whole insert transaction is serialized.
var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{`
	CREATE TABLE IF NOT EXISTS map_reports(
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		status TEXT NOT NULL DEFAULT 'reported',
		confirmations INTEGER NOT NULL DEFAULT 0,
		description TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`,
		`CREATE INDEX IF NOT EXISTS map_reports_lat_lng ON map_reports(latitude, longitude)`,
	},
	retryable: sqliteRetryable,
}

func mysqlRetryable(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	return me.Number == mysqlErrDeadlock || me.Number == mysqlErrLockWaitTimeout
}

func sqliteRetryable(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code() & 0xff
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}
