package common

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
)

// SetupLogging installs the process-wide apex/log handler. format is "json"
// or "text".
func SetupLogging(level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}
	switch format {
	case "json":
		log.SetHandler(json.New(os.Stderr))
	case "text":
		log.SetHandler(text.New(os.Stderr))
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	log.SetLevel(lvl)
	return nil
}

func LogResult(msgPrefix string, r sql.Result, e error, e1 bool) {
	if e != nil {
		log.Errorf("%s: query failed: %v", msgPrefix, e)
		return
	}
	rows, err := r.RowsAffected()
	if err != nil {
		log.Errorf("%s: failed to get status of db op: %v", msgPrefix, err)
		return
	}
	if e1 && rows != 1 {
		log.Warnf("%s: Expected to affect 1 row, affected %d", msgPrefix, rows)
	}
}
