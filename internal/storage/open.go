package storage

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"routined/internal/routine"
	logx "routined/pkg/logx"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "memory", "mem":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// prepareInsert validates r and fills in a fresh ID when missing.
func prepareInsert(r routine.Routine) (routine.Routine, error) {
	if strings.TrimSpace(r.ID) == "" {
		r.ID = uuid.NewString()
	}
	if err := r.Validate(); err != nil {
		return routine.Routine{}, err
	}
	return r, nil
}

func within(d, first, last routine.Date) bool {
	return !d.Before(first) && !d.After(last)
}
