package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"routined/internal/routine"
	logx "routined/pkg/logx"
)

// fileStore is a dependency-free persistence backend on top of MemoryStore.
//
// Files:
//   - <prefix>.snapshot.json (periodic snapshot of the whole state)
//   - <prefix>.journal.jsonl (append-only journal of mutations since the snapshot)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	*MemoryStore
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File
	writes       int
	compactEvery int
}

type journalOp string

const (
	opPutRoutine    journalOp = "put_routine"
	opDeleteRoutine journalOp = "delete_routine"
	opCheck         journalOp = "check"
	opReplaceMonth  journalOp = "replace_month"
)

type journalRecord struct {
	Op        journalOp               `json:"op"`
	Routine   *routine.Record         `json:"routine,omitempty"`
	ID        string                  `json:"id,omitempty"`
	Date      routine.Date            `json:"date,omitempty"`
	Done      bool                    `json:"done,omitempty"`
	Year      int                     `json:"year,omitempty"`
	Month     time.Month              `json:"month,omitempty"`
	Holidays  []routine.HolidayRecord `json:"holidays,omitempty"`
	FetchedAt int64                   `json:"fetched_at,omitempty"` // unix milli
}

type snapshot struct {
	Routines []routine.Record         `json:"routines"`
	Checks   []routine.CompletionMark `json:"checks"`
	Holidays []routine.HolidayRecord  `json:"holidays"`
	Entries  []snapshotEntry          `json:"entries"`
}

type snapshotEntry struct {
	Year      int        `json:"year"`
	Month     time.Month `json:"month"`
	FetchedAt int64      `json:"fetched_at"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		MemoryStore:  NewMemory(),
		log:          log,
		snapshotPath: prefix + ".snapshot.json",
		compactEvery: 500,
	}
	journalPath := prefix + ".journal.jsonl"

	if err := s.loadSnapshot(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("snapshot unreadable, starting from journal", logx.Err(err))
	}
	if err := s.replay(journalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("journal replay incomplete", logx.Err(err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.journal = jf
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.MemoryStore.Close()
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

func (s *fileStore) InsertRoutine(ctx context.Context, r routine.Routine) (routine.Routine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, err := s.MemoryStore.InsertRoutine(ctx, r)
	if err != nil {
		return routine.Routine{}, err
	}
	rec := routine.ToRecord(out)
	return out, s.appendLocked(journalRecord{Op: opPutRoutine, Routine: &rec})
}

func (s *fileStore) DeleteRoutine(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.MemoryStore.DeleteRoutine(ctx, id); err != nil {
		return err
	}
	return s.appendLocked(journalRecord{Op: opDeleteRoutine, ID: id})
}

func (s *fileStore) SetChecked(ctx context.Context, routineID string, d routine.Date, done bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.MemoryStore.SetChecked(ctx, routineID, d, done); err != nil {
		return err
	}
	return s.appendLocked(journalRecord{Op: opCheck, ID: routineID, Date: d, Done: done})
}

func (s *fileStore) ReplaceMonth(ctx context.Context, year int, month time.Month, recs []routine.HolidayRecord, fetchedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.MemoryStore.ReplaceMonth(ctx, year, month, recs, fetchedAt); err != nil {
		return err
	}
	return s.appendLocked(journalRecord{
		Op: opReplaceMonth, Year: year, Month: month, Holidays: recs, FetchedAt: fetchedAt.UnixMilli(),
	})
}

func (s *fileStore) appendLocked(rec journalRecord) error {
	if s.journal == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.journal).Encode(rec); err != nil {
		return err
	}
	s.writes++
	if s.writes%s.compactEvery == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	snap := s.export()

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func (s *fileStore) export() snapshot {
	m := s.MemoryStore
	m.mu.RLock()
	defer m.mu.RUnlock()

	var snap snapshot
	for _, id := range m.order {
		snap.Routines = append(snap.Routines, routine.ToRecord(m.routines[id]))
	}
	for k, done := range m.checks {
		snap.Checks = append(snap.Checks, routine.CompletionMark{RoutineID: k.RoutineID, Date: k.Date, Done: done})
	}
	sortMarks(snap.Checks)
	for _, rec := range m.holidays {
		snap.Holidays = append(snap.Holidays, rec)
	}
	for k, at := range m.entries {
		snap.Entries = append(snap.Entries, snapshotEntry{Year: k.Year, Month: k.Month, FetchedAt: at.UnixMilli()})
	}
	return snap
}

func (s *fileStore) loadSnapshot() error {
	f, err := os.Open(s.snapshotPath)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}

	m := s.MemoryStore
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range snap.Routines {
		r, err := routine.FromRecord(rec)
		if err != nil {
			s.log.Warn("skipping invalid routine in snapshot", logx.String("id", rec.ID), logx.Err(err))
			continue
		}
		m.putLocked(r)
	}
	for _, c := range snap.Checks {
		m.checks[checkKey{RoutineID: c.RoutineID, Date: c.Date}] = c.Done
	}
	for _, h := range snap.Holidays {
		m.holidays[h.Date] = h
	}
	for _, e := range snap.Entries {
		m.entries[monthKey{Year: e.Year, Month: e.Month}] = time.UnixMilli(e.FetchedAt)
	}
	return nil
}

func (s *fileStore) replay(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	m := s.MemoryStore
	m.mu.Lock()
	defer m.mu.Unlock()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var rec journalRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		switch rec.Op {
		case opPutRoutine:
			if rec.Routine == nil {
				continue
			}
			r, err := routine.FromRecord(*rec.Routine)
			if err != nil {
				continue
			}
			m.putLocked(r)
		case opDeleteRoutine:
			m.deleteLocked(rec.ID)
		case opCheck:
			m.checks[checkKey{RoutineID: rec.ID, Date: rec.Date}] = rec.Done
		case opReplaceMonth:
			m.replaceMonthLocked(rec.Year, rec.Month, rec.Holidays, time.UnixMilli(rec.FetchedAt))
		}
	}
	return sc.Err()
}
