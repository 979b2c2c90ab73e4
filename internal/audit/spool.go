package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/galatea-associates/locate-fee-engine/internal/domain"
)

// Spool is a bounded, append-only local disk queue for audit records that
// could not be written to the database. It supplements the distilled spec:
// the original Python services/audit/transactions.py and
// services/audit/logger.py both retry-and-spool failed audit writes rather
// than drop them; a single write attempt here, followed by a spool append,
// keeps the caller-facing contract (never block or corrupt the response)
// while also not silently losing a compliance record.
type Spool struct {
	mu       sync.Mutex
	path     string
	maxLines int
}

// NewSpool opens (creating if necessary) a spool file at path, bounded to
// maxLines records — once full, Write refuses new entries rather than
// growing the file without limit; the caller's metrics/alarms are expected
// to page someone before that happens in practice.
func NewSpool(path string, maxLines int) (*Spool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open spool file: %w", err)
	}
	f.Close()
	return &Spool{path: path, maxLines: maxLines}, nil
}

// Write appends one record as a JSON line.
func (s *Spool) Write(rec domain.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if full, err := s.isFull(); err != nil {
		return err
	} else if full {
		return fmt.Errorf("spool is full (%d records), refusing new writes", s.maxLines)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open spool for append: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal spooled record: %w", err)
	}

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write spooled record: %w", err)
	}
	return nil
}

func (s *Spool) isFull() (bool, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return false, fmt.Errorf("open spool for count: %w", err)
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		count++
	}
	return count >= s.maxLines, scanner.Err()
}

// Drain reads and removes every spooled record, for replay against the
// database once it recovers. The caller is responsible for re-attempting
// persistence of each returned record.
func (s *Spool) Drain() ([]domain.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open spool for drain: %w", err)
	}

	var records []domain.AuditRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec domain.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			f.Close()
			return nil, fmt.Errorf("unmarshal spooled record: %w", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		f.Close()
		return nil, err
	}
	f.Close()

	if err := os.Truncate(s.path, 0); err != nil {
		return nil, fmt.Errorf("truncate spool after drain: %w", err)
	}
	return records, nil
}

// Len reports the number of currently spooled records.
func (s *Spool) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		count++
	}
	return count, scanner.Err()
}
