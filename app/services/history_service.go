package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"LabelPrinter/app/models"

	"go.uber.org/zap"
)

// HistoryStore persists the ordered sequence of history entries
type HistoryStore interface {
	// Load returns every entry in append order. A store that does not
	// exist yet returns an empty sequence and no error.
	Load() ([]models.HistoryEntry, error)
	// Append adds entry after every existing entry
	Append(entry models.HistoryEntry) error
}

// HistoryLedger answers "was this order printed before?" from the durable
// print history. Every query reads the store; every failure degrades to an
// empty ledger (reads) or a log line (writes).
type HistoryLedger struct {
	store  HistoryStore
	logger *zap.Logger
	now    func() time.Time

	// appends are read-modify-write on the store
	writeMu sync.Mutex
}

// NewHistoryLedger creates a ledger over store
func NewHistoryLedger(store HistoryStore, logger *zap.Logger) *HistoryLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryLedger{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Load returns all entries in append order, or an empty sequence when the
// store cannot be read.
func (l *HistoryLedger) Load() []models.HistoryEntry {
	entries, err := l.store.Load()
	if err != nil {
		l.logger.Warn("history unreadable, treating as empty",
			zap.Error(&models.LedgerError{Op: "load", Cause: err}))
		return []models.HistoryEntry{}
	}
	if entries == nil {
		return []models.HistoryEntry{}
	}
	return entries
}

// Append writes entry at the end of the history. A failed write is logged
// and swallowed: the physical print already happened.
func (l *HistoryLedger) Append(entry models.HistoryEntry) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if err := l.store.Append(entry); err != nil {
		l.logger.Error("cannot save history",
			zap.String("order_id", entry.OrderID),
			zap.Error(&models.LedgerError{Op: "append", Cause: err}))
		return
	}
	l.logger.Debug("history entry appended",
		zap.String("order_id", entry.OrderID),
		zap.Int("box_qty", entry.BoxQty))
}

// Record appends the entry for a fully printed label, stamped now
func (l *HistoryLedger) Record(label models.Label) models.HistoryEntry {
	entry := models.NewHistoryEntry(label, l.now())
	l.Append(entry)
	return entry
}

// PrintCount returns how many entries carry orderID
func (l *HistoryLedger) PrintCount(orderID string) int {
	count := 0
	for _, e := range l.Load() {
		if e.OrderID == orderID {
			count++
		}
	}
	return count
}

// HasBeenPrinted reports whether orderID has at least one entry
func (l *HistoryLedger) HasBeenPrinted(orderID string) bool {
	return l.PrintCount(orderID) > 0
}

// Duplicates maps every order id printed more than once to its count
func (l *HistoryLedger) Duplicates() map[string]int {
	dupes := make(map[string]int)
	for id, n := range tally(l.Load()) {
		if n > 1 {
			dupes[id] = n
		}
	}
	return dupes
}

// View lists entries newest first, each flagged with its order's total
// print count.
func (l *HistoryLedger) View() []models.HistoryRow {
	entries := l.Load()
	counts := tally(entries)

	rows := make([]models.HistoryRow, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		rows = append(rows, models.HistoryRow{
			HistoryEntry: e,
			PrintCount:   counts[e.OrderID],
			Duplicate:    counts[e.OrderID] > 1,
		})
	}
	return rows
}

func tally(entries []models.HistoryEntry) map[string]int {
	counts := make(map[string]int)
	for _, e := range entries {
		counts[e.OrderID]++
	}
	return counts
}

// JSONFileStore keeps the history as a single JSON array document that is
// rewritten in full on every append.
type JSONFileStore struct {
	path string
}

// NewJSONFileStore creates a store backed by the document at path
func NewJSONFileStore(path string) *JSONFileStore {
	return &JSONFileStore{path: path}
}

// Path returns the location of the history document
func (s *JSONFileStore) Path() string {
	return s.path
}

// Load reads the whole document
func (s *JSONFileStore) Load() ([]models.HistoryEntry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []models.HistoryEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	var entries []models.HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	return entries, nil
}

// Append reads the document, adds entry and writes the document back. An
// unreadable document is replaced, as a corrupt history counts as empty.
func (s *JSONFileStore) Append(entry models.HistoryEntry) error {
	entries, err := s.Load()
	if err != nil {
		entries = []models.HistoryEntry{}
	}
	entries = append(entries, entry)
	return s.write(entries)
}

func (s *JSONFileStore) write(entries []models.HistoryEntry) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".print_history-*.json")
	if err != nil {
		return fmt.Errorf("create temp history file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp history file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp history file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}
