package database

import (
	"fmt"
	"os"
	"path/filepath"

	"LabelPrinter/app/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// HistoryRecord is one row of the print history table. Seq preserves
// append order.
type HistoryRecord struct {
	Seq       uint   `gorm:"primaryKey;autoIncrement"`
	OrderID   string `gorm:"index;not null"`
	Customer  string `gorm:"not null"`
	BoxQty    int    `gorm:"not null"`
	Timestamp string `gorm:"not null"`
}

// TableName keeps the table name stable across struct renames
func (HistoryRecord) TableName() string {
	return "print_history"
}

// HistoryDB stores the print history in a local SQLite database
type HistoryDB struct {
	db     *gorm.DB
	dbPath string
}

// OpenHistoryDB opens (creating if needed) the SQLite history at dbPath
func OpenHistoryDB(dbPath string) (*HistoryDB, error) {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open SQLite connection (CGO-free driver)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// One connection serializes writers on the same file
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access history database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&HistoryRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}

	return &HistoryDB{db: db, dbPath: dbPath}, nil
}

// Load returns every entry in append order
func (h *HistoryDB) Load() ([]models.HistoryEntry, error) {
	var records []HistoryRecord
	if err := h.db.Order("seq ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	entries := make([]models.HistoryEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, models.HistoryEntry{
			OrderID:   r.OrderID,
			Customer:  r.Customer,
			BoxQty:    r.BoxQty,
			Timestamp: r.Timestamp,
		})
	}
	return entries, nil
}

// Append inserts entry as the newest row
func (h *HistoryDB) Append(entry models.HistoryEntry) error {
	record := HistoryRecord{
		OrderID:   entry.OrderID,
		Customer:  entry.Customer,
		BoxQty:    entry.BoxQty,
		Timestamp: entry.Timestamp,
	}
	if err := h.db.Create(&record).Error; err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// Path returns the database file location
func (h *HistoryDB) Path() string {
	return h.dbPath
}

// Close closes the database connection
func (h *HistoryDB) Close() error {
	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}
