package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the ISO-8601 local-clock layout stored in history entries
const TimestampLayout = "2006-01-02T15:04:05.000000"

// HistoryEntry records one fully successful print run. Entries are
// appended once and never modified.
type HistoryEntry struct {
	OrderID   string `json:"order_id"`
	Customer  string `json:"customer"`
	BoxQty    int    `json:"box_qty"`
	Timestamp string `json:"timestamp"`
}

// NewHistoryEntry stamps a label with the local time of the write
func NewHistoryEntry(label Label, now time.Time) HistoryEntry {
	return HistoryEntry{
		OrderID:   label.OrderID(),
		Customer:  label.Customer(),
		BoxQty:    label.BoxCount(),
		Timestamp: now.Format(TimestampLayout),
	}
}

// UnmarshalJSON accepts order ids and customers written as numbers by
// older tools and coerces them to strings.
func (e *HistoryEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		OrderID   json.RawMessage `json:"order_id"`
		Customer  json.RawMessage `json:"customer"`
		BoxQty    json.Number     `json:"box_qty"`
		Timestamp string          `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	orderID, err := coerceString(raw.OrderID)
	if err != nil {
		return fmt.Errorf("order_id: %w", err)
	}
	customer, err := coerceString(raw.Customer)
	if err != nil {
		return fmt.Errorf("customer: %w", err)
	}

	var qty int64
	if raw.BoxQty != "" {
		if qty, err = raw.BoxQty.Int64(); err != nil {
			return fmt.Errorf("box_qty: %w", err)
		}
	}

	*e = HistoryEntry{
		OrderID:   orderID,
		Customer:  customer,
		BoxQty:    int(qty),
		Timestamp: raw.Timestamp,
	}
	return nil
}

func coerceString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return strings.TrimSpace(n.String()), nil
}

// HistoryRow is an entry enriched for history listings
type HistoryRow struct {
	HistoryEntry
	PrintCount int  `json:"print_count"`
	Duplicate  bool `json:"duplicate"`
}
