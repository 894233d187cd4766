package models

import (
	"fmt"
	"strings"
)

// MaxRenderedFieldLength is the number of characters of the order id and
// customer name that make it onto a printed label.
const MaxRenderedFieldLength = 40

// Label describes one logical print job. A Label can only be obtained
// through NewLabel, so every Label in the program is valid.
type Label struct {
	orderID  string
	customer string
	boxCount int
}

// NewLabel trims and validates the raw fields collected by the UI
func NewLabel(orderID, customer string, boxCount int) (Label, error) {
	orderID = strings.TrimSpace(orderID)
	customer = strings.TrimSpace(customer)

	if orderID == "" {
		return Label{}, &ValidationError{Field: "order_id", Message: "order id is required"}
	}
	if customer == "" {
		return Label{}, &ValidationError{Field: "customer", Message: "customer name is required"}
	}
	if boxCount <= 0 {
		return Label{}, &ValidationError{
			Field:   "box_count",
			Message: fmt.Sprintf("box count must be a positive integer, got %d", boxCount),
		}
	}

	return Label{orderID: orderID, customer: customer, boxCount: boxCount}, nil
}

// OrderID returns the dedup key of the label
func (l Label) OrderID() string { return l.orderID }

// Customer returns the customer name
func (l Label) Customer() string { return l.customer }

// BoxCount returns the number of physical copies to produce
func (l Label) BoxCount() int { return l.boxCount }

// RenderedOrderID is the order id as it appears on paper
func (l Label) RenderedOrderID() string { return Truncate(l.orderID, MaxRenderedFieldLength) }

// RenderedCustomer is the customer name as it appears on paper
func (l Label) RenderedCustomer() string { return Truncate(l.customer, MaxRenderedFieldLength) }

// Copies expands the label into its print job: one copy per box, in
// increasing box index order.
func (l Label) Copies() []PrintCopy {
	copies := make([]PrintCopy, l.boxCount)
	for i := range copies {
		copies[i] = PrintCopy{Index: i + 1, Total: l.boxCount}
	}
	return copies
}

// PrintCopy identifies one physical unit of output within a job
type PrintCopy struct {
	Index int `json:"index"` // 1-based
	Total int `json:"total"`
}

// BoxLine is the zone 3 text of a PDF label
func (c PrintCopy) BoxLine() string {
	return fmt.Sprintf("BOX: #%d / %d", c.Index, c.Total)
}

// CopyPreview is the text content of one copy, as shown before printing
type CopyPreview struct {
	OrderID  string `json:"order_id"`
	Customer string `json:"customer"`
	Box      string `json:"box"`
}

// Preview lists the text of every copy without rendering anything
func (l Label) Preview() []CopyPreview {
	previews := make([]CopyPreview, 0, l.boxCount)
	for _, c := range l.Copies() {
		previews = append(previews, CopyPreview{
			OrderID:  l.RenderedOrderID(),
			Customer: l.RenderedCustomer(),
			Box:      c.BoxLine(),
		})
	}
	return previews
}

// Truncate cuts s to at most n characters (runes, not bytes)
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
