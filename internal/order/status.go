package order

import (
	"fmt"
	"strings"

	"github.com/noah-isme/toko-sales/internal/db"
)

// Status is the lifecycle state of an order.
type Status uint8

const (
	StatusCreated Status = iota + 1
	StatusPaid
	StatusCancelled
)

// ParseStatus accepts the stored or display form of a status, case-insensitively.
func ParseStatus(value string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "created":
		return StatusCreated, nil
	case "paid":
		return StatusPaid, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	}
	return 0, fmt.Errorf("unknown order status %q", value)
}

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusPaid:
		return "paid"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Editable reports whether items, promotions or customer may still change.
func (s Status) Editable() bool {
	switch s {
	case StatusCreated:
		return true
	case StatusPaid, StatusCancelled:
		return false
	}
	return false
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusCreated:
		return to == StatusPaid || to == StatusCancelled
	case StatusPaid, StatusCancelled:
		return false
	}
	return false
}

func (s Status) column() db.OrderStatus {
	return db.OrderStatus(s.String())
}

func statusFromColumn(v db.OrderStatus) Status {
	s, err := ParseStatus(string(v))
	if err != nil {
		return 0
	}
	return s
}

// MarshalText renders the status in its stored form.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status from JSON strings.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
