package promotion

import (
	"fmt"
	"strings"

	"github.com/noah-isme/toko-sales/internal/db"
)

// Scope names what a promotion is attached to.
type Scope uint8

const (
	ScopeProduct Scope = iota + 1
	ScopeCategory
	ScopeOrder
)

// ParseScope accepts the stored or display form of a scope, case-insensitively.
func ParseScope(value string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "product":
		return ScopeProduct, nil
	case "category":
		return ScopeCategory, nil
	case "order":
		return ScopeOrder, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidScope, value)
}

func (s Scope) String() string {
	switch s {
	case ScopeProduct:
		return "product"
	case ScopeCategory:
		return "category"
	case ScopeOrder:
		return "order"
	}
	return "unknown"
}

// Valid reports whether s is one of the declared scopes.
func (s Scope) Valid() bool {
	switch s {
	case ScopeProduct, ScopeCategory, ScopeOrder:
		return true
	}
	return false
}

func (s Scope) column() db.PromotionScope {
	return db.PromotionScope(s.String())
}

func scopeFromColumn(v db.PromotionScope) Scope {
	s, err := ParseScope(string(v))
	if err != nil {
		return 0
	}
	return s
}

// MarshalText renders the scope in its stored form.
func (s Scope) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidScope, s)
	}
	return []byte(s.String()), nil
}

// UnmarshalText parses a scope from JSON strings and query values.
func (s *Scope) UnmarshalText(text []byte) error {
	parsed, err := ParseScope(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
