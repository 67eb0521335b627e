package promotion

import (
	"errors"
	"sort"
	"time"

	"github.com/noah-isme/toko-sales/internal/db"
)

var (
	// ErrInvalidScope is returned for a scope outside product/category/order.
	ErrInvalidScope = errors.New("promotion: invalid scope")
	// ErrInvalidPercent indicates a discount percent outside [0,100].
	ErrInvalidPercent = errors.New("promotion: discount percent out of range")
	// ErrInvalidWindow indicates the start date falls after the end date.
	ErrInvalidWindow = errors.New("promotion: start date after end date")
	// ErrPromotionNotFound is returned when a referenced promotion does not exist.
	ErrPromotionNotFound = errors.New("promotion: not found")
	// ErrScopeMismatch indicates a promotion used outside the scope it was created for.
	ErrScopeMismatch = errors.New("promotion: scope mismatch")
	// ErrPromotionInactive indicates a promotion referenced outside its active window.
	ErrPromotionInactive = errors.New("promotion: not active")
)

// Rule is the runtime view of one promotion.
type Rule struct {
	ID      int64
	Percent int
	Start   time.Time
	End     time.Time
	Scope   Scope
}

// RuleFromModel converts a stored promotion into a Rule.
func RuleFromModel(p db.Promotion) Rule {
	return Rule{
		ID:      p.ID,
		Percent: int(p.DiscountPercent),
		Start:   p.StartDate,
		End:     p.EndDate,
		Scope:   scopeFromColumn(p.Scope),
	}
}

// RuleFromTarget converts a promotion joined to a target row into a Rule.
func RuleFromTarget(row db.PromotionTargetRow) Rule {
	return Rule{
		ID:      row.PromotionID,
		Percent: int(row.DiscountPercent),
		Start:   row.StartDate,
		End:     row.EndDate,
		Scope:   scopeFromColumn(row.Scope),
	}
}

// ActiveAt reports whether t lies inside [Start, End], both bounds inclusive.
func (r Rule) ActiveAt(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Validate checks the rule's own invariants.
func (r Rule) Validate() error {
	if !r.Scope.Valid() {
		return ErrInvalidScope
	}
	if r.Percent < 0 || r.Percent > 100 {
		return ErrInvalidPercent
	}
	if r.Start.After(r.End) {
		return ErrInvalidWindow
	}
	return nil
}

// applies reports whether the rule counts for the given scope family at t.
func (r Rule) applies(scope Scope, at time.Time) bool {
	return r.Scope == scope && r.ActiveAt(at) && r.Validate() == nil
}

// Best tracks the strongest rule seen so far. Equal percents keep the lowest id.
type Best struct {
	PromotionID int64
	Percent     int
}

// Consider replaces the current best when r is stronger.
func (b *Best) Consider(r Rule) {
	if b.PromotionID == 0 || r.Percent > b.Percent || (r.Percent == b.Percent && r.ID < b.PromotionID) {
		b.PromotionID = r.ID
		b.Percent = r.Percent
	}
}

// bestByTarget picks the best applicable rule per target id.
func bestByTarget(rows []db.PromotionTargetRow, scope Scope, at time.Time) map[int64]Best {
	out := make(map[int64]Best)
	for _, row := range rows {
		rule := RuleFromTarget(row)
		if !rule.applies(scope, at) {
			continue
		}
		b := out[row.TargetID]
		b.Consider(rule)
		out[row.TargetID] = b
	}
	return out
}

// NormalizeIDs drops non-positive ids, removes duplicates and sorts ascending.
func NormalizeIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return []int64{}
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SameIDs reports whether two normalized id sets are equal.
func SameIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
