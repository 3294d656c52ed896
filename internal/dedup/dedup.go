// Package dedup decides whether a parsed record is new, an update of a
// stored record, or a duplicate of one.
//
// Two tiers are consulted. The identifier tier matches on the provider's
// order id and is authoritative whenever the provider's policy trusts order
// ids and the record carries one. Otherwise the content tier matches on
// time (within a tolerance), exact amount and description containment.
//
// Lookup failures never drop data: the record is treated as new and the
// failure is logged.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mitrecx/my-bill-2/internal/core"
)

// DefaultTolerance is the content tier's time window on either side.
const DefaultTolerance = time.Minute

// Verdict is the outcome of resolving one record.
type Verdict int

const (
	VerdictNew Verdict = iota
	VerdictUpdate
	VerdictDuplicate
)

func (v Verdict) String() string {
	switch v {
	case VerdictNew:
		return "new"
	case VerdictUpdate:
		return "update"
	case VerdictDuplicate:
		return "duplicate"
	}
	return fmt.Sprintf("Verdict(%d)", int(v))
}

// Tier names the rule that produced a decision.
type Tier int

const (
	TierNone Tier = iota
	TierIdentifier
	TierContent
)

func (t Tier) String() string {
	switch t {
	case TierIdentifier:
		return "identifier"
	case TierContent:
		return "content"
	}
	return "none"
}

// Existing is the handle of a stored record.
type Existing struct {
	ID              int64
	Source          core.Provider
	OrderID         string
	TransactionTime time.Time
	Amount          decimal.Decimal
	TransactionDesc string
	MerchantName    string
}

// Decision is the resolver's verdict for one record. Existing is set for
// updates and duplicates.
type Decision struct {
	Verdict  Verdict
	Existing *Existing
	Tier     Tier
	Reason   string

	// Err is the lookup error behind a fail-open VerdictNew.
	Err error
}

// Lookup queries previously stored records. scope partitions records by
// owner (a family); source restricts matches to one provider.
type Lookup interface {
	// FindByOrderID returns the record with the order id, or nil.
	FindByOrderID(ctx context.Context, scope int64, source core.Provider, orderID string) (*Existing, error)

	// FindByContent returns records whose time lies in [from, to] and whose
	// amount equals amount.
	FindByContent(ctx context.Context, scope int64, source core.Provider, from, to time.Time, amount decimal.Decimal) ([]Existing, error)
}

// Policy is a provider's identity strategy.
type Policy struct {
	// UseIdentifier makes the order id authoritative when present.
	UseIdentifier bool
}

var policies = map[core.Provider]Policy{
	core.ProviderJD:     {UseIdentifier: true},
	core.ProviderAlipay: {UseIdentifier: true},
	core.ProviderCMB:    {UseIdentifier: false},
}

// PolicyFor returns the identity strategy of p. Unknown providers match on
// content only.
func PolicyFor(p core.Provider) Policy {
	return policies[p]
}

// Resolver applies the two tiers against a Lookup.
type Resolver struct {
	Lookup    Lookup
	Tolerance time.Duration
	Logger    *slog.Logger
}

// NewResolver returns a Resolver with the default tolerance.
func NewResolver(lookup Lookup, logger *slog.Logger) *Resolver {
	return &Resolver{Lookup: lookup, Tolerance: DefaultTolerance, Logger: logger}
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Resolver) tolerance() time.Duration {
	if r.Tolerance > 0 {
		return r.Tolerance
	}
	return DefaultTolerance
}

// Resolve decides what to do with rec. It never returns an error; a failed
// lookup yields VerdictNew.
func (r *Resolver) Resolve(ctx context.Context, scope int64, rec core.CanonicalRecord) Decision {
	if PolicyFor(rec.SourceType).UseIdentifier && rec.OrderID != "" {
		return r.byIdentifier(ctx, scope, rec)
	}
	return r.byContent(ctx, scope, rec)
}

func (r *Resolver) byIdentifier(ctx context.Context, scope int64, rec core.CanonicalRecord) Decision {
	existing, err := r.Lookup.FindByOrderID(ctx, scope, rec.SourceType, rec.OrderID)
	if err != nil {
		return r.failOpen(TierIdentifier, rec, err)
	}
	if existing == nil {
		return Decision{Verdict: VerdictNew, Tier: TierIdentifier, Reason: "order id not seen"}
	}
	return Decision{
		Verdict:  VerdictUpdate,
		Existing: existing,
		Tier:     TierIdentifier,
		Reason:   fmt.Sprintf("order id %s matches record %d", rec.OrderID, existing.ID),
	}
}

func (r *Resolver) byContent(ctx context.Context, scope int64, rec core.CanonicalRecord) Decision {
	tol := r.tolerance()
	candidates, err := r.Lookup.FindByContent(ctx, scope, rec.SourceType,
		rec.TransactionTime.Add(-tol), rec.TransactionTime.Add(tol), rec.Amount)
	if err != nil {
		return r.failOpen(TierContent, rec, err)
	}

	desc := rec.Description()
	var best *Existing
	var bestDelta time.Duration
	for i := range candidates {
		c := &candidates[i]
		delta := absDuration(c.TransactionTime.Sub(rec.TransactionTime))
		if delta > tol || !c.Amount.Equal(rec.Amount) {
			continue
		}
		if !descriptionsMatch(desc, c.TransactionDesc) && !descriptionsMatch(desc, c.MerchantName) {
			continue
		}
		if best == nil || delta < bestDelta {
			best, bestDelta = c, delta
		}
	}
	if best == nil {
		return Decision{Verdict: VerdictNew, Tier: TierContent, Reason: "no matching record"}
	}
	return Decision{
		Verdict:  VerdictDuplicate,
		Existing: best,
		Tier:     TierContent,
		Reason:   fmt.Sprintf("matches record %d within %s", best.ID, bestDelta),
	}
}

func (r *Resolver) failOpen(tier Tier, rec core.CanonicalRecord, err error) Decision {
	r.logger().Warn("dedup lookup failed, treating record as new",
		"tier", tier.String(),
		"source", rec.SourceType,
		"order_id", rec.OrderID,
		"error", err,
	)
	return Decision{Verdict: VerdictNew, Tier: tier, Reason: "lookup failed: " + err.Error(), Err: err}
}

// descriptionsMatch reports whether one non-empty text contains the other.
func descriptionsMatch(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// ExistingFrom builds the stored handle of rec under id.
func ExistingFrom(id int64, rec core.CanonicalRecord) Existing {
	return Existing{
		ID:              id,
		Source:          rec.SourceType,
		OrderID:         rec.OrderID,
		TransactionTime: rec.TransactionTime,
		Amount:          rec.Amount,
		TransactionDesc: rec.TransactionDesc,
		MerchantName:    rec.MerchantName,
	}
}
