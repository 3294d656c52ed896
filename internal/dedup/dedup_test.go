package dedup

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitrecx/my-bill-2/internal/core"
)

const family int64 = 1

var base = time.Date(2024, 3, 1, 10, 0, 0, 0, core.ChinaStandardTime())

func record(source core.Provider, orderID string, at time.Time, amount, merchant string) core.CanonicalRecord {
	return core.CanonicalRecord{
		SourceType:      source,
		OrderID:         orderID,
		TransactionTime: at,
		Amount:          decimal.RequireFromString(amount),
		TransactionType: core.TypeExpense,
		MerchantName:    merchant,
		TransactionDesc: merchant + " - 购物",
		Currency:        "CNY",
	}
}

// importBatch resolves recs in order and applies each decision.
func importBatch(t *testing.T, lookup *MemoryLookup, recs ...core.CanonicalRecord) []Decision {
	t.Helper()
	r := NewResolver(lookup, nil)
	out := make([]Decision, 0, len(recs))
	for _, rec := range recs {
		d := r.Resolve(context.Background(), family, rec)
		lookup.Apply(family, d, rec)
		out = append(out, d)
	}
	return out
}

func verdicts(ds []Decision) []Verdict {
	out := make([]Verdict, len(ds))
	for i, d := range ds {
		out[i] = d.Verdict
	}
	return out
}

func TestResolve_IdentifierTierIsOrderIndependent(t *testing.T) {
	a := record(core.ProviderJD, "A-1", base, "10.00", "京东商城")
	b := record(core.ProviderJD, "B-2", base.Add(time.Hour), "20.00", "京东到家")

	forward := NewMemoryLookup()
	first := importBatch(t, forward, a, b)
	assert.Equal(t, []Verdict{VerdictNew, VerdictNew}, verdicts(first))

	again := importBatch(t, forward, b, a)
	assert.Equal(t, []Verdict{VerdictUpdate, VerdictUpdate}, verdicts(again))
	assert.Equal(t, int64(2), again[0].Existing.ID)
	assert.Equal(t, int64(1), again[1].Existing.ID)
	assert.Equal(t, TierIdentifier, again[0].Tier)

	reversed := NewMemoryLookup()
	importBatch(t, reversed, b, a)
	assert.Equal(t, forward.Len(family), reversed.Len(family))
}

func TestResolve_IdentifierUpdateReplacesFields(t *testing.T) {
	lookup := NewMemoryLookup()
	importBatch(t, lookup, record(core.ProviderJD, "A-1", base, "10.00", "京东商城"))

	changed := record(core.ProviderJD, "A-1", base, "7.50", "京东商城")
	d := importBatch(t, lookup, changed)[0]
	require.Equal(t, VerdictUpdate, d.Verdict)

	found, err := lookup.FindByOrderID(context.Background(), family, core.ProviderJD, "A-1")
	require.NoError(t, err)
	assert.Equal(t, "7.5", found.Amount.String())
	assert.Equal(t, 1, lookup.Len(family))
}

func TestResolve_DifferentOrderIDIsNew(t *testing.T) {
	lookup := NewMemoryLookup()
	importBatch(t, lookup, record(core.ProviderJD, "A-1", base, "10.00", "京东商城"))

	// Same time, amount and merchant, but the identifier tier is authoritative.
	d := importBatch(t, lookup, record(core.ProviderJD, "A-2", base, "10.00", "京东商城"))[0]
	assert.Equal(t, VerdictNew, d.Verdict)
	assert.Equal(t, TierIdentifier, d.Tier)
	assert.Equal(t, 2, lookup.Len(family))
}

func TestResolve_ContentTolerance(t *testing.T) {
	tests := []struct {
		name   string
		offset time.Duration
		want   Verdict
	}{
		{"same time", 0, VerdictDuplicate},
		{"45s later", 45 * time.Second, VerdictDuplicate},
		{"45s earlier", -45 * time.Second, VerdictDuplicate},
		{"exactly one minute", time.Minute, VerdictDuplicate},
		{"90s later", 90 * time.Second, VerdictNew},
		{"90s earlier", -90 * time.Second, VerdictNew},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := NewMemoryLookup()
			stored := lookup.Add(family, record(core.ProviderCMB, "", base, "300.00", "银联支付"))

			incoming := record(core.ProviderCMB, "", base.Add(tt.offset), "300", "银联支付")
			d := NewResolver(lookup, nil).Resolve(context.Background(), family, incoming)

			assert.Equal(t, tt.want, d.Verdict)
			assert.Equal(t, TierContent, d.Tier)
			if tt.want == VerdictDuplicate {
				require.NotNil(t, d.Existing)
				assert.Equal(t, stored.ID, d.Existing.ID)
			}
		})
	}
}

func TestResolve_ContentRequiresAmountAndDescription(t *testing.T) {
	lookup := NewMemoryLookup()
	lookup.Add(family, record(core.ProviderCMB, "", base, "300.00", "银联支付"))
	r := NewResolver(lookup, nil)
	ctx := context.Background()

	other := record(core.ProviderCMB, "", base, "300.01", "银联支付")
	assert.Equal(t, VerdictNew, r.Resolve(ctx, family, other).Verdict)

	unrelated := record(core.ProviderCMB, "", base, "300.00", "快捷支付")
	unrelated.TransactionDesc = "快捷支付"
	assert.Equal(t, VerdictNew, r.Resolve(ctx, family, unrelated).Verdict)

	contained := record(core.ProviderCMB, "", base, "300.00", "")
	contained.TransactionDesc = "银联"
	assert.Equal(t, VerdictDuplicate, r.Resolve(ctx, family, contained).Verdict)

	blank := record(core.ProviderCMB, "", base, "300.00", "")
	blank.TransactionDesc = ""
	assert.Equal(t, VerdictNew, r.Resolve(ctx, family, blank).Verdict)

	otherFamily := record(core.ProviderCMB, "", base, "300.00", "银联支付")
	assert.Equal(t, VerdictNew, r.Resolve(ctx, family+1, otherFamily).Verdict)
}

func TestResolve_AlipayWithoutOrderIDFallsBackToContent(t *testing.T) {
	lookup := NewMemoryLookup()
	first := importBatch(t, lookup,
		record(core.ProviderAlipay, "", base, "12.00", "美团"),
		record(core.ProviderAlipay, "", base.Add(30*time.Second), "12.00", "美团"),
	)
	assert.Equal(t, []Verdict{VerdictNew, VerdictDuplicate}, verdicts(first))
	assert.Equal(t, TierContent, first[1].Tier)
}

func TestResolve_CMBIgnoresOrderID(t *testing.T) {
	lookup := NewMemoryLookup()
	importBatch(t, lookup, record(core.ProviderCMB, "X", base, "5.00", "银联支付"))

	d := importBatch(t, lookup, record(core.ProviderCMB, "Y", base, "5.00", "银联支付"))[0]
	assert.Equal(t, VerdictDuplicate, d.Verdict)
}

type failingLookup struct{}

func (failingLookup) FindByOrderID(context.Context, int64, core.Provider, string) (*Existing, error) {
	return nil, errors.New("connection reset")
}

func (failingLookup) FindByContent(context.Context, int64, core.Provider, time.Time, time.Time, decimal.Decimal) ([]Existing, error) {
	return nil, errors.New("connection reset")
}

func TestResolve_LookupFailureFailsOpen(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	r := NewResolver(failingLookup{}, logger)

	d := r.Resolve(context.Background(), family, record(core.ProviderJD, "A-1", base, "1.00", "x"))
	assert.Equal(t, VerdictNew, d.Verdict)
	assert.Equal(t, TierIdentifier, d.Tier)
	assert.Contains(t, d.Reason, "connection reset")
	assert.Error(t, d.Err)

	d = r.Resolve(context.Background(), family, record(core.ProviderCMB, "", base, "1.00", "x"))
	assert.Equal(t, VerdictNew, d.Verdict)
	assert.Equal(t, TierContent, d.Tier)

	assert.Contains(t, buf.String(), "dedup lookup failed")
	assert.Contains(t, buf.String(), "connection reset")
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "new", VerdictNew.String())
	assert.Equal(t, "update", VerdictUpdate.String())
	assert.Equal(t, "duplicate", VerdictDuplicate.String())
	assert.Equal(t, "content", TierContent.String())
}
