package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nrconv/pkg/contract"
)

func TestRecordAndRecent(t *testing.T) {
	l, err := Open(&Options{Path: filepath.Join(t.TempDir(), "db", "ledger.sqlite")})
	require.NoError(t, err)
	defer l.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := contract.RunSummary{
		ID: "run-1", CreatedAt: base, Time: 10, Component: "xx",
		Order: 3.98, Residual: 1e-4, Iterations: 37, Points: 11,
		Files:    []contract.FileID{"h0/gxx.x.asc", "h1/gxx.x.asc", "h2/gxx.x.asc"},
		Spacings: []float64{0.1, 0.05, 0.025},
	}
	second := first
	second.ID = ""
	second.CreatedAt = base.Add(time.Minute)
	second.Order = 2.01

	ctx := context.Background()
	require.NoError(t, l.Record(ctx, first))
	require.NoError(t, l.Record(ctx, second))

	got, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2.01, got[0].Order, "最新的在前")
	assert.NotEmpty(t, got[0].ID, "自动生成 ID")
	if d := cmp.Diff(first, got[1], cmpopts.EquateApproxTime(0)); d != "" {
		t.Fatalf("round trip (-want +got):\n%s", d)
	}

	got, err = l.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestDuplicateID(t *testing.T) {
	l, err := Open(&Options{Path: ":memory:"})
	require.NoError(t, err)
	defer l.Close()
	s := contract.RunSummary{ID: "same", Files: []contract.FileID{}, Spacings: []float64{}}
	require.NoError(t, l.Record(context.Background(), s))
	assert.Error(t, l.Record(context.Background(), s))
}

func TestOpenInvalid(t *testing.T) {
	_, err := Open(nil)
	assert.Error(t, err)
	_, err = Open(&Options{Path: "  "})
	assert.Error(t, err)
	var nilLedger *Ledger
	assert.NoError(t, nilLedger.Close())
}
