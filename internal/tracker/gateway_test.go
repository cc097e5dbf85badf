package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/printmeter/internal/store"
)

func TestStorageKeys(t *testing.T) {
	assert.Equal(t, "printmeter_data_k2", StorageKey("k2"))
	assert.Equal(t, "printmeter_data", LegacyKey)
}

func TestGatewayRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	gw := NewGateway(kv, "k2")

	start := time.Date(2026, 3, 1, 10, 0, 0, 123456000, time.UTC)
	end := start.Add(90 * time.Minute)
	want := Record{
		Totals: Totals{
			TotalEnergy: 12.5, TotalMaterial: 3400, PrintCount: 4,
			TotalEnergyCost: 1.5, TotalMaterialCost: 0.2, TotalCost: 1.7,
			LastPrintEnergy: 0.8, LastPrintMaterial: 400,
			LastPrintStart: &start, LastPrintEnd: &end,
			LastPrintEnergyCost: 0.1, LastPrintMaterialCost: 0.02, LastPrintTotalCost: 0.12,
		},
		Session: Session{IsPrinting: true, StartEnergy: floatPtr(13), StartMaterial: floatPtr(3500), StartedAt: &end},
	}
	require.NoError(t, gw.Save(ctx, want))

	got, err := gw.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, gw.Save(ctx, got))
	again, err := gw.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestGatewayFillsDefaultsPerField(t *testing.T) {
	kv := newMemKV()
	kv.data[StorageKey("k2")] = []byte(`{
		"total_energy": 2.5,
		"print_count": "3",
		"total_cost": null,
		"last_print_start": "not a date",
		"last_print_end": "2026-01-05T14:03:00.250000"
	}`)

	rec, err := NewGateway(kv, "k2").Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2.5, rec.Totals.TotalEnergy)
	assert.Equal(t, 3, rec.Totals.PrintCount)
	assert.Zero(t, rec.Totals.TotalCost)
	assert.Zero(t, rec.Totals.TotalMaterial)
	assert.Nil(t, rec.Totals.LastPrintStart, "malformed timestamp is absent")
	require.NotNil(t, rec.Totals.LastPrintEnd)
	assert.Equal(t, 250*time.Millisecond, time.Duration(rec.Totals.LastPrintEnd.Nanosecond()))
	assert.False(t, rec.Session.IsPrinting)
}

func TestGatewayDropsInconsistentSession(t *testing.T) {
	kv := newMemKV()
	kv.data[StorageKey("k2")] = []byte(`{"print_count": 1, "is_printing": true}`)

	rec, err := NewGateway(kv, "k2").Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Session{}, rec.Session)
}

func TestGatewayInvalidJSONUsesDefaults(t *testing.T) {
	kv := newMemKV()
	kv.data[StorageKey("k2")] = []byte(`{"total_energy":`)

	rec, err := NewGateway(kv, "k2").Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Record{}, rec)
}

func TestGatewayMigratesLegacyRecord(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	legacy := `{"total_energy": 40.2, "print_count": 17, "total_cost": 5.1, "last_print_energy": 1.1}`
	kv.data[LegacyKey] = []byte(legacy)

	rec, err := NewGateway(kv, "k2").Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 17, rec.Totals.PrintCount)
	assert.Equal(t, 40.2, rec.Totals.TotalEnergy)

	assert.Contains(t, kv.raw(StorageKey("k2")), `"print_count":17`, "migration writes through")
	assert.Equal(t, legacy, kv.raw(LegacyKey), "legacy record is left in place")

	// A second printer migrates from the same legacy record.
	other, err := NewGateway(kv, "mini").Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 17, other.Totals.PrintCount)
}

func TestGatewaySkipsMigrationWhenInstanceHasActivity(t *testing.T) {
	kv := newMemKV()
	kv.data[StorageKey("k2")] = []byte(`{"print_count": 1, "total_energy": 0.5}`)
	kv.data[LegacyKey] = []byte(`{"print_count": 17, "total_energy": 40.2}`)

	rec, err := NewGateway(kv, "k2").Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Totals.PrintCount)
	assert.Zero(t, kv.saves)
}

func TestGatewaySkipsEmptyLegacyRecord(t *testing.T) {
	kv := newMemKV()
	kv.data[LegacyKey] = []byte(`{"print_count": 0, "total_energy": 0, "total_cost": 0}`)

	rec, err := NewGateway(kv, "k2").Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Record{}, rec)
	assert.Zero(t, kv.saves)
}

func TestGatewayKeepsActiveSessionDuringMigration(t *testing.T) {
	kv := newMemKV()
	kv.data[StorageKey("k2")] = []byte(`{"is_printing": true, "session_start_energy": 3}`)
	kv.data[LegacyKey] = []byte(`{"print_count": 2, "total_energy": 4}`)

	rec, err := NewGateway(kv, "k2").Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Totals.PrintCount)
	require.True(t, rec.Session.IsPrinting)
	assert.Equal(t, 3.0, *rec.Session.StartEnergy)
}

func TestGatewayMigratesOnlyOnce(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	kv.data[LegacyKey] = []byte(`{"total_energy": 7, "print_count": 3}`)
	gw := NewGateway(kv, "k2")

	rec, err := gw.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, rec.Totals.PrintCount)
	assert.Contains(t, kv.raw(StorageKey("k2")), `"migrated":true`)

	// a record emptied after migration stays empty
	require.NoError(t, gw.Save(ctx, Record{}))
	rec, err = gw.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Record{}, rec)
}

func TestGatewayOverSQLiteStore(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(t.TempDir() + "/printmeter.db")
	require.NoError(t, err)
	defer st.Close()

	gw := NewGateway(st, "k2")
	want := Record{Totals: Totals{TotalEnergy: 1.25, PrintCount: 1, TotalCost: 0.15}}
	require.NoError(t, gw.Save(ctx, want))

	got, err := gw.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParseTimestamp(t *testing.T) {
	for _, s := range []string{
		"2026-01-05T14:03:00Z",
		"2026-01-05T14:03:00.123456+01:00",
		"2026-01-05T14:03:00",
		"2026-01-05 14:03:00",
	} {
		assert.NotNil(t, ParseTimestamp(s), s)
	}
	assert.Nil(t, ParseTimestamp(""))
	assert.Nil(t, ParseTimestamp("yesterday"))
	assert.Nil(t, ParseTimestamp("2026-13-40T99:00:00"))
}
