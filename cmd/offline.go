package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/theirongolddev/printmeter/internal/config"
	"github.com/theirongolddev/printmeter/internal/daemon"
	"github.com/theirongolddev/printmeter/internal/projection"
	"github.com/theirongolddev/printmeter/internal/store"
	"github.com/theirongolddev/printmeter/internal/tracker"
)

// offlineStatus builds a printer status straight from the store. Sensors are
// not consulted, so current readings and the energy price are absent.
func offlineStatus(ctx context.Context, kv tracker.KV, p config.PrinterConfig) (daemon.PrinterStatus, error) {
	rec, err := tracker.NewGateway(kv, p.ID).Load(ctx)
	if err != nil {
		return daemon.PrinterStatus{}, fmt.Errorf("loading %s: %w", p.ID, err)
	}
	snap := tracker.Snapshot{
		PrinterID:    p.ID,
		Totals:       rec.Totals,
		Session:      rec.Session,
		CostPerMeter: p.CostPerMeter(),
		Currency:     tracker.DefaultCurrency,
		Loaded:       true,
		UpdatedAt:    time.Now(),
	}
	return daemon.PrinterStatus{
		ID:       p.ID,
		Name:     p.DisplayName(),
		Snapshot: snap,
		Metrics:  projection.Project(snap),
	}, nil
}

func offlineStatuses(ctx context.Context, printers []config.PrinterConfig) ([]daemon.PrinterStatus, error) {
	kv, err := store.Open(appCfg.StorePath())
	if err != nil {
		return nil, err
	}
	defer func() { _ = kv.Close() }()

	out := make([]daemon.PrinterStatus, 0, len(printers))
	for _, p := range printers {
		ps, err := offlineStatus(ctx, kv, p)
		if err != nil {
			return nil, err
		}
		out = append(out, ps)
	}
	return out, nil
}

// offlineReset zeroes a printer's stored totals, keeping any in-progress
// session so the daemon can still finish it.
func offlineReset(ctx context.Context, kv tracker.KV, printerID string) error {
	gw := tracker.NewGateway(kv, printerID)
	rec, err := gw.Load(ctx)
	if err != nil {
		return err
	}
	return gw.Save(ctx, tracker.Record{Session: rec.Session})
}

// requireDaemonStopped refuses offline writes while a daemon owns the store;
// its next save would overwrite them.
func requireDaemonStopped(pidPath string) error {
	pid, err := readPID(pidPath)
	if err != nil {
		return nil
	}
	if processAlive(pid) {
		return fmt.Errorf("daemon is running (pid %d): reset through it or stop it first", pid)
	}
	return nil
}
