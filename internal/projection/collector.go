package projection

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/theirongolddev/printmeter/internal/tracker"
)

const metricsNamespace = "printmeter"

// SnapshotSource supplies the snapshots a Collector exports.
type SnapshotSource interface {
	Snapshots() []tracker.Snapshot
}

// Collector exports every numeric metric of every printer as a gauge named
// printmeter_<key>, labeled with the printer id and currency code.
type Collector struct {
	src      SnapshotSource
	descs    map[string]*prometheus.Desc
	printing *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector over src.
func NewCollector(src SnapshotSource) *Collector {
	c := &Collector{
		src:   src,
		descs: make(map[string]*prometheus.Desc),
		printing: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "printing"),
			"1 while a print session is active",
			[]string{"printer"}, nil,
		),
	}
	for _, m := range Project(tracker.Snapshot{}) {
		if !m.Numeric() {
			continue
		}
		c.descs[m.Key] = prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", m.Key),
			help(m),
			[]string{"printer", "currency"}, nil,
		)
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
	ch <- c.printing
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, snap := range c.src.Snapshots() {
		currency := snap.Currency
		if currency == "" {
			currency = tracker.DefaultCurrency
		}
		for _, m := range Project(snap) {
			desc, ok := c.descs[m.Key]
			if !ok {
				continue
			}
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, m.Value, snap.PrinterID, currency)
		}
		printing := 0.0
		if snap.Session.IsPrinting {
			printing = 1
		}
		ch <- prometheus.MustNewConstMetric(c.printing, prometheus.GaugeValue, printing, snap.PrinterID)
	}
}

func help(m Metric) string {
	switch m.Unit {
	case UnitKWh:
		return "Energy in kWh: " + m.Key
	case UnitMM:
		return "Material in millimeters: " + m.Key
	case UnitTimestamp:
		return "Unix time, 0 when unset: " + m.Key
	case "":
		return "Count: " + m.Key
	default:
		return "Cost in the printer's currency: " + m.Key
	}
}
