// Package metrics exports a pull-based prometheus.Collector over live
// Association/Transport state, mirroring the registered-fd-map collector
// pattern used for per-connection TCP info: register an association or
// transport once, and Collect reads its current fields straight off the
// struct on every scrape rather than tracking a separate shadow copy.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alxayo/sctp-sender/internal/sctp/association"
	"github.com/alxayo/sctp-sender/internal/sctp/transport"
)

type asocEntry struct {
	asoc   *association.Association
	labels []string
}

type transportEntry struct {
	tr     *transport.Transport
	labels []string
}

// Collector exposes association and transport counters/gauges to
// Prometheus. The zero value is not usable; construct with New.
type Collector struct {
	mu         sync.Mutex
	asocs      map[*association.Association]asocEntry
	transports map[*transport.Transport]transportEntry
	asocDescs  map[string]*prometheus.Desc
	transDescs map[string]*prometheus.Desc
	admissions *prometheus.CounterVec
}

// New builds a Collector whose per-association and per-transport metrics
// all carry variableLabels (e.g. "association"), plus any constLabels fixed
// for the whole process (e.g. "instance").
func New(prefix string, variableLabels []string, constLabels prometheus.Labels) *Collector {
	c := &Collector{
		asocs:      make(map[*association.Association]asocEntry),
		transports: make(map[*transport.Transport]transportEntry),
		asocDescs:  make(map[string]*prometheus.Desc),
		transDescs: make(map[string]*prometheus.Desc),
	}

	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prefix+"_"+name, help, variableLabels, constLabels)
	}
	c.asocDescs["opackets_total"] = desc("opackets_total", "Outbound packets transmitted on this association.")
	c.asocDescs["osacks_total"] = desc("osacks_total", "SACK chunks transmitted on this association.")
	c.asocDescs["ip_no_route_total"] = desc("ip_no_route_total", "Transmit attempts aborted for lack of a resolved route.")
	c.asocDescs["outstanding_bytes"] = desc("outstanding_bytes", "DATA bytes currently outstanding (sent, not yet acked).")
	c.asocDescs["peer_rwnd"] = desc("peer_rwnd", "Peer-advertised receiver window, as last decremented by admission.")
	c.asocDescs["hold_count"] = desc("hold_count", "Outstanding external references (timers) on this association.")

	c.transDescs["cwnd"] = desc("cwnd", "Congestion window in bytes.")
	c.transDescs["flight_size"] = desc("flight_size", "DATA bytes currently in flight on this transport.")

	c.admissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        prefix + "_admission_results_total",
		Help:        "Chunk admission outcomes by result.",
		ConstLabels: constLabels,
	}, []string{"result"})

	return c
}

// Add registers an association for scraping, keyed by its identity and
// tagged with labels in the same order as variableLabels.
func (c *Collector) Add(asoc *association.Association, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.asocs[asoc] = asocEntry{asoc: asoc, labels: append([]string(nil), labels...)}
}

// Remove stops scraping asoc.
func (c *Collector) Remove(asoc *association.Association) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.asocs, asoc)
}

// AddTransport registers a transport for scraping.
func (c *Collector) AddTransport(tr *transport.Transport, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transports[tr] = transportEntry{tr: tr, labels: append([]string(nil), labels...)}
}

// RemoveTransport stops scraping tr.
func (c *Collector) RemoveTransport(tr *transport.Transport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.transports, tr)
}

// RecordAdmission increments the admission-outcome counter for result
// (expected to be an AdmissionResult.String() value: "Ok", "Delay",
// "ReceiverWindowFull", "PmtuFull"). Kept string-keyed so this package never
// needs to import the packet package that owns AdmissionResult.
func (c *Collector) RecordAdmission(result string) {
	c.admissions.WithLabelValues(result).Inc()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	for _, d := range c.asocDescs {
		descs <- d
	}
	for _, d := range c.transDescs {
		descs <- d
	}
	c.admissions.Describe(descs)
}

// Collect implements prometheus.Collector: every scrape reads the live
// Association/Transport fields directly, so values are always current as of
// the scrape, not as of registration time.
func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range c.asocs {
		a := entry.asoc
		metrics <- prometheus.MustNewConstMetric(c.asocDescs["opackets_total"], prometheus.CounterValue, float64(a.Stats.OPackets), entry.labels...)
		metrics <- prometheus.MustNewConstMetric(c.asocDescs["osacks_total"], prometheus.CounterValue, float64(a.Stats.OSacks), entry.labels...)
		metrics <- prometheus.MustNewConstMetric(c.asocDescs["ip_no_route_total"], prometheus.CounterValue, float64(a.Stats.IPNoRoute), entry.labels...)
		metrics <- prometheus.MustNewConstMetric(c.asocDescs["outstanding_bytes"], prometheus.GaugeValue, float64(a.Outqueue.OutstandingBytes), entry.labels...)
		metrics <- prometheus.MustNewConstMetric(c.asocDescs["peer_rwnd"], prometheus.GaugeValue, float64(a.Peer.Rwnd), entry.labels...)
		metrics <- prometheus.MustNewConstMetric(c.asocDescs["hold_count"], prometheus.GaugeValue, float64(a.HoldCount()), entry.labels...)
	}

	for _, entry := range c.transports {
		t := entry.tr
		metrics <- prometheus.MustNewConstMetric(c.transDescs["cwnd"], prometheus.GaugeValue, float64(t.Cwnd), entry.labels...)
		metrics <- prometheus.MustNewConstMetric(c.transDescs["flight_size"], prometheus.GaugeValue, float64(t.FlightSize), entry.labels...)
	}

	c.admissions.Collect(metrics)
}
