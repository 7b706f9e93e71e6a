// Package transport models the read-mostly per-destination view the packet
// builder consults: path MTU, congestion window, route/GSO capability, and
// the AF-specific hand-off into the IP layer. Congestion control, PMTU
// discovery and route lookup themselves are out of scope — this package
// only stores the values those subsystems compute.
package transport

import (
	"net"
	"sync/atomic"

	"github.com/rs/xid"
)

// AddressFamily selects the IP header size used for packet overhead
// accounting.
type AddressFamily int

const (
	AddressFamilyIPv4 AddressFamily = iota
	AddressFamilyIPv6
)

// IPHeaderSize returns the fixed IP header size for the family (no options).
func (f AddressFamily) IPHeaderSize() int {
	if f == AddressFamilyIPv6 {
		return 40
	}
	return 20
}

// Route describes what the cached route to the destination can do. Route
// refresh and PMTU discovery are external collaborators; this struct is the
// read surface the builder consults.
type Route struct {
	GSOCapable        bool // device supports segmentation offload
	GSOMaxSize        int  // device GSO envelope ceiling, valid iff GSOCapable
	MaxGSOSegments    int  // device max segment count per GSO envelope
	ChecksumOffload   bool // device can compute CRC32-C in hardware
	HasXfrmTransform  bool // IPsec transform present, forces software checksum
	Stale             bool // cached route needs re-resolution
	Conn              net.Conn
}

// AFSpecific holds the address-family-specific hand-off points the
// serializer calls at the very end of Transmit. Both are pluggable so tests
// can substitute a fake IP layer; internal/ipxmit supplies the default
// production implementations.
type AFSpecific struct {
	// Xmit sends one fully-built envelope (packet or GSO superframe) and
	// returns the number of bytes written, with a non-nil error on failure.
	Xmit func(envelope []byte, t *Transport) (int, error)
	// ECNCapable marks the outbound socket/packet as ECN-capable transport.
	ECNCapable func(t *Transport)
}

// Transport is the read-only-ish view of one destination transport address.
// cwnd/flight_size/rwnd are owned by the congestion controller; the builder
// only reads cwnd/flight_size here and mutates FlightSize on DATA admission
// per spec.
type Transport struct {
	ID string // opaque trace id (xid), for logging only

	AddressFamily  AddressFamily
	PathMTU        int
	Cwnd           int64
	FlightSize     int64
	BurstLimited   int64 // 0 means "not burst limited"
	RTOPending     bool
	SackGeneration uint32

	route atomic.Pointer[Route]

	AFSpecific AFSpecific
}

// New creates a Transport with the given trace id, initial path MTU and
// cached route (an empty Route when route is nil).
func New(id string, pathMTU int, route *Route) *Transport {
	t := &Transport{ID: id, PathMTU: pathMTU}
	if route == nil {
		route = &Route{}
	}
	t.route.Store(route)
	return t
}

// NewTraced is New with a fresh xid-generated trace ID, for callers that
// don't already have a natural transport identity (e.g. one route per dial
// in the CLI). The same id shows up on every log line this transport's
// packets produce, the way exporter.TCPInfoCollector labels a scraped
// connection with the xid it was registered under.
func NewTraced(pathMTU int, route *Route) *Transport {
	return New(xid.New().String(), pathMTU, route)
}

// Route returns the currently cached route (lock-free read, matching the
// RCU-like read-side concurrency the spec calls for).
func (t *Transport) Route() *Route { return t.route.Load() }

// SetRoute atomically replaces the cached route, e.g. after a refresh.
func (t *Transport) SetRoute(r *Route) { t.route.Store(r) }

// SyncRouteCapabilities clears the Stale mark on the cached route by storing
// an otherwise identical copy. It does not re-resolve the route or its
// capabilities (GSO, checksum offload); route resolution is an external
// collaborator that installs a fresh Route via SetRoute.
func (t *Transport) SyncRouteCapabilities() {
	r := t.Route()
	if r == nil || !r.Stale {
		return
	}
	fresh := *r
	fresh.Stale = false
	t.route.Store(&fresh)
}

// EffectiveMaxSize returns the envelope ceiling: the device GSO maximum when
// the route advertises segmentation offload, else the path MTU.
func (t *Transport) EffectiveMaxSize(assocPathMTU int) int {
	r := t.Route()
	pmtu := assocPathMTU
	if pmtu <= 0 {
		pmtu = t.PathMTU
	}
	if r != nil && r.GSOCapable && r.GSOMaxSize > 0 {
		return r.GSOMaxSize
	}
	return pmtu
}
