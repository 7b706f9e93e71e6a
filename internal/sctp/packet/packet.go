// Package packet implements the outbound SCTP packet builder: lifecycle and
// configuration, chunk admission, AUTH/SACK bundling, and serialization to
// one or more IP envelopes. Chunk production, retransmit-queue accounting,
// congestion control, PMTU discovery, and route lookup all belong to the
// collaborators this package only reads (transport.Transport,
// association.Association, chunk.Chunk).
package packet

import (
	"github.com/alxayo/sctp-sender/internal/metrics"
	"github.com/alxayo/sctp-sender/internal/sctp/association"
	"github.com/alxayo/sctp-sender/internal/sctp/chunk"
	"github.com/alxayo/sctp-sender/internal/sctp/transport"
)

// commonHeaderSize is the fixed 12-byte SCTP common header: source port(2),
// destination port(2), verification tag(4), checksum(4).
const commonHeaderSize = 12

// AdmissionResult is the outcome of an AppendChunk call.
type AdmissionResult int

const (
	Ok AdmissionResult = iota
	Delay
	ReceiverWindowFull
	PmtuFull
)

func (r AdmissionResult) String() string {
	switch r {
	case Ok:
		return "Ok"
	case Delay:
		return "Delay"
	case ReceiverWindowFull:
		return "ReceiverWindowFull"
	case PmtuFull:
		return "PmtuFull"
	default:
		return "Unknown"
	}
}

// Packet is the assembly buffer for one outbound network packet. It holds
// only weak references to Transport/Association/Chunk — their lifetime is
// bounded by the owning association, per spec.md §9's "weak/non-owning"
// design note.
type Packet struct {
	Transport   *transport.Transport
	Association *association.Association // nil for association-less sends

	SourcePort      uint16
	DestinationPort uint16
	Vtag            uint32

	ChunkList []*chunk.Chunk

	Overhead int // IP header + common SCTP header, fixed per association
	Size     int // overhead + sum of padded chunk lengths currently queued
	MaxSize  int // envelope ceiling: pathmtu, or device GSO max when offload-capable

	HasCookieEcho bool
	HasSack       bool
	HasData       bool
	HasAuth       bool
	IPFragOK      bool

	// NoDelay disables Nagle-style coalescing in canAppendData. Zero value
	// (false) means Nagle is enabled, matching the usual socket default.
	NoDelay bool

	Auth *chunk.Chunk // weak reference to the appended AUTH chunk, if any

	// Metrics, when set, receives one RecordAdmission call per AppendChunk.
	// Nil (the default) disables admission-outcome metrics entirely.
	Metrics *metrics.Collector
}

// Init binds a fresh Packet to transport t with the given ports, then resets
// it to the empty state. vtag starts at zero until the caller configures it.
func Init(t *transport.Transport, sourcePort, destinationPort uint16) *Packet {
	p := &Packet{
		Transport:       t,
		SourcePort:      sourcePort,
		DestinationPort: destinationPort,
	}
	p.Overhead = commonHeaderSize + t.AddressFamily.IPHeaderSize()
	p.reset()
	return p
}

// Bind rebinds an already-allocated Packet (from a pool) to a transport and
// association pair, recomputing Overhead, then resets it. Mirrors init()
// without a fresh allocation, for callers that pool Packets.
func (p *Packet) Bind(t *transport.Transport, asoc *association.Association, sourcePort, destinationPort uint16) {
	p.Transport = t
	p.Association = asoc
	p.SourcePort = sourcePort
	p.DestinationPort = destinationPort
	p.Overhead = commonHeaderSize + t.AddressFamily.IPHeaderSize()
	p.Vtag = 0
	p.reset()
}

// reset clears bundling flags and the assembled size back to an empty
// packet, without touching Vtag or ChunkList (matching spec.md §4.1: reset
// does not free already-queued chunks).
func (p *Packet) reset() {
	p.Size = p.Overhead
	p.HasCookieEcho = false
	p.HasSack = false
	p.HasData = false
	p.HasAuth = false
	p.IPFragOK = false
	p.Auth = nil
}

// Reset is reset's exported form, for callers (the segmentation loop, error
// paths) that must reset between transmissions.
func (p *Packet) Reset() { p.reset() }

// IsEmpty reports whether no chunk has been queued (size == overhead).
func (p *Packet) IsEmpty() bool { return p.Size == p.Overhead }

// pathMTU resolves the effective path MTU: the association's, if bound and
// positive, else the transport's.
func (p *Packet) pathMTU() int {
	if p.Association != nil && p.Association.PathMTU > 0 {
		return p.Association.PathMTU
	}
	return p.Transport.PathMTU
}

// Configure sets vtag and the envelope ceiling, and optionally prepends an
// ECN-Echo chunk when the packet is still empty. Route capability
// synchronization and PMTU/GSO ceiling selection follow spec.md §4.1.
func (p *Packet) Configure(vtag uint32, ecnCapable bool) {
	p.Vtag = vtag

	p.Transport.SyncRouteCapabilities()
	p.MaxSize = p.Transport.EffectiveMaxSize(p.pathMTU())

	if ecnCapable && p.IsEmpty() && p.Association != nil {
		ecne := p.Association.GetECNEchoPrepend()
		if ecne != nil {
			_ = p.appendUnconditional(ecne)
		}
	}
}

// Free detaches and frees every queued chunk, leaving ChunkList empty. The
// Packet object itself is caller-owned and is not freed here.
func (p *Packet) Free() {
	p.ChunkList = p.ChunkList[:0]
}

// appendUnconditional appends a chunk without running admission checks, used
// only by Configure for the ECN-Echo prepend into a guaranteed-empty packet.
func (p *Packet) appendUnconditional(c *chunk.Chunk) error {
	paddedLen := c.PaddedLength()
	p.ChunkList = append(p.ChunkList, c)
	p.Size += paddedLen
	return nil
}
