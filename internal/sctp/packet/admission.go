package packet

import (
	"math"
	"time"

	"github.com/alxayo/sctp-sender/internal/sctp/association"
	"github.com/alxayo/sctp-sender/internal/sctp/chunk"
)

// AppendChunk is the admission controller's public entry point. Check
// ordering is load-bearing: DATA flow control first, then AUTH bundling,
// then SACK bundling, then the common finalize path. Reordering these
// changes observable behavior (see canAppendData/bundleAuth/bundleSack).
func (p *Packet) AppendChunk(c *chunk.Chunk) AdmissionResult {
	res := p.appendChunk(c)
	if p.Metrics != nil {
		p.Metrics.RecordAdmission(res.String())
	}
	return res
}

func (p *Packet) appendChunk(c *chunk.Chunk) AdmissionResult {
	if c.IsData() {
		if res := p.canAppendData(c); res != Ok {
			return res
		}
	}
	if res := p.bundleAuth(c); res != Ok {
		return res
	}
	if res := p.bundleSack(c); res != Ok {
		return res
	}
	return p.append(c)
}

// canAppendData enforces flow control (rwnd, cwnd) and Nagle-style
// coalescing for a candidate DATA chunk before any bundling or the common
// append path runs.
func (p *Packet) canAppendData(c *chunk.Chunk) AdmissionResult {
	var rwnd int64 = math.MaxInt64
	var inflight int64
	if p.Association != nil {
		rwnd = p.Association.Peer.Rwnd
		inflight = p.Association.Outqueue.OutstandingBytes
	}
	flightSize := p.Transport.FlightSize
	cwnd := p.Transport.Cwnd
	datasize := int64(c.PayloadSize())

	if datasize > rwnd && inflight > 0 {
		return ReceiverWindowFull
	}
	if !c.Data.NeedFastRtx && flightSize >= cwnd {
		// Overloaded return value: "no window right now" whether the
		// cause is receiver window or congestion window exhaustion.
		return ReceiverWindowFull
	}
	if p.NoDelay {
		return Ok
	}
	if !p.IsEmpty() {
		return Ok
	}
	if inflight == 0 {
		return Ok
	}
	if p.Association == nil || p.Association.State != association.StateEstablished {
		return Ok
	}
	headroom := p.pathMTU() - p.Overhead - chunk.DataChunkHeaderSize - 4
	if int(datasize)+p.Association.Outqueue.OutQLen > headroom {
		return Ok
	}
	if !c.Data.CanDelay {
		return Ok
	}
	return Delay
}

// append is the common finalize path (spec.md §4.2.2): runs willFit, then
// on Ok dispatches per chunk type and queues the chunk.
func (p *Packet) append(c *chunk.Chunk) AdmissionResult {
	chunkLen := c.PaddedLength()
	if res := p.willFit(c, chunkLen); res != Ok {
		return res
	}

	switch c.Type {
	case chunk.TypeData:
		p.appendDataState(c)
		p.HasSack = true
		p.HasAuth = true
		p.HasData = true
		c.Data.SentAt = time.Now()
		c.Data.SentCount++
	case chunk.TypeCookieEcho:
		p.HasCookieEcho = true
	case chunk.TypeSack:
		p.HasSack = true
		if p.Association != nil {
			p.Association.Stats.OSacks++
		}
	case chunk.TypeAuth:
		p.HasAuth = true
		p.Auth = c
	}

	p.ChunkList = append(p.ChunkList, c)
	p.Size += chunkLen
	return Ok
}

// willFit decides whether chunkLen more bytes fit in the current envelope,
// implementing the literal branch ordering of net/sctp/output.c's
// sctp_packet_will_fit: several independent conditions each write PmtuFull,
// never downgrading back to Ok once set.
func (p *Packet) willFit(c *chunk.Chunk, chunkLen int) AdmissionResult {
	psize := p.Size
	pmtu := p.pathMTU()

	if psize+chunkLen <= pmtu {
		return Ok
	}

	requiresAuth := c.Data != nil && c.Data.AuthRequired
	if p.IsEmpty() || (!p.HasData && requiresAuth) {
		p.IPFragOK = true
		return Ok
	}

	result := Ok

	authLen := 0
	if p.Auth != nil {
		authLen = p.Auth.PaddedLength()
	}
	maxsize := pmtu - p.Overhead - authLen
	if chunkLen > maxsize {
		result = PmtuFull
	}
	if !c.IsData() && p.HasData {
		result = PmtuFull
	}
	if psize+chunkLen > p.MaxSize {
		result = PmtuFull
	}
	if p.Transport.BurstLimited == 0 {
		if int64(psize+chunkLen) > p.Transport.Cwnd/2 {
			result = PmtuFull
		}
	} else if int64(psize+chunkLen) > p.Transport.BurstLimited/2 {
		result = PmtuFull
	}
	return result
}

// appendDataState mutates Transport/Association flow-control state and
// assigns TSN/SSN, once a DATA chunk has cleared willFit.
func (p *Packet) appendDataState(c *chunk.Chunk) {
	datasize := int64(c.PayloadSize())
	p.Transport.FlightSize += datasize

	if p.Association == nil {
		return
	}
	p.Association.Outqueue.OutstandingBytes += datasize
	peer := &p.Association.Peer
	peer.Rwnd -= datasize
	if peer.Rwnd < 0 {
		peer.Rwnd = 0
	}
	if !peer.PRSCTPCapable {
		c.Data.CanAbandon = false
	}
	p.Association.AssignDataSequence(c)
}
