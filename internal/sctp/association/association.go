// Package association models the read-mostly view of the SCTP association
// the packet builder consults and selectively mutates: peer receiver
// window, SACK/autoclose timer state, outstanding-byte accounting, AUTH
// keying, and TSN/SSN generation. Handshake logic and the full association
// state machine are out of scope (see spec.md Non-goals) — only the fields
// and timer transitions the builder itself drives live here.
package association

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/alxayo/sctp-sender/internal/sctp/chunk"
	"github.com/alxayo/sctp-sender/internal/sctp/transport"
)

// State is a deliberately small subset of the full SCTP association state
// machine — only the distinction the admission controller's Nagle check
// needs (spec.md §4.2.1: "if the association is not in ESTABLISHED state").
type State int

const (
	StateCookieWait State = iota
	StateCookieEchoed
	StateEstablished
	StateShutdownPending
	StateShutdownSent
)

// Peer mirrors the peer-facing fields the builder reads and mutates.
type Peer struct {
	Rwnd           int64 // receiver window, decremented on DATA admission
	SackGeneration uint32
	SackNeeded     bool
	LastSentTo     *transport.Transport
	PRSCTPCapable  bool
	AuthHMACID     uint16
	AuthKeyID      uint16
}

// Outqueue mirrors the retransmit queue's accounting fields.
type Outqueue struct {
	OutstandingBytes int64
	OutQLen          int
}

// Stats mirrors the association's packet/SACK counters. Incremented under
// the caller's lock — no atomics needed per the concurrency model.
type Stats struct {
	OPackets  uint64
	OSacks    uint64
	IPNoRoute uint64
}

// RefTimer is a cancellable timer for the "SACK timer cancellation releases
// one association reference" rule. It keeps no count itself: Restart and
// Cancel report the transitions on which the caller Holds or Puts the
// association.
type RefTimer struct {
	mu     sync.Mutex
	timer  *time.Timer
	active bool
}

// Pending reports whether the timer is currently armed.
func (r *RefTimer) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Restart (re)arms the timer for d, returning true if it was previously
// inactive (the caller should Hold() the association in that case).
func (r *RefTimer) Restart(d time.Duration, onFire func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	wasInactive := !r.active
	if r.timer != nil {
		r.timer.Stop()
	}
	r.active = true
	r.timer = time.AfterFunc(d, func() {
		r.mu.Lock()
		r.active = false
		r.mu.Unlock()
		if onFire != nil {
			onFire()
		}
	})
	return wasInactive
}

// Cancel disarms the timer, reporting whether it had been active (the
// caller should Put() the association exactly once when true).
func (r *RefTimer) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return false
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.active = false
	return true
}

// Association is the read-mostly view the packet builder is handed.
type Association struct {
	State   State
	PathMTU int // association-level PMTU; overrides Transport.PathMTU when > 0

	// Rwnd is our own local receive window, distinct from Peer.Rwnd (the
	// peer's advertised window, used for our own outbound flow control).
	// bundleSack freezes this into ARwnd when it builds an outbound SACK.
	Rwnd int64

	Peer     Peer
	Outqueue Outqueue
	Stats    Stats

	// ARwnd is the frozen advertised receiver window, set by bundleSack
	// immediately before the SACK chunk is built.
	ARwnd uint32
	// CumulativeTSNAck is the cumulative TSN this association last
	// acknowledged — fed into MakeSackChunk.
	CumulativeTSNAck uint32

	AuthKeys map[uint16][]byte // shared key id -> secret

	// ECNLowestTSN is the lowest TSN observed with the CE codepoint set
	// since the last ECN-Echo was sent; zero means none observed.
	ECNLowestTSN uint32

	SackTimer         *RefTimer
	AutocloseTimer    *RefTimer
	AutocloseDuration time.Duration // 0 disables autoclose

	holdCount int32

	nextTSN uint32
	ssnMu   sync.Mutex
	nextSSN map[uint16]uint16
}

// New creates an Association with fresh timers and sequence generators.
func New() *Association {
	return &Association{
		State:          StateEstablished,
		SackTimer:      &RefTimer{},
		AutocloseTimer: &RefTimer{},
		nextSSN:        make(map[uint16]uint16),
	}
}

// Hold increments the association's external reference count.
func (a *Association) Hold() { atomic.AddInt32(&a.holdCount, 1) }

// Put decrements the association's external reference count.
func (a *Association) Put() { atomic.AddInt32(&a.holdCount, -1) }

// HoldCount reports the current reference count (test/observability only).
func (a *Association) HoldCount() int32 { return atomic.LoadInt32(&a.holdCount) }

// NextTSN returns the next monotonic Transmission Sequence Number.
func (a *Association) NextTSN() uint32 { return atomic.AddUint32(&a.nextTSN, 1) - 1 }

// NextSSN returns the next per-stream Stream Sequence Number, wrapping per
// RFC 4960's 16-bit field.
func (a *Association) NextSSN(streamID uint16) uint16 {
	a.ssnMu.Lock()
	defer a.ssnMu.Unlock()
	v := a.nextSSN[streamID]
	a.nextSSN[streamID] = v + 1
	return v
}

// AssignDataSequence stamps the next TSN and the next SSN of the chunk's
// stream onto a DATA chunk at append time, per spec.md §4.2.4. Every call
// takes a fresh SSN; fragments of one message are not told apart.
func (a *Association) AssignDataSequence(c *chunk.Chunk) {
	if c == nil || !c.IsData() {
		return
	}
	c.SetTSN(a.NextTSN())
	c.SetStreamSeq(a.NextSSN(c.Data.StreamID))
}

// MakeAuthChunk builds an AUTH chunk keyed with this association's current
// AUTH keying material, or nil if no AUTH key is configured.
func (a *Association) MakeAuthChunk() *chunk.Chunk {
	if len(a.AuthKeys) == 0 {
		return nil
	}
	return chunk.NewAuth(a.Peer.AuthKeyID, a.Peer.AuthHMACID)
}

// MakeSackChunk builds a SACK chunk for the current cumulative TSN and
// frozen advertised window.
func (a *Association) MakeSackChunk() *chunk.Chunk {
	return chunk.NewSack(a.CumulativeTSNAck, a.ARwnd, nil)
}

// GetECNEchoPrepend builds an ECN-Echo prepend chunk, or nil if no CE-marked
// segment has been observed since the last one was sent.
func (a *Association) GetECNEchoPrepend() *chunk.Chunk {
	if a.ECNLowestTSN == 0 {
		return nil
	}
	return chunk.NewECNEcho(a.ECNLowestTSN)
}

// AuthKeyFor resolves the shared secret for a key id, for HMAC computation
// at transmit time.
func (a *Association) AuthKeyFor(keyID uint16) []byte { return a.AuthKeys[keyID] }
