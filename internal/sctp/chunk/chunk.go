// Package chunk models the wire-level SCTP chunk (RFC 4960 §3.2): the
// smallest structured unit the packet builder admits and serializes. The
// type is intentionally thin — chunk production (DATA fragmentation, control
// chunk construction beyond the bundling helpers in factory.go) lives
// upstream of this package.
package chunk

import (
	"encoding/binary"
	"errors"
	"time"

	protoerr "github.com/alxayo/sctp-sender/internal/errors"
)

// Type identifies the SCTP chunk type octet (RFC 4960 §3.2).
type Type uint8

const (
	TypeData             Type = 0
	TypeInit             Type = 1
	TypeInitAck          Type = 2
	TypeSack             Type = 3
	TypeHeartbeat        Type = 4
	TypeHeartbeatAck     Type = 5
	TypeAbort            Type = 6
	TypeShutdown         Type = 7
	TypeShutdownAck      Type = 8
	TypeError            Type = 9
	TypeCookieEcho       Type = 10
	TypeCookieAck        Type = 11
	TypeECNEcho          Type = 12
	TypeCWR              Type = 13
	TypeShutdownComplete Type = 14
	TypeAuth             Type = 0x0F
)

func (t Type) String() string {
	switch t {
	case TypeData:
		return "DATA"
	case TypeInit:
		return "INIT"
	case TypeInitAck:
		return "INIT_ACK"
	case TypeSack:
		return "SACK"
	case TypeHeartbeat:
		return "HEARTBEAT"
	case TypeHeartbeatAck:
		return "HEARTBEAT_ACK"
	case TypeAbort:
		return "ABORT"
	case TypeShutdown:
		return "SHUTDOWN"
	case TypeShutdownAck:
		return "SHUTDOWN_ACK"
	case TypeError:
		return "ERROR"
	case TypeCookieEcho:
		return "COOKIE_ECHO"
	case TypeCookieAck:
		return "COOKIE_ACK"
	case TypeECNEcho:
		return "ECNE"
	case TypeCWR:
		return "CWR"
	case TypeShutdownComplete:
		return "SHUTDOWN_COMPLETE"
	case TypeAuth:
		return "AUTH"
	default:
		return "UNKNOWN"
	}
}

// chunkHeaderSize is the fixed 4-byte chunk header: type(1) flags(1) length(2).
const chunkHeaderSize = 4

// dataChunkHeaderSize is the DATA chunk's full fixed header: the common chunk
// header followed by TSN(4) StreamID(2) StreamSeq(2) PPID(4).
const dataChunkHeaderSize = chunkHeaderSize + 12

// authHMACFieldOffset locates the HMAC field within an AUTH chunk's Raw
// encoding: common header(4) + shared key id(2) + hmac id(2).
const authHMACFieldOffset = chunkHeaderSize + 4

// DataChunkHeaderSize is the DATA chunk header width, exported for the
// admission controller's packet-fill headroom calculation.
const DataChunkHeaderSize = dataChunkHeaderSize

// DataMeta carries the DATA-chunk-only bookkeeping the builder reads and
// mutates during admission and transmission.
type DataMeta struct {
	AuthRequired   bool // peer requested authentication for this chunk type
	NeedFastRtx    bool // fast-retransmit demand bypasses cwnd gating
	Resent         bool
	SentAt         time.Time
	SentCount      int
	RTTInProgress  bool
	CanDelay       bool // message allows Nagle-style delay
	CanAbandon     bool // PR-SCTP: message may be abandoned
	TSN            uint32
	StreamID       uint16
	StreamSeq      uint16
	PayloadSize    int // bytes of user payload, excludes chunk headers
}

// Chunk is the opaque-to-the-builder unit of admission. Raw holds the full
// wire encoding (chunk header + body) without the trailing 4-byte alignment
// padding; Length() reports len(Raw).
type Chunk struct {
	Type  Type
	Flags uint8
	Raw   []byte

	Data *DataMeta // non-nil iff Type == TypeData

	hmacKeyID uint16 // AUTH only
	hmacID    uint16 // AUTH only
}

// Length returns the pre-padding wire length of the chunk (header + body).
func (c *Chunk) Length() int { return len(c.Raw) }

// IsData reports whether this chunk carries user data.
func (c *Chunk) IsData() bool { return c.Type == TypeData }

// PayloadSize returns the flow-control-relevant byte count: for DATA chunks
// this is the user payload size; for everything else it is 0.
func (c *Chunk) PayloadSize() int {
	if c.Data == nil {
		return 0
	}
	return c.Data.PayloadSize
}

// PaddedLength returns Length() rounded up to the next 4-byte boundary, the
// space this chunk actually occupies on the wire once padded.
func (c *Chunk) PaddedLength() int { return RoundUp4(c.Length()) }

// RoundUp4 rounds n up to the next multiple of 4.
func RoundUp4(n int) int { return (n + 3) &^ 3 }

// encodeHeader writes the 4-byte common chunk header into dst[0:4].
func encodeHeader(dst []byte, t Type, flags uint8, length int) {
	dst[0] = byte(t)
	dst[1] = flags
	binary.BigEndian.PutUint16(dst[2:4], uint16(length))
}

// NewData builds a DATA chunk carrying payload on the given outgoing stream.
// TSN and stream sequence number are assigned later, at append time, by the
// association (see Association.AssignDataSequence).
func NewData(streamID uint16, ppid uint32, payload []byte, canDelay, canAbandon, authRequired bool) (*Chunk, error) {
	if len(payload) == 0 {
		return nil, protoerr.NewChunkError("chunk.new_data", errEmptyPayload)
	}
	length := dataChunkHeaderSize + len(payload)
	raw := make([]byte, length)
	encodeHeader(raw, TypeData, 0, length)
	// TSN written at append time; stream fields written now, PPID fixed.
	binary.BigEndian.PutUint16(raw[8:10], streamID)
	binary.BigEndian.PutUint32(raw[12:16], ppid)
	copy(raw[dataChunkHeaderSize:], payload)
	return &Chunk{
		Type: TypeData,
		Raw:  raw,
		Data: &DataMeta{
			AuthRequired: authRequired,
			CanDelay:     canDelay,
			CanAbandon:   canAbandon,
			StreamID:     streamID,
			PayloadSize:  len(payload),
		},
	}, nil
}

// SetTSN stamps the chunk's Transmission Sequence Number into the wire
// encoding (bytes 4:8 of a DATA chunk) and the DataMeta mirror.
func (c *Chunk) SetTSN(tsn uint32) {
	if c.Type != TypeData || len(c.Raw) < dataChunkHeaderSize {
		return
	}
	binary.BigEndian.PutUint32(c.Raw[4:8], tsn)
	if c.Data != nil {
		c.Data.TSN = tsn
	}
}

// SetStreamSeq stamps the chunk's Stream Sequence Number (bytes 10:12).
func (c *Chunk) SetStreamSeq(ssn uint16) {
	if c.Type != TypeData || len(c.Raw) < dataChunkHeaderSize {
		return
	}
	binary.BigEndian.PutUint16(c.Raw[10:12], ssn)
	if c.Data != nil {
		c.Data.StreamSeq = ssn
	}
}

var errEmptyPayload = errors.New("data chunk requires a non-empty payload")
