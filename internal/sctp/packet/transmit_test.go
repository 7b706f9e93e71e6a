package packet

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"hash/crc32"
	"net"
	"testing"

	"github.com/alxayo/sctp-sender/internal/sctp/association"
	"github.com/alxayo/sctp-sender/internal/sctp/chunk"
	"github.com/alxayo/sctp-sender/internal/sctp/transport"
)

func fakeConn(t *testing.T) net.Conn {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return a
}

func withCapturingXmit(tr *transport.Transport) *[]byte {
	captured := new([]byte)
	tr.AFSpecific.Xmit = func(envelope []byte, _ *transport.Transport) (int, error) {
		*captured = append([]byte(nil), envelope...)
		return len(envelope), nil
	}
	return captured
}

// Scenario 1 (serialization half): a single 100-byte DATA chunk serializes
// to one DATA chunk on the wire with a valid CRC32-C checksum.
func TestScenario1_TransmitSingleDataChunk(t *testing.T) {
	route := &transport.Route{Conn: fakeConn(t)}
	tr := newTestTransport(1500, route)
	captured := withCapturingXmit(tr)

	p := Init(tr, 100, 200)
	p.Configure(0xABCD1234, false)
	c, _ := chunk.NewData(1, 0, make([]byte, 100), true, true, false)
	if res := p.AppendChunk(c); res != Ok {
		t.Fatalf("expected Ok, got %v", res)
	}

	n, err := p.Transmit()
	if err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	if n == 0 {
		t.Fatalf("expected a non-zero transmit result")
	}

	env := *captured
	wantLen := commonHeaderSize + chunk.DataChunkHeaderSize + 100
	if len(env) != wantLen {
		t.Fatalf("expected envelope length %d, got %d", wantLen, len(env))
	}
	if got := binary.BigEndian.Uint16(env[0:2]); got != 100 {
		t.Fatalf("expected source port 100, got %d", got)
	}
	if got := binary.BigEndian.Uint32(env[4:8]); got != 0xABCD1234 {
		t.Fatalf("expected vtag preserved, got %x", got)
	}

	sum := crc32.Checksum(withZeroChecksum(env), crc32.MakeTable(crc32.Castagnoli))
	if got := binary.BigEndian.Uint32(env[8:12]); got != sum {
		t.Fatalf("checksum mismatch: wire %x, recomputed %x", got, sum)
	}

	if !p.IsEmpty() || len(p.ChunkList) != 0 {
		t.Fatalf("expected packet reset after Transmit")
	}
}

func withZeroChecksum(env []byte) []byte {
	out := append([]byte(nil), env...)
	binary.BigEndian.PutUint32(out[8:12], 0)
	return out
}

// Scenario 6: a DATA chunk requiring authentication bundles an AUTH chunk
// first; the wire HMAC verifies against the shared key.
func TestScenario6_AuthBundledAndHMACVerifies(t *testing.T) {
	route := &transport.Route{Conn: fakeConn(t)}
	tr := newTestTransport(1500, route)
	captured := withCapturingXmit(tr)

	asoc := association.New()
	key := []byte("shared-secret-key")
	asoc.AuthKeys = map[uint16][]byte{7: key}
	asoc.Peer.AuthKeyID = 7
	asoc.Peer.AuthHMACID = 1

	p := Init(tr, 1, 2)
	p.Association = asoc
	p.Configure(1, false)

	c, _ := chunk.NewData(1, 0, make([]byte, 64), true, true, true)
	if res := p.AppendChunk(c); res != Ok {
		t.Fatalf("expected Ok, got %v", res)
	}

	if _, err := p.Transmit(); err != nil {
		t.Fatalf("Transmit: %v", err)
	}

	env := *captured
	off := commonHeaderSize
	if chunk.Type(env[off]) != chunk.TypeAuth {
		t.Fatalf("expected AUTH chunk first on the wire, got type %d", env[off])
	}
	authLen := int(binary.BigEndian.Uint16(env[off+2 : off+4]))
	authPadded := chunk.RoundUp4(authLen)
	dataOff := off + authPadded
	if chunk.Type(env[dataOff]) != chunk.TypeData {
		t.Fatalf("expected DATA chunk following AUTH, got type %d", env[dataOff])
	}

	macStart := off + 8 // common header(4) + key id(2) + hmac id(2)
	macLen := sha1.Size
	zeroed := append([]byte(nil), env[off:off+authLen]...)
	for i := 8; i < 8+macLen; i++ {
		zeroed[i] = 0
	}
	mac := hmac.New(sha1.New, key)
	mac.Write(zeroed)
	mac.Write(env[dataOff:])
	want := mac.Sum(nil)

	if !hmacEqual(env[macStart:macStart+macLen], want) {
		t.Fatalf("HMAC does not verify against the shared key")
	}
}

func hmacEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Scenario 7 (adapted): a GSO-capable route receives ten 1000-byte DATA
// chunks. Each DATA chunk's wire length (1016 bytes) leaves no room for a
// second one within one 1500-byte path-MTU segment, so — since this core
// never splits an already-built chunk across segments — the GSO envelope
// here holds one DATA chunk per segment: ten segments, not the coarser
// byte-only ceil(10000/1500) estimate.
func TestScenario7_GSOEnvelopeSpansMultipleSegments(t *testing.T) {
	route := &transport.Route{Conn: fakeConn(t), GSOCapable: true, GSOMaxSize: 65507}
	tr := newTestTransport(1500, route)
	captured := withCapturingXmit(tr)

	asoc := association.New()
	asoc.Peer.Rwnd = 1 << 20
	p := Init(tr, 1, 2)
	p.Association = asoc
	p.Configure(1, false)

	for i := 0; i < 10; i++ {
		c, _ := chunk.NewData(1, 0, make([]byte, 1000), true, true, false)
		if res := p.AppendChunk(c); res != Ok {
			t.Fatalf("append %d: expected Ok, got %v", i, res)
		}
	}

	if _, err := p.Transmit(); err != nil {
		t.Fatalf("Transmit: %v", err)
	}

	if asoc.Stats.OPackets != 10 {
		t.Fatalf("expected 10 GSO segments, got %d", asoc.Stats.OPackets)
	}

	env := *captured
	// Each segment must itself be no larger than path MTU.
	off := 0
	segments := 0
	for off < len(env) {
		length := int(binary.BigEndian.Uint16(env[off+commonHeaderSize+2 : off+commonHeaderSize+4]))
		segSize := commonHeaderSize + chunk.RoundUp4(length)
		if segSize > 1500 {
			t.Fatalf("segment %d exceeds path MTU: %d", segments, segSize)
		}
		off += segSize
		segments++
	}
	if segments != 10 {
		t.Fatalf("expected 10 parsed segments, got %d", segments)
	}
}

func TestTransmitEmptyChunkListReturnsZero(t *testing.T) {
	tr := newTestTransport(1500, nil)
	p := Init(tr, 1, 2)
	p.Configure(1, false)
	n, err := p.Transmit()
	if err != nil || n != 0 {
		t.Fatalf("expected (0, nil) for an empty packet, got (%d, %v)", n, err)
	}
}

func TestTransmitNoRouteBumpsIPNoRouteStat(t *testing.T) {
	tr := newTestTransport(1500, nil) // no route configured
	asoc := association.New()
	p := Init(tr, 1, 2)
	p.Association = asoc
	p.Configure(1, false)
	c, _ := chunk.NewData(1, 0, make([]byte, 50), true, true, false)
	p.AppendChunk(c)

	n, err := p.Transmit()
	if err != nil || n != 0 {
		t.Fatalf("expected (0, nil) on missing route, got (%d, %v)", n, err)
	}
	if asoc.Stats.IPNoRoute != 1 {
		t.Fatalf("expected ip_no_route stat incremented, got %d", asoc.Stats.IPNoRoute)
	}
	if len(p.ChunkList) != 0 {
		t.Fatalf("expected chunk list cleared after resource failure")
	}
}
