package integration

// End-to-end integration test driving the packet builder the way
// cmd/sctp-sender does: build a Transport over a real net.Conn pair, an
// Association with AUTH configured, admit several DATA chunks, transmit,
// and verify both the bytes that hit the wire and the metrics a scrape
// would observe afterward.

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alxayo/sctp-sender/internal/ipxmit"
	"github.com/alxayo/sctp-sender/internal/metrics"
	"github.com/alxayo/sctp-sender/internal/sctp/association"
	"github.com/alxayo/sctp-sender/internal/sctp/chunk"
	"github.com/alxayo/sctp-sender/internal/sctp/packet"
	"github.com/alxayo/sctp-sender/internal/sctp/transport"
)

func TestEndToEndAuthenticatedSendLoop(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	route := ipxmit.DetectRoute(client)
	tr := transport.NewTraced(1500, route)
	tr.Cwnd = 1 << 20
	tr.AFSpecific.Xmit = ipxmit.Xmit

	asoc := association.New()
	asoc.Peer.Rwnd = 1 << 20
	key := []byte("integration-shared-secret")
	asoc.AuthKeys = map[uint16][]byte{3: key}
	asoc.Peer.AuthKeyID = 3
	asoc.Peer.AuthHMACID = 1

	collector := metrics.New("sctp_sender_it", []string{"transport"}, nil)
	reg := prometheus.NewRegistry()
	if err := reg.Register(collector); err != nil {
		t.Fatalf("Register: %v", err)
	}
	collector.AddTransport(tr, tr.ID)
	collector.Add(asoc, tr.ID)

	p := packet.Init(tr, 100, 200)
	p.Association = asoc
	p.NoDelay = true
	p.Metrics = collector
	p.Configure(0x11223344, false)

	const chunks = 4
	received := make(chan []byte, chunks)
	go func() {
		buf := make([]byte, 1500)
		for i := 0; i < chunks; i++ {
			n, err := server.Read(buf)
			if err != nil {
				return
			}
			received <- append([]byte(nil), buf[:n]...)
		}
	}()

	for i := 0; i < chunks; i++ {
		c, err := chunk.NewData(uint16(i), 0, []byte{byte(i), byte(i + 1)}, true, true, true)
		if err != nil {
			t.Fatalf("NewData %d: %v", i, err)
		}
		if res := p.AppendChunk(c); res != packet.Ok {
			t.Fatalf("append %d: expected Ok, got %v", i, res)
		}
		if _, err := p.Transmit(); err != nil {
			t.Fatalf("Transmit %d: %v", i, err)
		}
	}

	for i := 0; i < chunks; i++ {
		select {
		case env := <-received:
			if chunk.Type(env[12]) != chunk.TypeAuth {
				t.Fatalf("segment %d: expected AUTH chunk first, got type %d", i, env[12])
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for segment %d", i)
		}
	}

	if asoc.Stats.OPackets != chunks {
		t.Fatalf("expected %d OPackets, got %d", chunks, asoc.Stats.OPackets)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var sawAdmissionOk bool
	for _, f := range families {
		if f.GetName() != "sctp_sender_it_admission_results_total" {
			continue
		}
		for _, m := range f.Metric {
			for _, l := range m.Label {
				if l.GetName() == "result" && l.GetValue() == "Ok" && m.GetCounter().GetValue() == chunks {
					sawAdmissionOk = true
				}
			}
		}
	}
	if !sawAdmissionOk {
		t.Fatalf("expected %d Ok admissions recorded in the metrics registry", chunks)
	}
}

// TestEndToEndGSOEnvelopeOverConn drives a GSO-capable route across a real
// net.Conn, confirming the concatenated superframe the peer receives parses
// back into the same number of independently-checksummed segments that were
// admitted.
func TestEndToEndGSOEnvelopeOverConn(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	tr := transport.NewTraced(1500, &transport.Route{Conn: client, GSOCapable: true, GSOMaxSize: 65507})
	tr.Cwnd = 1 << 20
	tr.AFSpecific.Xmit = ipxmit.Xmit

	asoc := association.New()
	asoc.Peer.Rwnd = 1 << 20

	p := packet.Init(tr, 1, 2)
	p.Association = asoc
	p.Configure(1, false)

	const segments = 5
	for i := 0; i < segments; i++ {
		c, err := chunk.NewData(0, 0, make([]byte, 900), true, true, false)
		if err != nil {
			t.Fatalf("NewData %d: %v", i, err)
		}
		if res := p.AppendChunk(c); res != packet.Ok {
			t.Fatalf("append %d: expected Ok, got %v", i, res)
		}
	}

	envCh := make(chan []byte, 1)
	go func() {
		buf, err := io.ReadAll(io.LimitReader(server, 64*1024))
		if err != nil {
			return
		}
		envCh <- buf
	}()

	// Give the reader goroutine a head start before the single GSO write
	// lands, then signal completion by closing the write side.
	go func() {
		if _, err := p.Transmit(); err != nil {
			t.Errorf("Transmit: %v", err)
		}
		client.Close()
	}()

	var env []byte
	select {
	case env = <-envCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the GSO envelope")
	}

	off := 0
	count := 0
	for off < len(env) {
		length := int(binary.BigEndian.Uint16(env[off+14 : off+16]))
		segSize := 12 + ((length + 3) &^ 3)
		if segSize > 1500 {
			t.Fatalf("segment %d exceeds path mtu: %d", count, segSize)
		}
		off += segSize
		count++
	}
	if count != segments {
		t.Fatalf("expected %d segments, got %d", segments, count)
	}
	if asoc.Stats.OPackets != segments {
		t.Fatalf("expected OPackets == segments (%d), got %d", segments, asoc.Stats.OPackets)
	}
}
