package packet

import (
	"encoding/binary"
	"hash/crc32"
	"log/slog"

	"github.com/alxayo/sctp-sender/internal/bufpool"
	"github.com/alxayo/sctp-sender/internal/logger"
	"github.com/alxayo/sctp-sender/internal/sctp/association"
	"github.com/alxayo/sctp-sender/internal/sctp/chunk"
	"github.com/alxayo/sctp-sender/internal/sctp/transport"
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// encodeCommonHeader writes the 12-byte SCTP common header (source port,
// destination port, vtag, checksum placeholder) into dst[0:12].
func encodeCommonHeader(dst []byte, srcPort, dstPort uint16, vtag uint32) {
	binary.BigEndian.PutUint16(dst[0:2], srcPort)
	binary.BigEndian.PutUint16(dst[2:4], dstPort)
	binary.BigEndian.PutUint32(dst[4:8], vtag)
	binary.BigEndian.PutUint32(dst[8:12], 0)
}

// Transmit serializes the queued chunks to one or more IP envelopes and
// hands them to the transport's AF-specific transmit hook. It never
// produces a chunkless send, and it always resets the packet before
// returning — successful or not — so the caller can reuse it immediately.
//
// Resource failures (allocation, missing route, GSO segment-count overflow)
// are swallowed: the packet is reset, non-DATA chunks are dropped, and 0 is
// returned, matching spec.md §7's "transient condition on one path must not
// fail the association" rule. IP-layer errors propagate as the transmit
// hook's own return value.
func (p *Packet) Transmit() (int, error) {
	if len(p.ChunkList) == 0 {
		return 0, nil
	}

	log := logger.WithTransport(logger.Logger(), p.Transport.ID, "")

	gso := false
	if p.Size > p.Transport.PathMTU && !p.IPFragOK {
		route := p.Transport.Route()
		if route != nil && route.GSOCapable {
			gso = true
		} else {
			log.Warn("packet exceeds path mtu with no fragok or gso capability",
				"size", p.Size, "pathmtu", p.Transport.PathMTU)
			return p.abortResourceFailure()
		}
	}

	p.Transport.SyncRouteCapabilities()
	route := p.Transport.Route()
	if route == nil || route.Conn == nil {
		if p.Association != nil {
			p.Association.Stats.IPNoRoute++
		}
		return p.abortResourceFailure()
	}

	segments, segmentCount, err := p.buildSegments(route, gso, log)
	if err != nil {
		return p.abortResourceFailure()
	}

	checksumInSoftware := !route.ChecksumOffload || route.HasXfrmTransform || p.IPFragOK
	envelope := make([]byte, 0, len(segments)*len(segments[0]))
	for _, seg := range segments {
		if checksumInSoftware {
			sum := crc32.Checksum(seg, crc32cTable)
			binary.BigEndian.PutUint32(seg[8:12], sum)
		}
		envelope = append(envelope, seg...)
		bufpool.Put(seg)
	}

	if p.Transport.AFSpecific.ECNCapable != nil {
		p.Transport.AFSpecific.ECNCapable(p.Transport)
	}

	if p.Association != nil {
		p.Association.Stats.OPackets += uint64(segmentCount)
		if p.Association.Peer.LastSentTo != p.Transport {
			p.Association.Peer.LastSentTo = p.Transport
		}
		if p.HasData && p.Association.State == association.StateEstablished && p.Association.AutocloseDuration > 0 {
			if p.Association.AutocloseTimer.Restart(p.Association.AutocloseDuration, nil) {
				p.Association.Hold()
			}
		}
	}

	if gso {
		p.Transport.SyncRouteCapabilities()
	}

	var n int
	var xmitErr error
	if p.Transport.AFSpecific.Xmit != nil {
		n, xmitErr = p.Transport.AFSpecific.Xmit(envelope, p.Transport)
	}

	p.Free()
	p.reset()
	return n, xmitErr
}

// buildSegments walks chunk_list building one or more segment buffers: one
// in the non-GSO case, or as many as the GSO envelope needs, re-including
// the AUTH chunk (if any) in every segment so each segment's HMAC coverage
// is independently correct, per spec.md §4.4 step 5.
func (p *Packet) buildSegments(route *transport.Route, gso bool, log *slog.Logger) ([][]byte, int, error) {
	pathMTU := p.Transport.PathMTU

	authChunk := p.Auth
	remaining := removeChunk(p.ChunkList, authChunk)

	var segments [][]byte
	for {
		segChunks := make([]*chunk.Chunk, 0, len(remaining)+1)
		// pktSize tracks the budget against pathMTU, seeded from the full
		// per-packet overhead (common header + IP header) like p.Size and
		// admission.go's checks do. wireSize tracks the bytes actually
		// written into buf: the IP header isn't ours to serialize, so it
		// must not inflate the allocated buffer.
		pktSize := p.Overhead
		wireSize := commonHeaderSize
		authLen := 0
		if authChunk != nil {
			segChunks = append(segChunks, authChunk)
			authLen = authChunk.PaddedLength()
			pktSize += authLen
			wireSize += authLen
		}

		i := 0
		for i < len(remaining) {
			c := remaining[i]
			padded := c.PaddedLength()
			if authLen+padded+p.Overhead > pathMTU {
				log.Error("segment cannot accommodate chunk under auth coverage", "chunk_type", c.Type.String())
				return nil, 0, errSegmentOverflow
			}
			if gso && pktSize+padded > pathMTU {
				break
			}
			pktSize += padded
			wireSize += padded
			segChunks = append(segChunks, c)
			i++
		}
		if i == 0 && len(remaining) > 0 {
			// A single chunk alone (plus AUTH coverage) doesn't fit — the
			// caller handed in something larger than path MTU.
			return nil, 0, errSegmentOverflow
		}
		remaining = remaining[i:]

		buf := bufpool.Get(wireSize)
		encodeCommonHeader(buf, p.SourcePort, p.DestinationPort, p.Vtag)
		off := commonHeaderSize
		authOffset := -1
		for _, c := range segChunks {
			if c == authChunk {
				authOffset = off
			}
			copy(buf[off:], c.Raw)
			if c.IsData() {
				if !c.Data.Resent && !p.Transport.RTOPending {
					c.Data.RTTInProgress = true
					p.Transport.RTOPending = true
				}
			}
			off += c.PaddedLength()
		}

		if authChunk != nil && authOffset >= 0 {
			following := buf[authOffset+authChunk.Length() : off]
			var key []byte
			if p.Association != nil {
				key = p.Association.AuthKeyFor(authChunk.AuthKeyID())
			}
			if err := authChunk.WriteAuthMAC(buf, authOffset, key, following); err != nil {
				log.Error("failed to compute auth mac for segment", "error", err.Error())
			}
		}

		segments = append(segments, buf)

		if !gso {
			break
		}
		if len(remaining) == 0 {
			break
		}
		if len(segments) >= maxGSOSegmentsGuard(route) {
			log.Error("gso segment count exceeds device maximum")
			return nil, 0, errSegmentOverflow
		}
	}

	if authChunk != nil && len(remaining) == 0 {
		p.Auth = nil
	}

	return segments, len(segments), nil
}

// maxGSOSegmentsGuard returns the device's configured segment ceiling, or a
// generous default when the route hasn't advertised one.
func maxGSOSegmentsGuard(route *transport.Route) int {
	if route.MaxGSOSegments > 0 {
		return route.MaxGSOSegments
	}
	return 64
}

// removeChunk returns list with the first occurrence of target removed
// (target may be nil, in which case list is returned unchanged).
func removeChunk(list []*chunk.Chunk, target *chunk.Chunk) []*chunk.Chunk {
	if target == nil {
		return list
	}
	out := make([]*chunk.Chunk, 0, len(list))
	removed := false
	for _, c := range list {
		if !removed && c == target {
			removed = true
			continue
		}
		out = append(out, c)
	}
	return out
}

// abortResourceFailure implements spec.md §4.4's resource-failure cleanup:
// drop non-DATA chunks, reset the packet, and return 0 without propagating
// an error — a transient local condition must not fail the association.
func (p *Packet) abortResourceFailure() (int, error) {
	p.Free()
	p.reset()
	return 0, nil
}

var errSegmentOverflow = segmentOverflowError{}

type segmentOverflowError struct{}

func (segmentOverflowError) Error() string { return "segment cannot be built within device limits" }
