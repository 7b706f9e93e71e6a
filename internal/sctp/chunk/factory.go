package chunk

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // RFC 4895 HMAC-SHA1 is the mandatory-to-implement SCTP-AUTH algorithm
	"encoding/binary"
	"errors"

	protoerr "github.com/alxayo/sctp-sender/internal/errors"
)

// GapAck describes one SACK Gap Ack Block (RFC 4960 §3.3.4): TSNs in
// [cumTSN+Start, cumTSN+End] have been received.
type GapAck struct {
	Start uint16
	End   uint16
}

// NewSack builds a SACK chunk acknowledging cumTSN with the given advertised
// receiver window and gap-ack blocks. Duplicate TSN reporting is omitted —
// not needed by anything the packet builder observes.
func NewSack(cumTSN, aRwnd uint32, gaps []GapAck) *Chunk {
	body := make([]byte, 12+4*len(gaps))
	binary.BigEndian.PutUint32(body[0:4], cumTSN)
	binary.BigEndian.PutUint32(body[4:8], aRwnd)
	binary.BigEndian.PutUint16(body[8:10], uint16(len(gaps)))
	binary.BigEndian.PutUint16(body[10:12], 0) // number of duplicate TSNs
	off := 12
	for _, g := range gaps {
		binary.BigEndian.PutUint16(body[off:off+2], g.Start)
		binary.BigEndian.PutUint16(body[off+2:off+4], g.End)
		off += 4
	}
	length := chunkHeaderSize + len(body)
	raw := make([]byte, length)
	encodeHeader(raw, TypeSack, 0, length)
	copy(raw[chunkHeaderSize:], body)
	return &Chunk{Type: TypeSack, Raw: raw}
}

// NewCookieEcho wraps an opaque state cookie (produced by the association
// during the 4-way handshake, out of this package's scope) in a COOKIE_ECHO
// chunk.
func NewCookieEcho(cookie []byte) *Chunk {
	length := chunkHeaderSize + len(cookie)
	raw := make([]byte, length)
	encodeHeader(raw, TypeCookieEcho, 0, length)
	copy(raw[chunkHeaderSize:], cookie)
	return &Chunk{Type: TypeCookieEcho, Raw: raw}
}

// NewECNEcho builds an ECN-Echo chunk reporting the lowest TSN seen with the
// CE codepoint set.
func NewECNEcho(lowestTSN uint32) *Chunk {
	raw := make([]byte, chunkHeaderSize+4)
	encodeHeader(raw, TypeECNEcho, 0, len(raw))
	binary.BigEndian.PutUint32(raw[chunkHeaderSize:], lowestTSN)
	return &Chunk{Type: TypeECNEcho, Raw: raw}
}

// NewAuth builds an AUTH chunk (RFC 4895 §3) covering itself and every chunk
// that follows it in the same packet. The HMAC field is left zeroed; the
// packet serializer fills it in once the full segment is known (it is the
// only stage that knows what bytes follow the AUTH chunk).
func NewAuth(sharedKeyID, hmacID uint16) *Chunk {
	macLen := hmacLength(hmacID)
	length := chunkHeaderSize + 4 + macLen
	raw := make([]byte, length)
	encodeHeader(raw, TypeAuth, 0, length)
	binary.BigEndian.PutUint16(raw[chunkHeaderSize:chunkHeaderSize+2], sharedKeyID)
	binary.BigEndian.PutUint16(raw[chunkHeaderSize+2:chunkHeaderSize+4], hmacID)
	return &Chunk{Type: TypeAuth, Raw: raw, hmacKeyID: sharedKeyID, hmacID: hmacID}
}

// hmacLength returns the MAC field width for a given HMAC identifier.
// Only HMAC-SHA1 (RFC 4895's mandatory algorithm, id 1) is implemented; any
// other id maps to SHA1's width so callers still get a usable frame.
func hmacLength(hmacID uint16) int {
	return sha1.Size
}

// AuthKeyID returns the shared key identifier embedded in an AUTH chunk.
func (c *Chunk) AuthKeyID() uint16 { return c.hmacKeyID }

// ComputeAndSetAuthMAC computes HMAC-SHA1 over this AUTH chunk (with its MAC
// field zeroed) concatenated with `following`, the raw bytes of every chunk
// that appears after it in the same segment, and writes the MAC into place.
// key is the shared secret associated with the chunk's key id (resolved by
// the caller from the association's AUTH keying table).
func (c *Chunk) ComputeAndSetAuthMAC(key []byte, following []byte) error {
	return c.WriteAuthMAC(c.Raw, 0, key, following)
}

// WriteAuthMAC computes the HMAC over this AUTH chunk (as it appears at
// dst[authOffset:], with its MAC field zeroed) concatenated with following,
// then writes the MAC directly into dst. Used by the serializer to compute
// AUTH coverage against a fully-assembled segment buffer rather than the
// chunk's own detached Raw copy.
func (c *Chunk) WriteAuthMAC(dst []byte, authOffset int, key []byte, following []byte) error {
	if c.Type != TypeAuth {
		return protoerr.NewAuthError("chunk.compute_auth_mac", errNotAuthChunk)
	}
	macLen := hmacLength(c.hmacID)
	macStart := authOffset + authHMACFieldOffset
	if macStart+macLen > len(dst) {
		return protoerr.NewAuthError("chunk.compute_auth_mac", errAuthFrameTooShort)
	}

	authLen := c.Length()
	zeroed := make([]byte, authLen)
	copy(zeroed, dst[authOffset:authOffset+authLen])
	for i := authHMACFieldOffset; i < authHMACFieldOffset+macLen; i++ {
		zeroed[i] = 0
	}

	mac := hmac.New(sha1.New, key)
	mac.Write(zeroed)
	mac.Write(following)
	sum := mac.Sum(nil)
	copy(dst[macStart:macStart+macLen], sum[:macLen])
	return nil
}

var (
	errNotAuthChunk      = errors.New("chunk is not an AUTH chunk")
	errAuthFrameTooShort = errors.New("auth chunk too short for its hmac id")
)
