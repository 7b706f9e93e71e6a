package packet

import "github.com/alxayo/sctp-sender/internal/sctp/chunk"

// bundleAuth opportunistically prepends an AUTH chunk before a candidate
// that requires authentication, per spec.md §4.3.1.
func (p *Packet) bundleAuth(candidate *chunk.Chunk) AdmissionResult {
	if p.Association == nil {
		return Ok
	}
	if candidate.Type == chunk.TypeAuth || p.HasAuth {
		return Ok
	}
	if candidate.Data == nil || !candidate.Data.AuthRequired {
		return Ok
	}

	auth := p.Association.MakeAuthChunk()
	if auth == nil {
		return Ok
	}
	if res := p.append(auth); res != Ok {
		return res
	}
	return Ok
}

// bundleSack opportunistically prepends a pending SACK before a candidate
// DATA chunk, per spec.md §4.3.2. A generation mismatch between the
// transport and the peer means the pending SACK request is stale and is
// skipped rather than bundled.
func (p *Packet) bundleSack(candidate *chunk.Chunk) AdmissionResult {
	if !candidate.IsData() || p.HasSack || p.HasCookieEcho {
		return Ok
	}
	if p.Association == nil {
		return Ok
	}
	if !p.Association.SackTimer.Pending() {
		return Ok
	}
	if p.Transport.SackGeneration != p.Association.Peer.SackGeneration {
		return Ok
	}

	p.Association.ARwnd = uint32(p.Association.Rwnd)
	sack := p.Association.MakeSackChunk()
	if sack == nil {
		return Ok
	}
	if res := p.append(sack); res != Ok {
		return res
	}

	p.Association.Peer.SackNeeded = false
	if p.Association.SackTimer.Cancel() {
		p.Association.Put()
	}
	return Ok
}
