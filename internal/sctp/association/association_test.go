package association

import (
	"testing"
	"time"

	"github.com/alxayo/sctp-sender/internal/sctp/chunk"
)

func TestNextTSNMonotonic(t *testing.T) {
	a := New()
	first := a.NextTSN()
	second := a.NextTSN()
	if second != first+1 {
		t.Fatalf("expected monotonic TSN, got %d then %d", first, second)
	}
}

func TestNextSSNPerStream(t *testing.T) {
	a := New()
	if got := a.NextSSN(1); got != 0 {
		t.Fatalf("expected first SSN 0, got %d", got)
	}
	if got := a.NextSSN(1); got != 1 {
		t.Fatalf("expected second SSN 1, got %d", got)
	}
	if got := a.NextSSN(2); got != 0 {
		t.Fatalf("expected stream 2's first SSN 0, got %d", got)
	}
}

func TestMakeAuthChunkRequiresKey(t *testing.T) {
	a := New()
	if c := a.MakeAuthChunk(); c != nil {
		t.Fatalf("expected nil AUTH chunk with no keys configured")
	}
	a.AuthKeys = map[uint16][]byte{1: []byte("secret")}
	a.Peer.AuthKeyID = 1
	a.Peer.AuthHMACID = 1
	if c := a.MakeAuthChunk(); c == nil {
		t.Fatalf("expected AUTH chunk once a key is configured")
	}
}

func TestGetECNEchoPrependNilWhenNoLowestTSN(t *testing.T) {
	a := New()
	if c := a.GetECNEchoPrepend(); c != nil {
		t.Fatalf("expected nil ECNE prepend for zero lowest TSN")
	}
	a.ECNLowestTSN = 7
	if c := a.GetECNEchoPrepend(); c == nil {
		t.Fatalf("expected non-nil ECNE prepend")
	}
}

func TestRefTimerRestartAndCancel(t *testing.T) {
	rt := &RefTimer{}
	if rt.Pending() {
		t.Fatalf("expected fresh timer inactive")
	}
	wasInactive := rt.Restart(50*time.Millisecond, nil)
	if !wasInactive {
		t.Fatalf("expected first Restart to report wasInactive=true")
	}
	if !rt.Pending() {
		t.Fatalf("expected timer pending after Restart")
	}
	if !rt.Cancel() {
		t.Fatalf("expected Cancel to report the timer had been active")
	}
	if rt.Pending() {
		t.Fatalf("expected timer inactive after Cancel")
	}
	if rt.Cancel() {
		t.Fatalf("expected second Cancel to report false")
	}
}

func TestHoldPutRefCounting(t *testing.T) {
	a := New()
	a.Hold()
	a.Hold()
	a.Put()
	if got := a.HoldCount(); got != 1 {
		t.Fatalf("expected hold count 1, got %d", got)
	}
}

func TestAssignDataSequenceIgnoresNonData(t *testing.T) {
	a := New()
	c := chunk.NewCookieEcho([]byte("x"))
	a.AssignDataSequence(c) // must not panic on a non-DATA chunk
}
