package chunk

import "testing"

func TestRoundUp4(t *testing.T) {
	cases := map[int]int{0: 0, 1: 4, 3: 4, 4: 4, 5: 8, 100: 100, 101: 104}
	for in, want := range cases {
		if got := RoundUp4(in); got != want {
			t.Fatalf("RoundUp4(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestNewDataBasics(t *testing.T) {
	payload := make([]byte, 100)
	c, err := NewData(1, 0, payload, true, true, false)
	if err != nil {
		t.Fatalf("NewData: %v", err)
	}
	if !c.IsData() {
		t.Fatalf("expected IsData() true")
	}
	if c.PayloadSize() != 100 {
		t.Fatalf("expected PayloadSize 100, got %d", c.PayloadSize())
	}
	wantLen := dataChunkHeaderSize + 100
	if c.Length() != wantLen {
		t.Fatalf("expected Length %d, got %d", wantLen, c.Length())
	}
	if c.PaddedLength() != wantLen { // 100-byte payload already aligns the chunk to 4 bytes
		t.Fatalf("expected PaddedLength %d, got %d", wantLen, c.PaddedLength())
	}

	c.SetTSN(42)
	c.SetStreamSeq(7)
	if c.Data.TSN != 42 || c.Data.StreamSeq != 7 {
		t.Fatalf("TSN/SSN not mirrored into DataMeta: %+v", c.Data)
	}
}

func TestNewDataRejectsEmptyPayload(t *testing.T) {
	if _, err := NewData(1, 0, nil, true, true, false); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}

func TestNonDataPayloadSizeIsZero(t *testing.T) {
	c := NewCookieEcho([]byte("cookie"))
	if c.PayloadSize() != 0 {
		t.Fatalf("expected PayloadSize 0 for non-DATA chunk, got %d", c.PayloadSize())
	}
	if c.IsData() {
		t.Fatalf("cookie echo should not report IsData")
	}
}

func TestTypeString(t *testing.T) {
	if TypeData.String() != "DATA" || TypeAuth.String() != "AUTH" || Type(200).String() != "UNKNOWN" {
		t.Fatalf("unexpected Type.String() values")
	}
}
