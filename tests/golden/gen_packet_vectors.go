//go:build ignore

// Code generated for golden test vectors (single-chunk packet envelopes).
// DO NOT EDIT MANUALLY.
// Run: go run tests/golden/gen_packet_vectors.go
// Deterministic (no randomness) so CI can validate byte-for-byte.
package main

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func roundUp4(n int) int { return (n + 3) &^ 3 }

func main() {
	outDir := filepath.Join("tests", "golden")
	must(os.MkdirAll(outDir, 0o755))

	// One unbundled DATA chunk: source port 1000, dest port 2000,
	// vtag 0xDEADBEEF, tsn 0, stream 5/seq 0, ppid 9.
	{
		hdr := make([]byte, 12)
		binary.BigEndian.PutUint16(hdr[0:2], 1000)
		binary.BigEndian.PutUint16(hdr[2:4], 2000)
		binary.BigEndian.PutUint32(hdr[4:8], 0xDEADBEEF)

		payload := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0x01, 0x02, 0x03, 0x04}
		chunkRaw := make([]byte, 16+len(payload))
		chunkRaw[0] = 0
		chunkRaw[1] = 0
		binary.BigEndian.PutUint16(chunkRaw[2:4], uint16(len(chunkRaw)))
		binary.BigEndian.PutUint32(chunkRaw[4:8], 0) // tsn
		binary.BigEndian.PutUint16(chunkRaw[8:10], 5)
		binary.BigEndian.PutUint16(chunkRaw[10:12], 0)
		binary.BigEndian.PutUint32(chunkRaw[12:16], 9)
		copy(chunkRaw[16:], payload)

		padded := make([]byte, roundUp4(len(chunkRaw)))
		copy(padded, chunkRaw)

		env := append(append([]byte(nil), hdr...), padded...)
		sum := crc32.Checksum(env, crc32cTable)
		binary.BigEndian.PutUint32(env[8:12], sum)

		must(os.WriteFile(filepath.Join(outDir, "packet_single_data.bin"), env, 0o644))
	}

	fmt.Println("Golden packet vector files generated in", outDir)
}
