package chunker

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
)

func nopLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestSplitSizes(t *testing.T) {
	payload := make([]byte, 2500)
	chunks, err := Split(payload, 1000)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0].Data) != 1000 || len(chunks[1].Data) != 1000 || len(chunks[2].Data) != 500 {
		t.Errorf("unexpected chunk sizes: %d, %d, %d", len(chunks[0].Data), len(chunks[1].Data), len(chunks[2].Data))
	}
	for i, c := range chunks {
		if c.Index != uint32(i) {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if c.Total != 3 {
			t.Errorf("chunk %d has total %d", i, c.Total)
		}
		if c.TransferID != chunks[0].TransferID {
			t.Errorf("chunk %d has a different transfer id", i)
		}
	}
}

func TestSplitEmptyPayload(t *testing.T) {
	chunks, err := Split(nil, 1000)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if len(chunks[0].Data) != 0 || chunks[0].Total != 1 {
		t.Errorf("expected one empty chunk with total 1")
	}
}

func TestSplitInvalidChunkSize(t *testing.T) {
	if _, err := Split([]byte("data"), 0); err == nil {
		t.Error("expected error for chunk size 0")
	}
	if _, err := Split([]byte("data"), -1); err == nil {
		t.Error("expected error for negative chunk size")
	}
}

func TestIngestOutOfOrder(t *testing.T) {
	payload := []byte("AAAAABBBBBCCC")
	chunks, err := Split(payload, 5)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	a := NewAssembler(nopLogger())

	// Delivery order [2, 0, 1]: nothing before the last chunk, the
	// exact payload on it.
	if _, done := a.Ingest(chunks[2]); done {
		t.Error("complete after first chunk")
	}
	if _, done := a.Ingest(chunks[0]); done {
		t.Error("complete after second chunk")
	}
	got, done := a.Ingest(chunks[1])
	if !done {
		t.Fatal("not complete after all chunks")
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("expected %q, got %q", payload, got)
	}
	if a.Pending() != 0 {
		t.Errorf("expected no pending transfers, got %d", a.Pending())
	}
}

func TestIngestAnyPermutationWithDuplicates(t *testing.T) {
	payload := make([]byte, 4096)
	rng := rand.New(rand.NewSource(1))
	rng.Read(payload)

	chunks, err := Split(payload, 700)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	for trial := 0; trial < 50; trial++ {
		delivery := make([]Chunk, len(chunks))
		copy(delivery, chunks)
		rng.Shuffle(len(delivery), func(i, j int) {
			delivery[i], delivery[j] = delivery[j], delivery[i]
		})
		// Duplicate a random chunk mid-stream.
		dup := delivery[rng.Intn(len(delivery)-1)]
		delivery = append(delivery[:len(delivery)-1], dup, delivery[len(delivery)-1])

		a := NewAssembler(nopLogger())
		var got []byte
		completions := 0
		for _, c := range delivery {
			if payload, done := a.Ingest(c); done {
				got = payload
				completions++
			}
		}
		if completions != 1 {
			t.Fatalf("trial %d: expected exactly 1 completion, got %d", trial, completions)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("trial %d: payload mismatch", trial)
		}
	}
}

func TestIngestInterleavedTransfers(t *testing.T) {
	first, err := Split([]byte("first payload"), 4)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	second, err := Split([]byte("second payload"), 4)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	a := NewAssembler(nopLogger())
	var done1, done2 []byte
	for i := 0; i < len(first) || i < len(second); i++ {
		if i < len(first) {
			if payload, ok := a.Ingest(first[i]); ok {
				done1 = payload
			}
		}
		if i < len(second) {
			if payload, ok := a.Ingest(second[i]); ok {
				done2 = payload
			}
		}
	}

	if string(done1) != "first payload" {
		t.Errorf("first transfer: got %q", done1)
	}
	if string(done2) != "second payload" {
		t.Errorf("second transfer: got %q", done2)
	}
}

func TestIngestRejectsBadChunks(t *testing.T) {
	chunks, err := Split([]byte("payload"), 4)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	a := NewAssembler(nopLogger())

	bad := chunks[0]
	bad.Total = 0
	if _, done := a.Ingest(bad); done {
		t.Error("zero-total chunk completed a transfer")
	}

	bad = chunks[0]
	bad.Index = bad.Total + 5
	if _, done := a.Ingest(bad); done {
		t.Error("out-of-range chunk completed a transfer")
	}
	if a.Pending() != 0 {
		t.Errorf("rejected chunks created transfer state: %d pending", a.Pending())
	}
}

func TestAbandonAndReset(t *testing.T) {
	chunks, err := Split([]byte("some payload here"), 4)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	a := NewAssembler(nopLogger())
	a.Ingest(chunks[0])
	if a.Pending() != 1 {
		t.Fatalf("expected 1 pending transfer, got %d", a.Pending())
	}

	a.Abandon(chunks[0].TransferID)
	if a.Pending() != 0 {
		t.Errorf("expected no pending transfers after abandon, got %d", a.Pending())
	}

	a.Ingest(chunks[0])
	a.Reset()
	if a.Pending() != 0 {
		t.Errorf("expected no pending transfers after reset, got %d", a.Pending())
	}
}

func TestRoundTripSingleChunk(t *testing.T) {
	payload := []byte("fits in one")
	chunks, err := Split(payload, DefaultChunkSize)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}

	a := NewAssembler(nopLogger())
	got, done := a.Ingest(chunks[0])
	if !done {
		t.Fatal("single chunk did not complete")
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("expected %q, got %q", payload, got)
	}
}
