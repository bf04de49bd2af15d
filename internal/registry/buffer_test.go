package registry

import (
	"fmt"
	"testing"
)

func TestBufferNeverExceedsCapacity(t *testing.T) {
	b := NewOutputBuffer(100)

	for i := 0; i < 250; i++ {
		b.Append(fmt.Sprintf("c%d", i))
		if b.Len() > 100 {
			t.Fatalf("buffer grew to %d after %d appends", b.Len(), i+1)
		}
	}
}

func TestBufferEvictsOldestFirst(t *testing.T) {
	b := NewOutputBuffer(100)

	for i := 0; i < 105; i++ {
		b.Append(fmt.Sprintf("c%d", i))
	}

	got := b.Snapshot()
	if len(got) != 100 {
		t.Fatalf("Len = %d, want 100", len(got))
	}
	for i, chunk := range got {
		want := fmt.Sprintf("c%d", i+5)
		if chunk != want {
			t.Fatalf("chunk[%d] = %q, want %q", i, chunk, want)
		}
	}
}

func TestBufferSnapshotIsCopy(t *testing.T) {
	b := NewOutputBuffer(10)
	b.Append("a")

	snap := b.Snapshot()
	snap[0] = "mutated"

	if b.Snapshot()[0] != "a" {
		t.Fatal("Snapshot aliases internal storage")
	}
}

func TestBufferDefaultCapacity(t *testing.T) {
	b := NewOutputBuffer(0)
	for i := 0; i < DefaultBufferSize+1; i++ {
		b.Append("x")
	}
	if b.Len() != DefaultBufferSize {
		t.Fatalf("Len = %d, want %d", b.Len(), DefaultBufferSize)
	}
}
