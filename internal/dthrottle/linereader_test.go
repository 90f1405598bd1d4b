package dthrottle

import "testing"

func TestLineReader_PartialReadsAcrossChunks(t *testing.T) {
	t.Parallel()

	lr := NewLineReader()
	lr.Feed([]byte("OK\nhel"))
	lr.Feed([]byte("lo\n\n"))

	var got []string
	for {
		line, ok := lr.PopLine()
		if !ok {
			break
		}
		got = append(got, string(line))
	}

	want := []string{"OK", "hello", ""}
	if len(got) != len(want) {
		t.Fatalf("lines = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("lines = %q, want %q", got, want)
		}
	}
}

func TestLineReader_PartialFinalLineDiscardedOnEOF(t *testing.T) {
	t.Parallel()

	lr := NewLineReader()
	lr.Feed([]byte("complete\nincomplete"))
	lr.MarkEOF()

	line, ok := lr.PopLine()
	if !ok || string(line) != "complete" {
		t.Fatalf("first line = %q, %v, want %q, true", line, ok, "complete")
	}
	if _, ok := lr.PopLine(); ok {
		t.Fatalf("want no further lines; partial final line must be discarded")
	}
	if !lr.AtEOF() {
		t.Fatalf("want AtEOF after draining")
	}
}

func TestLineReader_FramingRoundTrip(t *testing.T) {
	t.Parallel()

	input := "a\nbb\n\nccc\n"
	lr := NewLineReader()
	lr.Feed([]byte(input))

	var rebuilt []byte
	n := 0
	for {
		line, ok := lr.PopLine()
		if !ok {
			break
		}
		rebuilt = append(rebuilt, line...)
		rebuilt = append(rebuilt, '\n')
		n++
	}
	if n != 4 {
		t.Fatalf("n = %d, want 4", n)
	}
	if string(rebuilt) != input {
		t.Fatalf("rebuilt = %q, want %q", rebuilt, input)
	}
}

func TestLineReader_EmptyChunkIsNoop(t *testing.T) {
	t.Parallel()

	lr := NewLineReader()
	lr.Feed(nil)
	if len(lr.Lines()) != 0 {
		t.Fatalf("want no lines from an empty feed")
	}
}
