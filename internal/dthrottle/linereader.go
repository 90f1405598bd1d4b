package dthrottle

// readChunkSize is the size of each best-effort read the Dispatcher
// performs before handing the bytes to LineReader.Feed, matching the 4096-byte suggestion in spec.md §4.4.
const readChunkSize = 4096

// LineReader frames an arbitrary byte stream into newline-terminated
// lines. It holds bytes received since the last newline in partial, and
// completed lines (oldest first, trailing newline stripped) in lines.
//
// Grounded on throttle/socketreader.h/.cpp: the original drives this from
// socket readiness notifications and a FLCallBack invoked once per queued
// line; this port keeps the same buffering shape but exposes it as a
// plain value type the caller drives explicitly (idiomatic Go has no
// analogue to FLCallBack's invoke-until-drained protocol).
//
// A LineReader is not safe for concurrent use; callers touch it only from
// the goroutine that owns the connection.
type LineReader struct {
	partial []byte
	lines   [][]byte
	closed  bool
}

// NewLineReader constructs an empty LineReader.
func NewLineReader() *LineReader {
	return &LineReader{}
}

// Feed appends chunk (a single best-effort read's worth of bytes) to the
// reader's state, splitting it into lines at '\n'. It does not itself
// perform I/O; callers pass it whatever io.Reader.Read returned before an
// error, and call MarkEOF separately once the stream ends. A final
// partial line with no trailing newline is retained across calls; it is
// discarded if the stream ends before it is terminated (spec.md §4.4).
func (lr *LineReader) Feed(chunk []byte) {
	for _, b := range chunk {
		if b == '\n' {
			lr.lines = append(lr.lines, lr.partial)
			lr.partial = nil
		} else {
			lr.partial = append(lr.partial, b)
		}
	}
}

// MarkEOF records that the underlying stream has ended. Any undelimited
// partial line is discarded - a deliberate simplification; clients that
// need their last line processed must terminate it themselves.
func (lr *LineReader) MarkEOF() {
	lr.closed = true
	lr.partial = nil
}

// Closed reports whether MarkEOF has been called.
func (lr *LineReader) Closed() bool {
	return lr.closed
}

// Lines returns the queue of lines completed but not yet consumed,
// oldest first. The caller is expected to drain this fully (e.g. via
// PopLine) before the next Feed/MarkEOF call.
func (lr *LineReader) Lines() [][]byte {
	return lr.lines
}

// PopLine removes and returns the oldest queued line.
func (lr *LineReader) PopLine() ([]byte, bool) {
	if len(lr.lines) == 0 {
		return nil, false
	}
	line := lr.lines[0]
	lr.lines = lr.lines[1:]
	return line, true
}

// AtEOF reports the condition callers should treat as "the connection is
// done": no queued lines remain and the stream has closed.
func (lr *LineReader) AtEOF() bool {
	return lr.closed && len(lr.lines) == 0
}
