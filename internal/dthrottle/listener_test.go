package dthrottle

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"
)

// fixedClock is a Clock frozen at one instant, so admission tests see no
// refill between back-to-back requests.
type fixedClock float64

func (c fixedClock) Now() float64 { return float64(c) }

func newTestDispatcher(t *testing.T) (*Dispatcher, *Engine, func()) {
	t.Helper()
	th := NewThrottle(2, 1)
	engine := NewEngine(th, fixedClock(1000))

	ctx, cancel := context.WithCancel(context.Background())
	go engine.Run(ctx)

	d := NewDispatcher(engine, NopLogger{}, NewInMemoryMetrics())
	return d, engine, cancel
}

func TestDispatcher_TCPAdmitsThenRejects(t *testing.T) {
	t.Parallel()

	d, _, cancel := newTestDispatcher(t)
	defer cancel()

	if err := d.ListenTCP("127.0.0.1:0"); err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	addr := d.listeners[0].Addr().String()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = d.Shutdown(ctx)
	}()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	for i := 0; i < 2; i++ {
		if _, err := conn.Write([]byte("alice\n")); err != nil {
			t.Fatalf("Write: %v", err)
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("ReadString: %v", err)
		}
		if line != replyOK {
			t.Fatalf("request %d: got %q, want %q", i, line, replyOK)
		}
	}

	if _, err := conn.Write([]byte("alice\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if line != replyNo {
		t.Fatalf("third request: got %q, want %q", line, replyNo)
	}
}

func TestDispatcher_UnixSocket(t *testing.T) {
	t.Parallel()

	d, _, cancel := newTestDispatcher(t)
	defer cancel()

	path := t.TempDir() + "/dthrottle.sock"
	if err := d.ListenUnix(path); err != nil {
		t.Fatalf("ListenUnix: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = d.Shutdown(ctx)
	}()

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("bob\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if line != replyOK {
		t.Fatalf("got %q, want %q", line, replyOK)
	}
}

func TestDispatcher_MultipleTagsOnOneConnection(t *testing.T) {
	t.Parallel()

	d, _, cancel := newTestDispatcher(t)
	defer cancel()

	if err := d.ListenTCP("127.0.0.1:0"); err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	addr := d.listeners[0].Addr().String()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = d.Shutdown(ctx)
	}()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	// Two lines arriving in one write must still be framed and answered
	// independently - this is the scenario spec.md §4.4 calls out as the
	// one most implementations get wrong.
	if _, err := conn.Write([]byte("carol\ndave\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	reader := bufio.NewReader(conn)
	for i := 0; i < 2; i++ {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("ReadString %d: %v", i, err)
		}
		if line != replyOK {
			t.Fatalf("reply %d: got %q, want %q", i, line, replyOK)
		}
	}
}

func TestDispatcher_ShutdownWaitsForConnections(t *testing.T) {
	t.Parallel()

	d, _, cancel := newTestDispatcher(t)
	defer cancel()

	if err := d.ListenTCP("127.0.0.1:0"); err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	addr := d.listeners[0].Addr().String()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	// Give the accept loop a moment to register the connection before we
	// close it, so Shutdown has something to wait for.
	time.Sleep(20 * time.Millisecond)
	conn.Close()

	ctx, cancelCtx := context.WithTimeout(context.Background(), time.Second)
	defer cancelCtx()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if d.Connections()["tcp"] != 0 {
		t.Fatalf("connections not drained: %v", d.Connections())
	}
}
