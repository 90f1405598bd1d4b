package dthrottle

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"testing"
	"time"
)

func TestApplication_StartServesRequestsAndShutsDown(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Burst = 3
	cfg.Rate = 1
	cfg.Port = freeTCPPort(t)
	cfg.SocketPath = t.TempDir() + "/dthrottle.sock"
	cfg.AdminListenAddr = "127.0.0.1:" + strconv.Itoa(freeTCPPort(t))
	cfg.Interval = time.Hour

	app, err := NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	conn, err := net.Dial("tcp", "127.0.0.1:"+strconv.Itoa(cfg.Port))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	for i := 0; i < 3; i++ {
		if _, err := conn.Write([]byte("someone\n")); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	reader := bufio.NewReader(conn)
	for i := 0; i < 3; i++ {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("ReadString %d: %v", i, err)
		}
		if line != replyOK {
			t.Fatalf("request %d: got %q, want %q", i, line, replyOK)
		}
	}

	// Shutdown waits for open connections to end, so hang up first.
	conn.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func freeTCPPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}
