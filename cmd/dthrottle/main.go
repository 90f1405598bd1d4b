// Command dthrottle starts the distributed throttling service.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dthrottle/internal/dthrottle"
)

func main() {
	// DThrottle always ignores SIGPIPE: every client exchange is a
	// single request-reply, so there is nothing useful recovery could do
	// beyond what the write error return already lets us do, and dying
	// on it won't help (throttleapp.cpp's OnEventLoopStarted).
	signal.Ignore(syscall.SIGPIPE)

	if hasHelpFlag(os.Args[1:]) {
		printUsage(os.Stdout)
		return
	}

	if hasPrintConfigFlag(os.Args[1:]) {
		cfg, err := dthrottle.LoadConfig(dthrottle.LoadOptions{})
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		if err := dthrottle.PrintConfig(os.Stdout, cfg); err != nil {
			log.Fatalf("failed to print config: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := dthrottle.LoadConfig(dthrottle.LoadOptions{})
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	app, err := dthrottle.NewApplication(cfg)
	if err != nil {
		log.Fatalf("failed to create application: %v", err)
	}

	if err := app.Start(ctx); err != nil {
		log.Fatalf("failed to start application: %v", err)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("failed to shutdown application: %v", err)
	}
}
