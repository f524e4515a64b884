package main

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestFirstSignalCancelsShutdownContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals := make(chan os.Signal, 2)

	stop := watchShutdownSignals(nil, cancel, signals)
	defer stop()

	signals <- os.Interrupt
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("expected shutdown context cancelled")
	}
	signals <- os.Interrupt
	stop()
	stop()
}

func TestNilSignalChannelIsNoop(t *testing.T) {
	stop := watchShutdownSignals(nil, func() {}, nil)
	stop()
}
