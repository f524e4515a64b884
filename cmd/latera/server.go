package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"latera/internal/app"
)

const (
	httpReadHeaderTimeout = 5 * time.Second
	shutdownTimeout       = 10 * time.Second
)

// serve runs the API until ctx ends or the listener fails, then shuts down
// in phases: HTTP, coordinator, remaining services, then any final phases.
func serve(ctx context.Context, services *app.Services, ready func(string), final ...shutdownPhase) error {
	logger := services.Logger.For("server")

	listener, err := net.Listen("tcp", services.Settings.Server.Addr)
	if err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = errors.Join(err, services.Close(closeCtx))
		for _, phase := range final {
			err = errors.Join(err, phase.stop(closeCtx))
		}
		return err
	}
	server := &http.Server{
		Handler:           services.Handler,
		ReadHeaderTimeout: httpReadHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()
	addr := listener.Addr().String()
	logger.Info("latera listening", map[string]string{"addr": addr})
	if ready != nil {
		ready(addr)
	}

	var runErr error
	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", map[string]string{"error": err.Error()})
			runErr = err
		}
		serveErr = nil
	case <-ctx.Done():
	}

	plan := newShutdownPlan(services.Logger)
	plan.Add("http", func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	plan.Add("coordinator", func(ctx context.Context) error {
		if err := services.Coordinator.Stop(ctx); err != nil {
			return err
		}
		return nil
	})
	plan.Add("services", services.Close)
	for _, phase := range final {
		plan.Add(phase.name, phase.stop)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := plan.Run(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if serveErr != nil {
		select {
		case err := <-serveErr:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				runErr = errors.Join(runErr, err)
			}
		case <-shutdownCtx.Done():
		}
	}
	return runErr
}
