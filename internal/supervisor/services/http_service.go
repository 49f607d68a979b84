// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/trackersync/internal/logging"
)

// HTTPServer is the subset of *http.Server the service needs.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// DrainFunc finishes work the server started, such as sync runs launched
// by a request, once the listener has closed.
type DrainFunc func(ctx context.Context) error

// HTTPServerService runs an HTTP server under supervision.
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
	drain           []DrainFunc
	name            string
}

// NewHTTPServerService wraps server. Drain functions run in order after the
// server stops accepting requests and share the shutdown timeout.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration, drain ...DrainFunc) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		drain:           drain,
		name:            "http-server",
	}
}

// Serve implements suture.Service.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		// The serve context is already canceled.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		var errs []error
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http server shutdown failed: %w", err))
		}
		<-errCh

		for _, drain := range h.drain {
			if err := drain(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("drain after shutdown: %w", err))
			}
		}
		if len(errs) > 0 {
			err := errors.Join(errs...)
			logging.Warn().Err(err).Msg("HTTP server did not stop cleanly")
			return err
		}
		return ctx.Err()
	}
}

func (h *HTTPServerService) String() string {
	return h.name
}
