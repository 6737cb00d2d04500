// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package services

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

var _ suture.Service = (*HTTPServerService)(nil)

// stubServer serves until Shutdown, then returns the configured errors.
type stubServer struct {
	serveErr    error
	shutdownErr error
	stop        chan struct{}
}

func (s *stubServer) Serve(l net.Listener) error {
	defer l.Close()
	if s.serveErr != nil {
		return s.serveErr
	}
	<-s.stop
	return http.ErrServerClosed
}

func (s *stubServer) Shutdown(ctx context.Context) error {
	close(s.stop)
	return s.shutdownErr
}

func serveAsync(ctx context.Context, svc *HTTPServerService) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()
	return errCh
}

func waitErr(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func TestNewHTTPServerService_Defaults(t *testing.T) {
	for _, timeout := range []time.Duration{0, -time.Second} {
		svc := NewHTTPServerService(&stubServer{}, ":0", timeout)
		if svc.shutdownTimeout != 10*time.Second {
			t.Errorf("timeout %v: got %v, want 10s", timeout, svc.shutdownTimeout)
		}
	}
	svc := NewHTTPServerService(&stubServer{}, ":0", time.Second)
	if svc.String() != "http-server" {
		t.Errorf("String() = %q", svc.String())
	}
	if svc.Addr() != nil {
		t.Errorf("Addr() before start = %v, want nil", svc.Addr())
	}
}

func TestHTTPServerService_ServesRealRequests(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "pong")
	})
	svc := NewHTTPServerService(&http.Server{Handler: mux, ReadHeaderTimeout: time.Second}, "127.0.0.1:0", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := serveAsync(ctx, svc)

	select {
	case <-svc.Ready():
	case <-time.After(3 * time.Second):
		t.Fatal("listener was not bound")
	}

	resp, err := http.Get("http://" + svc.Addr().String() + "/ping")
	if err != nil {
		t.Fatalf("GET /ping error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "pong" {
		t.Errorf("body = %q, want pong", body)
	}

	cancel()
	if err := waitErr(t, errCh); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
}

func TestHTTPServerService_Errors(t *testing.T) {
	listenFailure := errors.New("address already in use")
	serveFailure := errors.New("accept: too many open files")
	shutdownFailure := errors.New("shutdown deadline exceeded")

	tests := []struct {
		name      string
		server    *stubServer
		listenErr error
		cancel    bool
		want      error
	}{
		{"listen failure", &stubServer{stop: make(chan struct{})}, listenFailure, false, listenFailure},
		{"serve failure", &stubServer{serveErr: serveFailure, stop: make(chan struct{})}, nil, false, serveFailure},
		{"shutdown failure", &stubServer{shutdownErr: shutdownFailure, stop: make(chan struct{})}, nil, true, shutdownFailure},
		{"clean shutdown", &stubServer{stop: make(chan struct{})}, nil, true, context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewHTTPServerService(tt.server, "127.0.0.1:0", time.Second)
			if tt.listenErr != nil {
				svc.listen = func(string, string) (net.Listener, error) { return nil, tt.listenErr }
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			errCh := serveAsync(ctx, svc)

			if tt.cancel {
				<-svc.Ready()
				cancel()
			}
			if err := waitErr(t, errCh); !errors.Is(err, tt.want) {
				t.Errorf("Serve() = %v, want %v", err, tt.want)
			}
		})
	}
}
