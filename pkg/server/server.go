// Copyright 2023 The Cactuar Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/apiserver/pkg/server/healthz"
	"k8s.io/component-base/metrics/legacyregistry"
	"k8s.io/klog/v2"

	"github.com/cactuar-rs/cactuar/pkg/alertvalidate"
	"github.com/cactuar-rs/cactuar/pkg/manifests"
)

const (
	ReadyPath   = "/ready"
	MetricsPath = "/metrics"

	shutdownTimeout = 10 * time.Second
)

type Server struct {
	config   manifests.HTTPConfig
	registry prometheus.Gatherer
	ready    func() bool
	handler  http.Handler
}

// NewServer returns a Server exposing the readiness probe, the metrics of
// registry and of the component-base legacy registry, the profiling
// endpoints and the ServiceAlert admission webhook.
func NewServer(config manifests.HTTPConfig, registry prometheus.Gatherer, ready func() bool) *Server {
	s := &Server{
		config:   config,
		registry: registry,
		ready:    ready,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(ReadyPath, s.handleReady)
	mux.Handle(MetricsPath, promhttp.HandlerFor(
		prometheus.Gatherers{registry, legacyregistry.DefaultGatherer},
		promhttp.HandlerOpts{},
	))
	healthz.InstallHandler(mux, healthz.PingHealthz, healthz.LogHealthz)
	healthz.InstallLivezHandler(mux, healthz.PingHealthz)
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle(alertvalidate.Path, alertvalidate.MustNewServiceAlertValidatorHandler())

	s.handler = mux
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// handleReady answers 204 once the controller caches synced.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.ready != nil && !s.ready() {
		http.Error(w, "informer caches not synced", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Run serves until ctx is done, then shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", s.config.ListenAddress())
	if err != nil {
		return errors.Wrap(err, "listening failed")
	}

	return s.serve(ctx, l)
}

func (s *Server) serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.config.TLS.Enabled() {
		tlsConfig, err := s.config.TLS.ServerConfig()
		if err != nil {
			return err
		}
		srv.TLSConfig = tlsConfig
	}

	errc := make(chan error, 1)
	go func() {
		klog.InfoS("Serving HTTP", "address", l.Addr().String(), "tls", s.config.TLS.Enabled())
		if s.config.TLS.Enabled() {
			errc <- srv.ServeTLS(l, s.config.TLS.CertFile, s.config.TLS.KeyFile)
			return
		}
		errc <- srv.Serve(l)
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "serving HTTP failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutting down HTTP server failed")
	}
	klog.Info("server exited")

	return nil
}
