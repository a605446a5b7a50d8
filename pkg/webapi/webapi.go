// Serves status, health, metrics and log-level endpoints for serve mode.

package webapi

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// StatusSource provides the cluster snapshot served on /v1/status.
type StatusSource interface {
	StatusDocument(ctx context.Context) (interface{}, error)
}

type WebServerOptions struct {
	Logger        *zap.Logger
	LogLevel      *zap.AtomicLevel
	ListenAddress string
	Status        StatusSource

	// TLSCertificate enables https on the listen address when set.
	TLSCertificate *tls.Certificate
}

type WebServer struct {
	logger        *zap.Logger
	logLevel      *zap.AtomicLevel
	listenAddress string
	status        StatusSource
	tlsCert       *tls.Certificate
	httpServer    *http.Server
}

func NewWebServer(opts WebServerOptions) *WebServer {
	return &WebServer{
		logger:        opts.Logger,
		logLevel:      opts.LogLevel,
		listenAddress: opts.ListenAddress,
		status:        opts.Status,
		tlsCert:       opts.TLSCertificate,
	}
}

func (w *WebServer) handleRoot(rw http.ResponseWriter, r *http.Request) {
	rw.WriteHeader(200)
	_, err := rw.Write([]byte("replbridge internal webapi"))
	if err != nil {
		w.logger.Debug("failed to write generic root response", zap.Error(err))
	}
}

func (w *WebServer) handleHealth(rw http.ResponseWriter, r *http.Request) {
	rw.WriteHeader(200)
	_, _ = rw.Write([]byte("ok"))
}

func (w *WebServer) handleStatus(rw http.ResponseWriter, r *http.Request) {
	doc, err := w.status.StatusDocument(r.Context())
	if err != nil {
		w.logger.Warn("failed to build status document", zap.Error(err))
		http.Error(rw, err.Error(), http.StatusServiceUnavailable)
		return
	}

	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(doc); err != nil {
		w.logger.Debug("failed to write status response", zap.Error(err))
	}
}

func (w *WebServer) ListenAndServe() error {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", w.handleHealth)
	if w.status != nil {
		r.HandleFunc("/v1/status", w.handleStatus)
	}
	if w.logLevel != nil {
		r.Handle("/debug/loglevel", w.logLevel)
	}
	r.HandleFunc("/", w.handleRoot)

	w.httpServer = &http.Server{
		Handler:      r,
		Addr:         w.listenAddress,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	if w.tlsCert != nil {
		w.httpServer.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{*w.tlsCert},
		}
		return w.httpServer.ListenAndServeTLS("", "")
	}
	return w.httpServer.ListenAndServe()
}

func (w *WebServer) Shutdown(ctx context.Context) error {
	if w.httpServer == nil {
		return nil
	}
	return w.httpServer.Shutdown(ctx)
}
