// Package api implements the wallet ledger's thin HTTP surface: three
// JSON REST endpoints. Handlers validate only wire-shape
// concerns (missing fields, malformed JSON) and delegate everything else
// — identity resolution, admin authorization, amount/status checks — to
// internal/intake and internal/identity.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/tabdeal-exchange/wallet-ledger/internal/apperr"
	"github.com/tabdeal-exchange/wallet-ledger/internal/identity"
	"github.com/tabdeal-exchange/wallet-ledger/internal/intake"
	"github.com/tabdeal-exchange/wallet-ledger/pkg/logging"
)

// Server is the wallet ledger's HTTP surface.
type Server struct {
	intake   *intake.Intake
	identity *identity.Registry
	log      *logging.Logger

	server   *http.Server
	listener net.Listener
}

// NewServer creates a Server.
func NewServer(in *intake.Intake, reg *identity.Registry) *Server {
	return &Server{
		intake:   in,
		identity: reg,
		log:      logging.GetDefault().Component("api"),
	}
}

// Start binds the listen address and serves in a background goroutine.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("POST /credit_request", s.handleCreditRequest)
	mux.HandleFunc("POST /charge_sale", s.handleChargeSale)
	mux.HandleFunc("POST /admin/process_credit_request", s.handleProcessCreditRequest)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("API server error", "error", err)
		}
	}()

	s.log.Info("API server started", "addr", addr)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// writeJSON writes v as a JSON body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorResponse is the wire shape for a failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps an error to its HTTP status per apperr's table and
// writes it. A non-apperr error is treated as an unclassified internal
// error (500).
func writeError(w http.ResponseWriter, log *logging.Logger, err error) {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()
	if status == http.StatusInternalServerError {
		log.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// isValidPhoneNumber enforces the exactly-11-characters phone number
// format.
func isValidPhoneNumber(s string) bool {
	return len(s) == 11
}
