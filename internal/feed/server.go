package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"optionflow/config"
	"optionflow/internal/pricing"
	"optionflow/logger"
)

// Server exposes the retained records and scan health over HTTP, plus a
// websocket stream of live alerts and cluster events and an on-demand
// expected-range calculation.
type Server struct {
	store    *Store
	pricing  config.PricingConfig
	log      *logger.Log
	server   *http.Server
	upgrader websocket.Upgrader
}

// NewServer returns nil when the feed is disabled in config.
func NewServer(cfg config.FeedConfig, pricingCfg config.PricingConfig, store *Store, log *logger.Log) *Server {
	if !cfg.Enabled {
		return nil
	}

	s := &Server{
		store:   store,
		pricing: pricingCfg,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/alerts", s.handleAlerts)
	mux.HandleFunc("/api/clusters", s.handleClusters)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/range", s.handleRange)
	mux.HandleFunc("/ws", s.handleWebsocket)

	s.server = &http.Server{
		Addr:              normalizeAddress(cfg.Address),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run blocks until the context is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithFields(logger.Fields{"address": s.server.Addr}).Info("Feed server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("feed server shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("feed server: %w", err)
		}
		return nil
	}
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("ticker")))
	if ticker == "" {
		http.Error(w, "ticker query parameter is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, s.store.Alerts(ticker))
}

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("ticker")))
	if ticker == "" {
		http.Error(w, "ticker query parameter is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, s.store.Clusters(ticker))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.store.Status())
}

type rangeResponse struct {
	Spot         float64 `json:"spot"`
	ImpliedVol   float64 `json:"implied_vol"`
	Years        float64 `json:"years"`
	Confidence   float64 `json:"confidence"`
	Lower        float64 `json:"lower"`
	Upper        float64 `json:"upper"`
	ExpectedMove float64 `json:"expected_move"`
}

// handleRange computes the log-normal expected price range for ad-hoc
// queries: spot, iv and days are required, confidence falls back to the
// configured default.
func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	spot, err1 := strconv.ParseFloat(q.Get("spot"), 64)
	iv, err2 := strconv.ParseFloat(q.Get("iv"), 64)
	days, err3 := strconv.ParseFloat(q.Get("days"), 64)
	if err1 != nil || err2 != nil || err3 != nil {
		http.Error(w, "spot, iv and days query parameters are required", http.StatusBadRequest)
		return
	}

	confidence := s.pricing.DefaultConfidence
	if raw := q.Get("confidence"); raw != "" {
		c, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			http.Error(w, "invalid confidence", http.StatusBadRequest)
			return
		}
		confidence = c
	}

	years := days / 365
	rng, err := pricing.ExpectedRange(spot, iv, years, confidence)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	move, err := pricing.ExpectedMove(spot, iv, years)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, rangeResponse{
		Spot:         spot,
		ImpliedVol:   iv,
		Years:        years,
		Confidence:   confidence,
		Lower:        rng.Lower,
		Upper:        rng.Upper,
		ExpectedMove: move,
	})
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("Feed websocket upgrade failed")
		return
	}

	id, updates := s.store.Subscribe()
	defer s.store.Unsubscribe(id)
	defer conn.Close()

	// Drain the reader so close frames and pings are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(u); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func normalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return ":8181"
	}
	if strings.HasPrefix(address, ":") {
		return address
	}
	if !strings.Contains(address, ":") {
		return ":" + address
	}
	return address
}
