package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nonocoop/pkg/relay"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultStatusHost = "127.0.0.1"

type sessionStatus struct {
	ID         string `json:"id"`
	Role       string `json:"role"`
	PuzzleHash string `json:"puzzle_hash"`
	Announcer  string `json:"announcer"`
}

type statusResponse struct {
	Status         string           `json:"status"`
	UptimeSeconds  int64            `json:"uptime_seconds"`
	PlayerID       string           `json:"player_id"`
	Bridge         string           `json:"bridge"`
	Session        *sessionStatus   `json:"session,omitempty"`
	FabricLastOKAt string           `json:"fabric_last_ok_at,omitempty"`
	FabricLastErr  string           `json:"fabric_last_error,omitempty"`
	Events         map[string]int64 `json:"events,omitempty"`
}

// Handler serves /healthz, /readyz, /status and /metrics.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

func (s *Service) statusAddr() string {
	host := strings.TrimSpace(s.cfg.Node.Host)
	if host == "" {
		host = defaultStatusHost
	}
	return net.JoinHostPort(host, strconv.Itoa(s.cfg.Node.Port))
}

func (s *Service) runStatusServer(ctx context.Context) error {
	addr := s.statusAddr()
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Node status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start status server: %w", err)
	}
	return nil
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := "solo"
	if s.isReady() {
		status = "coop"
	}
	s.respondStatus(w, http.StatusOK, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	bridgeState := s.bridge.State()

	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	fabricLastOK := ""
	if !s.fabricLastOKAt.IsZero() {
		fabricLastOK = s.fabricLastOKAt.Format(time.RFC3339)
	}

	resp := statusResponse{
		Status:         status,
		UptimeSeconds:  uptime,
		PlayerID:       s.sessions.PlayerID(),
		Bridge:         bridgeState.String(),
		FabricLastOKAt: fabricLastOK,
		FabricLastErr:  s.fabricLastErr,
		Events:         maps.Clone(s.eventCounts),
	}
	if !s.current.IsZero() {
		resp.Session = &sessionStatus{
			ID:         s.current.SessionID(),
			Role:       s.current.Role().String(),
			PuzzleHash: s.current.PuzzleHash(),
			Announcer:  s.current.Announcer(),
		}
	}
	return resp
}

func (s *Service) isReady() bool {
	if s.bridge.State() != relay.StateActive {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.fabricLastOKAt.IsZero() {
		return false
	}

	if s.fabricLastErr != "" {
		return false
	}

	return true
}
