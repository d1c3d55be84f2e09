package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/terra-clan/planner-kpi/internal/kpi"
	"github.com/terra-clan/planner-kpi/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// LiveUpdate is pushed to connected dashboards after every refresh cycle
type LiveUpdate struct {
	Type      string               `json:"type"`
	Period    string               `json:"period"`
	KPI       models.KPISnapshot   `json:"kpi"`
	Breakdown []models.AssigneeKPI `json:"breakdown,omitempty"`
	UpdatedAt time.Time            `json:"updated_at"`
}

type liveClient struct {
	conn   *websocket.Conn
	viewer string
	period kpi.Period

	// guards concurrent writes from the refresh fan-out and the handler
	mu sync.Mutex
}

func (c *liveClient) send(update LiveUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(update)
}

// handleLiveKPI upgrades the connection and streams KPI updates to the viewer.
// Browsers cannot set custom headers on websocket dials, so the session token
// comes in as a query parameter instead.
func (s *Server) handleLiveKPI(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "session token required", http.StatusUnauthorized)
		return
	}

	session, err := s.dashboard.SessionByToken(r.Context(), token)
	if err != nil {
		http.Error(w, "invalid session", http.StatusUnauthorized)
		return
	}

	period, err := kpi.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	client := &liveClient{
		conn:   conn,
		viewer: session.Viewer,
		period: period,
	}

	s.liveMu.Lock()
	s.liveClients[client] = struct{}{}
	s.liveMu.Unlock()

	slog.Info("live kpi feed connected", "viewer", session.Viewer, "period", period)

	defer func() {
		s.liveMu.Lock()
		delete(s.liveClients, client)
		s.liveMu.Unlock()
		slog.Info("live kpi feed disconnected", "viewer", session.Viewer)
	}()

	// Initial snapshot so the dashboard does not wait for the next cycle
	if err := s.pushUpdate(r.Context(), client); err != nil {
		slog.Warn("failed to push initial kpi snapshot", "viewer", session.Viewer, "error", err)
		return
	}

	// Hold the connection open; clients do not send anything meaningful
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read error", "viewer", session.Viewer, "error", err)
			}
			return
		}
	}
}

// NotifyRefresh fans the freshly aggregated numbers out to every connected
// dashboard. Wired as the refresh worker's completion callback.
func (s *Server) NotifyRefresh() {
	s.liveMu.Lock()
	clients := make([]*liveClient, 0, len(s.liveClients))
	for c := range s.liveClients {
		clients = append(clients, c)
	}
	s.liveMu.Unlock()

	if len(clients) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, client := range clients {
		if err := s.pushUpdate(ctx, client); err != nil {
			slog.Debug("dropping live kpi client", "viewer", client.viewer, "error", err)
			client.conn.Close()
			s.liveMu.Lock()
			delete(s.liveClients, client)
			s.liveMu.Unlock()
		}
	}
}

func (s *Server) pushUpdate(ctx context.Context, client *liveClient) error {
	view, err := s.dashboard.View(ctx, client.viewer, client.period, "", time.Now().UTC())
	if err != nil {
		return err
	}

	return client.send(LiveUpdate{
		Type:      "kpi",
		Period:    view.Period,
		KPI:       view.KPI,
		Breakdown: view.Breakdown,
		UpdatedAt: time.Now().UTC(),
	})
}
