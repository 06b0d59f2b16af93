package server

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/armis/armis/pkg/api/rest"
	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/types"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait        = 10 * time.Second
	wsPongWait         = 60 * time.Second
	wsPingPeriod       = wsPongWait * 9 / 10
	wsSubscriberBuffer = 64
)

func (s *APIServer) newUpgrader() websocket.Upgrader {
	origins := s.options.CORSOrigins
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(origins) == 0 {
				return true
			}
			for _, o := range origins {
				if o == "*" || o == origin {
					return true
				}
			}
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		},
	}
}

// beginStream registers a stream with the wait group unless Stop has begun.
// Hijacked connections are not tracked by http.Server.Shutdown.
func (s *APIServer) beginStream() bool {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	if s.stopping {
		return false
	}
	s.wg.Add(1)
	return true
}

// handleEvents streams bus events to a websocket client until either side
// goes away or the server stops.
func (s *APIServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	caller, err := s.authenticate(r, true)
	if err != nil {
		writeError(w, err)
		return
	}
	if !s.evaluatePolicies(caller, ResourceDashboard, "watch") {
		writeError(w, types.NewForbiddenError("access denied for resource: %s verb: watch", ResourceDashboard))
		return
	}
	if s.bus == nil {
		writeError(w, types.NewConfigError(nil, "event stream is not configured"))
		return
	}

	if !s.beginStream() {
		rest.WriteJSON(w, http.StatusServiceUnavailable, errorEnvelope{Error: "Unavailable", Message: "server is shutting down"})
		return
	}
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", log.Err(err))
		return
	}
	defer conn.Close()
	eventStreams.Inc()
	defer eventStreams.Dec()

	logger := s.logger.WithContext(r.Context()).With(log.Str("subject", caller.SubjectID))
	logger.Debug("Event stream opened")
	defer logger.Debug("Event stream closed")

	ch := s.bus.Subscribe(wsSubscriberBuffer)
	defer s.bus.Unsubscribe(ch)

	// The reader only handles control frames and notices disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-done:
			return
		case <-s.shutdownCh:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteWait))
			return
		}
	}
}
