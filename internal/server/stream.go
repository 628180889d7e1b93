package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// handleStream upgrades to a websocket and sends the state as a JSON text
// frame on connect and after every dispatch. Changes that arrive while a
// frame is being written are coalesced into the next frame.
func (s *Server) handleStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := s.deps.App.Store()
		if st == nil {
			writeError(w, http.StatusServiceUnavailable, "app not started")
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			s.logger.Warn("websocket accept failed", "error", err)
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusInternalError, "unexpected close")
		}()

		// Client messages are ignored; the returned context ends when the
		// peer goes away.
		ctx := conn.CloseRead(r.Context())

		changed := make(chan struct{}, 1)
		unsubscribe := st.Subscribe(func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
		defer unsubscribe()

		if err := s.sendState(ctx, conn); err != nil {
			return
		}
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return
			case <-changed:
				if err := s.sendState(ctx, conn); err != nil {
					s.logger.Debug("websocket write failed", "error", err)
					return
				}
			}
		}
	}
}

func (s *Server) sendState(ctx context.Context, conn *websocket.Conn) error {
	data, err := json.Marshal(s.deps.App.GetState())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
