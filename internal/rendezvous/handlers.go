// handlers.go specifies the handlers the broker uses to pair endpoints and relay their handshake.
package rendezvous

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/SpatiumPortae/stardrop/internal/conn"
	"github.com/SpatiumPortae/stardrop/internal/logger"
	"github.com/SpatiumPortae/stardrop/protocol/signal"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// handleSignal returns a websocket handler that serves one endpoint for the
// lifetime of its connection. Every message read is dispatched to the relay
// and every pairing entry of the connection is purged when it goes away.
func (s *Server) handleSignal() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger, err := logger.FromContext(ctx)
		if err != nil {
			return
		}
		c, err := conn.FromContext(ctx)
		if err != nil {
			logger.Error("getting Conn from request context", zap.Error(err))
			return
		}
		defer c.Close()
		rc := conn.Rendezvous{Conn: c}

		id := uuid.NewString()
		logger = logger.With(zap.String("conn_id", id))
		logger.Info("endpoint connected")

		remove := s.hub.Add(id, func(msg signal.Msg) error {
			if err := rc.WriteMsg(ctx, msg); err != nil {
				logger.Warn("writing message to endpoint", zap.String("type", msg.Type.Name()), zap.Error(err))
				return err
			}
			return nil
		})
		defer func() {
			released := s.relay.Disconnect(id)
			remove()
			logger.Info("endpoint disconnected", zap.Int("released_codes", released))
		}()

		for {
			msg, err := rc.ReadMsg(ctx)
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			switch {
			case err == nil:
			case errors.Is(err, conn.ErrClosed):
				logger.Info("connection closed")
				return
			case errors.Is(err, context.Canceled):
				logger.Info("context canceled")
				return
			case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
				logger.Warn("dropping malformed message", zap.Error(err))
				continue
			default:
				logger.Error("reading from connection", zap.Error(err))
				return
			}
			if err := s.relay.Dispatch(id, msg); err != nil {
				logger.Warn("dispatching message", zap.String("type", msg.Type.Name()), zap.Error(err))
			}
		}
	}
}

//nolint:errcheck
func (s *Server) ping() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	}
}

// handleVersion reports the broker version, so endpoints can check compatibility before pairing.
func (s *Server) handleVersion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.version); err != nil {
			if logger, lerr := logger.FromContext(r.Context()); lerr == nil {
				logger.Error("encoding version", zap.Error(err))
			}
		}
	}
}
