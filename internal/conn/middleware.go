package conn

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/SpatiumPortae/stardrop/internal/logger"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// ReadLimit bounds a single broker message. Handshake signals carry full
// session descriptions, which exceed the websocket default.
const ReadLimit = 1 << 20

type connKey struct{}

func WithConn(ctx context.Context, conn Conn) context.Context {
	return context.WithValue(ctx, connKey{}, conn)
}

func FromContext(ctx context.Context) (Conn, error) {
	conn, ok := ctx.Value(connKey{}).(Conn)
	if !ok {
		return nil, errors.New("unable to get Conn from context")
	}
	return conn, nil
}

// Middleware upgrades the request to a websocket and stores the resulting Conn in the request context.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			lgr, err := logger.FromContext(ctx)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				lgr.Debug("rejecting plain http request on signalling endpoint")
				http.Error(w, "expected websocket upgrade", http.StatusUpgradeRequired)
				return
			}
			wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
			if err != nil {
				lgr.Error("failed to upgrade connection", zap.Error(err))
				return
			}
			wsConn.SetReadLimit(ReadLimit)
			next.ServeHTTP(w, r.WithContext(WithConn(ctx, &WS{Conn: wsConn})))
		})
	}
}
