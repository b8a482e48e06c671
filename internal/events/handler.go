package events

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/HasnainAli-max/pixel-proof-2/internal/auth"
)

// HandleWebSocket returns an HTTP handler that upgrades connections to
// WebSocket and runs them as hub clients for the authenticated user.
// It must sit behind the auth middleware.
func HandleWebSocket(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := auth.UserFromContext(r.Context())
		if user == nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, nil)
		if err != nil {
			slog.Error("websocket accept", "error", err)
			return
		}

		client := NewClient(hub, conn, user.ID)
		client.Run(r.Context())
	}
}
