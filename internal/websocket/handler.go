package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/reqlab/internal/auth"
)

// HandleWebSocket upgrades an authenticated request and streams the caller's
// organization events until the connection closes. An empty originPatterns
// keeps the library's same-origin check.
func HandleWebSocket(hub *Hub, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	logger = logger.With("component", "websocket")
	return func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok || ac.OrganizationID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: originPatterns})
		if err != nil {
			logger.Warn("accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		NewClient(hub, conn, ac.OrganizationID).Run(r.Context())
	}
}
