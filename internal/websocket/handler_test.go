package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/reqlab/internal/auth"
)

func withOrganization(orgID string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.WithAuth(r.Context(), auth.AuthContext{UserID: "u-1", OrganizationID: orgID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func TestHandleWebSocketStreamsOrganizationEvents(t *testing.T) {
	hub := NewHub(testLogger())
	srv := httptest.NewServer(withOrganization("org-1", HandleWebSocket(hub, nil, testLogger())))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Broadcast(NewMessage("org-2", "invitation", "created", "inv-other", nil))
	hub.Broadcast(NewMessage("org-1", "invitation", "created", "inv-1", nil))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var got Message
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "inv-1", got.ID)

	conn.Close(ws.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHandleWebSocketRequiresAuth(t *testing.T) {
	hub := NewHub(testLogger())
	rec := httptest.NewRecorder()

	HandleWebSocket(hub, nil, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, hub.ClientCount())
}
