package events

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/specialistvlad/formulago/internal/build"
	"github.com/specialistvlad/formulago/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zishang520/socket.io/v2/socket"
)

// startServer runs a socket.io server on an httptest listener and forwards
// the first argument of every TransitionEvent it receives.
func startServer(t *testing.T) (string, <-chan any) {
	t.Helper()

	received := make(chan any, 16)
	io := socket.NewServer(nil, nil)
	io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		client.On(TransitionEvent, func(args ...any) {
			if len(args) > 0 {
				received <- args[0]
			}
		})
	})

	srv := httptest.NewServer(io.ServeHandler(nil))
	t.Cleanup(srv.Close)
	return srv.URL, received
}

func TestConnect_EmitsTransitionsToServer(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx, _ := testutil.Context(t)
	url, received := startServer(t)

	// --- Act ---
	p, err := Connect(ctx, Options{URL: url, ConnectTimeout: 5 * time.Second}, "gsl", "2.4")
	require.NoError(t, err)
	defer p.Close()
	p.Transition(ctx, build.StateResolved, build.StateFetching, 2*time.Second, nil)

	// --- Assert ---
	select {
	case payload := <-received:
		assert.Equal(t, map[string]any{
			"package":         "gsl",
			"version":         "2.4",
			"from":            "resolved",
			"to":              "fetching",
			"elapsed_seconds": float64(2),
		}, payload)
	case <-time.After(5 * time.Second):
		t.Fatal("the server never received the transition event")
	}
}
