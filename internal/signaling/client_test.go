package signaling_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SpatiumPortae/stardrop/internal/rendezvous"
	"github.com/SpatiumPortae/stardrop/internal/semver"
	"github.com/SpatiumPortae/stardrop/internal/signaling"
	"github.com/SpatiumPortae/stardrop/protocol/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type event struct {
	kind string
	arg  string
	sig  json.RawMessage
}

type handler struct {
	mu     sync.Mutex
	events []event
}

func (h *handler) add(e event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
}

func (h *handler) all() []event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]event(nil), h.events...)
}

func (h *handler) HandleCodeGenerated(code string) { h.add(event{kind: "code", arg: code}) }
func (h *handler) HandlePeerConnected(id string)   { h.add(event{kind: "peer", arg: id}) }
func (h *handler) HandleInvalidCode()              { h.add(event{kind: "invalid"}) }
func (h *handler) HandleCodeUnavailable()          { h.add(event{kind: "unavailable"}) }
func (h *handler) HandleSignal(_ context.Context, from string, sig json.RawMessage) {
	h.add(event{kind: "signal", arg: from, sig: sig})
}

func (h *handler) waitLen(t *testing.T, n int) []event {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.all()) >= n }, 5*time.Second, 5*time.Millisecond)
	return h.all()
}

func TestClient(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv := rendezvous.NewServer(0, semver.MustParse("v0.1.0"), rendezvous.WithLogger(zap.NewNop()))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	addr := strings.TrimPrefix(ts.URL, "http://")

	receiver, err := signaling.Dial(ctx, addr, zap.NewNop())
	require.NoError(t, err)
	defer receiver.Close()
	sender, err := signaling.Dial(ctx, addr, zap.NewNop())
	require.NoError(t, err)
	defer sender.Close()

	rh, sh := &handler{}, &handler{}
	go receiver.Run(ctx, rh)
	go sender.Run(ctx, sh)

	require.NoError(t, receiver.GenerateCode(ctx))
	events := rh.waitLen(t, 1)
	require.Equal(t, "code", events[0].kind)
	code := events[0].arg

	require.NoError(t, sender.JoinWithCode(ctx, "000-000", json.RawMessage(`{}`)))
	events = sh.waitLen(t, 1)
	assert.Equal(t, "invalid", events[0].kind)

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	require.NoError(t, sender.JoinWithCode(ctx, code, offer))
	events = rh.waitLen(t, 3)
	assert.Equal(t, "peer", events[1].kind)
	senderID := events[1].arg
	assert.Equal(t, "signal", events[2].kind)
	assert.Equal(t, senderID, events[2].arg)
	assert.JSONEq(t, string(offer), string(events[2].sig))

	answer := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	require.NoError(t, receiver.Signal(ctx, senderID, answer))
	events = sh.waitLen(t, 2)
	assert.Equal(t, "signal", events[1].kind)
	assert.JSONEq(t, string(answer), string(events[1].sig))

	// Messages of one connection are handled in order, so the new code
	// arrives only after the old one has been released.
	require.NoError(t, receiver.ReleaseCode(ctx, code))
	require.NoError(t, receiver.GenerateCode(ctx))
	events = rh.waitLen(t, 4)
	require.Equal(t, "code", events[3].kind)
	if events[3].arg == code {
		t.Skip("broker drew the released code again")
	}
	require.NoError(t, sender.JoinWithCode(ctx, code, offer))
	events = sh.waitLen(t, 3)
	assert.Equal(t, "invalid", events[2].kind)
	assert.Len(t, rh.all(), 4)
}

func TestRouteCodeUnavailable(t *testing.T) {
	h := &handler{}
	signaling.Route(context.Background(), signal.Msg{Type: signal.BrokerToEndpointCodeUnavailable}, h)
	events := h.all()
	require.Len(t, events, 1)
	assert.Equal(t, "unavailable", events[0].kind)
}
