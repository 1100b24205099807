package peer_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/SpatiumPortae/stardrop/internal/conn"
	"github.com/SpatiumPortae/stardrop/internal/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// connect negotiates two local peers without a broker.
func connect(ctx context.Context, t *testing.T) (*peer.Peer, *peer.Peer) {
	t.Helper()
	a, err := peer.New(peer.Config{}, true, zap.NewNop())
	require.NoError(t, err)
	b, err := peer.New(peer.Config{}, false, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})

	var offer, answer json.RawMessage
	select {
	case offer = <-a.Signals():
	case <-ctx.Done():
		t.Fatal("no offer")
	}
	require.NoError(t, b.Apply(ctx, offer))
	select {
	case answer = <-b.Signals():
	case <-ctx.Done():
		t.Fatal("no answer")
	}
	require.NoError(t, a.Apply(ctx, answer))

	for _, p := range []*peer.Peer{a, b} {
		select {
		case <-p.Opened():
		case <-ctx.Done():
			t.Fatal("data channel did not open")
		}
	}
	return a, b
}

func TestLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping WebRTC loopback in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	a, b := connect(ctx, t)

	t.Run("text and binary keep their kind and order", func(t *testing.T) {
		sent := []conn.Message{
			{Text: true, Data: []byte(`{"type":"metadata","name":"a","size":3,"mimeType":""}`)},
			{Text: false, Data: []byte{0x01, 0x02, 0x03}},
			{Text: true, Data: []byte(`{"type":"complete"}`)},
		}
		for _, m := range sent {
			require.NoError(t, a.Send(ctx, m))
		}
		for _, want := range sent {
			got, err := b.Receive(ctx)
			require.NoError(t, err)
			assert.Equal(t, want.Text, got.Text)
			assert.Equal(t, want.Data, got.Data)
		}
	})

	t.Run("bulk transfer", func(t *testing.T) {
		chunk := bytes.Repeat([]byte{0xab}, 16*1024)
		const n = 256
		errc := make(chan error, 1)
		go func() {
			for i := 0; i < n; i++ {
				if err := a.Send(ctx, conn.Message{Data: chunk}); err != nil {
					errc <- err
					return
				}
			}
			errc <- a.Flush(ctx)
		}()
		for i := 0; i < n; i++ {
			got, err := b.Receive(ctx)
			require.NoError(t, err)
			require.Len(t, got.Data, len(chunk))
		}
		require.NoError(t, <-errc)
	})

	t.Run("close tears down both sides", func(t *testing.T) {
		require.NoError(t, a.Close())
		select {
		case <-b.Done():
		case <-ctx.Done():
			t.Fatal("remote peer not torn down")
		}
		_, err := b.Receive(ctx)
		assert.ErrorIs(t, err, conn.ErrClosed)
		assert.ErrorIs(t, a.Send(ctx, conn.Message{Data: []byte("late")}), conn.ErrClosed)
	})
}

func TestApplyRejectsUnexpectedSignal(t *testing.T) {
	p, err := peer.New(peer.Config{}, false, zap.NewNop())
	require.NoError(t, err)
	defer p.Close()
	err = p.Apply(context.Background(), json.RawMessage(`{"type":"answer","sdp":""}`))
	assert.ErrorIs(t, err, peer.ErrUnexpectedSignal)
	assert.Error(t, p.Apply(context.Background(), json.RawMessage(`not json`)))
}
