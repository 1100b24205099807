package conn_test

import (
	"context"
	"testing"

	"github.com/SpatiumPortae/stardrop/internal/conn"
	"github.com/SpatiumPortae/stardrop/internal/conn/conntest"
	"github.com/SpatiumPortae/stardrop/protocol/signal"
	"github.com/SpatiumPortae/stardrop/protocol/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConn struct {
	conn chan []byte
}

func (m mockConn) Write(ctx context.Context, b []byte) error {
	m.conn <- b
	return nil
}

func (m mockConn) Read(ctx context.Context) ([]byte, error) {
	return <-m.conn, nil
}

func (m mockConn) Close() error {
	return nil
}

func TestConn(t *testing.T) {
	c := make(chan []byte, 2)
	conn1 := mockConn{conn: c}
	conn2 := mockConn{conn: c}

	t.Run("rendezvous conn", func(t *testing.T) {
		r1 := conn.Rendezvous{Conn: conn1}
		r2 := conn.Rendezvous{Conn: conn2}

		ctx := context.Background()
		err := r1.WriteMsg(ctx, signal.Msg{
			Type:    signal.EndpointToBrokerJoinWithCode,
			Payload: signal.Payload{Code: "123-456", Signal: []byte(`{"sdp":"offer"}`)},
		})
		assert.NoError(t, err)

		msg, err := r2.ReadMsg(ctx)
		assert.NoError(t, err)
		assert.Equal(t, signal.EndpointToBrokerJoinWithCode, msg.Type)
		assert.Equal(t, "123-456", msg.Payload.Code)
		assert.JSONEq(t, `{"sdp":"offer"}`, string(msg.Payload.Signal))
	})

	t.Run("rendezvous conn unexpected type", func(t *testing.T) {
		r1 := conn.Rendezvous{Conn: conn1}
		r2 := conn.Rendezvous{Conn: conn2}

		ctx := context.Background()
		assert.NoError(t, r1.WriteMsg(ctx, signal.Msg{Type: signal.BrokerToEndpointInvalidCode}))

		_, err := r2.ReadMsg(ctx, signal.BrokerToEndpointCodeGenerated)
		var sigErr signal.Error
		assert.ErrorAs(t, err, &sigErr)
		assert.Equal(t, signal.BrokerToEndpointInvalidCode, sigErr.Got)
	})

	t.Run("transfer conn", func(t *testing.T) {
		a, b := conntest.Pipe(4)
		t1 := conn.Transfer{Channel: a}
		t2 := conn.Transfer{Channel: b}
		ctx := context.Background()

		info := transfer.FileInfo{Name: "frog.txt", Size: 3, MimeType: "text/plain"}
		require.NoError(t, t1.WriteFrame(ctx, transfer.MetadataFrame(info)))
		require.NoError(t, t1.WriteFrame(ctx, transfer.ChunkFrame([]byte("abc"))))
		require.NoError(t, t1.WriteFrame(ctx, transfer.CompleteFrame()))

		f, err := t2.ReadFrame(ctx)
		require.NoError(t, err)
		assert.Equal(t, transfer.Metadata, f.Kind)
		assert.Equal(t, info, f.Info)

		f, err = t2.ReadFrame(ctx)
		require.NoError(t, err)
		assert.Equal(t, transfer.Chunk, f.Kind)
		assert.Equal(t, []byte("abc"), f.Data)

		f, err = t2.ReadFrame(ctx)
		require.NoError(t, err)
		assert.Equal(t, transfer.Complete, f.Kind)
	})

	t.Run("transfer conn malformed frame", func(t *testing.T) {
		a, b := conntest.Pipe(4)
		ctx := context.Background()
		require.NoError(t, a.Send(ctx, conn.Message{Text: true, Data: []byte("not a frame")}))

		_, err := conn.Transfer{Channel: b}.ReadFrame(ctx)
		assert.ErrorIs(t, err, transfer.ErrMalformedFrame)
	})

	t.Run("closed pipe", func(t *testing.T) {
		a, b := conntest.Pipe(1)
		require.NoError(t, a.Close())
		_, err := b.Receive(context.Background())
		assert.ErrorIs(t, err, conn.ErrClosed)
		assert.ErrorIs(t, b.Send(context.Background(), conn.Message{}), conn.ErrClosed)
	})
}
