package conn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/SpatiumPortae/stardrop/protocol/signal"
	"github.com/SpatiumPortae/stardrop/protocol/transfer"
	"nhooyr.io/websocket"
)

// ErrClosed is returned when the other end closed the connection in an orderly fashion.
var ErrClosed = errors.New("connection closed")

// Conn is an interface that wraps a message oriented network connection.
type Conn interface {
	Write(context.Context, []byte) error
	Read(context.Context) ([]byte, error)
	Close() error
}

// ------------------------------------------------- Conn implementations ----------------------------------------------

// WS is a wrapper around a websocket connection.
type WS struct {
	Conn *websocket.Conn
}

func (ws *WS) Write(ctx context.Context, payload []byte) error {
	return ws.Conn.Write(ctx, websocket.MessageText, payload)
}

// Read reads the next message. An orderly close by the peer is reported as ErrClosed.
func (ws *WS) Read(ctx context.Context) ([]byte, error) {
	_, payload, err := ws.Conn.Read(ctx)
	switch {
	case err == nil:
		return payload, nil
	case errors.Is(err, io.EOF),
		websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway:
		return nil, fmt.Errorf("%w: %v", ErrClosed, err)
	default:
		return nil, err
	}
}

func (ws *WS) Close() error {
	return ws.Conn.Close(websocket.StatusNormalClosure, "")
}

// ----------------------------------------------------- Rendezvous Conn -----------------------------------------------

// Rendezvous specifies a connection to the pairing broker.
type Rendezvous struct {
	Conn Conn
}

// WriteMsg writes a broker message to the underlying connection.
func (r Rendezvous) WriteMsg(ctx context.Context, msg signal.Msg) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.Conn.Write(ctx, payload)
}

// ReadMsg reads a broker message from the underlying connection. If any
// expected types are provided the message must be one of them.
func (r Rendezvous) ReadMsg(ctx context.Context, expected ...signal.MsgType) (signal.Msg, error) {
	b, err := r.Conn.Read(ctx)
	if err != nil {
		return signal.Msg{}, err
	}
	var msg signal.Msg
	if err := json.Unmarshal(b, &msg); err != nil {
		return signal.Msg{}, err
	}
	if len(expected) == 0 {
		return msg, nil
	}
	for _, t := range expected {
		if t == msg.Type {
			return msg, nil
		}
	}
	return signal.Msg{}, signal.Error{Expected: expected, Got: msg.Type}
}

// ------------------------------------------------------ Peer Channel -------------------------------------------------

// Message is a single message on a peer channel. Text distinguishes textual
// messages from binary ones, as the underlying transport does.
type Message struct {
	Text bool
	Data []byte
}

// Channel is a message oriented channel between two endpoints. Implementations
// must deliver messages in order and exactly once, and must not retain the
// Data slice of a sent message after Send returns. The Data of a received
// message is owned by the caller.
type Channel interface {
	Send(context.Context, Message) error
	Receive(context.Context) (Message, error)
	Close() error
}

// ------------------------------------------------------ Transfer Conn ------------------------------------------------

// Transfer specifies a peer channel that speaks the transfer protocol.
type Transfer struct {
	Channel Channel
}

// WriteFrame encodes and writes the frame to the underlying channel.
func (t Transfer) WriteFrame(ctx context.Context, f transfer.Frame) error {
	text, b, err := transfer.Encode(f)
	if err != nil {
		return err
	}
	return t.Channel.Send(ctx, Message{Text: text, Data: b})
}

// ReadFrame reads and classifies the next frame. Malformed textual frames
// result in an error wrapping transfer.ErrMalformedFrame; the channel remains usable.
func (t Transfer) ReadFrame(ctx context.Context) (transfer.Frame, error) {
	msg, err := t.Channel.Receive(ctx)
	if err != nil {
		return transfer.Frame{}, err
	}
	return transfer.Decode(msg.Text, msg.Data)
}
