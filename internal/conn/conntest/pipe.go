// Package conntest provides in-memory peer channels for tests.
package conntest

import (
	"context"
	"sync"

	"github.com/SpatiumPortae/stardrop/internal/conn"
)

// End is one end of an in-memory channel created by Pipe.
type End struct {
	in     <-chan conn.Message
	out    chan<- conn.Message
	closed chan struct{}
	once   *sync.Once
}

// Pipe returns two connected channel ends. Messages are delivered in order
// and up to buffer messages can be in flight in each direction. Closing
// either end closes both.
func Pipe(buffer int) (*End, *End) {
	ab := make(chan conn.Message, buffer)
	ba := make(chan conn.Message, buffer)
	closed := make(chan struct{})
	once := &sync.Once{}
	return &End{in: ba, out: ab, closed: closed, once: once},
		&End{in: ab, out: ba, closed: closed, once: once}
}

func (e *End) Send(ctx context.Context, msg conn.Message) error {
	data := make([]byte, len(msg.Data))
	copy(data, msg.Data)
	select {
	case <-e.closed:
		return conn.ErrClosed
	default:
	}
	select {
	case e.out <- conn.Message{Text: msg.Text, Data: data}:
		return nil
	case <-e.closed:
		return conn.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *End) Receive(ctx context.Context) (conn.Message, error) {
	select {
	case msg := <-e.in:
		return msg, nil
	default:
	}
	select {
	case msg := <-e.in:
		return msg, nil
	case <-e.closed:
		return conn.Message{}, conn.ErrClosed
	case <-ctx.Done():
		return conn.Message{}, ctx.Err()
	}
}

func (e *End) Close() error {
	e.once.Do(func() { close(e.closed) })
	return nil
}

// Done is closed once either end has been closed.
func (e *End) Done() <-chan struct{} {
	return e.closed
}
