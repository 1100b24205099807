// Package session drives one endpoint through pairing, transfer and reset.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/SpatiumPortae/stardrop/internal/conn"
	"github.com/SpatiumPortae/stardrop/internal/receiver"
	"github.com/SpatiumPortae/stardrop/protocol/transfer"
)

type State int

const (
	Idle               State = iota
	AwaitingCode             // receiver holds a code and waits for a sender
	AwaitingConnection       // sender waits for the peer channel to open
	Transferring
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingCode:
		return "awaiting-code"
	case AwaitingConnection:
		return "awaiting-connection"
	case Transferring:
		return "transferring"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type Role int

const (
	NoRole Role = iota
	Receiver
	Sender
)

const (
	DefaultSenderResetDelay   = 3 * time.Second
	DefaultReceiverResetDelay = 5 * time.Second
)

var (
	ErrInvalidCode     = errors.New("invalid pairing code")
	ErrChannelTornDown = errors.New("peer channel torn down")
	ErrBusy            = errors.New("a session is already in progress")
	ErrCodeUnavailable = errors.New("broker could not issue a pairing code")
)

// Broker is the signaling side of an endpoint. Calls send one message to
// the pairing broker and return once it has been written.
type Broker interface {
	GenerateCode(ctx context.Context) error
	JoinWithCode(ctx context.Context, code string, sig json.RawMessage) error
	Signal(ctx context.Context, to string, sig json.RawMessage) error
	ReleaseCode(ctx context.Context, code string) error
}

// Peer is a peer channel under negotiation. Signals yields the local
// handshake payloads that must reach the remote peer, Apply consumes the
// remote ones. Opened is closed once the channel can carry messages and
// Done once it has been destroyed by either side.
type Peer interface {
	conn.Channel
	Signals() <-chan json.RawMessage
	Apply(ctx context.Context, sig json.RawMessage) error
	Opened() <-chan struct{}
	Done() <-chan struct{}
}

// Flusher is implemented by peers that buffer outgoing messages. Flush
// returns once everything sent has left the buffer.
type Flusher interface {
	Flush(ctx context.Context) error
}

// PeerFactory creates a peer. The initiator produces the first handshake signal.
type PeerFactory func(initiator bool) (Peer, error)

// Source is the file a sender offers.
type Source struct {
	Info   transfer.FileInfo
	Reader io.Reader
}

// Update is a snapshot of the controller, delivered to the observer after every change.
type Update struct {
	State    State
	Role     Role
	Code     string
	Info     transfer.FileInfo
	Moved    int64
	Progress int
	Artifact *receiver.Artifact
	Err      error
}

type Observer func(Update)
