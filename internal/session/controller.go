package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SpatiumPortae/stardrop/internal/code"
	"github.com/SpatiumPortae/stardrop/internal/conn"
	"github.com/SpatiumPortae/stardrop/internal/receiver"
	"github.com/SpatiumPortae/stardrop/internal/sender"
	"github.com/SpatiumPortae/stardrop/protocol/transfer"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

// releaseTimeout bounds the release-code message sent on teardowns that
// are not tied to a caller context.
const releaseTimeout = 5 * time.Second

// Controller is the state machine of one endpoint. It owns at most one peer
// at a time, and every session it starts is identified by a generation so
// that callbacks of a torn down session are ignored.
type Controller struct {
	mu         sync.Mutex
	state      State
	role       Role
	gen        uint64
	code       string
	remote     string
	joined     bool
	peer       Peer
	cancel     context.CancelFunc
	info       transfer.FileInfo
	moved      int64
	progress   int
	artifact   *receiver.Artifact
	err        error
	resetTimer *time.Timer

	broker        Broker
	newPeer       PeerFactory
	chunkSize     int
	senderDelay   time.Duration
	receiverDelay time.Duration
	logger        *zap.Logger

	updates *dispatcher
}

type Option func(*Controller)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithResetDelay sets how long a finished session is shown before the controller returns to idle.
func WithResetDelay(d time.Duration) Option {
	return func(c *Controller) {
		c.senderDelay = d
		c.receiverDelay = d
	}
}

func WithChunkSize(n int) Option {
	return func(c *Controller) {
		c.chunkSize = n
	}
}

// WithObserver registers the function that receives every Update. Updates
// are delivered in order from a single goroutine.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		c.updates.observer = o
	}
}

func New(broker Broker, newPeer PeerFactory, opts ...Option) *Controller {
	c := &Controller{
		broker:        broker,
		newPeer:       newPeer,
		chunkSize:     transfer.MaxChunkSize,
		senderDelay:   DefaultSenderResetDelay,
		receiverDelay: DefaultReceiverResetDelay,
		logger:        zap.NewNop(),
		updates:       newDispatcher(),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.updates.run()
	return c
}

// Close tears down the current session and stops update delivery.
func (c *Controller) Close() {
	c.Cancel(context.Background())
	c.updates.close()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the current state as an Update.
func (c *Controller) Snapshot() Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// ------------------------------------------------------ Receiver -----------------------------------------------------

// RequestCode starts a receiving session by asking the broker for a pairing code.
func (c *Controller) RequestCode(ctx context.Context) error {
	c.mu.Lock()
	release, err := c.beginLocked(Receiver, AwaitingCode)
	c.mu.Unlock()
	c.release(ctx, release)
	if err != nil {
		return err
	}
	if err := c.broker.GenerateCode(ctx); err != nil {
		c.abort(ctx, fmt.Errorf("requesting code: %w", err))
		return err
	}
	return nil
}

// HandleCodeGenerated records the code handed out by the broker. A code
// nobody waits for, such as the answer to a request of a session that was
// torn down, is released right away.
func (c *Controller) HandleCodeGenerated(pairingCode string) {
	c.mu.Lock()
	if c.state != AwaitingCode || c.code != "" {
		c.mu.Unlock()
		c.logger.Debug("releasing unclaimed code", zap.String("code", pairingCode))
		c.release(context.Background(), pairingCode)
		return
	}
	c.code = pairingCode
	c.notifyLocked()
	c.mu.Unlock()
}

// HandleCodeUnavailable ends a receiving session the broker could not issue a code for.
func (c *Controller) HandleCodeUnavailable() {
	c.mu.Lock()
	if c.state != AwaitingCode || c.code != "" {
		c.mu.Unlock()
		return
	}
	release := c.teardownLocked(ErrCodeUnavailable)
	c.mu.Unlock()
	c.release(context.Background(), release)
}

// HandlePeerConnected starts the transfer with the sender that joined our code.
func (c *Controller) HandlePeerConnected(id string) {
	c.mu.Lock()
	if c.state != AwaitingCode {
		c.mu.Unlock()
		c.logger.Info("ignoring peer outside of a waiting session", zap.String("peer_id", id))
		return
	}
	p, err := c.newPeer(false)
	if err != nil {
		release := c.teardownLocked(fmt.Errorf("creating peer: %w", err))
		c.mu.Unlock()
		c.release(context.Background(), release)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.peer, c.remote, c.cancel = p, id, cancel
	c.state = Transferring
	gen := c.gen
	c.notifyLocked()
	c.mu.Unlock()

	go c.forwardSignals(ctx, gen, p, "")
	go c.watch(gen, p)
	go c.receive(ctx, gen, p)
}

func (c *Controller) receive(ctx context.Context, gen uint64, p Peer) {
	var dec *receiver.Decoder
	dec = receiver.New(
		receiver.WithLogger(c.logger),
		receiver.WithProgress(func(received int64, percent int) {
			info, _ := dec.Info()
			c.report(gen, info, received, percent)
		}),
	)
	artifact, err := receiver.Receive(ctx, conn.Transfer{Channel: p}, dec)
	c.finish(gen, p, artifact, err)
}

// -------------------------------------------------------- Sender -----------------------------------------------------

// Send starts a sending session towards the receiver waiting behind code.
// A malformed code is rejected with ErrInvalidCode before contacting the broker.
func (c *Controller) Send(ctx context.Context, pairingCode string, src Source) error {
	if !code.IsValid(pairingCode) {
		return fmt.Errorf("%w: %q", ErrInvalidCode, pairingCode)
	}
	c.mu.Lock()
	release, err := c.beginLocked(Sender, AwaitingConnection)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	p, err := c.newPeer(true)
	if err != nil {
		c.teardownLocked(fmt.Errorf("creating peer: %w", err))
		c.mu.Unlock()
		c.release(ctx, release)
		return err
	}
	sctx, cancel := context.WithCancel(context.Background())
	c.peer, c.cancel, c.code, c.info = p, cancel, pairingCode, src.Info
	gen := c.gen
	c.notifyLocked()
	c.mu.Unlock()
	c.release(ctx, release)

	go c.forwardSignals(sctx, gen, p, pairingCode)
	go c.watch(gen, p)
	go c.send(sctx, gen, p, src)
	return nil
}

func (c *Controller) send(ctx context.Context, gen uint64, p Peer, src Source) {
	select {
	case <-p.Opened():
	case <-p.Done():
		return
	case <-ctx.Done():
		return
	}
	c.mu.Lock()
	if c.gen != gen || c.state != AwaitingConnection {
		c.mu.Unlock()
		return
	}
	c.state = Transferring
	c.notifyLocked()
	c.mu.Unlock()

	enc := sender.New(
		sender.WithChunkSize(c.chunkSize),
		sender.WithLogger(c.logger),
		sender.WithProgress(func(moved int64, percent int) {
			c.report(gen, src.Info, moved, percent)
		}),
	)
	err := enc.Send(ctx, conn.Transfer{Channel: p}, src.Reader, src.Info)
	if f, ok := p.(Flusher); ok && err == nil {
		err = f.Flush(ctx)
	}
	c.finish(gen, p, nil, err)
}

// HandleInvalidCode ends a sending session whose code did not resolve.
func (c *Controller) HandleInvalidCode() {
	c.mu.Lock()
	if c.state != AwaitingConnection {
		c.mu.Unlock()
		return
	}
	release := c.teardownLocked(ErrInvalidCode)
	c.mu.Unlock()
	c.release(context.Background(), release)
}

// ------------------------------------------------------- Shared ------------------------------------------------------

// HandleSignal applies a handshake signal relayed from the connection from.
func (c *Controller) HandleSignal(ctx context.Context, from string, sig json.RawMessage) {
	c.mu.Lock()
	p := c.peer
	if p == nil {
		c.mu.Unlock()
		c.logger.Debug("ignoring signal without a peer", zap.String("from", from))
		return
	}
	if c.remote == "" {
		c.remote = from
	}
	if c.remote != from {
		c.mu.Unlock()
		c.logger.Warn("ignoring signal from unexpected connection", zap.String("from", from))
		return
	}
	c.mu.Unlock()
	if err := p.Apply(ctx, sig); err != nil {
		c.logger.Warn("applying remote signal", zap.Error(err))
	}
}

// Cancel tears down the current session. It is handled exactly like the
// peer channel being destroyed.
func (c *Controller) Cancel(ctx context.Context) {
	c.mu.Lock()
	if c.state == Idle {
		c.mu.Unlock()
		return
	}
	release := c.teardownLocked(nil)
	c.mu.Unlock()
	c.release(ctx, release)
}

// forwardSignals relays the local handshake signals of p through the broker.
// When joinCode is set the first signal joins the receiver behind it.
func (c *Controller) forwardSignals(ctx context.Context, gen uint64, p Peer, joinCode string) {
	for {
		var sig json.RawMessage
		select {
		case sig = <-p.Signals():
		case <-ctx.Done():
			return
		}
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		first := !c.joined
		c.joined = true
		remote := c.remote
		c.mu.Unlock()

		var err error
		switch {
		case joinCode != "" && first:
			err = c.broker.JoinWithCode(ctx, joinCode, sig)
		case remote != "":
			err = c.broker.Signal(ctx, remote, sig)
		default:
			c.logger.Warn("dropping local signal, remote peer unknown")
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			c.abort(context.Background(), fmt.Errorf("forwarding signal: %w", err))
			return
		}
	}
}

// watch tears the session down when its peer is destroyed.
func (c *Controller) watch(gen uint64, p Peer) {
	<-p.Done()
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	if c.role == Receiver && c.state == Transferring {
		// The receive loop still drains what arrived before the channel
		// went down and ends the session itself.
		c.mu.Unlock()
		return
	}
	var err error
	switch c.state {
	case Complete:
	case Failed:
		err = c.err
	default:
		err = ErrChannelTornDown
	}
	release := c.teardownLocked(err)
	c.mu.Unlock()
	c.release(context.Background(), release)
}

func (c *Controller) report(gen uint64, info transfer.FileInfo, moved int64, percent int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.state != Transferring {
		return
	}
	c.info, c.moved, c.progress = info, moved, percent
	c.notifyLocked()
}

// finish moves a transferring session to Complete or Failed.
func (c *Controller) finish(gen uint64, p Peer, artifact *receiver.Artifact, err error) {
	c.mu.Lock()
	if c.gen != gen || c.state != Transferring && c.state != AwaitingConnection {
		c.mu.Unlock()
		return
	}
	switch {
	case err == nil:
		c.state = Complete
		c.progress = 100
		c.artifact = artifact
		if artifact != nil {
			c.info = transfer.FileInfo{Name: artifact.Name, Size: artifact.Size, MimeType: artifact.MimeType}
			c.moved = artifact.Size
		}
	case errors.Is(err, conn.ErrClosed):
		release := c.teardownLocked(ErrChannelTornDown)
		c.mu.Unlock()
		c.release(context.Background(), release)
		return
	case errors.Is(err, context.Canceled):
		c.mu.Unlock()
		return
	default:
		c.logger.Error("transfer failed", zap.Error(err))
		c.state = Failed
		c.err = err
	}
	c.scheduleResetLocked(gen)
	c.notifyLocked()
	c.mu.Unlock()
}

// abort tears down the current session with err, if it is still active.
func (c *Controller) abort(ctx context.Context, err error) {
	c.mu.Lock()
	if c.state == Idle {
		c.mu.Unlock()
		return
	}
	release := c.teardownLocked(err)
	c.mu.Unlock()
	c.release(ctx, release)
}

// ------------------------------------------------------ Helpers ------------------------------------------------------

// beginLocked starts a new session in role. A finished session is torn down
// first; any other active session makes it fail with ErrBusy.
func (c *Controller) beginLocked(role Role, state State) (release string, err error) {
	if slices.Contains([]State{Complete, Failed}, c.state) {
		release = c.teardownLocked(nil)
	}
	if c.state != Idle {
		return release, ErrBusy
	}
	c.gen++
	c.role = role
	c.state = state
	c.err = nil
	c.notifyLocked()
	return release, nil
}

// teardownLocked discards every resource of the current session and returns
// to Idle. It returns the code the broker must be told to release, if any.
func (c *Controller) teardownLocked(err error) string {
	c.stopResetLocked()
	if c.cancel != nil {
		c.cancel()
	}
	if c.peer != nil {
		if cerr := c.peer.Close(); cerr != nil {
			c.logger.Debug("closing peer", zap.Error(cerr))
		}
	}
	var release string
	if c.role == Receiver {
		release = c.code
	}
	c.gen++
	c.state = Idle
	c.role = NoRole
	c.code, c.remote, c.joined = "", "", false
	c.peer, c.cancel = nil, nil
	c.info, c.moved, c.progress, c.artifact = transfer.FileInfo{}, 0, 0, nil
	c.err = err
	c.notifyLocked()
	return release
}

// release tells the broker to drop pairingCode. Only the named code is
// released, so a late release never hits a code issued to a newer session.
func (c *Controller) release(ctx context.Context, pairingCode string) {
	if pairingCode == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, releaseTimeout)
	defer cancel()
	if err := c.broker.ReleaseCode(ctx, pairingCode); err != nil {
		c.logger.Warn("releasing pairing code", zap.Error(err))
	}
}

func (c *Controller) scheduleResetLocked(gen uint64) {
	c.stopResetLocked()
	delay := c.senderDelay
	if c.role == Receiver {
		delay = c.receiverDelay
	}
	c.resetTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.gen != gen || !slices.Contains([]State{Complete, Failed}, c.state) {
			c.mu.Unlock()
			return
		}
		release := c.teardownLocked(c.err)
		c.mu.Unlock()
		c.release(context.Background(), release)
	})
}

func (c *Controller) stopResetLocked() {
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
}

func (c *Controller) snapshotLocked() Update {
	return Update{
		State:    c.state,
		Role:     c.role,
		Code:     c.code,
		Info:     c.info,
		Moved:    c.moved,
		Progress: c.progress,
		Artifact: c.artifact,
		Err:      c.err,
	}
}

func (c *Controller) notifyLocked() {
	c.updates.push(c.snapshotLocked())
}
