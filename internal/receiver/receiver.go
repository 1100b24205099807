// Package receiver reassembles a file from the frames read off a peer channel.
package receiver

import (
	"context"
	"errors"
	"fmt"

	"github.com/SpatiumPortae/stardrop/internal/conn"
	"github.com/SpatiumPortae/stardrop/protocol/transfer"
	"go.uber.org/zap"
)

// ErrNoSession is returned for chunk and completion frames that arrive before any metadata frame.
var ErrNoSession = errors.New("no transfer in progress")

// Artifact is a finished download, held entirely in memory.
type Artifact struct {
	Name     string
	MimeType string
	Size     int64
	Data     []byte
}

type session struct {
	info     transfer.FileInfo
	chunks   [][]byte
	received int64
	percent  int
}

// Decoder tracks at most one open transfer session. Frames must be handed
// to it in arrival order from a single goroutine.
type Decoder struct {
	session  *session
	progress func(received int64, percent int)
	logger   *zap.Logger
}

type Option func(*Decoder)

// WithProgress registers a function called after every chunk and on completion.
func WithProgress(fn func(received int64, percent int)) Option {
	return func(d *Decoder) {
		d.progress = fn
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(d *Decoder) {
		d.logger = logger
	}
}

func New(opts ...Option) *Decoder {
	d := &Decoder{
		progress: func(int64, int) {},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Info returns the metadata of the open session.
func (d *Decoder) Info() (transfer.FileInfo, bool) {
	if d.session == nil {
		return transfer.FileInfo{}, false
	}
	return d.session.info, true
}

// Reset discards the open session and its buffered chunks.
func (d *Decoder) Reset() {
	d.session = nil
}

// Handle applies one frame. It returns the artifact once a completion frame
// closes the session and nil otherwise.
func (d *Decoder) Handle(f transfer.Frame) (*Artifact, error) {
	switch f.Kind {
	case transfer.Metadata:
		if d.session != nil {
			d.logger.Warn("discarding partial transfer",
				zap.String("name", d.session.info.Name),
				zap.Int64("received", d.session.received))
		}
		d.session = &session{info: f.Info}
		d.logger.Debug("opened transfer",
			zap.String("name", f.Info.Name),
			zap.Int64("size", f.Info.Size),
			zap.String("mime_type", f.Info.MimeType))
		return nil, nil

	case transfer.Chunk:
		s := d.session
		if s == nil {
			return nil, fmt.Errorf("chunk of %d bytes: %w", len(f.Data), ErrNoSession)
		}
		s.chunks = append(s.chunks, f.Data)
		s.received += int64(len(f.Data))
		d.report(transfer.Progress(s.received, s.info.Size))
		return nil, nil

	case transfer.Complete:
		s := d.session
		if s == nil {
			return nil, fmt.Errorf("completion: %w", ErrNoSession)
		}
		data := make([]byte, 0, s.received)
		for _, c := range s.chunks {
			data = append(data, c...)
		}
		if s.received != s.info.Size {
			d.logger.Warn("transfer size differs from metadata",
				zap.Int64("announced", s.info.Size),
				zap.Int64("received", s.received))
		}
		if s.percent < 100 {
			d.report(100)
		}
		d.session = nil
		return &Artifact{
			Name:     s.info.Name,
			MimeType: s.info.MimeType,
			Size:     int64(len(data)),
			Data:     data,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown kind %d", transfer.ErrMalformedFrame, f.Kind)
	}
}

func (d *Decoder) report(percent int) {
	d.session.percent = percent
	d.progress(d.session.received, percent)
}

// Receive reads frames from tc until a transfer completes. Malformed frames
// and frames outside of a session are logged and dropped.
func Receive(ctx context.Context, tc conn.Transfer, d *Decoder) (*Artifact, error) {
	for {
		f, err := tc.ReadFrame(ctx)
		switch {
		case errors.Is(err, transfer.ErrMalformedFrame):
			d.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		case err != nil:
			return nil, err
		}
		artifact, err := d.Handle(f)
		switch {
		case errors.Is(err, ErrNoSession), errors.Is(err, transfer.ErrMalformedFrame):
			d.logger.Warn("dropping frame", zap.String("kind", f.Kind.Name()), zap.Error(err))
		case err != nil:
			return nil, err
		case artifact != nil:
			return artifact, nil
		}
	}
}
