// directory.go defines the central datastructure that maps pairing codes to connections.
package rendezvous

import (
	"errors"
	"fmt"
	"sync"

	"github.com/SpatiumPortae/stardrop/internal/code"
)

// Policy decides what happens to a code that another connection already owns
// when it is drawn or registered again.
type Policy int

const (
	Overwrite Policy = iota // last write wins, the code moves to the new connection
	Reject                  // the existing owner keeps the code, Issue draws again
)

// maxIssueAttempts bounds the number of draws Issue makes before giving up.
const maxIssueAttempts = 64

var (
	ErrCodeTaken = errors.New("code is owned by another connection")
	ErrExhausted = errors.New("no free pairing code found")
)

func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "overwrite":
		return Overwrite, nil
	case "reject":
		return Reject, nil
	default:
		return Overwrite, fmt.Errorf("unknown code policy %q", s)
	}
}

func (p Policy) String() string {
	if p == Reject {
		return "reject"
	}
	return "overwrite"
}

// Directory maps live pairing codes to the connection that owns them. All
// operations are serialized by a single lock.
type Directory struct {
	mu      sync.Mutex
	entries map[string]string

	policy    Policy
	singleUse bool
	generate  func() (string, error)
}

type DirectoryOption func(*Directory)

func WithPolicy(p Policy) DirectoryOption {
	return func(d *Directory) {
		d.policy = p
	}
}

// WithSingleUse makes a code resolve at most once.
func WithSingleUse(singleUse bool) DirectoryOption {
	return func(d *Directory) {
		d.singleUse = singleUse
	}
}

func WithGenerator(generate func() (string, error)) DirectoryOption {
	return func(d *Directory) {
		d.generate = generate
	}
}

func NewDirectory(opts ...DirectoryOption) *Directory {
	d := &Directory{
		entries:  make(map[string]string),
		generate: code.Generate,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Issue draws a code and binds it to connID. A draw that hits a live code
// rebinds it under Overwrite and is drawn again under Reject.
func (d *Directory) Issue(connID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < maxIssueAttempts; i++ {
		c, err := d.generate()
		if err != nil {
			return "", fmt.Errorf("generating code: %w", err)
		}
		if _, taken := d.entries[c]; taken && d.policy == Reject {
			continue
		}
		d.entries[c] = connID
		return c, nil
	}
	return "", ErrExhausted
}

// Register binds code to connID according to the directory policy.
func (d *Directory) Register(code, connID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if owner, ok := d.entries[code]; ok && owner != connID && d.policy == Reject {
		return ErrCodeTaken
	}
	d.entries[code] = connID
	return nil
}

// Resolve returns the connection that owns code.
func (d *Directory) Resolve(code string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	connID, ok := d.entries[code]
	if ok && d.singleUse {
		delete(d.entries, code)
	}
	return connID, ok
}

// Release removes code if connID still owns it.
func (d *Directory) Release(code, connID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if owner, ok := d.entries[code]; !ok || owner != connID {
		return false
	}
	delete(d.entries, code)
	return true
}

// ReleaseAll removes every code owned by connID and returns how many were removed.
func (d *Directory) ReleaseAll(connID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	released := 0
	for c, owner := range d.entries {
		if owner == connID {
			delete(d.entries, c)
			released++
		}
	}
	return released
}

// Len returns the number of live codes.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
