package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/SpatiumPortae/stardrop/internal/receiver"
	"github.com/SpatiumPortae/stardrop/protocol/transfer"
	"github.com/gabriel-vasile/mimetype"
)

// maxSuffix bounds the numbered names tried before giving up on a free one.
const maxSuffix = 1000

var (
	ErrIsDir       = errors.New("directories cannot be sent")
	ErrNoFreeName  = errors.New("no free file name")
	ErrInvalidName = errors.New("invalid file name")
	ErrNilArtifact = errors.New("no artifact to commit")
)

// ----------------------------------------------------- Send Side -----------------------------------------------------

// Open opens the file at path for sending and describes it. Symlinks are
// followed and the pointee is sent under the link's name.
func Open(path string) (*os.File, transfer.FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, transfer.FileInfo{}, fmt.Errorf("file '%s' not found: %w", path, err)
	}
	if fi.IsDir() {
		return nil, transfer.FileInfo{}, fmt.Errorf("'%s': %w", path, ErrIsDir)
	}
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, transfer.FileInfo{}, fmt.Errorf("detecting mime type of '%s': %w", path, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, transfer.FileInfo{}, err
	}
	return f, transfer.FileInfo{
		Name:     filepath.Base(path),
		Size:     fi.Size(),
		MimeType: mtype.String(),
	}, nil
}

// --------------------------------------------------- Receive Side ----------------------------------------------------

// Commit writes the artifact into dir under its declared base name and
// returns the path written. Unless overwrite is set an existing file is kept
// and a numbered name such as "photo (1).jpg" is used instead.
func Commit(dir string, a *receiver.Artifact, overwrite bool) (string, error) {
	if a == nil {
		return "", ErrNilArtifact
	}
	name, err := Sanitize(a.Name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if !overwrite {
		if path, err = freePath(path); err != nil {
			return "", err
		}
	}
	if err := os.WriteFile(path, a.Data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// Target returns the path an artifact is committed to when overwriting, and
// whether a file already exists there.
func Target(dir string, a *receiver.Artifact) (string, bool, error) {
	if a == nil {
		return "", false, ErrNilArtifact
	}
	name, err := Sanitize(a.Name)
	if err != nil {
		return "", false, err
	}
	path := filepath.Join(dir, name)
	return path, fileExists(path), nil
}

// Sanitize reduces a name announced by the remote peer to a plain file name,
// so that it cannot address anything outside of the output directory.
func Sanitize(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(filepath.FromSlash(name))
	switch name {
	case "", ".", "..", string(filepath.Separator):
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return name, nil
}

// ------------------------------------------------------- Helper ------------------------------------------------------

func freePath(path string) (string, error) {
	if !fileExists(path) {
		return path, nil
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; i <= maxSuffix; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if !fileExists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w for %s", ErrNoFreeName, path)
}

func fileExists(filename string) bool {
	_, err := os.Stat(filename)
	return !os.IsNotExist(err)
}
