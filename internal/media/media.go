// Package media stores chat images and message attachments.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	ErrUnsupportedType = errors.New("only .png, .jpg, .jpeg, .gif and .mp4 files are allowed")
	ErrTooLarge        = errors.New("file exceeds the upload size limit")
)

var allowedTypes = []string{"image/jpeg", "image/png", "image/gif", "video/mp4"}

// File is an upload waiting to be stored.
type File struct {
	Name   string
	Reader io.Reader
}

// Stored describes a persisted upload.
type Stored struct {
	URL  string
	Type string
}

// Store persists uploads and removes them once they are no longer referenced.
type Store interface {
	Save(ctx context.Context, folder string, f File) (Stored, error)
	Delete(ctx context.Context, url string) error
}

// LocalStore keeps uploads on disk under dir and serves them from baseURL.
type LocalStore struct {
	dir      string
	baseURL  string
	maxBytes int64
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir, baseURL string, maxBytes int64) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), maxBytes: maxBytes}, nil
}

// Dir is the directory uploads are written to.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Save validates the upload type and size and writes it under folder.
func (s *LocalStore) Save(ctx context.Context, folder string, f File) (Stored, error) {
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}
	data, err := io.ReadAll(io.LimitReader(f.Reader, s.maxBytes+1))
	if err != nil {
		return Stored{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return Stored{}, ErrTooLarge
	}

	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), allowedTypes...) {
		return Stored{}, ErrUnsupportedType
	}

	key := filepath.ToSlash(filepath.Join(folder, uuid.NewString()+"-"+sanitize(f.Name)))
	path := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Stored{}, fmt.Errorf("create media folder: %w", err)
	}
	if err := writeFile(path, data); err != nil {
		return Stored{}, err
	}
	return Stored{URL: s.baseURL + "/" + key, Type: mtype.String()}, nil
}

// Delete removes an upload previously returned by Save. URLs that this store
// did not produce are ignored.
func (s *LocalStore) Delete(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok {
		return nil
	}
	path := filepath.Join(s.dir, filepath.FromSlash(filepath.Clean("/" + key)))
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete media: %w", err)
	}
	return nil
}

func writeFile(path string, data []byte) error {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create media file: %w", err)
	}
	if _, err := io.Copy(out, bytes.NewReader(data)); err != nil {
		out.Close()
		return fmt.Errorf("write media file: %w", err)
	}
	return out.Close()
}

func sanitize(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
