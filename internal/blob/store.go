package blob

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// maxAttachmentSize caps uploads at 10 MiB.
const maxAttachmentSize = 10 << 20

var allowedExtensions = map[string]bool{
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// Store keeps expense attachments on the local filesystem, one directory per
// expense, and hands out URLs under the configured public prefix.
type Store struct {
	root      string
	urlPrefix string
}

// NewStore creates the root directory if needed. urlPrefix is the path the
// HTTP server serves the root under, e.g. "/attachments".
func NewStore(root, urlPrefix string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create attachment root: %w", err)
	}
	return &Store{root: root, urlPrefix: strings.TrimSuffix(urlPrefix, "/")}, nil
}

// Root returns the directory the store writes to.
func (s *Store) Root() string { return s.root }

// URLPrefix is the path prefix under which saved attachments are served.
func (s *Store) URLPrefix() string { return s.urlPrefix }

// Save streams one attachment to disk and returns its id and public URL.
// The stored name is a fresh id plus the original extension; the caller's
// filename never reaches the filesystem.
func (s *Store) Save(ctx context.Context, expenseID, filename string, r io.Reader) (id, url string, err error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return "", "", fmt.Errorf("unsupported attachment type %q", ext)
	}

	dir := filepath.Join(s.root, expenseID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("create attachment directory: %w", err)
	}

	id = uuid.NewString()
	path := filepath.Join(dir, id+ext)
	f, err := os.Create(path)
	if err != nil {
		return "", "", fmt.Errorf("create attachment file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(r, maxAttachmentSize+1))
	if err != nil {
		os.Remove(path)
		return "", "", fmt.Errorf("write attachment: %w", err)
	}
	if n > maxAttachmentSize {
		os.Remove(path)
		return "", "", fmt.Errorf("attachment exceeds %d bytes", maxAttachmentSize)
	}

	url = fmt.Sprintf("%s/%s/%s%s", s.urlPrefix, expenseID, id, ext)
	slog.InfoContext(ctx, "Attachment stored",
		"expense_id", expenseID, "attachment_id", id, "bytes", n)
	return id, url, nil
}

// Delete removes the file behind a URL previously returned by Save.
func (s *Store) Delete(ctx context.Context, url string) error {
	rel := strings.TrimPrefix(url, s.urlPrefix+"/")
	if rel == url || strings.Contains(rel, "..") {
		return fmt.Errorf("attachment url %q outside store", url)
	}

	path := filepath.Join(s.root, filepath.FromSlash(rel))
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("remove attachment: %w", err)
	}

	slog.InfoContext(ctx, "Attachment removed", "url", url)
	return nil
}
