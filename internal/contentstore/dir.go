package contentstore

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Dir is a directory of blobs named by their SHA-1.
type Dir struct {
	root    string
	baseURL string

	mu    sync.RWMutex
	blobs map[string]int64 // hash -> size
}

// OpenDir indexes root, creating it if needed. Resolved URLs are
// baseURL/files/<hash>.
func OpenDir(root, baseURL string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create content dir: %w", err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read content dir: %w", err)
	}

	d := &Dir{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		blobs:   make(map[string]int64),
	}
	for _, e := range entries {
		if e.IsDir() || !isHash(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		d.blobs[e.Name()] = info.Size()
	}
	return d, nil
}

// Ingest copies the file at path into the store and returns its identifier.
func (d *Dir) Ingest(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("ingest: %w", err)
	}
	defer src.Close()

	uri, err := d.IngestReader(src, filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("ingest %s: %w", path, err)
	}
	return uri, nil
}

// IngestReader stores everything read from r. name becomes the label of the
// returned identifier.
func (d *Dir) IngestReader(r io.Reader, name string) (string, error) {
	tmp, err := os.CreateTemp(d.root, ".ingest-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	h := sha1.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", err
	}

	hash := hex.EncodeToString(h.Sum(nil))
	if err := os.Rename(tmp.Name(), filepath.Join(d.root, hash)); err != nil {
		return "", err
	}

	d.mu.Lock()
	d.blobs[hash] = n
	d.mu.Unlock()

	return URI{Hash: hash, Name: name}.String(), nil
}

// Has reports whether the blob is stored.
func (d *Dir) Has(hash string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.blobs[hash]
	return ok
}

// Len returns the number of stored blobs.
func (d *Dir) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.blobs)
}

// Resolve implements Resolver.
func (d *Dir) Resolve(uri string) (string, error) {
	u, err := ParseURI(uri)
	if err != nil {
		return "", err
	}
	if !d.Has(u.Hash) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, uri)
	}
	return d.baseURL + "/files/" + u.Hash, nil
}

// Open returns the blob for hash. The caller closes it.
func (d *Dir) Open(hash string) (*os.File, error) {
	hash = strings.ToLower(hash)
	if !isHash(hash) || !d.Has(hash) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	f, err := os.Open(filepath.Join(d.root, hash))
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}
