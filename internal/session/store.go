package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LatestRef names the most recent session in Resolve.
const LatestRef = "latest"

// Store is a directory of session directories.
type Store struct {
	root string
}

// Entry is one row of a session listing.
type Entry struct {
	Key   string
	Label string
}

// Listing is a session listing, most recent first.
type Listing []Entry

// Label returns the display label for key.
func (l Listing) Label(key string) (string, bool) {
	for _, e := range l {
		if e.Key == key {
			return e.Label, true
		}
	}
	return "", false
}

// KeyFor returns the key whose display label is label.
func (l Listing) KeyFor(label string) (string, bool) {
	for _, e := range l {
		if e.Label == label {
			return e.Key, true
		}
	}
	return "", false
}

// OpenStore returns a store rooted at root, creating the directory if needed.
func OpenStore(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("session root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create session root %s: %w", root, err)
	}
	return &Store{root: filepath.Clean(root)}, nil
}

// Root returns the directory holding the sessions.
func (s *Store) Root() string {
	return s.root
}

// Create makes the directory for a capture started at t.
func (s *Store) Create(t time.Time) (*Session, error) {
	key := NewKey(t)
	dir := filepath.Join(s.root, key)

	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrSessionExists, key)
		}
		return nil, fmt.Errorf("create session %s: %w", key, err)
	}

	return &Session{Key: key, Dir: dir}, nil
}

// Open returns an existing session.
func (s *Store) Open(key string) (*Session, error) {
	if _, err := Label(key); err != nil {
		return nil, err
	}

	dir := filepath.Join(s.root, key)
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("stat session %s: %w", key, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	return &Session{Key: key, Dir: dir}, nil
}

// List enumerates the session directories, most recent first.
// A directory whose name is not a session key fails the listing.
func (s *Store) List() (Listing, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read session root %s: %w", s.root, err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		keys = append(keys, entry.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	listing := make(Listing, 0, len(keys))
	for _, key := range keys {
		label, err := Label(key)
		if err != nil {
			return nil, err
		}
		listing = append(listing, Entry{Key: key, Label: label})
	}

	return listing, nil
}

// Resolve finds a session by key, by display label or by "latest".
func (s *Store) Resolve(ref string) (*Session, error) {
	ref = strings.TrimSpace(ref)
	if ref == LatestRef {
		return s.Latest()
	}
	if _, err := Label(ref); err == nil {
		return s.Open(ref)
	}

	listing, err := s.List()
	if err != nil {
		return nil, err
	}
	key, ok := listing.KeyFor(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return s.Open(key)
}

// Latest returns the most recent session.
func (s *Store) Latest() (*Session, error) {
	listing, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(listing) == 0 {
		return nil, ErrNotFound
	}
	return s.Open(listing[0].Key)
}
