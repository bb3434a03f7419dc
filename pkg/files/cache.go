// Package files holds the per-form session cache of newly picked files.
//
// Entries are deduplicated by a metadata fingerprint (name, type, size, last
// modified), listed most recent first and shared by every field that
// references them. Each entry owns one preview URL which is revoked exactly
// once: when its last owner releases it, or when the cache closes.
package files

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goliatone/go-formengine/pkg/model"
)

var (
	// ErrUnknownFile is returned for session ids the cache does not hold.
	ErrUnknownFile = errors.New("files: unknown file")
	// ErrClosed is returned by Add after Close.
	ErrClosed = errors.New("files: cache closed")
)

// Input describes a picked file. Open yields its content when the
// submission is encoded.
type Input struct {
	Name         string
	Type         string
	Size         int64
	LastModified time.Time
	Open         func() (io.ReadCloser, error)
}

// Entry is an immutable snapshot of a cached file.
type Entry struct {
	ID           string
	Name         string
	Type         string
	Size         int64
	LastModified time.Time
	Fingerprint  string
	PreviewURL   string
	Open         func() (io.ReadCloser, error)
}

// Ref returns the field value referencing the entry.
func (e Entry) Ref() model.FileRef {
	ref := model.NewUpload(e.ID)
	ref.Name = e.Name
	ref.Type = e.Type
	ref.Size = e.Size
	return ref
}

// Previewer creates and revokes preview URLs for cached files.
type Previewer interface {
	Create(entry Entry) (string, error)
	Revoke(url string)
}

// BlobPreviewer hands out opaque blob-style URLs and keeps no state.
type BlobPreviewer struct{}

// Create returns "blob:formengine/<id>".
func (BlobPreviewer) Create(entry Entry) (string, error) {
	return "blob:formengine/" + entry.ID, nil
}

// Revoke is a no-op.
func (BlobPreviewer) Revoke(string) {}

// Option configures a Cache.
type Option func(*Cache)

// WithPreviewer swaps the preview URL collaborator.
func WithPreviewer(p Previewer) Option {
	return func(c *Cache) {
		if p != nil {
			c.previewer = p
		}
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(fn func() string) Option {
	return func(c *Cache) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// WithLogger attaches a logger for preview lifecycle events.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

type record struct {
	entry  Entry
	owners map[string]struct{}
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	order   []string
	entries map[string]*record
	prints  map[string]string
	closed  bool

	previewer Previewer
	newID     func() string
	logger    *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache builds an empty cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		entries:   make(map[string]*record),
		prints:    make(map[string]string),
		previewer: BlobPreviewer{},
		newID:     shortID,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Fingerprint identifies a file by its metadata.
func Fingerprint(in Input) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		in.Name,
		in.Type,
		strconv.FormatInt(in.Size, 10),
		strconv.FormatInt(in.LastModified.UnixMilli(), 10),
	}, "|")))
	return hex.EncodeToString(sum[:16])
}

// Add caches in and returns its session id. A file whose fingerprint is
// already cached returns the existing id and moves it to the front without
// creating another preview.
func (c *Cache) Add(in Input) (string, error) {
	if strings.TrimSpace(in.Name) == "" {
		return "", errors.New("files: input requires a name")
	}
	fp := Fingerprint(in)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", ErrClosed
	}
	if id, ok := c.prints[fp]; ok {
		c.hits.Add(1)
		c.touch(id)
		return id, nil
	}
	c.misses.Add(1)

	id := c.newID()
	for {
		if _, taken := c.entries[id]; id != "" && !taken {
			break
		}
		id = shortID()
	}
	entry := Entry{
		ID:           id,
		Name:         in.Name,
		Type:         in.Type,
		Size:         in.Size,
		LastModified: in.LastModified,
		Fingerprint:  fp,
		Open:         in.Open,
	}
	url, err := c.previewer.Create(entry)
	if err != nil {
		return "", fmt.Errorf("files: preview %q: %w", in.Name, err)
	}
	entry.PreviewURL = url

	c.entries[id] = &record{entry: entry, owners: make(map[string]struct{})}
	c.prints[fp] = id
	c.order = append([]string{id}, c.order...)
	c.logger.Debug("file cached", zap.String("id", id), zap.String("name", in.Name))
	return id, nil
}

func (c *Cache) touch(id string) {
	for i, cur := range c.order {
		if cur == id {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append([]string{id}, c.order...)
}

// Get returns the entry for id.
func (c *Cache) Get(id string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.entries[id]
	if !ok {
		return Entry{}, false
	}
	return rec.entry, true
}

// Entries returns every cached entry, most recent first.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id].entry)
	}
	return out
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Retain records owner as a holder of id. Retaining twice is a no-op.
func (c *Cache) Retain(id, owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.entries[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFile, id)
	}
	rec.owners[owner] = struct{}{}
	return nil
}

// Release drops owner from id. When no owner remains the preview URL is
// revoked and the entry removed. Releasing an owner that does not hold the
// entry changes nothing.
func (c *Cache) Release(id, owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.entries[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFile, id)
	}
	if _, held := rec.owners[owner]; !held {
		return nil
	}
	delete(rec.owners, owner)
	if len(rec.owners) == 0 {
		c.drop(id)
	}
	return nil
}

// Owners reports how many owners hold id.
func (c *Cache) Owners(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.entries[id]; ok {
		return len(rec.owners)
	}
	return 0
}

func (c *Cache) drop(id string) {
	rec := c.entries[id]
	delete(c.entries, id)
	delete(c.prints, rec.entry.Fingerprint)
	for i, cur := range c.order {
		if cur == id {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
	if rec.entry.PreviewURL != "" {
		c.previewer.Revoke(rec.entry.PreviewURL)
	}
	c.logger.Debug("file released", zap.String("id", id))
}

// Close revokes every remaining preview and rejects further additions.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, id := range append([]string(nil), c.order...) {
		c.drop(id)
	}
}

// Stats reports dedup hits and misses since creation.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
