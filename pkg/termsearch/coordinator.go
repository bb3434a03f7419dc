// Package termsearch coordinates taxonomy term lookups. The local tree is
// searched first; when it yields fewer matches than the threshold the remote
// collaborator is asked, and only the most recent query may apply its result.
package termsearch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/goliatone/go-formengine/pkg/taxonomy"
	"github.com/goliatone/go-formengine/pkg/transport"
)

// ErrSuperseded reports that a newer query started before this one's remote
// response arrived. The response is discarded.
var ErrSuperseded = errors.New("termsearch: superseded by a newer query")

// DefaultThreshold is the local match count at which the remote is skipped.
const DefaultThreshold = 5

// Remote pages through server-side terms.
type Remote interface {
	SearchTerms(ctx context.Context, taxonomy, query string, page int) (transport.TermPage, error)
}

// Result is the outcome of one query.
type Result struct {
	Query      string
	Terms      []taxonomy.Term
	Remote     bool
	HasMore    bool
	Generation uint64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRemote enables server-side search against the named taxonomy.
func WithRemote(remote Remote, name string) Option {
	return func(c *Coordinator) {
		c.remote = remote
		c.name = strings.TrimSpace(name)
	}
}

// WithThreshold sets the local match count that skips the remote. Values
// below one keep the default.
func WithThreshold(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.threshold = n
		}
	}
}

// WithLimit caps local matches. Zero returns every match.
func WithLimit(n int) Option {
	return func(c *Coordinator) {
		if n >= 0 {
			c.limit = n
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Coordinator runs searches for one taxonomy field.
type Coordinator struct {
	tree      *taxonomy.Tree
	remote    Remote
	name      string
	threshold int
	limit     int
	logger    *zap.Logger

	generation atomic.Uint64
	inflight   sync.WaitGroup
	deliver    sync.Mutex
}

// New builds a coordinator over tree.
func New(tree *taxonomy.Tree, opts ...Option) *Coordinator {
	if tree == nil {
		tree = taxonomy.NewTree(nil)
	}
	c := &Coordinator{
		tree:      tree,
		threshold: DefaultThreshold,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Tree exposes the term tree remote pages merge into.
func (c *Coordinator) Tree() *taxonomy.Tree {
	return c.tree
}

// Search runs query. Page one consults the local tree first; later pages are
// always remote. Remote terms are merged into the tree when the result is
// still current.
func (c *Coordinator) Search(ctx context.Context, query string, page int) (Result, error) {
	return c.search(ctx, c.generation.Add(1), query, page)
}

func (c *Coordinator) search(ctx context.Context, gen uint64, query string, page int) (Result, error) {
	query = strings.TrimSpace(query)
	if page < 1 {
		page = 1
	}

	result := Result{Query: query, Generation: gen}
	if page == 1 {
		result.Terms = c.tree.Search(query, c.limit)
		if c.remote == nil || c.name == "" || len(result.Terms) >= c.threshold {
			return result, nil
		}
	} else if c.remote == nil || c.name == "" {
		return result, nil
	}

	resp, err := c.remote.SearchTerms(ctx, c.name, query, page)
	if c.generation.Load() != gen {
		c.logger.Debug("discarding superseded term search",
			zap.String("taxonomy", c.name),
			zap.String("query", query),
			zap.Uint64("generation", gen),
		)
		return Result{}, ErrSuperseded
	}
	if err != nil {
		return Result{}, fmt.Errorf("termsearch: %s: %w", c.name, err)
	}
	if !resp.Success {
		msg := strings.TrimSpace(resp.Message)
		if msg == "" {
			msg = "search failed"
		}
		return Result{}, fmt.Errorf("termsearch: %s: %s", c.name, msg)
	}

	c.tree.Merge(0, resp.Data)
	result.Terms = mergeTerms(result.Terms, resp.Data)
	result.Remote = true
	result.HasMore = resp.HasMore
	return result, nil
}

// Go runs Search in its own goroutine and hands the outcome to fn. The
// search supersedes earlier ones as soon as Go is called. Outcomes that are
// no longer current when they are ready are dropped without calling fn, and
// callbacks never run concurrently.
func (c *Coordinator) Go(ctx context.Context, query string, page int, fn func(Result, error)) {
	gen := c.generation.Add(1)
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		result, err := c.search(ctx, gen, query, page)

		c.deliver.Lock()
		defer c.deliver.Unlock()
		if errors.Is(err, ErrSuperseded) || c.generation.Load() != gen {
			return
		}
		if fn != nil {
			fn(result, err)
		}
	}()
}

// Wait blocks until every search started with Go has returned.
func (c *Coordinator) Wait() {
	c.inflight.Wait()
}

func mergeTerms(local, remote []taxonomy.Term) []taxonomy.Term {
	seen := make(map[int]struct{}, len(local)+len(remote))
	out := make([]taxonomy.Term, 0, len(local)+len(remote))
	for _, list := range [][]taxonomy.Term{local, remote} {
		for _, term := range list {
			if _, ok := seen[term.ID]; ok {
				continue
			}
			seen[term.ID] = struct{}{}
			out = append(out, term)
		}
	}
	return out
}
