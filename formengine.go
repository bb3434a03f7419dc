// Package formengine runs a multi-step form described by a schema document.
//
// A Form owns the field store, the condition graph deciding which fields and
// steps are visible, the step controller, and the session file cache. Field
// reads and writes go through a Scope: the root scope for top-level fields
// and one scope per repeater row. The Form is meant for a single goroutine;
// transport calls and term searches are its only asynchronous edges.
package formengine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/goliatone/go-formengine/pkg/condition"
	"github.com/goliatone/go-formengine/pkg/files"
	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/schema"
	"github.com/goliatone/go-formengine/pkg/steps"
	"github.com/goliatone/go-formengine/pkg/store"
	"github.com/goliatone/go-formengine/pkg/submit"
	"github.com/goliatone/go-formengine/pkg/taxonomy"
	"github.com/goliatone/go-formengine/pkg/termsearch"
	"github.com/goliatone/go-formengine/pkg/transport"
	"github.com/goliatone/go-formengine/pkg/validate"
)

// Transport delivers assembled submissions.
type Transport interface {
	Submit(ctx context.Context, req *submit.Request) (transport.Response, error)
}

// Option configures a Form.
type Option func(*Form)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Form) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithTransport sets the submission transport.
func WithTransport(t Transport) Option {
	return func(f *Form) {
		f.transport = t
	}
}

// WithNavigator sets the collaborator that requests and records steps.
func WithNavigator(nav steps.Navigator) Option {
	return func(f *Form) {
		f.navigator = nav
	}
}

// WithRegistry replaces the validator registry.
func WithRegistry(r *validate.Registry) Option {
	return func(f *Form) {
		if r != nil {
			f.registry = r
		}
	}
}

// WithPreviewer sets how preview URLs are created for new uploads.
func WithPreviewer(p files.Previewer) Option {
	return func(f *Form) {
		f.previewer = p
	}
}

// WithTermSearcher enables remote taxonomy searches.
func WithTermSearcher(remote termsearch.Remote) Option {
	return func(f *Form) {
		f.remote = remote
	}
}

// WithMessages overrides error templates from the document.
func WithMessages(messages map[string]string) Option {
	return func(f *Form) {
		for k, v := range messages {
			f.messages[k] = v
		}
	}
}

// WithHidden adds hidden fields to every submission.
func WithHidden(fields ...submit.HiddenField) Option {
	return func(f *Form) {
		f.hidden = append(f.hidden, fields...)
	}
}

// Form is one running instance of a schema.
type Form struct {
	doc       *schema.Document
	store     *store.Store
	graph     *condition.Graph
	steps     *steps.Controller
	files     *files.Cache
	registry  *validate.Registry
	messages  validate.Messages
	transport Transport
	navigator steps.Navigator
	previewer files.Previewer
	remote    termsearch.Remote
	hidden    []submit.HiddenField
	logger    *zap.Logger

	retained map[owned]struct{}

	searchMu  sync.Mutex
	searchers map[*taxonomy.Tree]*termsearch.Coordinator

	closed bool
}

// New builds a Form from doc. Schema issues are logged and the affected
// fields or conditions degrade as described on schema.Parse.
func New(doc *schema.Document, opts ...Option) (*Form, error) {
	if doc == nil {
		return nil, errors.New("formengine: document is nil")
	}
	f := &Form{
		doc:       doc,
		registry:  validate.NewRegistry(),
		messages:  make(validate.Messages, len(doc.Errors)),
		logger:    zap.NewNop(),
		retained:  make(map[owned]struct{}),
		searchers: make(map[*taxonomy.Tree]*termsearch.Coordinator),
	}
	for k, v := range doc.Errors {
		f.messages[k] = v
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	f.logger = f.logger.With(zap.String("form", doc.Location()))

	for _, issue := range doc.Issues {
		f.logger.Warn("schema issue", zap.String("path", issue.Path), zap.String("message", issue.Message))
	}

	st, err := store.New(doc.Fields)
	if err != nil {
		return nil, fmt.Errorf("formengine: %w", err)
	}
	f.store = st
	f.graph = condition.Build(st, condition.WithLogger(f.logger))

	cacheOpts := []files.Option{files.WithLogger(f.logger)}
	if f.previewer != nil {
		cacheOpts = append(cacheOpts, files.WithPreviewer(f.previewer))
	}
	f.files = files.NewCache(cacheOpts...)

	stepOpts := []steps.Option{steps.WithLogger(f.logger)}
	if f.navigator != nil {
		stepOpts = append(stepOpts, steps.WithNavigator(f.navigator))
	}
	f.steps = steps.New(doc.Steps, f.graph, stepOpts...)
	f.steps.Resolve()
	return f, nil
}

// Document returns the schema the form was built from.
func (f *Form) Document() *schema.Document { return f.doc }

// Store exposes the root field store.
func (f *Form) Store() *store.Store { return f.store }

// Graph exposes the condition graph.
func (f *Form) Graph() *condition.Graph { return f.graph }

// Steps exposes the step controller.
func (f *Form) Steps() *steps.Controller { return f.steps }

// Files exposes the session file cache.
func (f *Form) Files() *files.Cache { return f.files }

// Scope returns the scope of top-level fields.
func (f *Form) Scope() *Scope {
	return &Scope{form: f, store: f.store, gate: f.graph}
}

// Passes reports whether a top-level field or step is visible.
func (f *Form) Passes(key string) bool {
	return f.graph.Passes(key)
}

func (f *Form) context(draft bool) *validate.Context {
	return &validate.Context{
		Messages:     f.messages,
		SkipRequired: draft,
		Files:        f.files,
		Gate:         f.graph,
		Registry:     f.registry,
		Logger:       f.logger,
	}
}

// ValidateField validates one top-level field.
func (f *Form) ValidateField(key string) bool {
	return f.Scope().ValidateField(key)
}

// ValidateFields validates keys and returns the first invalid one.
func (f *Form) ValidateFields(keys []string) (string, bool) {
	return f.Scope().ValidateFields(keys)
}

// Validate validates every visible field.
func (f *Form) Validate() (string, bool) {
	return validate.All(f.context(false), f.store)
}

// StepFields returns the top-level fields assigned to step, in declaration
// order.
func (f *Form) StepFields(step string) []string {
	var keys []string
	for _, field := range f.store.Fields() {
		if field.Step == step && field.Key != step {
			keys = append(keys, field.Key)
		}
	}
	return keys
}

// ValidateStep validates the fields of step.
func (f *Form) ValidateStep(step string) (string, bool) {
	return validate.Fields(f.context(false), f.store, f.StepFields(step))
}

// Next validates the current step and advances when it is valid.
func (f *Form) Next() steps.Result {
	return f.steps.Next(f.ValidateStep)
}

// Prev moves back one step.
func (f *Form) Prev() (string, bool) {
	return f.steps.Prev()
}

// SetStep jumps to the active step at index i.
func (f *Form) SetStep(i int) error {
	return f.steps.SetStep(i)
}

// Build assembles the submission for the current state without validating.
func (f *Form) Build(extra ...submit.HiddenField) (*submit.Request, error) {
	hidden := make([]submit.HiddenField, 0, len(f.doc.Settings.Hidden)+len(f.hidden)+len(extra))
	hidden = append(hidden, submit.SortedHiddenFields(f.doc.Settings.Hidden)...)
	hidden = append(hidden, f.hidden...)
	hidden = append(hidden, extra...)

	assembler := submit.New(submit.WithFiles(f.files), submit.WithHidden(hidden...))
	return assembler.Build(f.store, f.graph)
}

// SubmitOptions tune a submission.
type SubmitOptions struct {
	// Draft suppresses required checks and marks the request as a draft.
	Draft bool
}

// Submit validates, assembles and sends the form. Validation failures return
// *InvalidFieldError; transport and server failures return *Notice. Field
// state is left untouched on failure.
func (f *Form) Submit(ctx context.Context, opts SubmitOptions) (transport.Response, error) {
	if f.closed {
		return transport.Response{}, ErrClosed
	}
	if f.transport == nil {
		return transport.Response{}, ErrNoTransport
	}

	if key, ok := validate.All(f.context(opts.Draft), f.store); !ok {
		f.logger.Debug("submission blocked", zap.String("field", key))
		return transport.Response{}, &InvalidFieldError{Key: key, Errors: f.store.Errors(key)}
	}

	var extra []submit.HiddenField
	if opts.Draft {
		extra = append(extra, submit.Draft())
	}
	req, err := f.Build(extra...)
	if err != nil {
		return transport.Response{}, fmt.Errorf("formengine: build submission: %w", err)
	}

	resp, err := f.transport.Submit(ctx, req)
	if err != nil {
		f.logger.Warn("submission failed", zap.Error(err))
		return resp, newNotice(err)
	}
	if !resp.Success {
		notice := newNotice(nil, append([]string{resp.Message}, resp.Errors...)...)
		notice.Status = resp.Status
		f.logger.Info("submission rejected", zap.Strings("messages", notice.Messages))
		return resp, notice
	}
	f.logger.Info("form submitted",
		zap.String("status", resp.Status),
		zap.Bool("draft", opts.Draft),
		zap.Int("files", len(req.Parts)),
	)
	return resp, nil
}

// SearchTerms searches the taxonomy field key among top-level fields.
func (f *Form) SearchTerms(ctx context.Context, key, query string, page int) (termsearch.Result, error) {
	return f.Scope().SearchTerms(ctx, key, query, page)
}

func (f *Form) searcher(field *model.Field) *termsearch.Coordinator {
	f.searchMu.Lock()
	defer f.searchMu.Unlock()
	tree := field.Props.Tree
	if c, ok := f.searchers[tree]; ok {
		return c
	}
	threshold := field.Props.SearchThreshold
	if threshold == 0 {
		threshold = f.doc.Settings.SearchThreshold
	}
	opts := []termsearch.Option{
		termsearch.WithThreshold(threshold),
		termsearch.WithLogger(f.logger),
	}
	if f.remote != nil {
		opts = append(opts, termsearch.WithRemote(f.remote, field.Props.Taxonomy))
	}
	c := termsearch.New(tree, opts...)
	f.searchers[tree] = c
	return c
}

// Close cancels condition watchers, waits for background searches, and
// revokes every preview URL. It is idempotent.
func (f *Form) Close() {
	if f.closed {
		return
	}
	f.closed = true

	f.searchMu.Lock()
	searchers := make([]*termsearch.Coordinator, 0, len(f.searchers))
	for _, c := range f.searchers {
		searchers = append(searchers, c)
	}
	f.searchMu.Unlock()
	for _, c := range searchers {
		c.Wait()
	}

	f.graph.Close()
	f.files.Close()
	f.retained = make(map[owned]struct{})
}
