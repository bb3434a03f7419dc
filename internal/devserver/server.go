// Package devserver is a local stand-in for the form backend. It accepts
// multipart submissions, checks that upload markers line up with binary
// parts, serves paginated taxonomy searches and lists received uploads.
package devserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goliatone/go-formengine/pkg/submit"
	"github.com/goliatone/go-formengine/pkg/taxonomy"
	"github.com/goliatone/go-formengine/pkg/transport"
)

// SchemaPath serves the configured schema document.
const SchemaPath = "/schema"

// Submission is a request the server accepted.
type Submission struct {
	ID     string
	Hidden map[string]string
	Values map[string]any
	// Files maps part names to the received file names, in order.
	Files map[string][]string
}

// Checker inspects a decoded submission and returns user-facing errors.
// A non-empty result rejects the submission.
type Checker func(Submission) []string

// Option configures a Server.
type Option func(*Server)

// WithTerms registers the terms searchable under taxonomy name.
func WithTerms(name string, terms []taxonomy.Term) Option {
	return func(s *Server) {
		s.terms[name] = taxonomy.NewTree(terms)
	}
}

// WithPageSize sets the page size of the paginated endpoints.
func WithPageSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithMaxUpload bounds the size of submission bodies.
func WithMaxUpload(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithChecker adds server-side checks run on every submission.
func WithChecker(check Checker) Option {
	return func(s *Server) {
		if check != nil {
			s.checks = append(s.checks, check)
		}
	}
}

// WithSchema serves raw at SchemaPath.
func WithSchema(raw []byte) Option {
	return func(s *Server) {
		s.schema = raw
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Server implements http.Handler.
type Server struct {
	router    chi.Router
	terms     map[string]*taxonomy.Tree
	pageSize  int
	maxUpload int64
	checks    []Checker
	schema    []byte
	logger    *zap.Logger

	mu          sync.Mutex
	submissions []Submission
	uploads     []transport.FileInfo
	nextFile    int
}

// New builds a server with its routes mounted.
func New(opts ...Option) *Server {
	s := &Server{
		terms:     make(map[string]*taxonomy.Tree),
		pageSize:  20,
		maxUpload: 32_000_000,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Post(transport.SubmitPath, s.handleSubmit)
	r.Get(transport.TermsPath, s.handleTerms)
	r.Get(transport.FilesPath, s.handleFiles)
	r.Get(SchemaPath, s.handleSchema)
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Submissions returns the accepted submissions, oldest first.
func (s *Server) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Submission(nil), s.submissions...)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		s.reject(w, http.StatusBadRequest, "Invalid multipart body", err.Error())
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	raw := r.MultipartForm.Value[submit.ValuesPart]
	if len(raw) != 1 {
		s.reject(w, http.StatusUnprocessableEntity, "Missing form values")
		return
	}
	sub := Submission{
		Hidden: make(map[string]string),
		Files:  make(map[string][]string),
	}
	if err := json.Unmarshal([]byte(raw[0]), &sub.Values); err != nil {
		s.reject(w, http.StatusUnprocessableEntity, "Malformed form values", err.Error())
		return
	}
	for name, values := range r.MultipartForm.Value {
		if name != submit.ValuesPart && len(values) > 0 {
			sub.Hidden[name] = values[0]
		}
	}
	for name, headers := range r.MultipartForm.File {
		for _, h := range headers {
			sub.Files[name] = append(sub.Files[name], h.Filename)
		}
	}

	if problems := correlate(sub); len(problems) > 0 {
		s.reject(w, http.StatusUnprocessableEntity, "Uploads do not match the form values", problems...)
		return
	}
	for _, check := range s.checks {
		if problems := check(sub); len(problems) > 0 {
			s.reject(w, http.StatusUnprocessableEntity, "Submission rejected", problems...)
			return
		}
	}

	sub.ID = uuid.NewString()
	s.mu.Lock()
	s.submissions = append(s.submissions, sub)
	for _, name := range sortedKeys(r.MultipartForm.File) {
		for _, h := range r.MultipartForm.File[name] {
			s.nextFile++
			s.uploads = append(s.uploads, transport.FileInfo{
				ID:   s.nextFile,
				Name: h.Filename,
				Type: h.Header.Get("Content-Type"),
				Size: h.Size,
				URL:  fmt.Sprintf("/uploads/%d/%s", s.nextFile, h.Filename),
			})
		}
	}
	s.mu.Unlock()

	status := sub.Hidden[submit.StatusField]
	if status == "" {
		status = submit.StatusPublish
	}
	writeJSON(w, http.StatusOK, transport.Response{
		Success:  true,
		Message:  "Saved",
		Status:   status,
		ViewLink: "/entries/" + sub.ID,
		EditLink: "/entries/" + sub.ID + "/edit",
	})
}

func (s *Server) reject(w http.ResponseWriter, status int, message string, problems ...string) {
	s.logger.Info("submission rejected", zap.String("message", message), zap.Strings("errors", problems))
	writeJSON(w, status, transport.Response{Success: false, Message: message, Errors: problems})
}

// correlate checks that every field's upload markers are matched by as many
// binary parts under the field's part name, and that no part is orphaned.
func correlate(sub Submission) []string {
	want := make(map[string]int)
	countMarkers(sub.Values, nil, nil, want)

	var problems []string
	for _, name := range sortedKeys(want) {
		if got := len(sub.Files[name]); got != want[name] {
			problems = append(problems, fmt.Sprintf("%s: %d upload marker(s) but %d file part(s)", name, want[name], got))
		}
	}
	for _, name := range sortedKeys(sub.Files) {
		if _, ok := want[name]; !ok {
			problems = append(problems, fmt.Sprintf("%s: file part without upload marker", name))
		}
	}
	return problems
}

func countMarkers(values map[string]any, keys []string, path []int, out map[string]int) {
	for key, value := range values {
		list, ok := value.([]any)
		if !ok {
			continue
		}
		fieldKeys := append(append([]string(nil), keys...), key)
		for i, item := range list {
			switch v := item.(type) {
			case string:
				if v == submit.Marker {
					out[submit.PartName(submit.FieldID(fieldKeys...), path)]++
				}
			case map[string]any:
				countMarkers(v, fieldKeys, append(append([]int(nil), path...), i), out)
			}
		}
	}
}

func (s *Server) handleTerms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("taxonomy")
	tree, ok := s.terms[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, transport.TermPage{Message: "unknown taxonomy " + strconv.Quote(name)})
		return
	}
	matches := tree.Search(q.Get("q"), 0)
	data, more := paginate(matches, parsePage(r), s.pageSize)
	writeJSON(w, http.StatusOK, transport.TermPage{Success: true, Data: data, HasMore: more})
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	recent := make([]transport.FileInfo, len(s.uploads))
	for i, info := range s.uploads {
		recent[len(s.uploads)-1-i] = info
	}
	s.mu.Unlock()

	data, more := paginate(recent, parsePage(r), s.pageSize)
	writeJSON(w, http.StatusOK, transport.FilePage{Success: true, Data: data, HasMore: more})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	if len(s.schema) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(s.schema)
}

func parsePage(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func paginate[T any](items []T, page, size int) ([]T, bool) {
	start := (page - 1) * size
	if start >= len(items) {
		return nil, false
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], end < len(items)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
