package transport_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-formengine/pkg/submit"
	"github.com/goliatone/go-formengine/pkg/taxonomy"
	"github.com/goliatone/go-formengine/pkg/transport"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestSubmitPostsMultipart(t *testing.T) {
	t.Parallel()

	var gotValues, gotFile, gotNonce string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/submit", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		require.NoError(t, r.ParseMultipartForm(1<<20))

		gotValues = r.FormValue(submit.ValuesPart)
		gotNonce = r.FormValue("_wpnonce")
		file, header, err := r.FormFile("files[cover][]")
		require.NoError(t, err)
		data, _ := io.ReadAll(file)
		gotFile = header.Filename + ":" + string(data)

		writeJSON(w, http.StatusOK, transport.Response{Success: true, Status: "publish", ViewLink: "/p/1"})
	}))
	defer srv.Close()

	client, err := transport.NewHTTPClient(srv.URL+"/api/", transport.WithHeader("X-Token", "secret"))
	require.NoError(t, err)

	values := submit.NewObject()
	values.Set("title", "Trattoria")
	values.Set("cover", []any{submit.Marker})
	req := &submit.Request{
		Values: values,
		Hidden: map[string]string{"_wpnonce": "abc"},
		Parts: []submit.Part{{
			Name:     "files[cover][]",
			Filename: "cover.png",
			Open: func() (io.ReadCloser, error) {
				return io.NopCloser(strings.NewReader("png")), nil
			},
		}},
	}

	resp, err := client.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "/p/1", resp.ViewLink)
	assert.JSONEq(t, `{"title":"Trattoria","cover":["__upload__"]}`, gotValues)
	assert.Equal(t, "cover.png:png", gotFile)
	assert.Equal(t, "abc", gotNonce)
}

func TestSubmitDecodesErrorResponses(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, transport.Response{
			Success: false,
			Message: "Could not save",
			Errors:  []string{"Title taken"},
		})
	}))
	defer srv.Close()

	client, err := transport.NewHTTPClient(srv.URL)
	require.NoError(t, err)

	resp, err := client.Submit(context.Background(), &submit.Request{})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, []string{"Title taken"}, resp.Errors)
}

func TestSubmitReportsOpaqueFailures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := transport.NewHTTPClient(srv.URL)
	require.NoError(t, err)

	_, err = client.Submit(context.Background(), &submit.Request{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, transport.ErrStatus))
}

func TestSearchTermsSharesInflightRequests(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "cuisine", r.URL.Query().Get("taxonomy"))
		assert.Equal(t, "ita", r.URL.Query().Get("q"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		<-release
		writeJSON(w, http.StatusOK, transport.TermPage{
			Success: true,
			Data:    []taxonomy.Term{{ID: 4, Label: "Italian"}},
			HasMore: true,
		})
	}))
	defer srv.Close()

	client, err := transport.NewHTTPClient(srv.URL)
	require.NoError(t, err)

	const callers = 4
	var (
		wg      sync.WaitGroup
		started sync.WaitGroup
		pages   = make([]transport.TermPage, callers)
	)
	started.Add(callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			page, err := client.SearchTerms(context.Background(), "cuisine", "ita", 2)
			assert.NoError(t, err)
			pages[i] = page
		}(i)
	}
	started.Wait()
	for calls.Load() == 0 {
		runtime.Gosched()
	}
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(callers))
	for _, page := range pages {
		assert.True(t, page.HasMore)
		require.Len(t, page.Data, 1)
		assert.Equal(t, "Italian", page.Data[0].Label)
	}
}

func TestListFiles(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		writeJSON(w, http.StatusOK, transport.FilePage{
			Success: true,
			Data:    []transport.FileInfo{{ID: 9, Name: "menu.pdf", Size: 2048}},
		})
	}))
	defer srv.Close()

	client, err := transport.NewHTTPClient(srv.URL)
	require.NoError(t, err)

	page, err := client.ListFiles(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, page.HasMore)
	assert.Equal(t, []transport.FileInfo{{ID: 9, Name: "menu.pdf", Size: 2048}}, page.Data)
}

func TestNewHTTPClientRequiresBaseURL(t *testing.T) {
	t.Parallel()

	_, err := transport.NewHTTPClient("  ")
	require.Error(t, err)
}
