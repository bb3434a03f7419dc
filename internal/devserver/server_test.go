package devserver_test

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	formengine "github.com/goliatone/go-formengine"
	"github.com/goliatone/go-formengine/internal/devserver"
	"github.com/goliatone/go-formengine/pkg/files"
	"github.com/goliatone/go-formengine/pkg/schema"
	"github.com/goliatone/go-formengine/pkg/submit"
	"github.com/goliatone/go-formengine/pkg/taxonomy"
	"github.com/goliatone/go-formengine/pkg/testsupport"
	"github.com/goliatone/go-formengine/pkg/transport"
)

const menu = `
settings:
  hidden: {action: create_post}
fields:
  title: {type: text, label: Title, required: true}
  cuisine: {type: taxonomy, label: Cuisine, props: {taxonomy: cuisine}}
  cover: {type: image, label: Cover, props: {max_count: 1}}
  dishes:
    type: repeater
    label: Dishes
    props:
      fields:
        name: {type: text}
        photo: {type: image}
`

var cuisines = []taxonomy.Term{
	{ID: 1, Label: "Italian", Children: []taxonomy.Term{{ID: 2, Label: "Pizza"}, {ID: 3, Label: "Pasta"}}},
	{ID: 4, Label: "Japanese"},
	{ID: 5, Label: "Pizza al taglio"},
}

func upload(name string) files.Input {
	return files.Input{
		Name: name,
		Type: "image/png",
		Size: int64(len(name)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(name)), nil
		},
	}
}

func start(t *testing.T, opts ...devserver.Option) (*devserver.Server, *transport.HTTPClient, *httptest.Server) {
	t.Helper()
	srv := devserver.New(opts...)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	client, err := transport.NewHTTPClient(ts.URL, transport.WithHTTPClient(ts.Client()))
	require.NoError(t, err)
	return srv, client, ts
}

func openForm(t *testing.T, client *transport.HTTPClient) *formengine.Form {
	t.Helper()
	doc := testsupport.ParseSchema(t, "menu.yaml", menu)
	form, err := formengine.New(doc, formengine.WithTransport(client), formengine.WithTermSearcher(client))
	require.NoError(t, err)
	t.Cleanup(form.Close)
	return form
}

func TestSubmitCorrelatesUploads(t *testing.T) {
	t.Parallel()

	srv, client, _ := start(t)
	form := openForm(t, client)
	scope := form.Scope()

	require.NoError(t, scope.SetValue("title", "Trattoria"))
	_, err := scope.AddFile("cover", upload("cover.png"))
	require.NoError(t, err)
	row, err := scope.AddRow("dishes")
	require.NoError(t, err)
	require.NoError(t, row.SetValue("name", "Soup"))
	_, err = row.AddFile("photo", upload("soup.png"))
	require.NoError(t, err)

	resp, err := form.Submit(context.Background(), formengine.SubmitOptions{})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "publish", resp.Status)
	assert.True(t, strings.HasPrefix(resp.ViewLink, "/entries/"))

	subs := srv.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, map[string][]string{
		"files[cover][]":               {"cover.png"},
		"files[dishes.photo::row-0][]": {"soup.png"},
	}, subs[0].Files)
	assert.Equal(t, "create_post", subs[0].Hidden["action"])
	assert.Equal(t, "Trattoria", subs[0].Values["title"])

	page, err := client.ListFiles(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "soup.png", page.Data[0].Name)
	assert.Equal(t, "cover.png", page.Data[1].Name)
	assert.False(t, page.HasMore)
}

func TestSubmitRejectsOrphanMarkers(t *testing.T) {
	t.Parallel()

	srv, client, _ := start(t)
	values := submit.NewObject()
	values.Set("cover", []any{submit.Marker})

	resp, err := client.Submit(context.Background(), &submit.Request{Values: values})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, []string{"files[cover][]: 1 upload marker(s) but 0 file part(s)"}, resp.Errors)
	assert.Empty(t, srv.Submissions())
}

func TestSubmitKeepsSiblingRepeaterPartsApart(t *testing.T) {
	t.Parallel()

	srv, client, _ := start(t)
	row := func() *submit.Object {
		obj := submit.NewObject()
		obj.Set("photo", []any{submit.Marker})
		return obj
	}
	values := submit.NewObject()
	values.Set("dishes", []any{row()})
	values.Set("drinks", []any{row()})
	part := func(name string) submit.Part {
		in := upload(name)
		return submit.Part{
			Name:        "files[dishes.photo::row-0][]",
			Filename:    in.Name,
			ContentType: in.Type,
			Size:        in.Size,
			Open:        in.Open,
		}
	}

	resp, err := client.Submit(context.Background(), &submit.Request{
		Values: values,
		Parts:  []submit.Part{part("a.png"), part("b.png")},
	})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, []string{
		"files[dishes.photo::row-0][]: 1 upload marker(s) but 2 file part(s)",
		"files[drinks.photo::row-0][]: 1 upload marker(s) but 0 file part(s)",
	}, resp.Errors)
	assert.Empty(t, srv.Submissions())
}

func TestCheckerRejectionBecomesNotice(t *testing.T) {
	t.Parallel()

	taken := func(sub devserver.Submission) []string {
		if sub.Values["title"] == "Trattoria" {
			return []string{"Title taken"}
		}
		return nil
	}
	_, client, _ := start(t, devserver.WithChecker(taken))
	form := openForm(t, client)
	require.NoError(t, form.Scope().SetValue("title", "Trattoria"))

	_, err := form.Submit(context.Background(), formengine.SubmitOptions{})
	var notice *formengine.Notice
	require.True(t, errors.As(err, &notice), "expected Notice, got %v", err)
	assert.Equal(t, []string{"Submission rejected", "Title taken"}, notice.Messages)
}

func TestTermsArePaginated(t *testing.T) {
	t.Parallel()

	_, client, _ := start(t, devserver.WithTerms("cuisine", cuisines), devserver.WithPageSize(2))
	ctx := context.Background()

	first, err := client.SearchTerms(ctx, "cuisine", "", 1)
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.True(t, first.HasMore)
	assert.Equal(t, []string{"Italian", "Pizza"}, labels(first.Data))

	last, err := client.SearchTerms(ctx, "cuisine", "", 3)
	require.NoError(t, err)
	assert.False(t, last.HasMore)
	assert.Equal(t, []string{"Pizza al taglio"}, labels(last.Data))

	missing, err := client.SearchTerms(ctx, "wine", "", 1)
	require.NoError(t, err)
	assert.False(t, missing.Success)
}

func TestFormSearchesRemoteTerms(t *testing.T) {
	t.Parallel()

	_, client, _ := start(t, devserver.WithTerms("cuisine", cuisines))
	form := openForm(t, client)

	res, err := form.SearchTerms(context.Background(), "cuisine", "pizza", 1)
	require.NoError(t, err)
	assert.True(t, res.Remote)
	assert.Equal(t, []string{"Pizza", "Pizza al taglio"}, labels(res.Terms))

	field, err := form.Scope().Field("cuisine")
	require.NoError(t, err)
	assert.True(t, field.Props.Tree.Has(5), "remote terms are merged into the field tree")
	require.NoError(t, form.Scope().SelectTerm("cuisine", 5))
}

func TestSchemaIsServed(t *testing.T) {
	t.Parallel()

	_, _, ts := start(t, devserver.WithSchema([]byte(menu)))
	loader := formengine.NewLoader(schema.WithHTTPClient(ts.Client()))
	doc, err := loader.Load(context.Background(), schema.SourceFromURL(ts.URL+devserver.SchemaPath))
	require.NoError(t, err)
	_, ok := doc.Field("dishes")
	assert.True(t, ok)
}

func labels(terms []taxonomy.Term) []string {
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		out = append(out, term.Label)
	}
	return out
}
