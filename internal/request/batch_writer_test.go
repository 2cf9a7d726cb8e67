package request

import (
	"bufio"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readPart(t *testing.T, mr *multipart.Reader) *multipart.Part {
	t.Helper()
	p, err := mr.NextPart()
	require.NoError(t, err)
	return p
}

func boundaryOf(t *testing.T, contentType string) string {
	t.Helper()
	mediaType, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)
	require.Equal(t, "multipart/mixed", mediaType)
	return params["boundary"]
}

func TestMultipartBatchWriter_Layout(t *testing.T) {
	bw := NewMultipartBatchWriter(serviceRoot(t))
	b := newTestBuilder(t, WithBatch(bw))
	ctx := context.Background()

	_, err := b.Update(ctx, "Customers('ALFKI')", "Customers", nil, map[string]any{"CompanyName": "Alfreds"}, false)
	require.NoError(t, err)
	_, err = b.Insert(ctx, "Categories", map[string]any{"CategoryName": "Tea"}, true)
	require.NoError(t, err)
	_, err = b.Read(ctx, "Categories", false)
	require.NoError(t, err)
	_, err = b.Delete(ctx, "Products(1)", "Products")
	require.NoError(t, err)

	req, err := b.CompleteBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, ProtocolVersion, req.Header.Get("DataServiceVersion"))

	boundary := boundaryOf(t, req.Header.Get("Content-Type"))
	assert.Equal(t, bw.Boundary(), boundary)
	assert.True(t, strings.HasPrefix(boundary, "batch_"))

	mr := multipart.NewReader(req.Body, boundary)

	// First change set: update + insert
	cs := readPart(t, mr)
	csBoundary := boundaryOf(t, cs.Header.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(csBoundary, "changeset_"))
	inner := multipart.NewReader(cs, csBoundary)

	p := readPart(t, inner)
	assert.Equal(t, "application/http", p.Header.Get("Content-Type"))
	assert.Equal(t, "1", p.Header.Get("Content-ID"))
	r, err := http.ReadRequest(bufio.NewReader(p))
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, r.Method)
	assert.Equal(t, "http://example.com/svc/Customers('ALFKI')", r.URL.String())
	assert.Equal(t, "*", r.Header.Get("If-Match"))
	assert.Equal(t, PreferReturnNoContent, r.Header.Get("Prefer"))
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"CompanyName":"Alfreds"}`, string(body))

	p = readPart(t, inner)
	assert.Equal(t, "2", p.Header.Get("Content-ID"))
	r, err = http.ReadRequest(bufio.NewReader(p))
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, r.Method)
	assert.Empty(t, r.Header.Get("If-Match"))
	assert.Equal(t, PreferReturnContent, r.Header.Get("Prefer"))
	assert.Equal(t, JSONContentType, r.Header.Get("Content-Type"))

	_, err = inner.NextPart()
	assert.ErrorIs(t, err, io.EOF)

	// Read as a top-level part
	p = readPart(t, mr)
	assert.Equal(t, "application/http", p.Header.Get("Content-Type"))
	assert.Empty(t, p.Header.Get("Content-ID"))
	r, err = http.ReadRequest(bufio.NewReader(p))
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, r.Method)
	assert.Equal(t, "http://example.com/svc/Categories", r.URL.String())

	// Second change set: delete
	cs = readPart(t, mr)
	inner = multipart.NewReader(cs, boundaryOf(t, cs.Header.Get("Content-Type")))
	p = readPart(t, inner)
	assert.Equal(t, "4", p.Header.Get("Content-ID"))
	r, err = http.ReadRequest(bufio.NewReader(p))
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, r.Method)
	assert.Empty(t, r.Header.Get("Prefer"))

	_, err = mr.NextPart()
	assert.ErrorIs(t, err, io.EOF)
}

func TestMultipartBatchWriter_ContentIDReference(t *testing.T) {
	bw := NewMultipartBatchWriter(serviceRoot(t))
	ctx := context.Background()

	require.NoError(t, bw.QueueRequest(ctx, &Descriptor{Method: MethodPost, Path: "Categories", Body: []byte(`{}`)}))
	require.NoError(t, bw.QueueRequest(ctx, &Descriptor{Method: MethodPost, Path: "$1/$links/Products", Body: []byte(`{}`), IsLink: true}))

	req, err := bw.Finalize(ctx)
	require.NoError(t, err)

	mr := multipart.NewReader(req.Body, bw.Boundary())
	cs := readPart(t, mr)
	inner := multipart.NewReader(cs, boundaryOf(t, cs.Header.Get("Content-Type")))

	p := readPart(t, inner)
	assert.Equal(t, "1", p.Header.Get("Content-ID"))

	p = readPart(t, inner)
	assert.Equal(t, "2", p.Header.Get("Content-ID"))
	line, err := bufio.NewReader(p).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "POST $1/$links/Products HTTP/1.1\r\n", line)
}

func TestMultipartBatchWriter_ContentIDScope(t *testing.T) {
	ctx := context.Background()
	insert := func(id int) *Descriptor {
		return &Descriptor{Method: MethodPost, Path: "Categories", Body: []byte(`{}`), ContentID: id}
	}

	t.Run("read closes the change set", func(t *testing.T) {
		bw := NewMultipartBatchWriter(serviceRoot(t))
		require.NoError(t, bw.QueueRequest(ctx, insert(1)))
		require.NoError(t, bw.QueueRequest(ctx, &Descriptor{Method: MethodGet, Path: "Products", ContentID: 2}))

		err := bw.QueueRequest(ctx, &Descriptor{Method: MethodPost, Path: "$1/$links/Products", Body: []byte(`{}`), IsLink: true, ContentID: 3})
		assert.ErrorIs(t, err, ErrContentIDOutOfScope)
		assert.Equal(t, 2, bw.Len())
	})

	t.Run("read cannot address a content ID", func(t *testing.T) {
		bw := NewMultipartBatchWriter(serviceRoot(t))
		require.NoError(t, bw.QueueRequest(ctx, insert(1)))

		err := bw.QueueRequest(ctx, &Descriptor{Method: MethodGet, Path: "$1/Products", ContentID: 2})
		assert.ErrorIs(t, err, ErrContentIDOutOfScope)
	})

	t.Run("link target is checked", func(t *testing.T) {
		bw := NewMultipartBatchWriter(serviceRoot(t))
		err := bw.QueueRequest(ctx, &Descriptor{Method: MethodPut, Path: "Products(1)/$links/Category", Body: []byte(`{}`), IsLink: true, LinkTarget: "$4", ContentID: 1})
		assert.ErrorIs(t, err, ErrContentIDOutOfScope)
	})

	t.Run("references within the change set", func(t *testing.T) {
		bw := NewMultipartBatchWriter(serviceRoot(t))
		require.NoError(t, bw.QueueRequest(ctx, &Descriptor{Method: MethodGet, Path: "Products"}))
		require.NoError(t, bw.QueueRequest(ctx, insert(2)))
		require.NoError(t, bw.QueueRequest(ctx, insert(3)))
		require.NoError(t, bw.QueueRequest(ctx, &Descriptor{Method: MethodPut, Path: "$2/$links/Category", Body: []byte(`{}`), IsLink: true, LinkTarget: "$3", ContentID: 4}))
		require.NoError(t, bw.QueueRequest(ctx, &Descriptor{Method: MethodGet, Path: "$metadata"}))
		assert.Equal(t, 5, bw.Len())
	})
}

func TestContentIDRef(t *testing.T) {
	tests := []struct {
		path string
		want int
		ok   bool
	}{
		{"$1", 1, true},
		{"$12/$links/Products", 12, true},
		{"$batch", 0, false},
		{"$metadata", 0, false},
		{"Products(1)", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		n, ok := contentIDRef(tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.want, n, tt.path)
	}
}

func TestMultipartBatchWriter_SingleUse(t *testing.T) {
	bw := NewMultipartBatchWriter(serviceRoot(t))
	ctx := context.Background()

	_, err := bw.Finalize(ctx)
	require.NoError(t, err)

	_, err = bw.Finalize(ctx)
	assert.ErrorIs(t, err, ErrBatchAlreadyCompleted)

	err = bw.QueueRequest(ctx, &Descriptor{Method: MethodGet, Path: "Products"})
	assert.ErrorIs(t, err, ErrBatchAlreadyCompleted)
}

func TestMultipartBatchWriter_BoundariesAreUnique(t *testing.T) {
	a := NewMultipartBatchWriter(serviceRoot(t))
	b := NewMultipartBatchWriter(serviceRoot(t))
	assert.NotEqual(t, a.Boundary(), b.Boundary())
}

func TestPrefer(t *testing.T) {
	assert.Empty(t, Prefer(&Descriptor{Method: MethodGet}))
	assert.Empty(t, Prefer(&Descriptor{Method: MethodDelete}))
	assert.Empty(t, Prefer(&Descriptor{Method: MethodPost, IsLink: true}))
	assert.Equal(t, PreferReturnContent, Prefer(&Descriptor{Method: MethodPost, ReturnsRepresentation: true}))
	assert.Equal(t, PreferReturnNoContent, Prefer(&Descriptor{Method: MethodPatch}))
}
