package session

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/conduit-lang/odata/internal/edm"
	"github.com/conduit-lang/odata/internal/metacache"
	"github.com/conduit-lang/odata/internal/request"
	"github.com/conduit-lang/odata/internal/transport"
)

type fakeService struct {
	server *httptest.Server

	mu      sync.Mutex
	methods []string
	bodies  []string
}

func newFakeService(t *testing.T, metadataDoc []byte) *fakeService {
	t.Helper()
	fs := &fakeService{}

	r := chi.NewRouter()
	r.Route("/Northwind.svc", func(r chi.Router) {
		r.Get("/$metadata", func(w http.ResponseWriter, r *http.Request) {
			if metadataDoc == nil {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/xml")
			_, _ = w.Write(metadataDoc)
		})
		r.Post("/$batch", func(w http.ResponseWriter, r *http.Request) {
			fs.record(r)
			w.WriteHeader(http.StatusAccepted)
		})
		r.HandleFunc("/*", func(w http.ResponseWriter, r *http.Request) {
			fs.record(r)
			w.WriteHeader(http.StatusNoContent)
		})
	})

	fs.server = httptest.NewServer(r)
	t.Cleanup(fs.server.Close)
	return fs
}

func (fs *fakeService) record(r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.methods = append(fs.methods, r.Method+" "+r.URL.RequestURI())
	fs.bodies = append(fs.bodies, string(body))
}

func (fs *fakeService) requests() ([]string, []string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]string(nil), fs.methods...), append([]string(nil), fs.bodies...)
}

func northwindDoc(t *testing.T) []byte {
	t.Helper()
	doc, err := os.ReadFile("../csdl/testdata/northwind.xml")
	require.NoError(t, err)
	return doc
}

func newClient(t *testing.T, fs *fakeService, opts ...transport.Option) *transport.Client {
	t.Helper()
	c, err := transport.New(fs.server.URL+"/Northwind.svc/", opts...)
	require.NoError(t, err)
	return c
}

func TestOpen(t *testing.T) {
	fs := newFakeService(t, northwindDoc(t))

	s, err := Open(context.Background(), newClient(t, fs), zaptest.NewLogger(t))
	require.NoError(t, err)

	_, ok := s.Model().EntityType("NorthwindModel.Product")
	assert.True(t, ok)

	set, _, err := s.Resolver().ResolveEntitySet("order details")
	require.NoError(t, err)
	assert.Equal(t, "Order_Details", set.Name)
}

func TestOpen_MetadataUnavailable(t *testing.T) {
	fs := newFakeService(t, nil)

	_, err := Open(context.Background(), newClient(t, fs), nil)
	require.Error(t, err)
	assert.True(t, transport.IsStatus(err, http.StatusServiceUnavailable))
}

func TestOpen_InvalidMetadataIsFatalAndEvicted(t *testing.T) {
	broken := []byte(`<Edmx Version="1.0"><DataServices><Schema Namespace="A">
		<EntityType Name="T"><Property Name="ID" Type="Edm.Int32"/></EntityType>
	</Schema></DataServices></Edmx>`)
	fs := newFakeService(t, broken)

	store := metacache.NewMemoryStore(metacache.DefaultConfig())
	defer store.Close()
	client := newClient(t, fs, transport.WithMetadataCache(store, 0))

	_, err := Open(context.Background(), client, nil)
	require.Error(t, err)
	assert.True(t, edm.IsSchemaValidation(err))

	_, err = store.Get(context.Background(), client.Root().String())
	assert.True(t, metacache.IsCacheMiss(err))
}

func TestSession_ExecuteUpdate(t *testing.T) {
	fs := newFakeService(t, northwindDoc(t))
	s, err := Open(context.Background(), newClient(t, fs), nil)
	require.NoError(t, err)
	ctx := context.Background()

	d, err := s.Builder().Update(ctx, "", "Products", map[string]any{"ProductID": 1}, map[string]any{"ProductName": "Chai"}, false)
	require.NoError(t, err)
	assert.Equal(t, request.MethodPatch, d.Method)
	assert.False(t, d.RequiresConcurrencyPrecondition)

	resp, err := s.Execute(ctx, d, "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	methods, bodies := fs.requests()
	require.Len(t, methods, 1)
	assert.Equal(t, "PATCH /Northwind.svc/Products(1)", methods[0])
	assert.JSONEq(t, `{"ProductName":"Chai"}`, bodies[0])
}

func TestSession_ExecuteBatch(t *testing.T) {
	fs := newFakeService(t, northwindDoc(t))
	s, err := Open(context.Background(), newClient(t, fs), nil)
	require.NoError(t, err)
	ctx := context.Background()

	b := s.BatchBuilder()
	ins, err := b.Insert(ctx, "Categories", map[string]any{"CategoryName": "Tea"}, true)
	require.NoError(t, err)
	_, err = b.Link(ctx, "Categories", "products", request.ContentIDPath(ins.ContentID), "Products(1)")
	require.NoError(t, err)
	_, err = b.Update(ctx, "Customers('ALFKI')", "Customers", nil, map[string]any{"company_name": "Alfreds"}, false)
	require.NoError(t, err)

	resp, err := s.ExecuteBatch(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	methods, bodies := fs.requests()
	require.Len(t, methods, 1)
	assert.Equal(t, "POST /Northwind.svc/$batch", methods[0])
	assert.Contains(t, bodies[0], "POST $1/$links/Products HTTP/1.1")
	assert.Contains(t, bodies[0], "If-Match: *")
	assert.Equal(t, 3, strings.Count(bodies[0], "Content-Id: "))

	_, err = s.ExecuteBatch(ctx, b)
	assert.ErrorIs(t, err, request.ErrBatchAlreadyCompleted)
}
