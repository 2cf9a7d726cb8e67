package request

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/odata/internal/edm"
	"github.com/conduit-lang/odata/internal/edm/edmtest"
	"github.com/conduit-lang/odata/internal/metadata"
)

// recordingWriter counts collaborator calls and can be told to fail
type recordingWriter struct {
	entryCalls int
	linkCalls  int
	err        error
}

func (w *recordingWriter) CreateEntryPayload(ctx context.Context, method, collection string, entry map[string]any) ([]byte, error) {
	w.entryCalls++
	if w.err != nil {
		return nil, w.err
	}
	return []byte("{}"), nil
}

func (w *recordingWriter) CreateLinkPayload(ctx context.Context, targetPath string) ([]byte, error) {
	w.linkCalls++
	if w.err != nil {
		return nil, w.err
	}
	return []byte("{}"), nil
}

type failingBatch struct {
	err error
}

func (f *failingBatch) QueueRequest(ctx context.Context, d *Descriptor) error { return nil }

func (f *failingBatch) Finalize(ctx context.Context) (*http.Request, error) { return nil, f.err }

func newResolver() *metadata.Resolver {
	return metadata.NewResolver(edmtest.NorthwindModel())
}

func newTestBuilder(t *testing.T, opts ...Option) *Builder {
	t.Helper()
	r := newResolver()
	return NewBuilder(r, NewJSONWriter(r), opts...)
}

func serviceRoot(t *testing.T) *url.URL {
	t.Helper()
	u, err := url.Parse("http://example.com/svc/")
	require.NoError(t, err)
	return u
}

func TestUpdate_PartialEntryIsMerge(t *testing.T) {
	b := newTestBuilder(t)

	d, err := b.Update(context.Background(), "Products(1)", "Products",
		map[string]any{"ProductID": 1}, map[string]any{"ProductName": "Chai"}, false)
	require.NoError(t, err)

	assert.Equal(t, MethodPatch, d.Method)
	assert.Equal(t, "Products(1)", d.Path)
	assert.False(t, d.RequiresConcurrencyPrecondition)
	assert.False(t, d.ReturnsRepresentation)
	assert.False(t, d.Batched)
	assert.JSONEq(t, `{"ProductName":"Chai"}`, string(d.Body))
}

func TestUpdate_CompleteEntryIsReplace(t *testing.T) {
	b := newTestBuilder(t)

	entry := map[string]any{"ProductID": 1, "product_name": "Chai", "unitprice": 18.0}
	d, err := b.Update(context.Background(), "Products(1)", "products", nil, entry, true)
	require.NoError(t, err)

	assert.Equal(t, MethodPut, d.Method)
	assert.True(t, d.ReturnsRepresentation)
	assert.Equal(t, map[string]any{"ProductID": 1, "ProductName": "Chai", "UnitPrice": 18.0}, d.EntryData)
}

func TestUpdate_ForceMerge(t *testing.T) {
	b := newTestBuilder(t)

	entry := map[string]any{"ProductID": 1, "ProductName": "Chai", "UnitPrice": 18.0}
	d, err := b.Update(context.Background(), "Products(1)", "Products", nil, entry, false, ForceMerge())
	require.NoError(t, err)
	assert.Equal(t, MethodPatch, d.Method)
}

func TestUpdate_EmptyEntryIsMerge(t *testing.T) {
	b := newTestBuilder(t)

	d, err := b.Update(context.Background(), "Categories(1)", "Categories", nil, map[string]any{}, false)
	require.NoError(t, err)
	assert.Equal(t, MethodPatch, d.Method)
}

func TestUpdate_DerivedTypeNeedsInheritedAndOwnProperties(t *testing.T) {
	b := newTestBuilder(t)
	base := map[string]any{"ProductID": 1, "ProductName": "Chai", "UnitPrice": 18.0}

	d, err := b.Update(context.Background(), "Products(1)", "Products/DiscontinuedProduct", nil, base, false)
	require.NoError(t, err)
	assert.Equal(t, MethodPatch, d.Method)

	full := map[string]any{"ProductID": 1, "ProductName": "Chai", "UnitPrice": 18.0, "DiscontinuedDate": nil}
	d, err = b.Update(context.Background(), "Products(1)", "Products/DiscontinuedProduct", nil, full, false)
	require.NoError(t, err)
	assert.Equal(t, MethodPut, d.Method)
}

func TestUpdate_PathFromKey(t *testing.T) {
	b := newTestBuilder(t)
	ctx := context.Background()

	d, err := b.Update(ctx, "", "Products", map[string]any{"productid": 1}, map[string]any{"ProductName": "Chai"}, false)
	require.NoError(t, err)
	assert.Equal(t, "Products(1)", d.Path)

	d, err = b.Update(ctx, "", "OrderDetails", map[string]any{"OrderID": 10248, "ProductID": 11}, map[string]any{"Quantity": 12}, false)
	require.NoError(t, err)
	assert.Equal(t, "Order_Details(OrderID=10248,ProductID=11)", d.Path)

	d, err = b.Update(ctx, "", "Customers", map[string]any{"CustomerID": "O'NEIL"}, map[string]any{"CompanyName": "x"}, false)
	require.NoError(t, err)
	assert.Equal(t, "Customers('O''NEIL')", d.Path)

	_, err = b.Update(ctx, "", "Order_Details", map[string]any{"OrderID": 10248}, map[string]any{"Quantity": 12}, false)
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestUpdate_ConcurrencyFlag(t *testing.T) {
	b := newTestBuilder(t)

	d, err := b.Update(context.Background(), "Customers('ALFKI')", "Customers", nil, map[string]any{"CompanyName": "Alfreds"}, false)
	require.NoError(t, err)
	assert.True(t, d.RequiresConcurrencyPrecondition)
}

func TestUpdate_EntryKeys(t *testing.T) {
	b := newTestBuilder(t)
	ctx := context.Background()

	t.Run("unknown keys pass through", func(t *testing.T) {
		d, err := b.Update(ctx, "Products(1)", "Products", nil, map[string]any{"ProductName": "Chai", "Extra": 1}, false)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"ProductName": "Chai", "Extra": 1}, d.EntryData)
		assert.Equal(t, MethodPatch, d.Method)
	})

	t.Run("duplicate after canonicalisation", func(t *testing.T) {
		_, err := b.Update(ctx, "Products(1)", "Products", nil, map[string]any{"ProductName": "a", "product_name": "b"}, false)
		assert.ErrorIs(t, err, ErrDuplicateEntryKey)
	})
}

// pricedItemBuilder builds against a type whose properties Unit_Price and
// UnitPrice homogenize to the same name
func pricedItemBuilder(t *testing.T) (*Builder, *recordingWriter) {
	t.Helper()
	s := &edm.Schema{
		Namespace: "Shop",
		EntityTypes: []*edm.EntityType{{
			Name: "Item",
			Key:  []string{"ID"},
			Properties: []*edm.Property{
				{Name: "ID", Type: edm.MustParsePropertyType("Edm.Int32")},
				{Name: "Unit_Price", Type: edm.MustParsePropertyType("Edm.Decimal")},
				{Name: "UnitPrice", Type: edm.MustParsePropertyType("Edm.Decimal")},
			},
		}},
		EntityContainers: []*edm.EntityContainer{{
			Name:       "ShopEntities",
			IsDefault:  true,
			EntitySets: []*edm.EntitySet{{Name: "Items", EntityType: "Shop.Item"}},
		}},
	}
	m, err := edm.NewModel(s)
	require.NoError(t, err)

	w := &recordingWriter{}
	return NewBuilder(metadata.NewResolver(m), w), w
}

func TestUpdate_AmbiguousEntryKey(t *testing.T) {
	b, w := pricedItemBuilder(t)
	ctx := context.Background()

	_, err := b.Update(ctx, "Items(1)", "Items", nil, map[string]any{"unitprice": 5}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, metadata.ErrAmbiguousProperty)

	var rerr *metadata.ResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.ElementsMatch(t, []string{"Unit_Price", "UnitPrice"}, rerr.Candidates)

	_, err = b.Insert(ctx, "Items", map[string]any{"ID": 1, "unitprice": 5}, false)
	assert.ErrorIs(t, err, metadata.ErrAmbiguousProperty)
	assert.Zero(t, w.entryCalls)

	d, err := b.Update(ctx, "Items(1)", "Items", nil, map[string]any{"UnitPrice": 5, "Note": "x"}, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"UnitPrice": 5, "Note": "x"}, d.EntryData)
	assert.Equal(t, MethodPatch, d.Method)
}

func TestDelete(t *testing.T) {
	b := newTestBuilder(t)
	ctx := context.Background()

	d, err := b.Delete(ctx, "Products(1)", "Products")
	require.NoError(t, err)
	assert.Equal(t, MethodDelete, d.Method)
	assert.Equal(t, "Products(1)", d.Path)
	assert.False(t, d.RequiresConcurrencyPrecondition)
	assert.Nil(t, d.Body)

	d, err = b.Delete(ctx, "Customers('ALFKI')", "customers")
	require.NoError(t, err)
	assert.True(t, d.RequiresConcurrencyPrecondition)

	_, err = b.Delete(ctx, "", "Products")
	assert.Error(t, err)
}

func TestInsert(t *testing.T) {
	b := newTestBuilder(t)
	ctx := context.Background()

	d, err := b.Insert(ctx, "products", map[string]any{"ProductName": "Chai", "Category": "Categories(1)"}, true)
	require.NoError(t, err)
	assert.Equal(t, MethodPost, d.Method)
	assert.Equal(t, "Products", d.Path)
	assert.True(t, d.ReturnsRepresentation)
	assert.Equal(t, JSONContentType, d.ContentType)
	assert.JSONEq(t, `{"ProductName":"Chai","Category@odata.bind":"Categories(1)"}`, string(d.Body))

	d, err = b.Insert(ctx, "Products/DiscontinuedProduct", map[string]any{"ProductName": "Old"}, false)
	require.NoError(t, err)
	assert.Equal(t, "Products", d.Path)
	assert.JSONEq(t, `{"odata.type":"NorthwindModel.DiscontinuedProduct","ProductName":"Old"}`, string(d.Body))
}

func TestLink(t *testing.T) {
	b := newTestBuilder(t)
	ctx := context.Background()

	d, err := b.Link(ctx, "Products", "order_details", "Products(1)", "Order_Details(OrderID=1,ProductID=1)")
	require.NoError(t, err)
	assert.Equal(t, MethodPost, d.Method)
	assert.Equal(t, "Products(1)/$links/Order_Details", d.Path)
	assert.True(t, d.IsLink)
	assert.JSONEq(t, `{"url":"Order_Details(OrderID=1,ProductID=1)"}`, string(d.Body))

	d, err = b.Link(ctx, "Products", "category", "Products(1)", "Categories(2)")
	require.NoError(t, err)
	assert.Equal(t, MethodPut, d.Method)
	assert.Equal(t, "Products(1)/$links/Category", d.Path)

	d, err = b.Link(ctx, "Order_Details", "order", "Order_Details(OrderID=1,ProductID=1)", "Orders(1)")
	require.NoError(t, err)
	assert.Equal(t, MethodPut, d.Method)
	assert.Equal(t, "Order_Details(OrderID=1,ProductID=1)/$links/Order", d.Path)
	assert.JSONEq(t, `{"url":"Orders(1)"}`, string(d.Body))
}

func TestUnlink(t *testing.T) {
	b := newTestBuilder(t)
	ctx := context.Background()

	for _, nav := range []string{"Category", "OrderDetails"} {
		d, err := b.Unlink(ctx, "Products(1)", "Products", nav)
		require.NoError(t, err)
		assert.Equal(t, MethodDelete, d.Method)
		assert.True(t, d.IsLink)
		assert.Nil(t, d.Body)
	}

	d, err := b.Unlink(ctx, "Products(1)", "Products", "order_details")
	require.NoError(t, err)
	assert.Equal(t, "Products(1)/$links/Order_Details", d.Path)
}

func TestResolutionFailureSkipsWriter(t *testing.T) {
	w := &recordingWriter{}
	b := NewBuilder(newResolver(), w)
	ctx := context.Background()

	_, err := b.Insert(ctx, "Suppliers", map[string]any{"Name": "x"}, false)
	assert.True(t, metadata.IsUnknownCollection(err))

	_, err = b.Update(ctx, "Suppliers(1)", "Suppliers", nil, map[string]any{"Name": "x"}, false)
	assert.True(t, metadata.IsUnknownCollection(err))

	_, err = b.Link(ctx, "Products", "Supplier", "Products(1)", "Suppliers(1)")
	assert.True(t, metadata.IsUnknownNavigationProperty(err))

	_, err = b.Unlink(ctx, "Products(1)", "Products", "Supplier")
	assert.True(t, metadata.IsUnknownNavigationProperty(err))

	assert.Zero(t, w.entryCalls)
	assert.Zero(t, w.linkCalls)
}

func TestWriterErrorPropagatesUnchanged(t *testing.T) {
	boom := errors.New("boom")
	b := NewBuilder(newResolver(), &recordingWriter{err: boom})
	ctx := context.Background()

	_, err := b.Insert(ctx, "Products", map[string]any{"ProductName": "Chai"}, false)
	assert.Equal(t, boom, err)

	_, err = b.Link(ctx, "Products", "Category", "Products(1)", "Categories(1)")
	assert.Equal(t, boom, err)
}

func TestCancelledContext(t *testing.T) {
	b := newTestBuilder(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Insert(ctx, "Products", map[string]any{"ProductName": "Chai"}, false)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRead(t *testing.T) {
	b := newTestBuilder(t)

	d, err := b.Read(context.Background(), "Products/$count", true)
	require.NoError(t, err)
	assert.Equal(t, MethodGet, d.Method)
	assert.True(t, d.ReturnsScalar)
	assert.Nil(t, d.Body)
}

func TestInvoke(t *testing.T) {
	b := newTestBuilder(t)
	ctx := context.Background()

	d, err := b.Invoke(ctx, "products_by_category", map[string]any{"CategoryName": "Sea Food"})
	require.NoError(t, err)
	assert.Equal(t, MethodGet, d.Method)
	assert.Equal(t, "ProductsByCategory?categoryName=%27Sea%20Food%27", d.Path)
	assert.True(t, d.ReturnsRepresentation)
	assert.False(t, d.ReturnsScalar)

	d, err = b.Invoke(ctx, "DiscontinueProduct", map[string]any{"product_id": 7})
	require.NoError(t, err)
	assert.Equal(t, MethodPost, d.Method)
	assert.Equal(t, "DiscontinueProduct?productID=7", d.Path)
	assert.False(t, d.ReturnsRepresentation)

	_, err = b.Invoke(ctx, "DiscontinueProduct", map[string]any{"reason": "x"})
	assert.ErrorIs(t, err, ErrUnknownParameter)

	_, err = b.Invoke(ctx, "Nope", nil)
	assert.ErrorIs(t, err, metadata.ErrUnknownFunction)
}

func TestBatch_QueuesAndCompletesOnce(t *testing.T) {
	bw := NewMultipartBatchWriter(serviceRoot(t))
	b := newTestBuilder(t, WithBatch(bw))
	ctx := context.Background()
	require.True(t, b.IsBatch())

	ins, err := b.Insert(ctx, "Categories", map[string]any{"CategoryName": "Tea"}, false)
	require.NoError(t, err)
	assert.True(t, ins.Batched)
	assert.Equal(t, 1, ins.ContentID)

	link, err := b.Link(ctx, "Categories", "Products", ContentIDPath(ins.ContentID), "Products(1)")
	require.NoError(t, err)
	assert.Equal(t, "$1/$links/Products", link.Path)
	assert.Equal(t, 2, link.ContentID)

	read, err := b.Read(ctx, "Categories", false)
	require.NoError(t, err)
	assert.True(t, read.Batched)
	assert.Equal(t, 3, read.ContentID)
	assert.Equal(t, 3, bw.Len())

	req, err := b.CompleteBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/svc/$batch", req.URL.String())

	_, err = b.CompleteBatch(ctx)
	assert.ErrorIs(t, err, ErrBatchAlreadyCompleted)

	_, err = b.Insert(ctx, "Categories", map[string]any{"CategoryName": "Coffee"}, false)
	assert.True(t, IsBatchAlreadyCompleted(err))
}

func TestBatch_ReferenceAcrossReadRejected(t *testing.T) {
	bw := NewMultipartBatchWriter(serviceRoot(t))
	b := newTestBuilder(t, WithBatch(bw))
	ctx := context.Background()

	ins, err := b.Insert(ctx, "Categories", map[string]any{"CategoryName": "Tea"}, false)
	require.NoError(t, err)
	_, err = b.Read(ctx, "Products", false)
	require.NoError(t, err)

	_, err = b.Link(ctx, "Categories", "Products", ContentIDPath(ins.ContentID), "Products(1)")
	assert.ErrorIs(t, err, ErrContentIDOutOfScope)
	assert.Equal(t, 2, bw.Len())

	next, err := b.Insert(ctx, "Categories", map[string]any{"CategoryName": "Coffee"}, false)
	require.NoError(t, err)
	assert.Equal(t, 3, next.ContentID)

	link, err := b.Link(ctx, "Categories", "Products", ContentIDPath(next.ContentID), "Products(1)")
	require.NoError(t, err)
	assert.Equal(t, "$3/$links/Products", link.Path)
}

func TestCompleteBatch_NoBatch(t *testing.T) {
	b := newTestBuilder(t)
	_, err := b.CompleteBatch(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveBatch)
}

func TestCompleteBatch_FinalizeFailure(t *testing.T) {
	boom := errors.New("finalize failed")
	b := newTestBuilder(t, WithBatch(&failingBatch{err: boom}))
	ctx := context.Background()

	_, err := b.Delete(ctx, "Products(1)", "Products")
	require.NoError(t, err)

	_, err = b.CompleteBatch(ctx)
	assert.Equal(t, boom, err)

	_, err = b.CompleteBatch(ctx)
	assert.ErrorIs(t, err, ErrBatchAlreadyCompleted)
}

func TestBatch_ConcurrentQueueing(t *testing.T) {
	bw := NewMultipartBatchWriter(serviceRoot(t))
	b := newTestBuilder(t, WithBatch(bw))
	ctx := context.Background()

	const n = 20
	ids := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := b.Insert(ctx, "Categories", map[string]any{"CategoryName": "x"}, false)
			if assert.NoError(t, err) {
				ids <- d.ContentID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate content id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, bw.Len())
}

func TestFormatLinkPath(t *testing.T) {
	assert.Equal(t, "Products(1)/$links/Category", FormatLinkPath("Products(1)/", "Category"))
	assert.Equal(t, "$3", ContentIDPath(3))
}
