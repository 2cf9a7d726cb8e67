package request

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/conduit-lang/odata/internal/edm"
	"github.com/conduit-lang/odata/internal/metadata"
)

// Builder produces request descriptors for logical operations.
// A Builder bound to a batch queues every descriptor into the batch writer;
// an unbound Builder returns descriptors for immediate dispatch.
type Builder struct {
	resolver *metadata.Resolver
	writer   ContentWriter
	logger   *zap.Logger

	mu        sync.Mutex
	batch     BatchWriter
	completed bool
	nextID    int
}

// Option configures a Builder
type Option func(*Builder)

// WithBatch binds the builder to a batch writer
func WithBatch(bw BatchWriter) Option {
	return func(b *Builder) {
		b.batch = bw
	}
}

// WithLogger sets the logger used for request planning output
func WithLogger(logger *zap.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBuilder creates a new request builder
func NewBuilder(resolver *metadata.Resolver, writer ContentWriter, opts ...Option) *Builder {
	b := &Builder{
		resolver: resolver,
		writer:   writer,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// IsBatch returns true if the builder queues into a batch
func (b *Builder) IsBatch() bool {
	return b.batch != nil
}

type updateOptions struct {
	forceMerge bool
}

// UpdateOption configures a single Update call
type UpdateOption func(*updateOptions)

// ForceMerge always sends a partial update (PATCH), even when every
// structural property is supplied
func ForceMerge() UpdateOption {
	return func(o *updateOptions) {
		o.forceMerge = true
	}
}

// Read plans a GET for path. scalar marks requests whose response is a single primitive value.
func (b *Builder) Read(ctx context.Context, path string, scalar bool) (*Descriptor, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	d := &Descriptor{
		Method:                MethodGet,
		Path:                  path,
		ReturnsRepresentation: true,
		ReturnsScalar:         scalar,
	}
	return b.emit(ctx, "read", d)
}

// Insert plans a POST of entry to the entity set addressed by collection.
// collection may carry a type-cast segment to insert a derived type.
func (b *Builder) Insert(ctx context.Context, collection string, entry map[string]any, resultRequired bool) (*Descriptor, error) {
	set, et, err := b.resolver.ResolveConcreteEntitySet(collection)
	if err != nil {
		return nil, err
	}
	entry, err = b.canonicalize(et, entry)
	if err != nil {
		return nil, err
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	body, err := b.writer.CreateEntryPayload(ctx, MethodPost, collection, entry)
	if err != nil {
		return nil, err
	}

	d := &Descriptor{
		Method:                MethodPost,
		Path:                  set.Name,
		Body:                  body,
		ContentType:           b.contentType(),
		EntryData:             entry,
		ReturnsRepresentation: resultRequired,
	}
	return b.emit(ctx, "insert", d)
}

// Update plans a replace (PUT) or merge (PATCH) of an existing entry.
// The update is a replace only when entry supplies every structural property
// of the concrete type and no merge was forced. When path is empty it is built
// from the entity set name and key.
func (b *Builder) Update(ctx context.Context, path, collection string, key, entry map[string]any, resultRequired bool, opts ...UpdateOption) (*Descriptor, error) {
	var o updateOptions
	for _, opt := range opts {
		opt(&o)
	}

	set, et, err := b.resolver.ResolveConcreteEntitySet(collection)
	if err != nil {
		return nil, err
	}
	entry, err = b.canonicalize(et, entry)
	if err != nil {
		return nil, err
	}

	if path == "" {
		path, err = b.entryPath(set, et, key)
		if err != nil {
			return nil, err
		}
	}

	merge := o.forceMerge || !hasAllProperties(b.resolver.ListStructuralPropertyNames(et), entry)
	method := MethodPut
	if merge {
		method = MethodPatch
	}

	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	body, err := b.writer.CreateEntryPayload(ctx, method, collection, entry)
	if err != nil {
		return nil, err
	}

	d := &Descriptor{
		Method:                          method,
		Path:                            path,
		Body:                            body,
		ContentType:                     b.contentType(),
		EntryData:                       entry,
		ReturnsRepresentation:           resultRequired,
		RequiresConcurrencyPrecondition: b.resolver.RequiresConcurrencyCheck(et),
	}
	return b.emit(ctx, "update", d)
}

// Delete plans a DELETE of the entry at path
func (b *Builder) Delete(ctx context.Context, path, collection string) (*Descriptor, error) {
	_, et, err := b.resolver.ResolveConcreteEntitySet(collection)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("delete from %s: empty entry path", collection)
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	d := &Descriptor{
		Method:                          MethodDelete,
		Path:                            path,
		RequiresConcurrencyPrecondition: b.resolver.RequiresConcurrencyCheck(et),
	}
	return b.emit(ctx, "delete", d)
}

// Link plans the association of the entry at entryPath with the entry at linkPath
// through the navigation property linkName. Collection-valued navigation
// properties gain a member (POST); single-valued ones are replaced (PUT).
func (b *Builder) Link(ctx context.Context, collection, linkName, entryPath, linkPath string) (*Descriptor, error) {
	_, et, err := b.resolver.ResolveConcreteEntitySet(collection)
	if err != nil {
		return nil, err
	}
	navName, err := b.resolver.ResolveNavigationPropertyName(et, linkName)
	if err != nil {
		return nil, err
	}
	many, err := b.resolver.IsNavigationPropertyCollection(et, navName)
	if err != nil {
		return nil, err
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	body, err := b.writer.CreateLinkPayload(ctx, linkPath)
	if err != nil {
		return nil, err
	}

	method := MethodPut
	if many {
		method = MethodPost
	}
	d := &Descriptor{
		Method:      method,
		Path:        FormatLinkPath(entryPath, navName),
		Body:        body,
		ContentType: b.contentType(),
		IsLink:      true,
		LinkTarget:  linkPath,
	}
	return b.emit(ctx, "link", d)
}

// Unlink plans the removal of the association linkName from the entry at path
func (b *Builder) Unlink(ctx context.Context, path, collection, linkName string) (*Descriptor, error) {
	_, et, err := b.resolver.ResolveConcreteEntitySet(collection)
	if err != nil {
		return nil, err
	}
	navName, err := b.resolver.ResolveNavigationPropertyName(et, linkName)
	if err != nil {
		return nil, err
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	d := &Descriptor{
		Method: MethodDelete,
		Path:   FormatLinkPath(path, navName),
		IsLink: true,
	}
	return b.emit(ctx, "unlink", d)
}

// Invoke plans a call of a function import. Parameters are matched to the
// declared parameters by exact and then homogenized name and sent as URI
// literals in declaration order.
func (b *Builder) Invoke(ctx context.Context, function string, params map[string]any) (*Descriptor, error) {
	fn, err := b.resolver.ResolveFunctionImport(function)
	if err != nil {
		return nil, err
	}

	values := make(map[string]any, len(params))
	for name, v := range params {
		p, ok := findParameter(fn, name)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no parameter %q", ErrUnknownParameter, fn.Name, name)
		}
		values[p.Name] = v
	}

	query := make([]string, 0, len(values))
	for _, p := range fn.Parameters {
		v, ok := values[p.Name]
		if !ok {
			continue
		}
		lit, err := FormatLiteral(p.Type, v)
		if err != nil {
			return nil, fmt.Errorf("%s parameter %s: %w", fn.Name, p.Name, err)
		}
		query = append(query, p.Name+"="+strings.ReplaceAll(url.QueryEscape(lit), "+", "%20"))
	}

	path := fn.Name
	if len(query) > 0 {
		path += "?" + strings.Join(query, "&")
	}

	method := strings.ToUpper(fn.HTTPMethod)
	if method == "" {
		method = MethodGet
	}

	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	d := &Descriptor{
		Method:                method,
		Path:                  path,
		ReturnsRepresentation: fn.ReturnType != nil,
		ReturnsScalar:         fn.ReturnType != nil && fn.ReturnType.IsPrimitive() && !fn.ReturnType.Collection,
	}
	return b.emit(ctx, "invoke", d)
}

// CompleteBatch finalizes the bound batch and returns the single transport request.
// It succeeds at most once; the batch is marked complete even if finalizing fails.
func (b *Builder) CompleteBatch(ctx context.Context) (*http.Request, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.batch == nil {
		return nil, ErrNoActiveBatch
	}
	if b.completed {
		return nil, ErrBatchAlreadyCompleted
	}
	b.completed = true

	req, err := b.batch.Finalize(ctx)
	if err != nil {
		b.logger.Warn("batch finalize failed", zap.Int("operations", b.nextID), zap.Error(err))
		return nil, err
	}
	b.logger.Debug("batch completed", zap.Int("operations", b.nextID))
	return req, nil
}

// emit returns d directly or queues it into the bound batch
func (b *Builder) emit(ctx context.Context, op string, d *Descriptor) (*Descriptor, error) {
	if b.batch == nil {
		b.log(op, d)
		return d, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.completed {
		return nil, ErrBatchAlreadyCompleted
	}

	d.Batched = true
	d.ContentID = b.nextID + 1
	if err := b.batch.QueueRequest(ctx, d); err != nil {
		return nil, err
	}
	b.nextID++
	b.log(op, d)
	return d, nil
}

func (b *Builder) checkOpen() error {
	if b.batch == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.completed {
		return ErrBatchAlreadyCompleted
	}
	return nil
}

func (b *Builder) log(op string, d *Descriptor) {
	if ce := b.logger.Check(zap.DebugLevel, "planned request"); ce != nil {
		ce.Write(
			zap.String("op", op),
			zap.String("method", d.Method),
			zap.String("path", d.Path),
			zap.Bool("concurrency", d.RequiresConcurrencyPrecondition),
			zap.Bool("batched", d.Batched),
			zap.Int("content_id", d.ContentID),
		)
	}
}

func (b *Builder) contentType() string {
	if ct, ok := b.writer.(contentTyper); ok {
		return ct.ContentType()
	}
	return ""
}

// canonicalize rewrites entry keys to exact property names. Keys that match no
// property are kept verbatim so open-type properties and annotations survive;
// keys that match several properties are rejected.
func (b *Builder) canonicalize(et *edm.EntityType, entry map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(entry))
	for key, value := range entry {
		name, err := b.canonicalName(et, key)
		if err != nil {
			return nil, err
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateEntryKey, name)
		}
		out[name] = value
	}
	return out, nil
}

func (b *Builder) canonicalName(et *edm.EntityType, key string) (string, error) {
	name, err := b.resolver.ResolvePropertyName(et, key)
	if err == nil {
		return name, nil
	}
	if errors.Is(err, metadata.ErrAmbiguousProperty) {
		return "", err
	}
	name, err = b.resolver.ResolveNavigationPropertyName(et, key)
	if err == nil {
		return name, nil
	}
	if errors.Is(err, metadata.ErrAmbiguousNavigationProperty) {
		return "", err
	}
	return key, nil
}

func (b *Builder) entryPath(set *edm.EntitySet, et *edm.EntityType, key map[string]any) (string, error) {
	keyNames := b.resolver.KeyNames(et)
	if len(keyNames) == 0 {
		return "", fmt.Errorf("%w: %s declares no key", ErrMissingKey, et.Name)
	}
	canonical, err := b.canonicalize(et, key)
	if err != nil {
		return "", err
	}
	predicate, err := FormatKeyPredicate(b.resolver.Model().StructuralProperties(et), keyNames, canonical)
	if err != nil {
		return "", err
	}
	return set.Name + predicate, nil
}

// hasAllProperties returns true if every name in required is a key of entry
func hasAllProperties(required []string, entry map[string]any) bool {
	for _, name := range required {
		if _, ok := entry[name]; !ok {
			return false
		}
	}
	return true
}

func findParameter(fn *edm.FunctionImport, name string) (edm.Parameter, bool) {
	for _, p := range fn.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	key := edm.Homogenize(name)
	var match edm.Parameter
	found := 0
	for _, p := range fn.Parameters {
		if edm.Homogenize(p.Name) == key {
			match = p
			found++
		}
	}
	return match, found == 1
}
