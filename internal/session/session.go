// Package session connects to an OData service: it fetches and validates the
// service metadata once and hands out request builders bound to the result.
package session

import (
	"bytes"
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/odata/internal/csdl"
	"github.com/conduit-lang/odata/internal/edm"
	"github.com/conduit-lang/odata/internal/metadata"
	"github.com/conduit-lang/odata/internal/request"
	"github.com/conduit-lang/odata/internal/transport"
)

// Session holds the immutable model of one service
type Session struct {
	client   *transport.Client
	model    *edm.Model
	resolver *metadata.Resolver
	writer   *request.JSONWriter
	logger   *zap.Logger
}

// Open fetches the service metadata, parses and validates it.
// Any parse or validation failure is returned and no session is created.
func Open(ctx context.Context, client *transport.Client, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	doc, err := client.FetchMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata: %w", err)
	}

	model, err := csdl.ParseModel(bytes.NewReader(doc))
	if err != nil {
		// A cached document that no longer parses must not be served again
		if ierr := client.InvalidateMetadata(ctx); ierr != nil {
			logger.Warn("failed to invalidate cached metadata", zap.Error(ierr))
		}
		return nil, fmt.Errorf("load metadata: %w", err)
	}

	return New(client, model, logger), nil
}

// New creates a session over an already validated model
func New(client *transport.Client, model *edm.Model, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	resolver := metadata.NewResolver(model)

	logger.Info("session ready",
		zap.String("service", client.Root().String()),
		zap.Int("entity_sets", len(model.EntitySets())),
		zap.Int("function_imports", len(model.FunctionImports())),
	)

	return &Session{
		client:   client,
		model:    model,
		resolver: resolver,
		writer:   request.NewJSONWriter(resolver),
		logger:   logger,
	}
}

// Model returns the service model
func (s *Session) Model() *edm.Model {
	return s.model
}

// Resolver returns the metadata resolver
func (s *Session) Resolver() *metadata.Resolver {
	return s.resolver
}

// Client returns the transport client
func (s *Session) Client() *transport.Client {
	return s.client
}

// Builder returns a builder whose descriptors are sent one by one
func (s *Session) Builder() *request.Builder {
	return request.NewBuilder(s.resolver, s.writer, request.WithLogger(s.logger))
}

// BatchBuilder returns a builder bound to a fresh $batch
func (s *Session) BatchBuilder() *request.Builder {
	bw := request.NewMultipartBatchWriter(s.client.Root())
	return request.NewBuilder(s.resolver, s.writer, request.WithBatch(bw), request.WithLogger(s.logger))
}

// Execute sends a descriptor produced by Builder
func (s *Session) Execute(ctx context.Context, d *request.Descriptor, etag string) (*transport.Response, error) {
	return s.client.Do(ctx, d, etag)
}

// ExecuteBatch completes the batch of b and sends it
func (s *Session) ExecuteBatch(ctx context.Context, b *request.Builder) (*transport.Response, error) {
	req, err := b.CompleteBatch(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.DoBatch(ctx, req)
}
