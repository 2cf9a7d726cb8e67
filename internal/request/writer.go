package request

import (
	"context"
	"net/http"
)

// ContentWriter materializes request payloads. Calls may block on I/O or CPU;
// errors are returned to the Builder's caller unchanged.
type ContentWriter interface {
	CreateEntryPayload(ctx context.Context, method, collection string, entry map[string]any) ([]byte, error)
	CreateLinkPayload(ctx context.Context, targetPath string) ([]byte, error)
}

// BatchWriter collects descriptors into a single batched transport request.
// A BatchWriter is single-use: Finalize may succeed at most once.
type BatchWriter interface {
	QueueRequest(ctx context.Context, d *Descriptor) error
	Finalize(ctx context.Context) (*http.Request, error)
}

// contentTyper is implemented by writers that know the media type they produce
type contentTyper interface {
	ContentType() string
}
