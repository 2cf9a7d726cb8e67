package request

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/conduit-lang/odata/internal/metadata"
)

const (
	// JSONContentType is the media type of JSONWriter payloads
	JSONContentType = "application/json;odata=minimalmetadata"

	typeAnnotation = "odata.type"
	bindSuffix     = "@odata.bind"
)

// JSONWriter writes OData v3 JSON light payloads
type JSONWriter struct {
	resolver *metadata.Resolver
}

// NewJSONWriter creates a JSON content writer
func NewJSONWriter(resolver *metadata.Resolver) *JSONWriter {
	return &JSONWriter{resolver: resolver}
}

// ContentType returns the media type of the produced payloads
func (w *JSONWriter) ContentType() string {
	return JSONContentType
}

// CreateEntryPayload serializes entry. A type annotation is added when collection
// addresses a type derived from the set's declared type, and navigation values
// given as entry paths are written as bind references.
func (w *JSONWriter) CreateEntryPayload(ctx context.Context, method, collection string, entry map[string]any) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	set, et, err := w.resolver.ResolveConcreteEntitySet(collection)
	if err != nil {
		return nil, &ContentWriteError{Op: "entry", Collection: collection, Err: err}
	}

	navs := make(map[string]bool)
	for _, nav := range w.resolver.Model().NavigationProperties(et) {
		navs[nav.Name] = true
	}

	payload := make(map[string]any, len(entry)+1)
	if et.QualifiedName() != set.EntityType {
		payload[typeAnnotation] = et.QualifiedName()
	}
	for name, value := range entry {
		if navs[name] {
			switch ref := value.(type) {
			case string:
				payload[name+bindSuffix] = ref
				continue
			case []string:
				payload[name+bindSuffix] = ref
				continue
			}
		}
		payload[name] = value
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &ContentWriteError{Op: "entry", Collection: collection, Err: err}
	}
	return body, nil
}

// CreateLinkPayload serializes a reference to the entry at targetPath
func (w *JSONWriter) CreateLinkPayload(ctx context.Context, targetPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if targetPath == "" {
		return nil, &ContentWriteError{Op: "link", Err: errors.New("empty link target")}
	}

	body, err := json.Marshal(map[string]string{"url": targetPath})
	if err != nil {
		return nil, &ContentWriteError{Op: "link", Err: err}
	}
	return body, nil
}
