// Package request turns logical operations (read, insert, update, delete, link,
// unlink, function calls, batches) into protocol-correct request descriptors.
// The builder decides the HTTP method, merge-vs-replace semantics and
// precondition flags from the service model; transports execute the result.
package request

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// HTTP methods used by descriptors
const (
	MethodGet    = http.MethodGet
	MethodPost   = http.MethodPost
	MethodPut    = http.MethodPut
	MethodPatch  = http.MethodPatch
	MethodDelete = http.MethodDelete
)

// linksSegment separates an entry path from a navigation property in link paths
const linksSegment = "/$links/"

// BatchSegment is the path of the batch endpoint relative to the service root
const BatchSegment = "$batch"

// Descriptor is an abstract HTTP request produced by the Builder
type Descriptor struct {
	Method      string         `json:"method"`
	Path        string         `json:"path"`
	Body        []byte         `json:"-"`
	ContentType string         `json:"content_type,omitempty"`
	EntryData   map[string]any `json:"entry,omitempty"`

	ReturnsRepresentation           bool `json:"returns_representation"`
	ReturnsScalar                   bool `json:"returns_scalar,omitempty"`
	RequiresConcurrencyPrecondition bool `json:"requires_concurrency_precondition"`
	IsLink                          bool `json:"is_link"`

	// LinkTarget is the entry path a link descriptor points at
	LinkTarget string `json:"link_target,omitempty"`

	// Batched is set when the descriptor was queued into a batch instead of
	// being returned for immediate dispatch.
	Batched   bool `json:"batched,omitempty"`
	ContentID int  `json:"content_id,omitempty"`
}

// String returns "METHOD path"
func (d *Descriptor) String() string {
	return d.Method + " " + d.Path
}

// IsMutation returns true for methods that change server state
func (d *Descriptor) IsMutation() bool {
	return d.Method != MethodGet
}

// FormatLinkPath returns {entryPath}/$links/{navigationProperty}
func FormatLinkPath(entryPath, navigationProperty string) string {
	return strings.TrimSuffix(entryPath, "/") + linksSegment + navigationProperty
}

// ContentIDPath returns the path that refers to an entry created earlier in the same batch
func ContentIDPath(contentID int) string {
	return fmt.Sprintf("$%d", contentID)
}

// contentIDRef returns n when path starts with a $n Content-ID reference
func contentIDRef(path string) (int, bool) {
	if !strings.HasPrefix(path, "$") {
		return 0, false
	}
	end := 1
	for end < len(path) && path[end] >= '0' && path[end] <= '9' {
		end++
	}
	if end == 1 {
		return 0, false
	}
	n, err := strconv.Atoi(path[1:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ResolveURL joins a descriptor path onto the service root.
// Paths are appended verbatim so key predicates and query strings survive.
func ResolveURL(root *url.URL, path string) (*url.URL, error) {
	base := strings.TrimSuffix(root.String(), "/")
	return url.Parse(base + "/" + strings.TrimPrefix(path, "/"))
}
