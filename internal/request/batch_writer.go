package request

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// Header values shared by the batch writer and transports
const (
	PreferReturnContent   = "return-content"
	PreferReturnNoContent = "return-no-content"
	ProtocolVersion       = "3.0"
)

// Prefer returns the Prefer header value for a mutation, or "" for reads and links
func Prefer(d *Descriptor) string {
	if !d.IsMutation() || d.IsLink || d.Method == MethodDelete {
		return ""
	}
	if d.ReturnsRepresentation {
		return PreferReturnContent
	}
	return PreferReturnNoContent
}

// MultipartBatchWriter assembles queued descriptors into one multipart/mixed
// $batch request. Reads become top-level parts; each run of consecutive
// mutations shares a change set whose parts carry Content-ID headers.
// A $n reference must name an earlier part of the same change set, so a read
// queued between two mutations ends the scope of the earlier Content-IDs.
type MultipartBatchWriter struct {
	root     *url.URL
	boundary string

	mu        sync.Mutex
	parts     []*Descriptor
	finalized bool
}

// NewMultipartBatchWriter creates a batch writer for the service at root
func NewMultipartBatchWriter(root *url.URL) *MultipartBatchWriter {
	return &MultipartBatchWriter{
		root:     root,
		boundary: newBoundary("batch"),
	}
}

// Boundary returns the top-level multipart boundary
func (w *MultipartBatchWriter) Boundary() string {
	return w.boundary
}

// Len returns the number of queued descriptors
func (w *MultipartBatchWriter) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.parts)
}

// QueueRequest appends d to the batch
func (w *MultipartBatchWriter) QueueRequest(ctx context.Context, d *Descriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finalized {
		return ErrBatchAlreadyCompleted
	}
	for _, ref := range []string{d.Path, d.LinkTarget} {
		n, ok := contentIDRef(ref)
		if !ok {
			continue
		}
		if !d.IsMutation() || !w.inOpenChangeset(n) {
			return fmt.Errorf("%w: %s refers to $%d", ErrContentIDOutOfScope, d, n)
		}
	}
	w.parts = append(w.parts, d)
	return nil
}

// inOpenChangeset reports whether contentID belongs to the trailing run of
// mutations, which Finalize writes as one change set
func (w *MultipartBatchWriter) inOpenChangeset(contentID int) bool {
	for k := len(w.parts) - 1; k >= 0 && w.parts[k].IsMutation(); k-- {
		id := w.parts[k].ContentID
		if id == 0 {
			id = k + 1
		}
		if id == contentID {
			return true
		}
	}
	return false
}

// Finalize encodes the queued descriptors and returns the $batch request.
// The writer cannot be reused afterwards.
func (w *MultipartBatchWriter) Finalize(ctx context.Context) (*http.Request, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return nil, ErrBatchAlreadyCompleted
	}
	w.finalized = true

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.SetBoundary(w.boundary); err != nil {
		return nil, fmt.Errorf("batch boundary: %w", err)
	}

	for i := 0; i < len(w.parts); {
		if !w.parts[i].IsMutation() {
			if err := w.writeOperation(mw, w.parts[i], 0); err != nil {
				return nil, err
			}
			i++
			continue
		}

		j := i
		for j < len(w.parts) && w.parts[j].IsMutation() {
			j++
		}
		if err := w.writeChangeset(mw, w.parts[i:j], i); err != nil {
			return nil, err
		}
		i = j
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	target, err := ResolveURL(w.root, BatchSegment)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "multipart/mixed; boundary="+w.boundary)
	req.Header.Set("DataServiceVersion", ProtocolVersion)
	req.Header.Set("MaxDataServiceVersion", ProtocolVersion)
	return req, nil
}

func (w *MultipartBatchWriter) writeChangeset(mw *multipart.Writer, parts []*Descriptor, offset int) error {
	var buf bytes.Buffer
	cs := multipart.NewWriter(&buf)
	if err := cs.SetBoundary(newBoundary("changeset")); err != nil {
		return fmt.Errorf("changeset boundary: %w", err)
	}

	for i, d := range parts {
		id := d.ContentID
		if id == 0 {
			id = offset + i + 1
		}
		if err := w.writeOperation(cs, d, id); err != nil {
			return err
		}
	}
	if err := cs.Close(); err != nil {
		return err
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Type", "multipart/mixed; boundary="+cs.Boundary())
	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = part.Write(buf.Bytes())
	return err
}

func (w *MultipartBatchWriter) writeOperation(mw *multipart.Writer, d *Descriptor, contentID int) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Type", "application/http")
	header.Set("Content-Transfer-Encoding", "binary")
	if contentID > 0 {
		header.Set("Content-ID", strconv.Itoa(contentID))
	}
	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}

	target := d.Path
	if len(target) == 0 || target[0] != '$' {
		u, err := ResolveURL(w.root, d.Path)
		if err != nil {
			return fmt.Errorf("batch part %s: %w", d, err)
		}
		target = u.String()
	}
	return writeHTTPRequest(part, target, d)
}

// writeHTTPRequest writes d as an application/http message
func writeHTTPRequest(wr io.Writer, target string, d *Descriptor) error {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", d.Method, target)
	if !d.IsMutation() {
		b.WriteString("Accept: application/json\r\n")
	}
	if d.RequiresConcurrencyPrecondition {
		b.WriteString("If-Match: *\r\n")
	}
	if prefer := Prefer(d); prefer != "" {
		fmt.Fprintf(&b, "Prefer: %s\r\n", prefer)
	}
	if len(d.Body) > 0 {
		if d.ContentType != "" {
			fmt.Fprintf(&b, "Content-Type: %s\r\n", d.ContentType)
		}
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(d.Body))
	}
	b.WriteString("\r\n")
	b.Write(d.Body)

	_, err := wr.Write(b.Bytes())
	return err
}

func newBoundary(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
