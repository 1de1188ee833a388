package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mdarapour/sse-realtime-demo/internal/model"
)

// errStreamingUnsupported is returned when the response writer does not
// implement http.Flusher.
var errStreamingUnsupported = errors.New("httpapi: streaming unsupported")

// sseTransport adapts an http.ResponseWriter into the stream.Transport the
// core's Stream Engine writes to. Framing (spec.md §6) is entirely this
// adapter's job; the core never sees an http.ResponseWriter.
type sseTransport struct {
	w http.ResponseWriter
	f http.Flusher
}

func newSSETransport(w http.ResponseWriter) (*sseTransport, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errStreamingUnsupported
	}
	return &sseTransport{w: w, f: flusher}, nil
}

// Write implements stream.Transport. It injects a "_sequence" field into
// the outermost JSON object of the event's data payload, then emits one
// SSE frame: id:, event:, data:, and a trailing blank line.
func (t *sseTransport) Write(event model.Event) error {
	data, err := injectSequence(event.Data, event.Seq)
	if err != nil {
		return fmt.Errorf("httpapi: encode event data: %w", err)
	}

	if _, err := fmt.Fprintf(t.w, "id: %s\n", event.ID); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(t.w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(t.w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}

// Flush implements stream.Transport.
func (t *sseTransport) Flush() error {
	t.f.Flush()
	return nil
}

// writeComment emits a non-event SSE comment line, used for the
// connect-time notice. Per spec.md §9, a comment
// is deliberately not a sequenced event.
func (t *sseTransport) writeComment(text string) error {
	if _, err := fmt.Fprintf(t.w, ": %s\n\n", text); err != nil {
		return err
	}
	t.f.Flush()
	return nil
}

func injectSequence(raw json.RawMessage, seq int64) (json.RawMessage, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		// Not a JSON object; leave the payload untouched rather than fail
		// the whole write.
		return raw, nil
	}

	seqJSON, err := json.Marshal(seq)
	if err != nil {
		return nil, err
	}
	fields["_sequence"] = seqJSON

	return json.Marshal(fields)
}
