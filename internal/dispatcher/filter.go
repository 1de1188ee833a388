package dispatcher

import (
	"strings"

	"github.com/mdarapour/sse-realtime-demo/internal/model"
)

// Matches implements the filter predicate of spec.md §4.4: a client with
// no filter accepts every event type; a client with filter f accepts an
// event of type t iff t is "connected" or f case-insensitively equals t.
// The historical "update" -> "dataUpdate" alias is applied by the caller
// when the filter is parsed at connect time (model.ResolveFilterAlias),
// not here.
func Matches(filter, eventType string) bool {
	if filter == "" {
		return true
	}
	if eventType == model.EventTypeConnected {
		return true
	}
	return strings.EqualFold(filter, eventType)
}
