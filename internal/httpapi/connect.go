package httpapi

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/schema"
	"github.com/mdarapour/sse-realtime-demo/internal/model"
	"github.com/mdarapour/sse-realtime-demo/internal/replay"
)

var queryDecoder = schema.NewDecoder()

func init() {
	queryDecoder.IgnoreUnknownKeys(true)
}

// connectQuery is the typed shape of GET /api/sse/connect's query string
// (spec.md §6), decoded with gorilla/schema the way the teacher decodes
// query parameters in internal/api/rest/handler_replication.go. Checkpoint
// is decoded as a string and parsed separately, mirroring the teacher's
// handling of its own string-typed checkpoint query parameter.
type connectQuery struct {
	ClientID    string `schema:"clientId"`
	Filter      string `schema:"filter"`
	Checkpoint  string `schema:"checkpoint"`
	LastEventID string `schema:"lastEventId"`
}

// handleConnect serves GET /api/sse/connect: it registers the caller as a
// locally-connected client, replays any missed outbox entries, then hands
// the connection's Stream Engine an SSE transport and blocks until the
// client disconnects or the server shuts down.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var q connectQuery
	if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil {
		writeError(w, http.StatusBadRequest, errCodeBadRequest, "invalid query parameters")
		return
	}

	if q.ClientID == "" {
		q.ClientID = uuid.New().String()
	}
	filter := model.ResolveFilterAlias(q.Filter)

	if q.LastEventID == "" {
		q.LastEventID = r.Header.Get("Last-Event-ID")
	}

	transport, err := newSSETransport(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errCodeInternalError, "streaming unsupported")
		return
	}

	engine := s.service.NewEngine(q.ClientID)

	// Gate live deliveries behind Engine's pending buffer before this
	// client becomes reachable by the Dispatcher, so a live event
	// delivered while the replay below is still draining can never reach
	// the channel ahead of the older replayed events it belongs after
	// (spec.md §4.5).
	engine.BeginReplay()
	ctx, cancel := s.service.Dispatcher().Register(r.Context(), q.ClientID, filter, engine)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := transport.writeComment("connected"); err != nil {
		s.logger.Warn("failed to write connect comment", "clientId", q.ClientID, "error", err)
		return
	}

	persisted, err := s.service.CheckpointStore().Load(ctx, q.ClientID)
	if err != nil {
		s.logger.Warn("checkpoint load failed, skipping replay", "clientId", q.ClientID, "error", err)
	} else if explicit := explicitCheckpoint(q); explicit != nil || persisted != nil {
		if fromSeq, ok := replay.EffectiveCheckpoint(explicit, persisted); ok {
			if err := s.service.Replay().Replay(ctx, fromSeq, engine); err != nil {
				s.logger.Warn("replay failed", "clientId", q.ClientID, "error", err)
			}
		}
	}
	engine.EndReplay()

	if err := engine.Run(ctx, transport); err != nil {
		s.logger.Info("stream closed", "clientId", q.ClientID, "error", err)
	}
}

// explicitCheckpoint resolves the connect-time checkpoint presented by the
// client: the numeric ?checkpoint= query param takes precedence; a
// Last-Event-ID is opaque to the core's seq-keyed replay and is not
// translated into one here. An unparseable checkpoint is treated as
// absent rather than rejecting the connection.
func explicitCheckpoint(q connectQuery) *int64 {
	if q.Checkpoint == "" {
		return nil
	}
	v, err := strconv.ParseInt(q.Checkpoint, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
