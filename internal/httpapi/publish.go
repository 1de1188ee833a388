package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/mdarapour/sse-realtime-demo/internal/model"
	"github.com/mdarapour/sse-realtime-demo/internal/publisher"
)

// broadcastRequest is the body of POST /api/sse/broadcast and
// POST /api/sse/send/{clientId}.
type broadcastRequest struct {
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
}

// publishResponse echoes the assigned sequence number and event id back
// to the caller.
type publishResponse struct {
	ID  string `json:"id"`
	Seq int64  `json:"seq"`
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	s.publishGeneric(w, r, "")
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("clientId")
	if clientID == "" {
		writeError(w, http.StatusBadRequest, errCodeBadRequest, "clientId is required")
		return
	}
	s.publishGeneric(w, r, clientID)
}

func (s *Server) publishGeneric(w http.ResponseWriter, r *http.Request, target string) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	if req.EventType == "" {
		req.EventType = model.EventTypeMessage
	}

	event, err := s.service.Publisher().Publish(r.Context(), req.EventType, req.Data, target)
	s.respondPublish(w, event, err)
}

// handleNotification, handleAlert, and handleDataUpdate wrap the generic
// publish path with the typed payload schemas of spec.md §6. Each reads
// the caller's fields, stamps an envelope, marshals, and publishes.

type notificationRequest struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	s.publishTyped(w, r, r.PathValue("clientId"), func() (string, interface{}, error) {
		var req notificationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", nil, err
		}
		payload := model.NotificationPayload{
			Envelope: model.NewEnvelope(uuid.New().String(), model.EventTypeNotification, s.now()),
			Message:  req.Message,
			Severity: req.Severity,
		}
		return model.EventTypeNotification, payload, nil
	})
}

type alertRequest struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Category string `json:"category"`
}

func (s *Server) handleAlert(w http.ResponseWriter, r *http.Request) {
	s.publishTyped(w, r, r.PathValue("clientId"), func() (string, interface{}, error) {
		var req alertRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", nil, err
		}
		payload := model.AlertPayload{
			Envelope: model.NewEnvelope(uuid.New().String(), model.EventTypeAlert, s.now()),
			Message:  req.Message,
			Severity: req.Severity,
			Category: req.Category,
		}
		return model.EventTypeAlert, payload, nil
	})
}

type dataUpdateRequest struct {
	EntityID   string                 `json:"entityId"`
	EntityType string                 `json:"entityType"`
	Changes    map[string]interface{} `json:"changes"`
}

func (s *Server) handleDataUpdate(w http.ResponseWriter, r *http.Request) {
	s.publishTyped(w, r, r.PathValue("clientId"), func() (string, interface{}, error) {
		var req dataUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", nil, err
		}
		payload := model.DataUpdatePayload{
			Envelope:   model.NewEnvelope(uuid.New().String(), model.EventTypeDataUpdate, s.now()),
			EntityID:   req.EntityID,
			EntityType: req.EntityType,
			Changes:    req.Changes,
		}
		return model.EventTypeDataUpdate, payload, nil
	})
}

// typedBuilder decodes a typed request body and returns the event type and
// payload struct to marshal and publish.
type typedBuilder func() (eventType string, payload interface{}, err error)

func (s *Server) publishTyped(w http.ResponseWriter, r *http.Request, target string, build typedBuilder) {
	eventType, payload, err := build()
	if err != nil {
		writeError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errCodeInternalError, "failed to encode payload")
		return
	}

	event, err := s.service.Publisher().Publish(r.Context(), eventType, data, target)
	s.respondPublish(w, event, err)
}

func (s *Server) respondPublish(w http.ResponseWriter, event model.Event, err error) {
	if err != nil {
		if errors.Is(err, publisher.ErrPublishFailed) {
			writeError(w, http.StatusInternalServerError, errCodeInternalError, "publish failed")
			return
		}
		writeError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, publishResponse{ID: event.ID, Seq: event.Seq})
}
