package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"edu-assessment-service/internal/app"
	"edu-assessment-service/internal/domain"
	"edu-assessment-service/internal/logger"
	"github.com/gorilla/websocket"
)

// Message types of the attempt channel.
const (
	MsgDetail = "detail"
	MsgSave   = "save"
	MsgSaved  = "saved"
	MsgSubmit = "submit"
	MsgResult = "result"
	MsgError  = "error"
)

// AttemptHandler serves the test-taker websocket: one connection per (distribution, taker).
type AttemptHandler struct {
	attempts *app.AttemptService
	access   *app.Scheduler
	log      *logger.Logger
	upgrader websocket.Upgrader
}

func NewAttemptHandler(attempts *app.AttemptService, access *app.Scheduler, log *logger.Logger) *AttemptHandler {
	return &AttemptHandler{
		attempts: attempts,
		access:   access,
		log:      log.With("component", "attempt_ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// InboundMessage is a request from the taker. Replies echo RequestID.
type InboundMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type OutboundMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

type SavePayload struct {
	QuestionID string             `json:"questionId"`
	Value      domain.AnswerValue `json:"value"`
}

type SavedPayload struct {
	QuestionID string `json:"questionId"`
}

type SubmitPayload struct {
	Answers []domain.AnswerEntry `json:"answers"`
}

// ServeWS verifies the access code, upgrades and serves detail/save/submit requests.
func (h *AttemptHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	distributionID := q.Get("distributionId")
	takerID := q.Get("takerId")
	if distributionID == "" || takerID == "" {
		respondJSON(w, http.StatusBadRequest, ErrorEnvelope{Error: APIError{Message: "missing distributionId or takerId", Code: "invalid_request"}})
		return
	}

	_, err := h.access.VerifyAccess(r.Context(), distributionID, q.Get("code"))
	if errors.Is(err, domain.ErrClosed) {
		// a closed window only admits attempts already under way, for a late timeout submission
		err = h.attempts.AdmitLate(r.Context(), distributionID, takerID)
	}
	if err != nil {
		h.log.Warn("attempt access refused", "distribution_id", distributionID, "taker_id", takerID, "error", err)
		respondError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(1 << 20)

	log := h.log.With("distribution_id", distributionID, "taker_id", takerID)
	log.Info("attempt connected")

	send := make(chan OutboundMessage, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Warn("ws write error", "error", err)
				return
			}
		}
	}()
	reply := func(msg OutboundMessage) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		}
	}

	for {
		var in InboundMessage
		if err := conn.ReadJSON(&in); err != nil {
			break
		}
		if !reply(h.handle(r.Context(), distributionID, takerID, in)) {
			break
		}
	}

	close(send)
	<-writerDone
	log.Info("attempt disconnected")
}

func (h *AttemptHandler) handle(ctx context.Context, distributionID, takerID string, in InboundMessage) OutboundMessage {
	switch in.Type {
	case MsgDetail:
		detail, err := h.attempts.FetchAttemptDetail(ctx, distributionID, takerID)
		if err != nil {
			return errorMessage(in.RequestID, err)
		}
		return OutboundMessage{Type: MsgDetail, RequestID: in.RequestID, Payload: detail}

	case MsgSave:
		var p SavePayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return invalidPayload(in.RequestID)
		}
		if err := h.attempts.SaveAnswer(ctx, distributionID, p.QuestionID, p.Value, takerID); err != nil {
			return errorMessage(in.RequestID, err)
		}
		return OutboundMessage{Type: MsgSaved, RequestID: in.RequestID, Payload: SavedPayload{QuestionID: p.QuestionID}}

	case MsgSubmit:
		var p SubmitPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return invalidPayload(in.RequestID)
		}
		res, err := h.attempts.SubmitAttempt(ctx, distributionID, p.Answers, takerID)
		if err != nil {
			return errorMessage(in.RequestID, err)
		}
		return OutboundMessage{Type: MsgResult, RequestID: in.RequestID, Payload: res}
	}
	return OutboundMessage{Type: MsgError, RequestID: in.RequestID, Payload: APIError{Message: "unsupported message type", Code: "unsupported"}}
}

func errorMessage(requestID string, err error) OutboundMessage {
	_, apiErr := toAPIError(err)
	return OutboundMessage{Type: MsgError, RequestID: requestID, Payload: apiErr}
}

func invalidPayload(requestID string) OutboundMessage {
	return OutboundMessage{Type: MsgError, RequestID: requestID, Payload: APIError{Message: "invalid payload", Code: "invalid_payload"}}
}
