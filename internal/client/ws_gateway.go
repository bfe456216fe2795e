package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"edu-assessment-service/internal/domain"
	transport "edu-assessment-service/internal/transport/http"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned for calls pending or made after the socket closed.
var ErrConnectionClosed = errors.New("attempt connection closed")

// WSGateway is the taker-side session.Gateway over the attempt websocket.
// Calls are safe for concurrent use; replies are matched by request id.
type WSGateway struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan transport.InboundMessage
	closed  bool
	done    chan struct{}
}

// Dial opens the attempt channel. baseURL is the server root, e.g. ws://localhost:8080.
func Dial(ctx context.Context, baseURL, distributionID, takerID, code string) (*WSGateway, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws/attempt"
	q := url.Values{}
	q.Set("distributionId", distributionID)
	q.Set("takerId", takerID)
	if code != "" {
		q.Set("code", code)
	}
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if remote := decodeRefusal(resp); remote != nil {
				return nil, remote
			}
		}
		return nil, fmt.Errorf("dial attempt channel: %w", err)
	}

	g := &WSGateway{
		conn:    conn,
		pending: make(map[string]chan transport.InboundMessage),
		done:    make(chan struct{}),
	}
	go g.readLoop()
	return g, nil
}

func decodeRefusal(resp *http.Response) error {
	var env transport.ErrorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || env.Error.Code == "" {
		return nil
	}
	return transport.NewRemoteError(env.Error)
}

// FetchAttemptDetail ignores its ids: the connection is bound to one attempt.
func (g *WSGateway) FetchAttemptDetail(ctx context.Context, _, _ string) (domain.AttemptDetail, error) {
	var detail domain.AttemptDetail
	err := g.call(ctx, transport.MsgDetail, nil, &detail)
	return detail, err
}

func (g *WSGateway) SaveAnswer(ctx context.Context, _, questionID string, value domain.AnswerValue, _ string) error {
	return g.call(ctx, transport.MsgSave, transport.SavePayload{QuestionID: questionID, Value: value}, nil)
}

func (g *WSGateway) SubmitAttempt(ctx context.Context, _ string, answers []domain.AnswerEntry, _ string) (domain.SubmitResult, error) {
	var res domain.SubmitResult
	err := g.call(ctx, transport.MsgSubmit, transport.SubmitPayload{Answers: answers}, &res)
	return res, err
}

// Close shuts the socket; pending calls fail with ErrConnectionClosed.
func (g *WSGateway) Close() error {
	g.writeMu.Lock()
	_ = g.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	g.writeMu.Unlock()
	return g.conn.Close()
}

func (g *WSGateway) call(ctx context.Context, typ string, payload any, out any) error {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", typ, err)
		}
		raw = b
	}

	id := uuid.NewString()
	ch := make(chan transport.InboundMessage, 1)
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrConnectionClosed
	}
	g.pending[id] = ch
	g.mu.Unlock()
	defer g.forget(id)

	g.writeMu.Lock()
	err := g.conn.WriteJSON(transport.InboundMessage{Type: typ, RequestID: id, Payload: raw})
	g.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}

	var reply transport.InboundMessage
	select {
	case <-ctx.Done():
		return ctx.Err()
	case reply = <-ch:
	case <-g.done:
		select {
		case reply = <-ch:
		default:
			return ErrConnectionClosed
		}
	}
	return decodeReply(reply, out)
}

func decodeReply(reply transport.InboundMessage, out any) error {
	if reply.Type == transport.MsgError {
		var apiErr transport.APIError
		if err := json.Unmarshal(reply.Payload, &apiErr); err != nil {
			return fmt.Errorf("decode error reply: %w", err)
		}
		return transport.NewRemoteError(apiErr)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(reply.Payload, out); err != nil {
		return fmt.Errorf("decode %s reply: %w", reply.Type, err)
	}
	return nil
}

func (g *WSGateway) forget(id string) {
	g.mu.Lock()
	delete(g.pending, id)
	g.mu.Unlock()
}

// readLoop decodes replies with the same envelope the server reads requests with:
// the payload stays raw until the caller knows its type.
func (g *WSGateway) readLoop() {
	defer func() {
		g.mu.Lock()
		g.closed = true
		g.mu.Unlock()
		close(g.done)
	}()
	for {
		var msg transport.InboundMessage
		if err := g.conn.ReadJSON(&msg); err != nil {
			return
		}
		g.mu.Lock()
		ch, ok := g.pending[msg.RequestID]
		g.mu.Unlock()
		if ok {
			select {
			case ch <- msg:
			default:
			}
		}
	}
}
