package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"strangerchat/backend/internal/models"
)

// HTTPBackend talks to the REST API served by internal/api/handler.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
	token   string
}

var _ Backend = (*HTTPBackend)(nil)

func NewHTTPBackend(baseURL string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPBackend{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type matchBody struct {
	Session   *models.Session `json:"session"`
	PartnerID string          `json:"partner_id"`
	Status    string          `json:"status"`
	Error     string          `json:"error"`
}

func (b *HTTPBackend) Register(ctx context.Context) (Identity, error) {
	var identity Identity
	if _, err := b.do(ctx, http.MethodPost, "/api/participants", nil, &identity); err != nil {
		return Identity{}, err
	}
	return identity, nil
}

func (b *HTTPBackend) Use(identity Identity) {
	b.token = identity.Token
}

func (b *HTTPBackend) Heartbeat(ctx context.Context) error {
	_, err := b.do(ctx, http.MethodPost, "/api/heartbeat", nil, nil)
	return err
}

func (b *HTTPBackend) Enqueue(ctx context.Context) error {
	_, err := b.do(ctx, http.MethodPost, "/api/queue", nil, nil)
	return err
}

func (b *HTTPBackend) Dequeue(ctx context.Context) error {
	_, err := b.do(ctx, http.MethodDelete, "/api/queue", nil, nil)
	return err
}

func (b *HTTPBackend) Match(ctx context.Context) (*Pairing, error) {
	var body matchBody
	status, err := b.do(ctx, http.MethodPost, "/api/match", nil, &body)
	switch {
	case status == http.StatusConflict && body.Session != nil:
		return &Pairing{Session: body.Session, PartnerID: body.PartnerID}, fmt.Errorf("%w: %s", ErrAlreadyMatched, body.Error)
	case err != nil:
		return nil, err
	case status == http.StatusAccepted && body.Status == "not_queued":
		return nil, fmt.Errorf("%w: %w", ErrNoPartnerAvailable, ErrNotQueued)
	case status == http.StatusAccepted:
		return nil, ErrNoPartnerAvailable
	}
	return &Pairing{Session: body.Session, PartnerID: body.PartnerID}, nil
}

func (b *HTTPBackend) ActiveSession(ctx context.Context) (*Pairing, error) {
	var body matchBody
	status, err := b.do(ctx, http.MethodGet, "/api/sessions/active", nil, &body)
	if err != nil || status == http.StatusNoContent {
		return nil, err
	}
	return &Pairing{Session: body.Session, PartnerID: body.PartnerID}, nil
}

func (b *HTTPBackend) EndSession(ctx context.Context, sessionID string) error {
	_, err := b.do(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/end", nil, nil)
	return err
}

func (b *HTTPBackend) Send(ctx context.Context, sessionID, content string) (*models.Message, error) {
	var msg models.Message
	if _, err := b.do(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/messages", map[string]string{"content": content}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (b *HTTPBackend) History(ctx context.Context, sessionID string) ([]models.Message, error) {
	var msgs []models.Message
	if _, err := b.do(ctx, http.MethodGet, "/api/sessions/"+sessionID+"/messages", nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (b *HTTPBackend) SetTyping(ctx context.Context, sessionID string, isTyping bool) error {
	_, err := b.do(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/typing", map[string]bool{"is_typing": isTyping}, nil)
	return err
}

// do sends one JSON request. The body is decoded into out for 2xx and
// 409 responses; other statuses become sentinel errors.
func (b *HTTPBackend) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s: %w", ErrDeliveryFailure, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: read response: %w", ErrDeliveryFailure, err)
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if out != nil && len(data) > 0 && (ok || resp.StatusCode == http.StatusConflict) {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	if ok {
		return resp.StatusCode, nil
	}
	return resp.StatusCode, statusError(resp.StatusCode, data)
}

func statusError(status int, data []byte) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(data, &body)
	msg := body.Error
	if msg == "" {
		msg = http.StatusText(status)
	}

	var sentinel error
	switch status {
	case http.StatusBadRequest:
		sentinel = ErrInvalidRequest
	case http.StatusUnauthorized:
		sentinel = ErrUnauthorized
	case http.StatusForbidden:
		sentinel = ErrNotParticipant
	case http.StatusNotFound:
		sentinel = ErrSessionNotFound
	case http.StatusConflict:
		sentinel = ErrAlreadyMatched
	case http.StatusGone:
		sentinel = ErrSessionEnded
	default:
		sentinel = ErrDeliveryFailure
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}
