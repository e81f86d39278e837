package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/consultbridge/ConsultBridge-Backend/internal/apperrors"
	"github.com/consultbridge/ConsultBridge-Backend/internal/models"
)

// RoomProvider is the narrow surface this subsystem needs from the
// video room vendor.
type RoomProvider interface {
	CreateRoom(ctx context.Context, topic string) (*models.ProviderRoom, error)
	DeleteRoom(ctx context.Context, roomName string) error
	ListRecordings(ctx context.Context, since time.Time) ([]models.ExternalRecording, error)
	GetDownloadLink(ctx context.Context, recordingID string) (string, error)
}

// RoomClient talks to the room provider's REST API. Every call carries
// the request context and the client-level timeout; no retries happen
// here, callers own retry policy.
type RoomClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewRoomClient(baseURL, apiKey string, timeout time.Duration) (*RoomClient, error) {
	if baseURL == "" || apiKey == "" {
		return nil, fmt.Errorf("%w: room provider credentials missing", apperrors.ErrConfig)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RoomClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (c *RoomClient) CreateRoom(ctx context.Context, topic string) (*models.ProviderRoom, error) {
	body, _ := json.Marshal(map[string]string{"name": topic})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/rooms", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewProvider("create room", 0, err)
	}
	req.Header.Set("Content-Type", "application/json")

	var room models.ProviderRoom
	if err := c.do(req, "create room", &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *RoomClient) DeleteRoom(ctx context.Context, roomName string) error {
	u := c.baseURL + "/v1/rooms/" + url.PathEscape(roomName)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return apperrors.NewProvider("delete room", 0, err)
	}
	return c.do(req, "delete room", nil)
}

func (c *RoomClient) ListRecordings(ctx context.Context, since time.Time) ([]models.ExternalRecording, error) {
	u := fmt.Sprintf("%s/v1/recordings?since=%s", c.baseURL, url.QueryEscape(since.UTC().Format(time.RFC3339)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, apperrors.NewProvider("list recordings", 0, err)
	}

	var payload struct {
		Recordings []models.ExternalRecording `json:"recordings"`
	}
	if err := c.do(req, "list recordings", &payload); err != nil {
		return nil, err
	}
	return payload.Recordings, nil
}

// GetDownloadLink resolves the access URL for a finished recording.
// Returns "" without error when the provider has no link yet.
func (c *RoomClient) GetDownloadLink(ctx context.Context, recordingID string) (string, error) {
	u := c.baseURL + "/v1/recordings/" + url.PathEscape(recordingID) + "/download"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", apperrors.NewProvider("get download link", 0, err)
	}

	var payload struct {
		URL string `json:"url"`
	}
	if err := c.do(req, "get download link", &payload); err != nil {
		var pe *apperrors.ProviderError
		if errors.As(err, &pe) && pe.Status == http.StatusNotFound {
			return "", nil
		}
		return "", err
	}
	return payload.URL, nil
}

func (c *RoomClient) do(req *http.Request, op string, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewProvider(op, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apperrors.NewProvider(op, resp.StatusCode, fmt.Errorf("%s", bytesOrStatus(detail, resp.Status)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewProvider(op, resp.StatusCode, fmt.Errorf("decode response: %v", err))
	}
	return nil
}

func bytesOrStatus(b []byte, status string) string {
	if len(b) > 0 {
		return string(b)
	}
	return status
}
