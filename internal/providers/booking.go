package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/consultbridge/ConsultBridge-Backend/internal/apperrors"
)

// BookingEvent is the scheduled-slot payload delivered by the calendar
// provider for one booking reference.
type BookingEvent struct {
	Ref      string    `json:"ref"`
	BuyerID  string    `json:"buyer_id"`
	SellerID string    `json:"seller_id"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// BookingProvider reads scheduled bookings from the calendar vendor.
type BookingProvider interface {
	GetBooking(ctx context.Context, ref string) (*BookingEvent, error)
}

// BookingClient wraps the calendar provider's OAuth-protected API.
// Access tokens expire server-side; every call goes through a
// refresh-once-on-401 decorator: attempt, refresh, retry once, then
// surface the provider error. Never loops.
type BookingClient struct {
	baseURL      string
	refreshToken string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
}

func NewBookingClient(baseURL, refreshToken string, timeout time.Duration) (*BookingClient, error) {
	if baseURL == "" || refreshToken == "" {
		return nil, fmt.Errorf("%w: booking provider credentials missing", apperrors.ErrConfig)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BookingClient{
		baseURL:      baseURL,
		refreshToken: refreshToken,
		httpClient:   &http.Client{Timeout: timeout},
	}, nil
}

func (c *BookingClient) GetBooking(ctx context.Context, ref string) (*BookingEvent, error) {
	var event BookingEvent
	err := c.withAuthRetry(ctx, func(accessToken string) error {
		u := c.baseURL + "/v2/bookings/" + url.PathEscape(ref)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return apperrors.NewProvider("get booking", 0, err)
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return apperrors.NewProvider("get booking", 0, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return apperrors.NewProvider("get booking", resp.StatusCode, fmt.Errorf("%s", bytesOrStatus(detail, resp.Status)))
		}
		return json.NewDecoder(resp.Body).Decode(&event)
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// withAuthRetry runs fn with the current access token, refreshing and
// retrying exactly once if the provider rejects it with a 401.
func (c *BookingClient) withAuthRetry(ctx context.Context, fn func(accessToken string) error) error {
	tok, err := c.currentToken(ctx)
	if err != nil {
		return err
	}

	err = fn(tok)
	if !isAuthFailure(err) {
		return err
	}

	tok, err = c.refresh(ctx)
	if err != nil {
		return err
	}
	return fn(tok)
}

func (c *BookingClient) currentToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	tok := c.accessToken
	c.mu.Unlock()
	if tok != "" {
		return tok, nil
	}
	return c.refresh(ctx)
}

func (c *BookingClient) refresh(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {c.refreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", apperrors.NewProvider("refresh booking token", 0, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperrors.NewProvider("refresh booking token", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperrors.NewProvider("refresh booking token", resp.StatusCode, fmt.Errorf("token refresh rejected"))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.AccessToken == "" {
		return "", apperrors.NewProvider("refresh booking token", resp.StatusCode, fmt.Errorf("no access token in response"))
	}

	c.mu.Lock()
	c.accessToken = payload.AccessToken
	c.mu.Unlock()
	return payload.AccessToken, nil
}

func isAuthFailure(err error) bool {
	var pe *apperrors.ProviderError
	return errors.As(err, &pe) && pe.Status == http.StatusUnauthorized
}
