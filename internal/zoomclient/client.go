package zoomclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client calls the Zoom REST API with server-to-server OAuth credentials.
type Client struct {
	AccountID    string
	ClientID     string
	ClientSecret string
	BaseURL      string
	OAuthURL     string
	HTTP         *http.Client
}

// New creates a client. It is inert (Configured() == false) when credentials
// are missing, so the API can run without a Zoom account.
func New(accountID, clientID, clientSecret string) *Client {
	return &Client{
		AccountID:    accountID,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		BaseURL:      "https://api.zoom.us/v2",
		OAuthURL:     "https://zoom.us/oauth/token",
		HTTP: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Configured reports whether Zoom credentials are present.
func (c *Client) Configured() bool {
	return c != nil && c.AccountID != "" && c.ClientID != "" && c.ClientSecret != ""
}

// accessToken fetches a short-lived account-credentials token.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	params := url.Values{}
	params.Set("grant_type", "account_credentials")
	params.Set("account_id", c.AccountID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.OAuthURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.ClientID, c.ClientSecret)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("zoom oauth request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("zoom oauth returned %s", resp.Status)
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("zoom oauth response missing access_token")
	}
	return body.AccessToken, nil
}

// Meeting is the subset of Zoom's meeting object the platform uses.
type Meeting struct {
	ID       int64  `json:"id"`
	Topic    string `json:"topic"`
	JoinURL  string `json:"join_url"`
	StartURL string `json:"start_url"`
}

// CreateMeeting schedules a 60-minute meeting for the class.
func (c *Client) CreateMeeting(ctx context.Context, topic string, startTime time.Time) (*Meeting, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]any{
		"topic":      topic,
		"type":       2, // scheduled meeting
		"start_time": startTime.UTC().Format(time.RFC3339),
		"duration":   60,
		"timezone":   "UTC",
		"settings": map[string]any{
			"host_video":        true,
			"participant_video": true,
			"join_before_host":  true,
			"waiting_room":      false,
		},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/users/me/meetings", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("zoom create meeting failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("zoom create meeting returned %s: %s", resp.Status, data)
	}

	var m Meeting
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMeeting fetches the raw meeting details.
func (c *Client) GetMeeting(ctx context.Context, meetingID string) (map[string]any, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/meetings/"+url.PathEscape(meetingID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("zoom get meeting failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("zoom get meeting returned %s", resp.Status)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body, nil
}
