// Package shortlink creates method-tagged tracking links for the
// acceptance page, one per delivery channel so opens are attributable.
package shortlink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Client struct {
	endpoint string
	key      string
	domain   string
	hc       *http.Client
}

func New(endpoint, key, domain string) *Client {
	return &Client{
		endpoint: endpoint,
		key:      key,
		domain:   domain,
		hc:       &http.Client{Timeout: 3 * time.Second},
	}
}

type createRequest struct {
	OriginalURL string   `json:"originalURL"`
	Domain      string   `json:"domain"`
	Tags        []string `json:"tags,omitempty"`
	UTMSource   string   `json:"utmSource,omitempty"`
	UTMMedium   string   `json:"utmMedium,omitempty"`
	UTMCampaign string   `json:"utmCampaign,omitempty"`
	UTMContent  string   `json:"utmContent,omitempty"`
}

type createResponse struct {
	ShortURL       string `json:"shortURL"`
	SecureShortURL string `json:"secureShortURL"`
}

// Shorten returns a short URL for longURL. Callers treat failures as
// degradable: the long URL still works, attribution is just lost.
func (c *Client) Shorten(ctx context.Context, longURL string, tags []string, campaignContent string) (string, error) {
	body, err := json.Marshal(createRequest{
		OriginalURL: longURL,
		Domain:      c.domain,
		Tags:        tags,
		UTMMedium:   "email",
		UTMCampaign: "notif-sys",
		UTMContent:  campaignContent,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+"/links", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("shortlink: create returned %d", resp.StatusCode)
	}

	var cr createResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", err
	}
	if cr.SecureShortURL != "" {
		return cr.SecureShortURL, nil
	}
	return cr.ShortURL, nil
}
