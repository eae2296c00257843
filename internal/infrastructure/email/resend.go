package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"newsforge/internal/config"
	"newsforge/internal/domain"
	"newsforge/internal/ports"
)

// ResendClient delivers artifacts through a Resend-compatible email API.
// HTTP failures are classified into transient and permanent delivery
// errors so the dispatcher can decide what to retry.
type ResendClient struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
}

var _ ports.Deliverer = (*ResendClient)(nil)

// NewResendClient registers API credentials and the sender address.
func NewResendClient(cfg config.ResendConfig, client *http.Client) *ResendClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &ResendClient{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		from:     cfg.FromAddress,
		client:   client,
	}
}

// Deliver posts the email and returns the provider message ID.
func (r *ResendClient) Deliver(ctx context.Context, artifact domain.Artifact, address string) (string, error) {
	if r.apiKey == "" || r.endpoint == "" {
		return "", &domain.DeliveryError{
			Kind:   domain.DeliveryPermanent,
			Detail: "resend client misconfigured",
		}
	}

	body, err := json.Marshal(map[string]any{
		"from":    r.from,
		"to":      []string{address},
		"subject": artifact.Subject,
		"html":    string(artifact.HTML),
		"text":    string(artifact.Text),
	})
	if err != nil {
		return "", &domain.DeliveryError{Kind: domain.DeliveryPermanent, Detail: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &domain.DeliveryError{Kind: domain.DeliveryPermanent, Detail: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		// Transport faults and timeouts are worth retrying.
		return "", &domain.DeliveryError{Kind: domain.DeliveryTransient, Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", classifyStatus(resp)
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", &domain.DeliveryError{Kind: domain.DeliveryTransient, Detail: "decode response: " + err.Error()}
	}
	return payload.ID, nil
}

func classifyStatus(resp *http.Response) *domain.DeliveryError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := fmt.Sprintf("%s: %s", resp.Status, strings.TrimSpace(string(body)))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &domain.DeliveryError{
			Kind:       domain.DeliveryTransient,
			Detail:     detail,
			RetryAfter: retryAfter(resp),
		}
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= http.StatusInternalServerError:
		return &domain.DeliveryError{Kind: domain.DeliveryTransient, Detail: detail}
	default:
		// Invalid recipient, auth rejection, rejected payload: retrying
		// cannot help.
		return &domain.DeliveryError{Kind: domain.DeliveryPermanent, Detail: detail}
	}
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}
