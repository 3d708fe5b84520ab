// Package notify implements outbound notification adapters.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"calsync_server/core/port/out"
	"calsync_server/pkg/httputil"
)

// PushAdapter implements out.NotifierPort against an HTTP push gateway.
// The gateway owns the final channel (chat bot, mobile push); this
// adapter only distinguishes permanent from transient failures.
type PushAdapter struct {
	endpoint string
	token    string
	client   *http.Client
}

var _ out.NotifierPort = (*PushAdapter)(nil)

// NewPushAdapter creates a new PushAdapter.
func NewPushAdapter(endpoint, token string) *PushAdapter {
	return &PushAdapter{
		endpoint: endpoint,
		token:    token,
		client:   httputil.NewClient(httputil.DefaultClientConfig()),
	}
}

type pushRequest struct {
	ChannelID string `json:"channel_id"`
	Text      string `json:"text"`
}

// Send delivers one message to a channel. A 403/404/410 from the gateway
// means the channel is permanently gone and maps to ErrRecipientGone;
// everything else is transient.
func (a *PushAdapter) Send(ctx context.Context, channelID, text string) error {
	body, err := json.Marshal(pushRequest{ChannelID: channelID, Text: text})
	if err != nil {
		return fmt.Errorf("failed to encode push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("push request failed: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusGone:
		return fmt.Errorf("channel %s: %w", channelID, out.ErrRecipientGone)
	default:
		return fmt.Errorf("push gateway returned status %d", resp.StatusCode)
	}
}
