package facebook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"pizza-order-bot/internal/config"
	"pizza-order-bot/internal/domain"
	"pizza-order-bot/internal/domain/model"
	"pizza-order-bot/internal/domain/ports/adapter"
	"pizza-order-bot/internal/infra/metrics"
)

const service = "facebook"

var _ adapter.Messenger = (*Client)(nil)

// Client sends messages through the Graph API Send endpoint (me/messages).
type Client struct {
	graphURL  string
	pageToken string
	http      *http.Client
	log       *zerolog.Logger
}

func NewClient(cfg config.FacebookConfig, logger *zerolog.Logger) *Client {
	l := logger.With().Str("component", "facebook").Logger()
	return &Client{
		graphURL:  strings.TrimRight(cfg.GraphURL, "/"),
		pageToken: cfg.PageToken,
		http:      &http.Client{Timeout: 10 * time.Second},
		log:       &l,
	}
}

func (c *Client) Channel() model.Channel { return model.ChannelFacebook }

// Send posts each rendered message in order and stops at the first failure.
func (c *Client) Send(ctx context.Context, psid string, msgs ...model.Message) error {
	if psid == "" {
		return domain.ErrInvalidArgument
	}
	for _, m := range msgs {
		for _, body := range render(m) {
			err := c.post(ctx, sendRequest{
				Recipient:     recipient{ID: psid},
				MessagingType: "RESPONSE",
				Message:       body,
			})
			metrics.IncOutbound(service, err == nil)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Client) post(ctx context.Context, payload sendRequest) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode send request: %w", err)
	}
	u := c.graphURL + "/me/messages?" + url.Values{"access_token": {c.pageToken}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Upstream(service, "send", 0, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(data, "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return domain.Upstream(service, "send", resp.StatusCode, fmt.Errorf("%s", msg))
	}
	c.log.Trace().Str("message_id", gjson.GetBytes(data, "message_id").String()).Msg("message sent")
	return nil
}
