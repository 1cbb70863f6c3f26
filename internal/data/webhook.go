package data

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"FuseGate/internal/conf"
	"FuseGate/internal/model"
	"FuseGate/pkg/crypto"
	"FuseGate/pkg/httpclient"

	"github.com/go-kratos/kratos/v2/log"
)

// Webhook signature headers. Receivers recompute the HMAC over
// "{timestamp}.{body}" and compare against X-Fusegate-Signature.
const (
	headerSignature = "X-Fusegate-Signature"
	headerTimestamp = "X-Fusegate-Timestamp"
	headerEvent     = "X-Fusegate-Event"
)

const defaultWebhookTimeout = 10 * time.Second

// webhookPayload is the delivery body for one alert.
type webhookPayload struct {
	Event string       `json:"event"`
	Alert *model.Alert `json:"alert"`
}

// WebhookNotifier delivers alerts to a configured HTTP endpoint. Payloads
// are HMAC-signed when a secret is configured, and delivery can route
// through a SOCKS5 or HTTP proxy. Without a URL configured the notifier
// runs disabled and only logs.
type WebhookNotifier struct {
	url    string
	client *http.Client
	signer *crypto.Signer
	logger *log.Helper
	now    func() time.Time
}

// NewWebhookNotifier creates the notifier from configuration.
func NewWebhookNotifier(rc *conf.Resilience, logger log.Logger) (*WebhookNotifier, error) {
	helper := log.NewHelper(logger)
	n := &WebhookNotifier{
		logger: helper,
		now:    time.Now,
	}

	if rc == nil || rc.Webhook == nil || rc.Webhook.Url == "" {
		helper.Info("no webhook URL configured, alert delivery disabled")
		return n, nil
	}
	wc := rc.Webhook

	timeout := defaultWebhookTimeout
	if wc.Timeout != nil && wc.Timeout.AsDuration() > 0 {
		timeout = wc.Timeout.AsDuration()
	}

	client, err := httpclient.New(wc.ProxyUrl, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook client: %w", err)
	}

	var signer *crypto.Signer
	if wc.Secret != "" {
		signer, err = crypto.NewSigner([]byte(wc.Secret))
		if err != nil {
			return nil, fmt.Errorf("failed to build webhook signer: %w", err)
		}
	} else {
		helper.Warn("webhook secret is empty, deliveries will be unsigned")
	}

	n.url = wc.Url
	n.client = client
	n.signer = signer
	return n, nil
}

// Enabled reports whether deliveries go out over HTTP.
func (n *WebhookNotifier) Enabled() bool {
	return n.url != ""
}

// NotifyAlert posts one alert to the webhook endpoint. When delivery is
// disabled the alert is only logged.
func (n *WebhookNotifier) NotifyAlert(ctx context.Context, alert *model.Alert) error {
	if !n.Enabled() {
		n.logger.Infow("msg", "alert notification (webhook disabled)",
			"alert_id", alert.ID,
			"rule", alert.RuleID,
			"severity", string(alert.Severity),
			"message", alert.Message)
		return nil
	}

	body, err := json.Marshal(webhookPayload{Event: "alert.fired", Alert: alert})
	if err != nil {
		return fmt.Errorf("failed to marshal alert %s: %w", alert.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerEvent, "alert.fired")

	at := n.now()
	req.Header.Set(headerTimestamp, strconv.FormatInt(at.Unix(), 10))
	if n.signer != nil {
		req.Header.Set(headerSignature, n.signer.Sign(body, at))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed for alert %s: %w", alert.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d for alert %s", resp.StatusCode, alert.ID)
	}

	n.logger.Infow("msg", "alert delivered",
		"alert_id", alert.ID,
		"severity", string(alert.Severity),
		"status", resp.StatusCode)
	return nil
}
