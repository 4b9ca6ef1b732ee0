// Package notify provides the webhook client announcing newly earned badges.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/refo-app/refo-gamification/internal/config"
	prommetrics "github.com/refo-app/refo-gamification/internal/metrics"
	"github.com/refo-app/refo-gamification/internal/models"
	"github.com/refo-app/refo-gamification/pkg/logger"
)

// Client posts badge announcements to an incoming webhook.
type Client struct {
	webhookURL string
	channel    string
	username   string
	enabled    bool
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a new webhook client.
func NewClient(cfg *config.NotificationsConfig, log *logger.Logger) *Client {
	return &Client{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		username:   cfg.Username,
		enabled:    cfg.Enabled,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log.Component("notify"),
	}
}

// Message represents a webhook message payload.
type Message struct {
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username,omitempty"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a message attachment.
type Attachment struct {
	Fallback string  `json:"fallback,omitempty"`
	Color    string  `json:"color,omitempty"`
	Title    string  `json:"title,omitempty"`
	Text     string  `json:"text,omitempty"`
	Fields   []Field `json:"fields,omitempty"`
}

// Field represents a message field.
type Field struct {
	Short bool   `json:"short"`
	Title string `json:"title"`
	Value string `json:"value"`
}

// SendMessage posts msg to the webhook.
func (c *Client) SendMessage(ctx context.Context, msg *Message) error {
	if !c.enabled {
		c.log.Debug().Msg("Notifications are disabled, skipping message")
		return nil
	}

	if msg.Channel == "" {
		msg.Channel = c.channel
	}
	if msg.Username == "" {
		msg.Username = c.username
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		prommetrics.RecordBadgeNotification("failed")
		return fmt.Errorf("failed to send webhook message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		prommetrics.RecordBadgeNotification("failed")
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	prommetrics.RecordBadgeNotification("sent")
	c.log.Debug().Str("channel", msg.Channel).Msg("Sent webhook message")
	return nil
}

// NotifyBadgesEarned announces the badges a user just earned.
func (c *Client) NotifyBadgesEarned(ctx context.Context, userID uuid.UUID, badges []models.Badge) error {
	if !c.enabled || len(badges) == 0 {
		return nil
	}

	badgeNames := make([]string, 0, len(badges))
	fields := make([]Field, 0, len(badges))
	for _, b := range badges {
		badgeNames = append(badgeNames, b.Name)
		fields = append(fields, Field{
			Short: true,
			Title: strings.TrimSpace(b.Icon + " " + b.Name),
			Value: requirementText(b),
		})
	}

	return c.SendMessage(ctx, &Message{
		Text: fmt.Sprintf("🏅 User `%s` earned %d new badge(s)", userID, len(badges)),
		Attachments: []Attachment{{
			Fallback: "New badges: " + strings.Join(badgeNames, ", "),
			Color:    "#f5a623",
			Fields:   fields,
		}},
	})
}

func requirementText(b models.Badge) string {
	switch b.RequirementType {
	case models.RequirementTasksCompleted:
		return fmt.Sprintf("%g verified tasks", b.RequirementValue)
	case models.RequirementStreakDays:
		return fmt.Sprintf("%g day streak", b.RequirementValue)
	case models.RequirementEarningsReached:
		return fmt.Sprintf("₹%g earned", b.RequirementValue)
	default:
		return b.Description
	}
}
