package notify

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	apihttp "github.com/abdul-hamid-achik/apismoke/packages/http"
)

// SlackNotifier sends notifications to Slack via webhook
type SlackNotifier struct {
	webhookURL string
	channel    string
	username   string
	iconEmoji  string
	client     *apihttp.Client
}

// SlackOption is a functional option for SlackNotifier
type SlackOption func(*SlackNotifier)

// WithSlackChannel sets the Slack channel
func WithSlackChannel(channel string) SlackOption {
	return func(s *SlackNotifier) {
		s.channel = channel
	}
}

// WithSlackUsername sets the Slack bot username
func WithSlackUsername(username string) SlackOption {
	return func(s *SlackNotifier) {
		s.username = username
	}
}

// WithSlackIconEmoji sets the Slack bot icon emoji
func WithSlackIconEmoji(emoji string) SlackOption {
	return func(s *SlackNotifier) {
		s.iconEmoji = emoji
	}
}

// NewSlackNotifier creates a new Slack notifier
func NewSlackNotifier(webhookURL string, opts ...SlackOption) *SlackNotifier {
	s := &SlackNotifier{
		webhookURL: webhookURL,
		username:   "apismoke",
		iconEmoji:  ":test_tube:",
		client:     newWebhookClient(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *SlackNotifier) Name() string {
	return "slack"
}

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text,omitempty"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
	TS     int64        `json:"ts,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Notify sends a notification to Slack
func (s *SlackNotifier) Notify(summary *RunSummary) error {
	color, emoji := "good", ":white_check_mark:"
	switch {
	case summary.Failed > 0:
		color, emoji = "danger", ":x:"
	case summary.Blocked != "":
		color, emoji = "warning", ":warning:"
	}

	fields := []slackField{
		{Title: "Target", Value: summary.Target, Short: false},
		{Title: "Total", Value: fmt.Sprintf("%d", summary.Total), Short: true},
		{Title: "Passed", Value: fmt.Sprintf("%d", summary.Passed), Short: true},
		{Title: "Failed", Value: fmt.Sprintf("%d", summary.Failed), Short: true},
		{Title: "Skipped / xfailed", Value: fmt.Sprintf("%d / %d", summary.Skipped, summary.XFailed), Short: true},
		{Title: "Duration", Value: summary.Duration.Round(time.Millisecond).String(), Short: true},
	}
	if summary.Environment != "" {
		fields = append(fields, slackField{Title: "Environment", Value: summary.Environment, Short: true})
	}

	var text strings.Builder
	if summary.Blocked != "" {
		fmt.Fprintf(&text, "%s\n", summary.Blocked)
	}
	if len(summary.FailedResults) > 0 {
		text.WriteString("*Failed scenarios:*\n")
		for _, fr := range summary.FailedResults {
			fmt.Fprintf(&text, "• `%s`\n", fr.Name)
			for _, err := range fr.Errors {
				fmt.Fprintf(&text, "  - %s\n", err)
			}
		}
	}

	msg := slackMessage{
		Channel:   s.channel,
		Username:  s.username,
		IconEmoji: s.iconEmoji,
		Attachments: []slackAttachment{{
			Color:  color,
			Title:  fmt.Sprintf("%s %s", emoji, summary.title()),
			Text:   text.String(),
			Fields: fields,
			Footer: "apismoke " + summary.RunID,
			TS:     time.Now().Unix(),
		}},
	}

	return postJSON(s.client, "Slack", s.webhookURL, msg, http.StatusOK)
}
