package notify

import (
	"context"
	"fmt"

	goslack "github.com/slack-go/slack"

	"wanderer-notifier/internal/model"
)

// SlackTransport delivers notifications via Slack's Block Kit, grounded on
// wisbric-nightowl's pkg/slack/notifier.go. It demonstrates WebhookTransport
// is not tied to a single chat backend.
type SlackTransport struct {
	client *goslack.Client
}

// NewSlackTransport builds a transport authenticated with a bot token.
func NewSlackTransport(botToken string) *SlackTransport {
	return &SlackTransport{client: goslack.New(botToken)}
}

func (t *SlackTransport) Send(ctx context.Context, channelID string, n model.Notification) error {
	opts := []goslack.MsgOption{
		goslack.MsgOptionText(n.Content, false),
		goslack.MsgOptionBlocks(embedBlocks(n)...),
	}
	_, _, err := t.client.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	return nil
}

// embedBlocks renders each Embed as a Slack section block with attached
// fields, approximating the Discord embed schema in Block Kit.
func embedBlocks(n model.Notification) []goslack.Block {
	blocks := make([]goslack.Block, 0, len(n.Embeds))
	for _, e := range n.Embeds {
		text := e.Title
		if e.Description != "" {
			text += "\n" + e.Description
		}
		section := goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false), fieldObjects(e.Fields), nil)
		blocks = append(blocks, section)
	}
	return blocks
}

func fieldObjects(fields []model.EmbedField) []*goslack.TextBlockObject {
	if len(fields) == 0 {
		return nil
	}
	out := make([]*goslack.TextBlockObject, 0, len(fields))
	for _, f := range fields {
		out = append(out, goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*%s*\n%s", f.Name, f.Value), false, false))
	}
	return out
}
