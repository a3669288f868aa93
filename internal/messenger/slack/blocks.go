package slack

import (
	"fmt"
	"strings"

	slacklib "github.com/slack-go/slack"
)

// maxSectionText is Slack's limit for a section block's text.
const maxSectionText = 3000

// BuildStatusBlocks renders a status update: a bold title with an inline-code
// status, then an optional detail section. Detail is truncated to fit.
func BuildStatusBlocks(title, status, detail string) []slacklib.Block {
	header := fmt.Sprintf("*%s*", title)
	if status != "" {
		header += fmt.Sprintf(" `%s`", status)
	}
	blocks := []slacklib.Block{
		slacklib.NewSectionBlock(
			slacklib.NewTextBlockObject(slacklib.MarkdownType, header, false, false),
			nil,
			nil,
		),
	}

	detail = strings.TrimSpace(detail)
	if detail == "" {
		return blocks
	}
	if len(detail) > maxSectionText {
		detail = detail[:maxSectionText-3] + "..."
	}
	blocks = append(blocks, slacklib.NewSectionBlock(
		slacklib.NewTextBlockObject(slacklib.MarkdownType, detail, false, false),
		nil,
		nil,
	))
	return blocks
}

// textBlocks turns a plain notification into blocks. The first line becomes
// the header section and the rest the detail.
func textBlocks(text string) []slacklib.Block {
	title, detail, _ := strings.Cut(text, "\n")
	return BuildStatusBlocks(title, "", detail)
}
