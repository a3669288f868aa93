package slack_test

import (
	"strings"
	"testing"

	slacklib "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vrcslack "github.com/gosuda/vrcreator/internal/messenger/slack"
)

func TestBuildStatusBlocks(t *testing.T) {
	t.Parallel()

	t.Run("title and status with detail", func(t *testing.T) {
		t.Parallel()

		blocks := vrcslack.BuildStatusBlocks("Agent session", "completed", "3 modules written")
		require.Len(t, blocks, 2)

		header, ok := blocks[0].(*slacklib.SectionBlock)
		require.True(t, ok, "first block should be a SectionBlock")
		require.NotNil(t, header.Text)
		assert.Equal(t, slacklib.MarkdownType, header.Text.Type)
		assert.Equal(t, "*Agent session* `completed`", header.Text.Text)

		detail, ok := blocks[1].(*slacklib.SectionBlock)
		require.True(t, ok)
		assert.Equal(t, "3 modules written", detail.Text.Text)
	})

	t.Run("empty detail returns header only", func(t *testing.T) {
		t.Parallel()

		blocks := vrcslack.BuildStatusBlocks("Scene cleared", "", "  ")
		require.Len(t, blocks, 1)

		header, ok := blocks[0].(*slacklib.SectionBlock)
		require.True(t, ok)
		assert.Equal(t, "*Scene cleared*", header.Text.Text)
	})

	t.Run("long detail is truncated", func(t *testing.T) {
		t.Parallel()

		blocks := vrcslack.BuildStatusBlocks("Agent session", "failed", strings.Repeat("x", 5000))
		require.Len(t, blocks, 2)

		detail, ok := blocks[1].(*slacklib.SectionBlock)
		require.True(t, ok)
		assert.Len(t, detail.Text.Text, 3000)
		assert.True(t, strings.HasSuffix(detail.Text.Text, "..."))
	})
}
