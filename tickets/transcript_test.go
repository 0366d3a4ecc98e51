package tickets

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"emperror.dev/errors"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var transcriptBase = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func transcriptMsg(authorID, content string, at time.Time) *discordgo.Message {
	return &discordgo.Message{
		Author:    &discordgo.User{ID: authorID, Username: "name-" + authorID},
		Content:   content,
		Timestamp: at,
	}
}

func noFetch(url string) ([]byte, string, error) {
	return nil, "", errors.New("unexpected fetch")
}

func testInfo() transcriptInfo {
	closed := transcriptBase.Add(time.Hour)
	return transcriptInfo{
		ChannelName:   "ticket-someone",
		OwnerName:     "someone",
		ClosedByName:  "a staffer",
		ClaimedByName: "No one",
		CreatedAt:     transcriptBase,
		ClosedAt:      &closed,
	}
}

func TestContinuesBlock(t *testing.T) {
	first := transcriptMsg("u1", "hello", transcriptBase)

	assert.False(t, continuesBlock(nil, first))
	assert.True(t, continuesBlock(first, transcriptMsg("u1", "again", transcriptBase.Add(30*time.Second))))
	assert.False(t, continuesBlock(first, transcriptMsg("u1", "later", transcriptBase.Add(90*time.Second))))
	assert.False(t, continuesBlock(first, transcriptMsg("u2", "other", transcriptBase.Add(5*time.Second))))

	// exactly the window is a new block
	assert.False(t, continuesBlock(first, transcriptMsg("u1", "edge", transcriptBase.Add(compactWindow))))
}

func TestContinuesBlockChains(t *testing.T) {
	// each hop is inside the window, so the run stays compact even
	// though it spans well past a minute in total
	msgs := []*discordgo.Message{
		transcriptMsg("u1", "one", transcriptBase),
		transcriptMsg("u1", "two", transcriptBase.Add(50*time.Second)),
		transcriptMsg("u1", "three", transcriptBase.Add(100*time.Second)),
	}

	rendered, err := renderTranscript(testInfo(), msgs, noFetch)
	require.NoError(t, err)

	assert.Equal(t, 2, strings.Count(string(rendered), `class="message compact"`))
}

func TestRenderTranscriptSidebar(t *testing.T) {
	rendered, err := renderTranscript(testInfo(), nil, noFetch)
	require.NoError(t, err)

	html := string(rendered)
	assert.Contains(t, html, "#ticket-someone")
	assert.Contains(t, html, "someone")
	assert.Contains(t, html, "a staffer")
	assert.Contains(t, html, "No one")
	assert.Contains(t, html, "2024-05-01 12:00:00 UTC")
	assert.Contains(t, html, "2024-05-01 13:00:00 UTC")
}

func TestRenderTranscriptEscapesContent(t *testing.T) {
	msgs := []*discordgo.Message{
		transcriptMsg("u1", `<script>alert("x")</script>`, transcriptBase),
	}

	rendered, err := renderTranscript(testInfo(), msgs, noFetch)
	require.NoError(t, err)

	html := string(rendered)
	assert.NotContains(t, html, "<script>alert")
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestRenderTranscriptDeterministic(t *testing.T) {
	msgs := []*discordgo.Message{
		transcriptMsg("u1", "hello", transcriptBase),
		transcriptMsg("u2", "hi there", transcriptBase.Add(10*time.Second)),
	}

	first, err := renderTranscript(testInfo(), msgs, noFetch)
	require.NoError(t, err)
	second, err := renderTranscript(testInfo(), msgs, noFetch)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRenderAttachmentImageInlined(t *testing.T) {
	payload := []byte("fake image bytes")
	fetch := func(url string) ([]byte, string, error) {
		assert.Equal(t, "https://cdn.example/shot.png", url)
		return payload, "image/png", nil
	}

	msg := transcriptMsg("u1", "", transcriptBase)
	msg.Attachments = []*discordgo.MessageAttachment{{
		Filename: "shot.png",
		URL:      "https://cdn.example/shot.png",
		Size:     len(payload),
	}}

	rendered, err := renderTranscript(testInfo(), []*discordgo.Message{msg}, fetch)
	require.NoError(t, err)

	encoded := base64.StdEncoding.EncodeToString(payload)
	assert.Contains(t, string(rendered), "data:image/png;base64,"+encoded)
}

func TestRenderAttachmentContentTypeFallback(t *testing.T) {
	fetch := func(url string) ([]byte, string, error) {
		return []byte{1, 2, 3}, "application/octet-stream", nil
	}

	ra := renderAttachment(&discordgo.MessageAttachment{
		Filename: "pic.JPG",
		URL:      "https://cdn.example/pic.JPG",
		Size:     3,
	}, fetch)

	require.True(t, ra.IsImage)
	assert.True(t, strings.HasPrefix(string(ra.DataURI), "data:image/png;base64,"))
}

func TestRenderAttachmentFetchFailure(t *testing.T) {
	fetch := func(url string) ([]byte, string, error) {
		return nil, "", errors.New("cdn gone")
	}

	msg := transcriptMsg("u1", "", transcriptBase)
	msg.Attachments = []*discordgo.MessageAttachment{{
		Filename: "shot.png",
		URL:      "https://cdn.example/shot.png",
	}}

	rendered, err := renderTranscript(testInfo(), []*discordgo.Message{msg}, fetch)
	require.NoError(t, err)

	assert.Contains(t, string(rendered), "Failed to load image: shot.png")
}

func TestRenderAttachmentNonImageLink(t *testing.T) {
	msg := transcriptMsg("u1", "logs attached", transcriptBase)
	msg.Attachments = []*discordgo.MessageAttachment{{
		Filename: "debug.log",
		URL:      "https://cdn.example/debug.log",
		Size:     4096,
	}}

	rendered, err := renderTranscript(testInfo(), []*discordgo.Message{msg}, noFetch)
	require.NoError(t, err)

	html := string(rendered)
	assert.Contains(t, html, `href="https://cdn.example/debug.log"`)
	assert.Contains(t, html, "(4.00 KiB)")
}
