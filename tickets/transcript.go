package tickets

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/bwmarrin/discordgo"
	"github.com/ticketeer/ticketeer/models"
)

// transcriptFetchLimit is the channel history window that ends up in
// the transcript, newest messages win when a ticket ran longer.
const transcriptFetchLimit = 100

// messages by the same author this close together collapse into the
// preceding block
const compactWindow = time.Minute

var imageExtRe = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp)$`)

// fetchFunc retrieves an attachment body and its content type.
type fetchFunc func(url string) ([]byte, string, error)

// Archiver renders closed tickets into standalone HTML transcripts and
// posts them to the guild's transcript channel. Image attachments are
// inlined so the file stays readable after the originals expire.
type Archiver struct {
	session Session
	client  *http.Client
}

func NewArchiver(session Session, client *http.Client) *Archiver {
	return &Archiver{
		session: session,
		client:  client,
	}
}

// Archive builds the transcript for a closed ticket and delivers it.
// Nothing happens when the guild has no transcript channel configured.
func (a *Archiver) Archive(ctx context.Context, ticket *models.Ticket, conf *models.GuildConfig) error {
	if conf == nil || conf.TranscriptChannelID == "" {
		return nil
	}

	// newest first from the api, flip to reading order
	msgs, err := a.session.ChannelMessages(ticket.TicketID, transcriptFetchLimit, "", "", "")
	if err != nil {
		return errors.WithMessage(err, "fetching channel history")
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	info := transcriptInfo{
		ChannelName:   ticket.ChannelName,
		OwnerName:     a.memberName(ticket.GuildID, ticket.OwnerID, "Unknown User"),
		ClosedByName:  a.memberName(ticket.GuildID, ticket.ClosedBy, "Unknown User"),
		ClaimedByName: "No one",
		CreatedAt:     ticket.CreatedAt,
		ClosedAt:      ticket.ClosedAt,
	}
	if ticket.ClaimedBy != "" {
		info.ClaimedByName = a.memberName(ticket.GuildID, ticket.ClaimedBy, "Unknown User")
	}

	rendered, err := renderTranscript(info, msgs, a.fetchWithContext(ctx))
	if err != nil {
		return errors.WithMessage(err, "rendering transcript")
	}

	_, err = a.session.ChannelMessageSendComplex(conf.TranscriptChannelID, &discordgo.MessageSend{
		Content: fmt.Sprintf("Transcript for %s", ticket.ChannelName),
		Files: []*discordgo.File{{
			Name:        fmt.Sprintf("transcript-%s.html", ticket.ChannelName),
			ContentType: "text/html",
			Reader:      bytes.NewReader(rendered),
		}},
	})
	return errors.WithMessage(err, "delivering transcript")
}

func (a *Archiver) memberName(guildID, userID, fallback string) string {
	if userID == "" {
		return fallback
	}

	member, err := a.session.GuildMember(guildID, userID)
	if err != nil || member.User == nil {
		return fallback
	}

	if member.Nick != "" {
		return member.Nick
	}

	return member.User.Username
}

func (a *Archiver) fetchWithContext(ctx context.Context) fetchFunc {
	return func(url string) ([]byte, string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, "", err
		}

		resp, err := a.client.Do(req)
		if err != nil {
			return nil, "", err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, "", errors.Errorf("unexpected status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, "", err
		}

		return body, resp.Header.Get("Content-Type"), nil
	}
}

type transcriptInfo struct {
	ChannelName   string
	OwnerName     string
	ClosedByName  string
	ClaimedByName string
	CreatedAt     time.Time
	ClosedAt      *time.Time
}

type renderedMessage struct {
	AuthorName  string
	AvatarURL   string
	Timestamp   string
	Content     string
	Compact     bool
	Attachments []renderedAttachment
}

type renderedAttachment struct {
	Name    string
	URL     string
	IsImage bool
	DataURI template.URL
	SizeKiB string
	Failed  bool
}

type transcriptData struct {
	Info      transcriptInfo
	CreatedAt string
	ClosedAt  string
	Messages  []renderedMessage
}

// renderTranscript is the pure rendering core, everything it needs is
// handed in so tests can drive it without a session.
func renderTranscript(info transcriptInfo, msgs []*discordgo.Message, fetch fetchFunc) ([]byte, error) {
	data := transcriptData{
		Info:      info,
		CreatedAt: info.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"),
		ClosedAt:  "-",
	}
	if info.ClosedAt != nil {
		data.ClosedAt = info.ClosedAt.UTC().Format("2006-01-02 15:04:05 UTC")
	}

	var prev *discordgo.Message
	for _, msg := range msgs {
		if msg.Author == nil {
			continue
		}

		rm := renderedMessage{
			AuthorName: msg.Author.Username,
			AvatarURL:  msg.Author.AvatarURL("64"),
			Timestamp:  msg.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"),
			Content:    msg.Content,
			Compact:    continuesBlock(prev, msg),
		}

		for _, att := range msg.Attachments {
			rm.Attachments = append(rm.Attachments, renderAttachment(att, fetch))
		}

		data.Messages = append(data.Messages, rm)
		prev = msg
	}

	var buf bytes.Buffer
	if err := transcriptTmpl.Execute(&buf, data); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// continuesBlock reports whether cur renders compact, glued onto the
// immediately preceding message. Only the direct predecessor counts,
// a long run can therefore span well past the window as long as each
// hop stays inside it.
func continuesBlock(prev, cur *discordgo.Message) bool {
	if prev == nil || prev.Author == nil || cur.Author == nil {
		return false
	}
	if prev.Author.ID != cur.Author.ID {
		return false
	}

	diff := cur.Timestamp.Sub(prev.Timestamp)
	if diff < 0 {
		diff = -diff
	}

	return diff < compactWindow
}

func renderAttachment(att *discordgo.MessageAttachment, fetch fetchFunc) renderedAttachment {
	ra := renderedAttachment{
		Name:    att.Filename,
		URL:     att.URL,
		SizeKiB: fmt.Sprintf("%.2f", float64(att.Size)/1024),
	}

	if !imageExtRe.MatchString(att.Filename) {
		return ra
	}

	ra.IsImage = true
	body, contentType, err := fetch(att.URL)
	if err != nil {
		ra.Failed = true
		return ra
	}

	if contentType == "" || !strings.HasPrefix(contentType, "image/") {
		contentType = "image/png"
	}

	uri := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(body)
	// template.URL keeps html/template from mangling the data scheme
	ra.DataURI = template.URL(uri)
	return ra
}
