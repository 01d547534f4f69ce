package publish

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iamvkosarev/archive-relay-bot/internal/model"
)

// Captions are capped at 1024 characters after entity parsing; long titles
// are cut well before that.
const maxCaptionField = 200

// Escape makes s safe inside a MarkdownV2 message.
func Escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, s)
}

func clip(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxCaptionField {
		return s
	}
	r := []rune(s)
	return string(r[:maxCaptionField-1]) + "…"
}

// AlbumCaption introduces an album: bold title, creator and date, then the
// format label with file count and total size.
func AlbumCaption(item model.ItemMetadata, group model.FormatGroup) string {
	title := item.Title
	if title == "" {
		title = item.Identifier
	}
	var b strings.Builder
	b.WriteString("*" + Escape(clip(title)) + "*")

	var byline []string
	if item.Creator != "" {
		byline = append(byline, clip(item.Creator))
	}
	if item.Date != "" {
		byline = append(byline, item.Date)
	}
	if len(byline) > 0 {
		b.WriteString("\n" + Escape(strings.Join(byline, " · ")))
	}

	noun := "files"
	if len(group.Files) == 1 {
		noun = "file"
	}
	summary := fmt.Sprintf("%s · %d %s · %s", group.Label, len(group.Files), noun, humanize.Bytes(uint64(group.TotalSize())))
	b.WriteString("\n" + Escape(summary))
	return b.String()
}

// TrackCaption labels one published file.
func TrackCaption(meta model.TrackMetadata, label string, size int64) string {
	var b strings.Builder
	if meta.TrackNumber > 0 {
		b.WriteString(Escape(fmt.Sprintf("%02d. ", meta.TrackNumber)))
	}
	b.WriteString("*" + Escape(clip(meta.Title)) + "*")
	if meta.Artist != "" {
		b.WriteString("\n" + Escape(clip(meta.Artist)))
	}
	details := label
	if size > 0 {
		details += " · " + humanize.Bytes(uint64(size))
	}
	b.WriteString("\n" + Escape(details))
	return b.String()
}
