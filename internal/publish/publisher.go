package publish

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iamvkosarev/archive-relay-bot/internal/model"
	"github.com/iamvkosarev/archive-relay-bot/internal/staging"
)

const DefaultMaxAttempts = 5

// Sender is the part of *tgbotapi.BotAPI the publisher needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// DurationProber reads the playing time of a staged audio file.
type DurationProber interface {
	Duration(asset *staging.Asset) (time.Duration, error)
}

// Destination is a channel addressed either by numeric id or by @username.
type Destination struct {
	ChatID   int64
	Username string
}

// ParseDestination accepts "-100123..." or "@name".
func ParseDestination(s string) (Destination, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "@") && len(s) > 1 {
		return Destination{Username: s}, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id == 0 {
		return Destination{}, fmt.Errorf("invalid channel %q: want a numeric id or @username", s)
	}
	return Destination{ChatID: id}, nil
}

func (d Destination) String() string {
	if d.Username != "" {
		return d.Username
	}
	return strconv.FormatInt(d.ChatID, 10)
}

func (d Destination) apply(chat *tgbotapi.BaseChat) {
	chat.ChatID = d.ChatID
	chat.ChannelUsername = d.Username
}

type Options struct {
	MaxAttempts    int
	MaxUploadBytes int64
	Prober         DurationProber
	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Publisher posts staged files and status text to one channel.
type Publisher struct {
	sender      Sender
	dest        Destination
	maxAttempts int
	maxUpload   int64
	prober      DurationProber
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewPublisher(sender Sender, dest Destination, opts Options) *Publisher {
	p := &Publisher{
		sender:      sender,
		dest:        dest,
		maxAttempts: opts.MaxAttempts,
		maxUpload:   opts.MaxUploadBytes,
		prober:      opts.Prober,
		sleep:       opts.Sleep,
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = DefaultMaxAttempts
	}
	if p.sleep == nil {
		p.sleep = sleepContext
	}
	return p
}

// PublishAudio sends asset as an audio message. The performer shown is
// meta.Artist; pass it empty to suppress it. thumb may be nil.
func (p *Publisher) PublishAudio(ctx context.Context, asset *staging.Asset, caption string, meta model.TrackMetadata, thumb []byte) (tgbotapi.Message, error) {
	file, err := p.fileData("send audio", asset)
	if err != nil {
		return tgbotapi.Message{}, err
	}

	cfg := tgbotapi.NewAudio(0, file)
	p.dest.apply(&cfg.BaseChat)
	cfg.Caption = caption
	cfg.ParseMode = tgbotapi.ModeMarkdownV2
	cfg.Title = meta.Title
	cfg.Performer = meta.Artist
	cfg.Duration = p.duration(asset)
	if len(thumb) > 0 {
		cfg.Thumb = tgbotapi.FileBytes{Name: "thumb.jpg", Bytes: thumb}
	}
	return p.send(ctx, "send audio", cfg)
}

// PublishDocument sends asset as a generic file.
func (p *Publisher) PublishDocument(ctx context.Context, asset *staging.Asset, caption string, thumb []byte) (tgbotapi.Message, error) {
	file, err := p.fileData("send document", asset)
	if err != nil {
		return tgbotapi.Message{}, err
	}
	cfg := tgbotapi.NewDocument(0, file)
	p.dest.apply(&cfg.BaseChat)
	cfg.Caption = caption
	cfg.ParseMode = tgbotapi.ModeMarkdownV2
	if len(thumb) > 0 {
		cfg.Thumb = tgbotapi.FileBytes{Name: "thumb.jpg", Bytes: thumb}
	}
	return p.send(ctx, "send document", cfg)
}

// PublishPhoto posts an image with a caption, used for the album intro.
func (p *Publisher) PublishPhoto(ctx context.Context, asset *staging.Asset, caption string) (tgbotapi.Message, error) {
	file, err := p.fileData("send photo", asset)
	if err != nil {
		return tgbotapi.Message{}, err
	}
	cfg := tgbotapi.NewPhoto(0, file)
	p.dest.apply(&cfg.BaseChat)
	cfg.Caption = caption
	cfg.ParseMode = tgbotapi.ModeMarkdownV2
	return p.send(ctx, "send photo", cfg)
}

// PublishText posts a MarkdownV2 text message.
func (p *Publisher) PublishText(ctx context.Context, text string) (tgbotapi.Message, error) {
	cfg := tgbotapi.NewMessage(0, text)
	p.dest.apply(&cfg.BaseChat)
	cfg.ParseMode = tgbotapi.ModeMarkdownV2
	cfg.DisableWebPagePreview = true
	return p.send(ctx, "send message", cfg)
}

func (p *Publisher) fileData(op string, asset *staging.Asset) (tgbotapi.RequestFileData, error) {
	size, err := asset.Size()
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	if p.maxUpload > 0 && size > p.maxUpload {
		return nil, &Error{Op: op, Err: fmt.Errorf("%w: %s is %d bytes, limit %d", ErrTooLarge, asset.Name(), size, p.maxUpload)}
	}
	if asset.InMemory() {
		data, err := asset.Bytes()
		if err != nil {
			return nil, &Error{Op: op, Err: err}
		}
		return tgbotapi.FileBytes{Name: asset.Name(), Bytes: data}, nil
	}
	return tgbotapi.FilePath(asset.Path()), nil
}

func (p *Publisher) duration(asset *staging.Asset) int {
	if p.prober == nil {
		return 0
	}
	d, err := p.prober.Duration(asset)
	if err != nil {
		log.Printf("[publish] duration of %s unknown: %v", asset.Name(), err)
		return 0
	}
	return int(d.Round(time.Second) / time.Second)
}

// send performs c, sleeping for exactly the server-requested time on a
// rate-limit response, at most maxAttempts times in total.
func (p *Publisher) send(ctx context.Context, op string, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return tgbotapi.Message{}, &Error{Op: op, Err: err}
		}

		msg, err := p.sender.Send(c)
		if err == nil {
			return msg, nil
		}

		apiErr, ok := apiError(err)
		switch {
		case ok && apiErr.RetryAfter > 0:
			if attempt >= p.maxAttempts {
				return tgbotapi.Message{}, &Error{Op: op, Code: apiErr.Code, RetryAfter: apiErr.RetryAfter,
					Err: fmt.Errorf("%w after %d attempts", ErrRateLimited, attempt)}
			}
			wait := time.Duration(apiErr.RetryAfter) * time.Second
			log.Printf("[publish] %s to %s rate limited, retrying in %s", op, p.dest, wait)
			if err := p.sleep(ctx, wait); err != nil {
				return tgbotapi.Message{}, &Error{Op: op, Code: apiErr.Code, RetryAfter: apiErr.RetryAfter, Err: err}
			}
		case ok && isPermissionDenied(apiErr):
			return tgbotapi.Message{}, &Error{Op: op, Code: apiErr.Code, Err: fmt.Errorf("%w: %s", ErrPermissionDenied, apiErr.Message)}
		case ok:
			return tgbotapi.Message{}, &Error{Op: op, Code: apiErr.Code, Err: err}
		default:
			return tgbotapi.Message{}, &Error{Op: op, Err: err}
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
