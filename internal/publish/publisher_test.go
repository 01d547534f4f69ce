package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iamvkosarev/archive-relay-bot/internal/model"
	"github.com/iamvkosarev/archive-relay-bot/internal/staging"
)

// fakeSender replays scripted errors and records every call into a shared log.
type fakeSender struct {
	errs  []error
	sent  []tgbotapi.Chattable
	log   *[]string
	calls int
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.calls++
	*f.log = append(*f.log, "send")
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return tgbotapi.Message{}, err
		}
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: f.calls}, nil
}

type fakeProber time.Duration

func (p fakeProber) Duration(*staging.Asset) (time.Duration, error) {
	return time.Duration(p), nil
}

func newTestPublisher(dest Destination, errs ...error) (*Publisher, *fakeSender, *[]string) {
	var events []string
	sender := &fakeSender{errs: errs, log: &events}
	p := NewPublisher(sender, dest, Options{
		MaxAttempts:    3,
		MaxUploadBytes: 1 << 20,
		Prober:         fakeProber(185600 * time.Millisecond),
		Sleep: func(_ context.Context, d time.Duration) error {
			events = append(events, "sleep "+d.String())
			return nil
		},
	})
	return p, sender, &events
}

func rateLimit(seconds int) error {
	return &tgbotapi.Error{
		Code:               429,
		Message:            fmt.Sprintf("Too Many Requests: retry after %d", seconds),
		ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: seconds},
	}
}

func TestPublishAudio(t *testing.T) {
	p, sender, _ := newTestPublisher(Destination{ChatID: -1001})
	asset := staging.NewMemoryAsset("01 Intro.mp3", []byte("audio"))
	meta := model.TrackMetadata{Title: "Intro", Artist: "Band"}

	if _, err := p.PublishAudio(context.Background(), asset, "caption", meta, []byte{0xFF, 0xD8}); err != nil {
		t.Fatalf("PublishAudio: %v", err)
	}
	cfg, ok := sender.sent[0].(tgbotapi.AudioConfig)
	if !ok {
		t.Fatalf("sent %T, want AudioConfig", sender.sent[0])
	}
	if cfg.ChatID != -1001 || cfg.ChannelUsername != "" {
		t.Errorf("destination = %d/%q", cfg.ChatID, cfg.ChannelUsername)
	}
	if cfg.Title != "Intro" || cfg.Performer != "Band" || cfg.Duration != 186 {
		t.Errorf("display attributes = %q/%q/%d", cfg.Title, cfg.Performer, cfg.Duration)
	}
	if cfg.ParseMode != tgbotapi.ModeMarkdownV2 || cfg.Caption != "caption" {
		t.Errorf("caption = %q (%s)", cfg.Caption, cfg.ParseMode)
	}
	file, ok := cfg.File.(tgbotapi.FileBytes)
	if !ok || file.Name != "01 Intro.mp3" || string(file.Bytes) != "audio" {
		t.Errorf("file = %#v", cfg.File)
	}
	if cfg.Thumb == nil {
		t.Error("thumbnail not attached")
	}
}

func TestPublishAudioFromDiskToUsername(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.flac")
	if err := os.WriteFile(path, []byte("flac"), 0o644); err != nil {
		t.Fatal(err)
	}
	p, sender, _ := newTestPublisher(Destination{Username: "@relay"})

	if _, err := p.PublishAudio(context.Background(), staging.NewFileAsset("a.flac", path), "", model.TrackMetadata{Title: "A"}, nil); err != nil {
		t.Fatalf("PublishAudio: %v", err)
	}
	cfg := sender.sent[0].(tgbotapi.AudioConfig)
	if cfg.ChannelUsername != "@relay" || cfg.ChatID != 0 {
		t.Errorf("destination = %d/%q", cfg.ChatID, cfg.ChannelUsername)
	}
	if fp, ok := cfg.File.(tgbotapi.FilePath); !ok || string(fp) != path {
		t.Errorf("file = %#v", cfg.File)
	}
	if cfg.Performer != "" {
		t.Errorf("performer = %q, want empty", cfg.Performer)
	}
}

func TestPublishRetriesAfterRateLimit(t *testing.T) {
	p, sender, events := newTestPublisher(Destination{ChatID: 1}, rateLimit(3), nil)

	if _, err := p.PublishText(context.Background(), "hello"); err != nil {
		t.Fatalf("PublishText: %v", err)
	}
	want := []string{"send", "sleep 3s", "send"}
	if strings.Join(*events, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", *events, want)
	}
	if len(sender.sent) != 1 {
		t.Errorf("delivered %d messages, want 1", len(sender.sent))
	}
}

func TestPublishRateLimitValueError(t *testing.T) {
	valueErr := tgbotapi.Error{Code: 429, ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 7}}
	p, _, events := newTestPublisher(Destination{ChatID: 1}, valueErr, nil)

	if _, err := p.PublishText(context.Background(), "hello"); err != nil {
		t.Fatalf("PublishText: %v", err)
	}
	if (*events)[1] != "sleep 7s" {
		t.Errorf("events = %v", *events)
	}
}

func TestPublishGivesUpAfterMaxAttempts(t *testing.T) {
	p, sender, events := newTestPublisher(Destination{ChatID: 1}, rateLimit(1), rateLimit(1), rateLimit(1), nil)

	_, err := p.PublishText(context.Background(), "hello")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	var pe *Error
	if !errors.As(err, &pe) || pe.RetryAfter != 1 || pe.Code != 429 {
		t.Errorf("err = %#v", err)
	}
	if sender.calls != 3 {
		t.Errorf("calls = %d, want 3", sender.calls)
	}
	if n := strings.Count(strings.Join(*events, ","), "sleep"); n != 2 {
		t.Errorf("slept %d times, want 2", n)
	}
}

func TestPublishPermissionDeniedIsTerminal(t *testing.T) {
	tests := []error{
		&tgbotapi.Error{Code: 403, Message: "Forbidden: bot is not a member of the channel chat"},
		&tgbotapi.Error{Code: 400, Message: "Bad Request: not enough rights to send audios to the chat"},
		// multipart uploads report no code
		&tgbotapi.Error{Message: "Forbidden: bot is not a member of the channel chat"},
	}
	for _, apiErr := range tests {
		p, sender, _ := newTestPublisher(Destination{ChatID: 1}, apiErr, nil)
		_, err := p.PublishAudio(context.Background(), staging.NewMemoryAsset("a.mp3", []byte("x")), "", model.TrackMetadata{}, nil)
		if !errors.Is(err, ErrPermissionDenied) {
			t.Errorf("err = %v, want ErrPermissionDenied", err)
		}
		if sender.calls != 1 {
			t.Errorf("calls = %d, want 1", sender.calls)
		}
	}
}

func TestPublishGenericFailure(t *testing.T) {
	p, sender, _ := newTestPublisher(Destination{ChatID: 1}, errors.New("connection reset"), nil)
	_, err := p.PublishText(context.Background(), "x")
	var pe *Error
	if !errors.As(err, &pe) || pe.Op != "send message" {
		t.Fatalf("err = %v", err)
	}
	if sender.calls != 1 {
		t.Errorf("generic failures must not be retried, calls = %d", sender.calls)
	}
}

func TestPublishTooLarge(t *testing.T) {
	p, sender, _ := newTestPublisher(Destination{ChatID: 1})
	big := staging.NewMemoryAsset("big.flac", make([]byte, 2<<20))

	if _, err := p.PublishDocument(context.Background(), big, "", nil); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
	if sender.calls != 0 {
		t.Error("oversized upload reached the transport")
	}
}

func TestPublishCanceledContext(t *testing.T) {
	p, sender, _ := newTestPublisher(Destination{ChatID: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.PublishText(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if sender.calls != 0 {
		t.Error("canceled publish reached the transport")
	}
}

func TestPublishPhotoAndDocument(t *testing.T) {
	p, sender, _ := newTestPublisher(Destination{Username: "@c"})
	img := staging.NewMemoryAsset("cover.jpg", []byte{0xFF, 0xD8})
	if _, err := p.PublishPhoto(context.Background(), img, "album"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.PublishDocument(context.Background(), staging.NewMemoryAsset("book.pdf", []byte("%PDF")), "doc", nil); err != nil {
		t.Fatal(err)
	}
	if photo, ok := sender.sent[0].(tgbotapi.PhotoConfig); !ok || photo.Caption != "album" || photo.ChannelUsername != "@c" {
		t.Errorf("photo = %#v", sender.sent[0])
	}
	if doc, ok := sender.sent[1].(tgbotapi.DocumentConfig); !ok || doc.Caption != "doc" {
		t.Errorf("document = %#v", sender.sent[1])
	}
}

func TestParseDestination(t *testing.T) {
	tests := []struct {
		in      string
		want    Destination
		wantErr bool
	}{
		{in: "-1001234567890", want: Destination{ChatID: -1001234567890}},
		{in: " @archive_relay ", want: Destination{Username: "@archive_relay"}},
		{in: "@", wantErr: true},
		{in: "channel", wantErr: true},
		{in: "0", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDestination(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDestination(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDestination(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}
