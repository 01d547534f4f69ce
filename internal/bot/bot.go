package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/semaphore"

	"github.com/iamvkosarev/archive-relay-bot/internal/archive"
	"github.com/iamvkosarev/archive-relay-bot/internal/model"
	"github.com/iamvkosarev/archive-relay-bot/internal/session"
	"github.com/iamvkosarev/archive-relay-bot/internal/workflow"
)

const (
	actionFormat = "fmt"
	actionCancel = "cancel"

	buttonsPerRow = 2
)

const usageText = `Send me an archive.org link and I will publish the item to the channel.

/download <link> - list the formats of an item
/cancel - stop your running upload
/help - this message

Tracks are tagged with title, artist, album, date and cover art before upload.`

// API is the part of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Catalog interface {
	FetchMetadata(ctx context.Context, identifier string) (model.ItemMetadata, error)
	MinPayloadBytes() int64
}

type Runner interface {
	Run(ctx context.Context, key string, groupIndex int) (workflow.Report, error)
}

type Options struct {
	AllowedUserIDs    []int64
	MaxConcurrentJobs int64
	UpdateTimeout     int
}

// Bot turns chat commands and button presses into album runs.
type Bot struct {
	api     API
	catalog Catalog
	store   session.Store
	runner  Runner
	allowed map[int64]bool
	jobs    *semaphore.Weighted
	timeout int
	wg      sync.WaitGroup
}

func New(api API, catalog Catalog, store session.Store, runner Runner, opts Options) *Bot {
	if opts.MaxConcurrentJobs < 1 {
		opts.MaxConcurrentJobs = 1
	}
	b := &Bot{
		api:     api,
		catalog: catalog,
		store:   store,
		runner:  runner,
		jobs:    semaphore.NewWeighted(opts.MaxConcurrentJobs),
		timeout: opts.UpdateTimeout,
	}
	if len(opts.AllowedUserIDs) > 0 {
		b.allowed = make(map[int64]bool, len(opts.AllowedUserIDs))
		for _, id := range opts.AllowedUserIDs {
			b.allowed[id] = true
		}
	}
	return b
}

// Run consumes updates until ctx is done, then waits for running albums.
// Each update is handled on its own goroutine so a slow catalog lookup for
// one user does not hold up the others.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.timeout
	updates := b.api.GetUpdatesChan(u)
	defer b.wg.Wait()

	log.Println("[bot] listening for updates")
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			log.Println("[bot] stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.HandleUpdate(ctx, update)
			}()
		}
	}
}

// Wait blocks until every started update handler and album run has returned.
func (b *Bot) Wait() {
	b.wg.Wait()
}

func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		cb := update.CallbackQuery
		if !b.isAllowed(cb.From.ID) {
			b.answer(cb.ID, "You are not allowed to use this bot.")
			return
		}
		b.handleCallback(ctx, cb)
	case update.Message != nil && update.Message.From != nil:
		msg := update.Message
		log.Printf("[user %d] message: %s", msg.From.ID, msg.Text)
		if !b.isAllowed(msg.From.ID) {
			b.reply(msg, "Sorry, you are not allowed to use this bot.")
			return
		}
		if msg.IsCommand() {
			b.handleCommand(ctx, msg)
			return
		}
		if link := findLink(msg.Text); link != "" {
			b.handleLink(ctx, msg, link)
			return
		}
		b.reply(msg, "Send an archive.org link, or /help.")
	}
}

func (b *Bot) isAllowed(userID int64) bool {
	return b.allowed == nil || b.allowed[userID]
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		b.reply(msg, usageText)
	case "download":
		link := strings.TrimSpace(msg.CommandArguments())
		if link == "" {
			b.reply(msg, "Usage: /download <archive.org link>")
			return
		}
		b.handleLink(ctx, msg, link)
	case "cancel":
		if n := b.store.DeleteUser(msg.From.ID); n > 0 {
			log.Printf("[user %d] cancelled %d sessions", msg.From.ID, n)
			b.reply(msg, "Cancelled. Files already posted stay in the channel.")
			return
		}
		b.reply(msg, "Nothing to cancel.")
	default:
		b.reply(msg, "Unknown command. See /help.")
	}
}

// handleLink resolves the link, lists the item's format groups and stores a
// session the buttons refer to.
func (b *Bot) handleLink(ctx context.Context, msg *tgbotapi.Message, link string) {
	userID := msg.From.ID
	identifier, err := archive.Resolve(link)
	if err != nil {
		b.reply(msg, "That link does not point to an archive.org item.")
		return
	}

	item, err := b.catalog.FetchMetadata(ctx, identifier)
	if err != nil {
		log.Printf("[user %d] fetch metadata for %s: %v", userID, identifier, err)
		var fetchErr *archive.FetchError
		if errors.As(err, &fetchErr) && fetchErr.StatusCode == http.StatusNotFound {
			b.reply(msg, fmt.Sprintf("Item %s was not found.", identifier))
			return
		}
		b.reply(msg, "Could not reach archive.org, try again later.")
		return
	}
	log.Printf("[user %d] fetched metadata for %s", userID, identifier)

	groups := archive.ClassifyFormats(item, b.catalog.MinPayloadBytes())
	if len(groups) == 0 {
		b.reply(msg, fmt.Sprintf("%s has no downloadable files.", itemName(item)))
		return
	}

	sess, err := b.store.Put(model.Session{
		UserID: userID,
		ChatID: msg.Chat.ID,
		URL:    link,
		Item:   item,
		Groups: groups,
	})
	if err != nil {
		log.Printf("[user %d] store session: %v", userID, err)
		b.reply(msg, "Something went wrong, try again.")
		return
	}

	menu := tgbotapi.NewMessage(msg.Chat.ID, menuText(item))
	menu.ReplyToMessageID = msg.MessageID
	menu.ReplyMarkup = formatKeyboard(sess.Key, groups)
	sent, err := b.api.Send(menu)
	if err != nil {
		log.Printf("[user %d] send format menu: %v", userID, err)
		b.store.Delete(sess.Key)
		return
	}
	sess.MessageID = sent.MessageID
	if _, err := b.store.Put(sess); err != nil {
		log.Printf("[user %d] store session: %v", userID, err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	userID := cb.From.ID
	parts := strings.Split(cb.Data, ":")
	log.Printf("[user %d] callback: %s", userID, cb.Data)

	switch {
	case len(parts) == 3 && parts[0] == actionFormat:
		index, err := strconv.Atoi(parts[2])
		if err != nil {
			b.answer(cb.ID, "")
			return
		}
		b.startAlbum(ctx, cb, parts[1], index)
	case len(parts) == 2 && parts[0] == actionCancel:
		n := b.store.DeleteUser(userID)
		if n == 0 {
			b.answer(cb.ID, "Nothing to cancel")
			return
		}
		b.answer(cb.ID, "Cancelled")
		if cb.Message != nil {
			b.edit(cb.Message.Chat.ID, cb.Message.MessageID, "Cancelled.")
		}
	default:
		b.answer(cb.ID, "")
	}
}

func (b *Bot) startAlbum(ctx context.Context, cb *tgbotapi.CallbackQuery, key string, index int) {
	userID := cb.From.ID
	sess, err := b.store.Get(key)
	if err != nil || sess.UserID != userID {
		b.answer(cb.ID, "Session expired")
		b.expired(cb)
		return
	}
	group, ok := sess.Group(index)
	if !ok {
		b.answer(cb.ID, "")
		return
	}

	sess, err = b.store.Start(key, group.Label)
	switch {
	case errors.Is(err, session.ErrAlreadyRunning):
		b.answer(cb.ID, "Already in progress")
		return
	case err != nil:
		b.answer(cb.ID, "Session expired")
		b.expired(cb)
		return
	}
	b.answer(cb.ID, group.Label)
	b.edit(sess.ChatID, sess.MessageID, fmt.Sprintf("Publishing %s %s (%d files)...", itemName(sess.Item), group.Label, len(group.Files)))

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[user %d] panic in album run: %v\n%s", userID, r, debug.Stack())
			}
		}()

		if !b.jobs.TryAcquire(1) {
			b.edit(sess.ChatID, sess.MessageID, "Queued, other uploads are running...")
			if err := b.jobs.Acquire(ctx, 1); err != nil {
				b.store.Delete(key)
				return
			}
		}
		defer b.jobs.Release(1)

		rep, err := b.runner.Run(ctx, key, index)
		if err != nil {
			log.Printf("[user %d] album run: %v", userID, err)
			return
		}
		log.Printf("[user %d] %s %s done: %d published, %d failed, %d skipped",
			userID, sess.Item.Identifier, rep.Label, rep.Published, rep.Failed, rep.Skipped)
	}()
}

func (b *Bot) expired(cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	b.edit(cb.Message.Chat.ID, cb.Message.MessageID, "Session expired, send the link again.")
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyToMessageID = msg.MessageID
	out.DisableWebPagePreview = true
	if _, err := b.api.Send(out); err != nil {
		log.Printf("[user %d] send reply: %v", msg.From.ID, err)
	}
}

func (b *Bot) edit(chatID int64, messageID int, text string) {
	if messageID == 0 {
		return
	}
	if _, err := b.api.Send(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		log.Printf("[bot] edit message %d: %v", messageID, err)
	}
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		log.Printf("[bot] answer callback: %v", err)
	}
}

func formatKeyboard(key string, groups []model.FormatGroup) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for i, g := range groups {
		label := fmt.Sprintf("%s (%d)", g.Label, len(g.Files))
		data := fmt.Sprintf("%s:%s:%d", actionFormat, key, i)
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, data))
		if len(row) == buttonsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Cancel", actionCancel+":"+key),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func menuText(item model.ItemMetadata) string {
	var b strings.Builder
	b.WriteString(itemName(item))
	if item.Creator != "" {
		b.WriteString("\n" + item.Creator)
	}
	if item.Date != "" {
		b.WriteString("\n" + item.Date)
	}
	b.WriteString("\n\nChoose a format:")
	return b.String()
}

func itemName(item model.ItemMetadata) string {
	if item.Title != "" {
		return item.Title
	}
	return item.Identifier
}

// findLink returns the first http(s) URL in text.
func findLink(text string) string {
	for _, field := range strings.Fields(text) {
		if strings.HasPrefix(field, "http://") || strings.HasPrefix(field, "https://") {
			return field
		}
	}
	return ""
}
