package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync/atomic"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iamvkosarev/archive-relay-bot/internal/archive"
	"github.com/iamvkosarev/archive-relay-bot/internal/model"
	"github.com/iamvkosarev/archive-relay-bot/internal/publish"
	"github.com/iamvkosarev/archive-relay-bot/internal/service/audio"
	"github.com/iamvkosarev/archive-relay-bot/internal/session"
	"github.com/iamvkosarev/archive-relay-bot/internal/staging"
)

var (
	ErrNoGroup = errors.New("no such format group")
	ErrAborted = errors.New("album aborted")
)

// Catalog fetches item files.
type Catalog interface {
	FetchToFile(ctx context.Context, entry model.FileEntry, dest string) (*staging.Asset, error)
	FetchToMemory(ctx context.Context, entry model.FileEntry, limit int64) (*staging.Asset, error)
	MinPayloadBytes() int64
}

// Tagger embeds metadata into a staged file. It never fails: problems are
// reported through Result.Warning and the file is left as it was.
type Tagger interface {
	Embed(ctx context.Context, asset *staging.Asset, meta model.TrackMetadata, cover *staging.Asset) audio.Result
}

type Thumbnailer interface {
	Thumbnail(ctx context.Context, data []byte) ([]byte, error)
}

type Publisher interface {
	PublishAudio(ctx context.Context, asset *staging.Asset, caption string, meta model.TrackMetadata, thumb []byte) (tgbotapi.Message, error)
	PublishDocument(ctx context.Context, asset *staging.Asset, caption string, thumb []byte) (tgbotapi.Message, error)
	PublishPhoto(ctx context.Context, asset *staging.Asset, caption string) (tgbotapi.Message, error)
	PublishText(ctx context.Context, text string) (tgbotapi.Message, error)
}

// Reporter keeps the requesting user informed. Progress replaces the
// previous status line, Summary is sent once when the run ends.
type Reporter interface {
	Progress(s model.Session, text string)
	Summary(s model.Session, text string)
}

// Failure names a file that could not be published.
type Failure struct {
	File string
	Err  error
}

// Report is the outcome of one album run.
type Report struct {
	Label     string
	Total     int
	Published int
	Failed    int
	Skipped   int
	Untagged  int
	Cancelled bool
	Failures  []Failure
}

type Options struct {
	WorkDir       string
	CoverMaxBytes int64
	Thumbnailer   Thumbnailer
	Reporter      Reporter
}

// Stats are process-wide counters shown on the status page.
type Stats struct {
	Running   int64
	Albums    int64
	Published int64
	Failed    int64
}

// Runner publishes one format group of a session, track by track.
type Runner struct {
	store     session.Store
	catalog   Catalog
	tagger    Tagger
	publisher Publisher
	thumbs    Thumbnailer
	reporter  Reporter
	workDir   string
	coverMax  int64

	running   atomic.Int64
	albums    atomic.Int64
	published atomic.Int64
	failed    atomic.Int64
}

func New(store session.Store, catalog Catalog, tagger Tagger, publisher Publisher, opts Options) *Runner {
	r := &Runner{
		store:     store,
		catalog:   catalog,
		tagger:    tagger,
		publisher: publisher,
		thumbs:    opts.Thumbnailer,
		reporter:  opts.Reporter,
		workDir:   opts.WorkDir,
		coverMax:  opts.CoverMaxBytes,
	}
	if r.reporter == nil {
		r.reporter = logReporter{}
	}
	return r
}

func (r *Runner) Stats() Stats {
	return Stats{
		Running:   r.running.Load(),
		Albums:    r.albums.Load(),
		Published: r.published.Load(),
		Failed:    r.failed.Load(),
	}
}

// Run publishes group groupIndex of the session stored under key.
//
// Tracks are processed strictly one after another. A file-level failure is
// recorded and the loop moves on. The session is looked up again before each
// track; once it is gone the run stops and the remaining tracks are skipped.
// The workspace is removed and the session deleted on every exit path.
func (r *Runner) Run(ctx context.Context, key string, groupIndex int) (rep Report, err error) {
	sess, err := r.store.Get(key)
	if err != nil {
		return rep, err
	}
	group, ok := sess.Group(groupIndex)
	if !ok {
		return rep, fmt.Errorf("%w: %d", ErrNoGroup, groupIndex)
	}
	rep.Label = group.Label
	rep.Total = len(group.Files)
	prefix := fmt.Sprintf("[user %d]", sess.UserID)

	r.running.Add(1)
	defer r.running.Add(-1)
	defer r.store.Delete(key)

	ws, err := staging.NewWorkspace(r.workDir, fmt.Sprintf("u%d-%s", sess.UserID, group.Label))
	if err != nil {
		return rep, err
	}
	defer func() {
		if cerr := ws.Cleanup(); cerr != nil {
			log.Printf("%s remove workspace %s: %v", prefix, ws.Dir(), cerr)
		}
	}()
	defer func() {
		if p := recover(); p != nil {
			log.Printf("%s panic while publishing %s: %v\n%s", prefix, sess.Item.Identifier, p, debug.Stack())
			err = fmt.Errorf("%w: %v", ErrAborted, p)
			r.reporter.Summary(sess, fmt.Sprintf("Publishing %s failed unexpectedly.", albumName(sess.Item)))
		}
	}()

	log.Printf("%s publishing %s %s (%d files)", prefix, sess.Item.Identifier, group.Label, rep.Total)
	r.albums.Add(1)

	cover, thumb := r.prepareCover(ctx, prefix, sess.Item)
	r.postIntro(ctx, prefix, sess.Item, group, cover)

	for i, file := range group.Files {
		if _, serr := r.store.Get(key); serr != nil || ctx.Err() != nil {
			rep.Cancelled = true
			rep.Skipped = rep.Total - i
			log.Printf("%s cancelled, %d of %d files skipped", prefix, rep.Skipped, rep.Total)
			break
		}
		r.reporter.Progress(sess, fmt.Sprintf("%d/%d uploading %s", i+1, rep.Total, file.BaseName()))

		tagged, ferr := r.processTrack(ctx, ws, sess.Item, group.Label, file, cover, thumb)
		if ferr != nil {
			log.Printf("%s %s failed: %v", prefix, file.Name, ferr)
			rep.Failed++
			rep.Failures = append(rep.Failures, Failure{File: file.Name, Err: ferr})
			r.failed.Add(1)
			continue
		}
		if !tagged && archive.IsAudioLabel(group.Label) {
			rep.Untagged++
		}
		rep.Published++
		r.published.Add(1)
	}

	r.reporter.Summary(sess, rep.Summary(albumName(sess.Item)))
	return rep, nil
}

// prepareCover fetches the item's cover into memory and derives the upload
// thumbnail. Both results are nil when the item has no usable cover.
func (r *Runner) prepareCover(ctx context.Context, prefix string, item model.ItemMetadata) (*staging.Asset, []byte) {
	entry, err := archive.LocateCoverArt(item, r.catalog.MinPayloadBytes())
	if err != nil {
		log.Printf("%s no cover art for %s", prefix, item.Identifier)
		return nil, nil
	}
	cover, err := r.catalog.FetchToMemory(ctx, entry, r.coverMax)
	if err != nil {
		log.Printf("%s cover %s unavailable: %v", prefix, entry.Name, err)
		return nil, nil
	}
	if r.thumbs == nil {
		return cover, nil
	}
	data, err := cover.Bytes()
	if err != nil {
		return cover, nil
	}
	thumb, err := r.thumbs.Thumbnail(ctx, data)
	if err != nil {
		log.Printf("%s thumbnail of %s: %v", prefix, entry.Name, err)
		return cover, nil
	}
	return cover, thumb
}

// postIntro announces the album with the cover photo, or with a text message
// when there is no cover or the photo is rejected.
func (r *Runner) postIntro(ctx context.Context, prefix string, item model.ItemMetadata, group model.FormatGroup, cover *staging.Asset) {
	caption := publish.AlbumCaption(item, group)
	if cover != nil {
		_, err := r.publisher.PublishPhoto(ctx, cover, caption)
		if err == nil {
			return
		}
		log.Printf("%s album photo: %v", prefix, err)
	}
	if _, err := r.publisher.PublishText(ctx, caption); err != nil {
		log.Printf("%s album intro: %v", prefix, err)
	}
}

// processTrack runs fetch, tag and publish for one file. It reports whether
// the published file carries the new tags.
func (r *Runner) processTrack(ctx context.Context, ws *staging.Workspace, item model.ItemMetadata, label string, file model.FileEntry, cover *staging.Asset, thumb []byte) (bool, error) {
	if file.Identifier == "" {
		file.Identifier = item.Identifier
	}
	asset, err := r.catalog.FetchToFile(ctx, file, ws.Path(file.Name))
	if err != nil {
		return false, err
	}
	defer asset.Discard()

	meta := model.NewTrackMetadata(item, file)
	size, _ := asset.Size()
	caption := publish.TrackCaption(meta, label, size)

	if !archive.IsAudioLabel(label) {
		_, err = r.publisher.PublishDocument(ctx, asset, caption, thumb)
		return false, err
	}

	res := r.tagger.Embed(ctx, asset, meta, cover)
	if res.Warning != nil {
		log.Printf("tagger: %s sent untagged: %v", file.Name, res.Warning)
	}
	_, err = r.publisher.PublishAudio(ctx, asset, caption, meta, thumb)
	return res.Tagged, err
}

// Summary renders the report as a short plain-text message.
func (rep Report) Summary(album string) string {
	var b strings.Builder
	if rep.Cancelled {
		fmt.Fprintf(&b, "Cancelled %s %s: %d of %d published, %d skipped.", album, rep.Label, rep.Published, rep.Total, rep.Skipped)
	} else {
		fmt.Fprintf(&b, "Finished %s %s: %d of %d published.", album, rep.Label, rep.Published, rep.Total)
	}
	if rep.Untagged > 0 {
		fmt.Fprintf(&b, " %d sent without new tags.", rep.Untagged)
	}
	for _, f := range rep.Failures {
		fmt.Fprintf(&b, "\nFailed: %s (%s)", f.File, describe(f.Err))
	}
	return b.String()
}

// describe turns an error into a short reason for the user.
func describe(err error) string {
	var fetchErr *archive.FetchError
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, publish.ErrPermissionDenied):
		return "no permission to post in the channel"
	case errors.Is(err, publish.ErrTooLarge):
		return "file too large for upload"
	case errors.Is(err, publish.ErrRateLimited):
		return "rate limited"
	case errors.As(err, &fetchErr) && fetchErr.StatusCode != 0:
		return fmt.Sprintf("download failed with HTTP %d", fetchErr.StatusCode)
	case errors.As(err, &fetchErr):
		return "download failed"
	}
	return "upload failed"
}

func albumName(item model.ItemMetadata) string {
	if item.Title != "" {
		return item.Title
	}
	return item.Identifier
}

type logReporter struct{}

func (logReporter) Progress(s model.Session, text string) {
	log.Printf("[user %d] %s", s.UserID, text)
}

func (logReporter) Summary(s model.Session, text string) {
	log.Printf("[user %d] %s", s.UserID, text)
}
