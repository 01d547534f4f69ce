package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/iamvkosarev/archive-relay-bot/internal/model"
	"github.com/iamvkosarev/archive-relay-bot/internal/service/audio"
	"github.com/iamvkosarev/archive-relay-bot/internal/staging"
)

func newTagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag <audio file>",
		Short: "Write tags and cover art into a local audio file, in place.",
		Long: `Write tags and cover art into a local audio file, in place, the same way
published files are tagged. Title and track number default to what the file
name says. The tags are read back and printed afterwards.`,
		Args: cobra.ExactArgs(1),
		RunE: runTag,
	}
	cmd.Flags().String("cover", "", "JPEG or PNG image to embed as front cover")
	cmd.Flags().String("title", "", "track title")
	cmd.Flags().String("artist", "", "artist")
	cmd.Flags().String("album", "", "album")
	cmd.Flags().String("date", "", "release date, e.g. 1977-05-08")
	cmd.Flags().Int("track", 0, "track number")
	return cmd
}

func runTag(cmd *cobra.Command, args []string) error {
	path := args[0]
	coverPath, _ := cmd.Flags().GetString("cover")
	title, _ := cmd.Flags().GetString("title")
	artist, _ := cmd.Flags().GetString("artist")
	album, _ := cmd.Flags().GetString("album")
	date, _ := cmd.Flags().GetString("date")
	track, _ := cmd.Flags().GetInt("track")

	tagger := audio.NewTagger()
	if !tagger.Supports(path) {
		return fmt.Errorf("%s: %w", path, audio.ErrUnsupportedContainer)
	}

	entry := model.FileEntry{Name: filepath.Base(path), Title: title}
	if track > 0 {
		entry.Track = strconv.Itoa(track)
	}
	meta := model.NewTrackMetadata(model.ItemMetadata{Title: album, Creator: artist, Date: date}, entry)

	asset := staging.NewFileAsset(filepath.Base(path), path)
	var cover *staging.Asset
	if coverPath != "" {
		cover = staging.NewFileAsset(filepath.Base(coverPath), coverPath)
	}

	res := tagger.Embed(cmd.Context(), asset, meta, cover)
	out := cmd.OutOrStdout()
	if res.Warning != nil {
		return res.Warning
	}
	colorLabel.Fprintf(out, "tagged %s (%s)\n", path, res.Container)
	if res.PictureSkipped {
		colorWarning.Fprintf(out, "%s cannot carry cover art, skipped\n", res.Container)
	}

	got, pic, err := tagger.ReadTags(asset)
	if err != nil {
		return fmt.Errorf("read back: %w", err)
	}
	fmt.Fprintf(out, "  title:  %s\n  artist: %s\n  album:  %s\n  date:   %s\n  track:  %d\n",
		got.Title, got.Artist, got.Album, got.Date, got.TrackNumber)
	if pic != nil {
		fmt.Fprintf(out, "  cover:  %s, %s\n", pic.MIME, humanize.Bytes(uint64(len(pic.Data))))
	}
	if d, err := tagger.Duration(asset); err == nil {
		fmt.Fprintf(out, "  length: %s\n", d.Round(time.Second))
	}
	return nil
}
