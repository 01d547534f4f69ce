package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/iamvkosarev/archive-relay-bot/internal/archive"
	"github.com/iamvkosarev/archive-relay-bot/internal/config"
)

func newFormatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "formats <url>",
		Short: "List the format groups and cover art of an archive.org item.",
		Args:  cobra.ExactArgs(1),
		RunE:  runFormats,
	}
}

func runFormats(cmd *cobra.Command, args []string) error {
	envFile, _ := cmd.Flags().GetString("env")
	cfg, err := config.LoadArchive(envFile)
	if err != nil {
		return err
	}
	identifier, err := archive.Resolve(args[0])
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	client := archive.NewClient(archive.Options{
		BaseURL:           cfg.BaseURL,
		UserAgent:         cfg.UserAgent,
		Timeout:           cfg.RequestTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		MinPayloadBytes:   cfg.MinPayloadBytes,
	})
	item, err := client.FetchMetadata(cmd.Context(), identifier)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	title := item.Title
	if title == "" {
		title = item.Identifier
	}
	colorTitle.Fprintln(out, title)
	if item.Creator != "" || item.Date != "" {
		colorMuted.Fprintf(out, "%s %s\n", item.Creator, item.Date)
	}

	groups := archive.ClassifyFormats(item, client.MinPayloadBytes())
	if len(groups) == 0 {
		colorWarning.Fprintln(out, "no downloadable files")
	}
	for _, g := range groups {
		colorLabel.Fprintf(out, "  %-8s", g.Label)
		fmt.Fprintf(out, " %4d files  %s\n", len(g.Files), humanize.Bytes(uint64(g.TotalSize())))
	}

	if cover, err := archive.LocateCoverArt(item, client.MinPayloadBytes()); err == nil {
		fmt.Fprintf(out, "cover: %s\n", cover.Name)
	} else {
		colorMuted.Fprintln(out, "cover: none")
	}
	return nil
}
