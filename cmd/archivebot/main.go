package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "archivebot",
		Short: "Relay archive.org items to a Telegram channel, tagged and with cover art.",
		Long: `archivebot runs a Telegram bot that takes archive.org links, lets the
user pick a format and publishes every file of that format to a channel.
Without a subcommand it runs the bot, like "archivebot serve".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().String("env", ".env", "environment file loaded before reading the configuration")
	root.AddCommand(newServeCommand(), newFormatsCommand(), newTagCommand())
	return root
}

func main() {
	initColors()
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		colorError.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
