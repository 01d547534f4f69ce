package main

import (
	"github.com/spf13/cobra"

	"github.com/iamvkosarev/archive-relay-bot/internal/app"
	"github.com/iamvkosarev/archive-relay-bot/internal/config"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot and the status page.",
		Long:  "Run the bot and the status page until interrupted.\n\n" + config.Usage(),
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	envFile, _ := cmd.Flags().GetString("env")
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	application, err := app.New(cfg)
	if err != nil {
		return err
	}
	return application.Run()
}
