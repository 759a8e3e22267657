package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/small-frappuccino/discordstate/pkg/app"
	"github.com/small-frappuccino/discordstate/pkg/state"
	"github.com/small-frappuccino/discordstate/pkg/util"
)

var (
	configPath  string
	journalPath string
	pipe        int
	logToFile   bool

	rootCmd = &cobra.Command{
		Use:           "discordstate",
		Short:         "Keep an in-memory replica of chat platform state in sync with its event stream",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Consume events from the configured gateway relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := util.InterruptContext(cmd.Context())
			defer stop()
			return app.Run(ctx, options())
		},
	}

	replayCmd = &cobra.Command{
		Use:   "replay",
		Short: "Rebuild the cache from a recorded journal and print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := util.InterruptContext(cmd.Context())
			defer stop()
			c, err := app.Replay(ctx, options())
			if err != nil {
				return err
			}
			var sum state.Summary
			c.Store.View(func() { sum = c.Store.Summary() })
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sum)
		},
	}

	ipcCmd = &cobra.Command{
		Use:   "ipc",
		Short: "Consume events from the local desktop client over IPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := util.InterruptContext(cmd.Context())
			defer stop()
			return app.RunIPC(ctx, options())
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), app.Version)
		},
	}
)

func options() app.Options {
	return app.Options{
		ConfigPath:  configPath,
		JournalPath: journalPath,
		Pipe:        pipe,
		LogToFile:   logToFile,
	}
}

func defaultConfigPath() string {
	path := util.DefaultConfigFile()
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "config file (YAML, or JSON by extension)")
	rootCmd.PersistentFlags().StringVar(&journalPath, "journal", "", "event journal path, overriding journal_path")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log-to-file", false, "also log to the platform log directory when log.dir is unset")
	ipcCmd.Flags().IntVar(&pipe, "pipe", -1, "discord-ipc pipe number; -1 scans all")

	rootCmd.AddCommand(runCmd, replayCmd, ipcCmd, versionCmd)
}
