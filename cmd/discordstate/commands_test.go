package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/small-frappuccino/discordstate/pkg/app"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if strings.TrimSpace(out.String()) != app.Version {
		t.Fatalf("expected %s, got %q", app.Version, out.String())
	}
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"run", "replay", "ipc", "version"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("expected %s subcommand, got %v", name, err)
		}
	}
}
