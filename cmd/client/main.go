// Command client is a terminal chat client.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mama165/sdk-go/logs"

	"github.com/johndosdos/wschat/internal/client"
	"github.com/johndosdos/wschat/internal/config"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	var cfg config.Client
	if err := config.Load(&cfg); err != nil {
		return exitConfig, err
	}

	log := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The prompt and the chat share stdin, so one reader serves both.
	in := bufio.NewReader(os.Stdin)

	username := cfg.Username
	if username == "" {
		fmt.Print("Enter your username: ")
		line, err := in.ReadString('\n')
		if err != nil {
			return exitRuntime, fmt.Errorf("failed to read username: %w", err)
		}
		username = strings.TrimSpace(line)
	}

	c, err := client.Connect(ctx, log, cfg.Server, username, os.Stdout)
	if err != nil {
		return exitRuntime, err
	}

	fmt.Printf(">>> Connected to %s as %s (Ctrl+C to quit)\n", cfg.Server, username)

	if err := c.Run(ctx, in); err != nil {
		return exitRuntime, err
	}
	return exitOK, nil
}
