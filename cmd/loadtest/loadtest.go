// Command loadtest connects many clients to a running server, has each of
// them broadcast a batch of messages and reports how many frames arrived.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/mama165/sdk-go/logs"
	"golang.org/x/sync/errgroup"

	"github.com/johndosdos/wschat/internal/client"
	"github.com/johndosdos/wschat/internal/config"
	"github.com/johndosdos/wschat/internal/model"
	ws "github.com/johndosdos/wschat/internal/websocket"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	var cfg config.LoadTest
	if err := config.Load(&cfg); err != nil {
		return exitConfig, err
	}

	log := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	base, err := url.Parse(cfg.Server)
	if err != nil {
		return exitConfig, fmt.Errorf("invalid server address %q: %w", cfg.Server, err)
	}

	res, err := loadTest(ctx, log, client.SocketURL(base), cfg.Clients, cfg.Messages)
	if err != nil {
		return exitRuntime, err
	}

	expected := int64(cfg.Clients) * int64(cfg.Messages) * int64(cfg.Clients)
	log.Info("load test finished",
		"clients", cfg.Clients,
		"messages_per_client", cfg.Messages,
		"sent", res.sent,
		"received", res.received,
		"expected", expected,
		"duration", res.duration)

	if res.received < expected {
		return exitRuntime, fmt.Errorf("received %d of %d frames", res.received, expected)
	}
	return exitOK, nil
}

// readinessTarget is never a loadtest username. A private message to it comes
// back to the sender alone once the server has registered the session.
const readinessTarget = "loadtest-readiness-check"

type result struct {
	sent     int64
	received int64
	duration time.Duration
}

// loadTest joins every client before anyone sends, so each client should see
// clients*messages broadcasts.
func loadTest(ctx context.Context, log *slog.Logger, target string, clients, messages int) (result, error) {
	var (
		res    result
		joined sync.WaitGroup
		sent   atomic.Int64
		recv   atomic.Int64
	)
	start := time.Now()
	want := int64(clients) * int64(messages)
	ready := make(chan struct{})

	joined.Add(clients)
	g, ctx := errgroup.WithContext(ctx)
	for i := range clients {
		g.Go(func() error {
			username := fmt.Sprintf("loadtest-%d", i)

			conn, err := ws.Dial(ctx, target)
			if err != nil {
				joined.Done()
				return err
			}
			defer func() { _ = conn.Close() }()

			if err := conn.SendText(ctx, username); err != nil {
				joined.Done()
				return fmt.Errorf("%s: failed to join: %w", username, err)
			}
			if err := awaitJoin(ctx, conn); err != nil {
				joined.Done()
				return fmt.Errorf("%s: failed to join: %w", username, err)
			}
			joined.Done()

			// Reads run until this client has seen every broadcast.
			var readers errgroup.Group
			readers.Go(func() error {
				for n := int64(0); n < want; n++ {
					if _, err := conn.ReadFrame(ctx); err != nil {
						if errors.Is(err, io.EOF) {
							return nil
						}
						return fmt.Errorf("%s: read: %w", username, err)
					}
					recv.Add(1)
				}
				return nil
			})

			select {
			case <-ready:
			case <-ctx.Done():
				return ctx.Err()
			}

			for m := range messages {
				if err := conn.SendText(ctx, fmt.Sprintf("message %d from %s", m, username)); err != nil {
					return fmt.Errorf("%s: send: %w", username, err)
				}
				sent.Add(1)
			}

			if err := readers.Wait(); err != nil {
				return err
			}
			log.Debug("client done", "username", username)
			return conn.CloseWith(websocket.StatusNormalClosure, "")
		})
	}

	go func() {
		joined.Wait()
		close(ready)
	}()

	err := g.Wait()
	res.sent = sent.Load()
	res.received = recv.Load()
	res.duration = time.Since(start)
	return res, err
}

// awaitJoin returns once the server answers a private message to
// readinessTarget, which it only does for a registered session. Nobody
// broadcasts before every client has joined, so no counted frame is consumed.
func awaitJoin(ctx context.Context, conn *ws.Conn) error {
	notice := model.Render(model.System{Content: "[Error] User '" + readinessTarget + "' not found."})
	if err := conn.SendText(ctx, "/msg "+readinessTarget+" ping"); err != nil {
		return err
	}
	for {
		frame, err := conn.ReadFrame(ctx)
		if err != nil {
			return err
		}
		if frame.IsText() && string(frame.Data) == notice {
			return nil
		}
	}
}
