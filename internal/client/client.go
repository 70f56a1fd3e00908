// Package client is the terminal chat client: it joins the server over a
// websocket, prints what arrives and queries the message log over HTTP.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/gookit/color"
	"golang.org/x/sync/errgroup"

	"github.com/johndosdos/wschat/internal/handler"
	ws "github.com/johndosdos/wschat/internal/websocket"
)

const (
	historyCommand = "/history"
	searchCommand  = "/search "
	queryLimit     = 10
)

// Client is one connected user.
type Client struct {
	log      *slog.Logger
	base     *url.URL
	http     *http.Client
	conn     *ws.Conn
	username string
	out      io.Writer
	left     atomic.Bool
}

// Connect joins server (an http:// or https:// base URL) as username. Lines
// received from the server and query results are written to out.
func Connect(ctx context.Context, log *slog.Logger, server, username string, out io.Writer) (*Client, error) {
	if username == "" {
		return nil, errors.New("username must not be empty")
	}

	base, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("invalid server address %q: %w", server, err)
	}

	conn, err := ws.Dial(ctx, SocketURL(base))
	if err != nil {
		return nil, err
	}
	if err := conn.SendText(ctx, username); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to send username: %w", err)
	}

	return &Client{
		log:      log,
		base:     base,
		http:     &http.Client{Timeout: 10 * time.Second},
		conn:     conn,
		username: username,
		out:      out,
	}, nil
}

// SocketURL turns an http(s) base URL into the ws(s) URL of its chat endpoint.
func SocketURL(base *url.URL) string {
	u := *base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}

// Run prints incoming lines while handling each line read from in. It
// returns when in is exhausted, the server goes away or ctx ends.
func (c *Client) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The scanner cannot be interrupted, so it lives outside the group.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return c.Receive(ctx)
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return c.Leave()
				}
				if err := c.Handle(ctx, line); err != nil {
					return err
				}
			}
		}
	})

	err := g.Wait()
	_ = c.conn.Close()
	return err
}

// Receive prints every line from the server until the connection ends.
func (c *Client) Receive(ctx context.Context) error {
	for {
		frame, err := c.conn.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil || c.left.Load() {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}
		if !frame.IsText() {
			continue
		}
		_, _ = fmt.Fprintln(c.out, Highlight(string(frame.Data), c.username))
	}
}

// Handle runs a local command or sends line to the chat.
func (c *Client) Handle(ctx context.Context, line string) error {
	switch {
	case strings.HasPrefix(line, historyCommand):
		views, err := c.History(ctx, queryLimit)
		if err != nil {
			c.log.WarnContext(ctx, "history query failed", "error", err)
			return nil
		}
		c.print("--- Message History ---", views)
		return nil
	case strings.HasPrefix(line, searchCommand):
		keyword := strings.TrimSpace(strings.TrimPrefix(line, searchCommand))
		views, err := c.Search(ctx, keyword, queryLimit)
		if err != nil {
			c.log.WarnContext(ctx, "search query failed", "error", err, "keyword", keyword)
			return nil
		}
		c.print(fmt.Sprintf("--- Search Results for '%s': ---", keyword), views)
		return nil
	default:
		if err := c.conn.SendText(ctx, line); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
		return nil
	}
}

func (c *Client) print(header string, views []handler.MessageView) {
	_, _ = fmt.Fprintln(c.out, header)
	for _, v := range views {
		_, _ = fmt.Fprintln(c.out, v.Line)
	}
}

// History fetches the latest limit messages, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]handler.MessageView, error) {
	return c.query(ctx, "/history", url.Values{"limit": {strconv.Itoa(limit)}})
}

// Search fetches messages containing keyword, newest first.
func (c *Client) Search(ctx context.Context, keyword string, limit int) ([]handler.MessageView, error) {
	return c.query(ctx, "/search", url.Values{"q": {keyword}, "limit": {strconv.Itoa(limit)}})
}

func (c *Client) query(ctx context.Context, path string, params url.Values) ([]handler.MessageView, error) {
	u := c.base.JoinPath(path)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send GET request to [%s]: %w", u, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("GET %s: %s: %s", path, res.Status, strings.TrimSpace(string(body)))
	}

	var views []handler.MessageView
	if err := json.NewDecoder(res.Body).Decode(&views); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return views, nil
}

// Leave closes the connection with a normal close.
func (c *Client) Leave() error {
	c.left.Store(true)
	return c.conn.CloseWith(websocket.StatusNormalClosure, "")
}

// Highlight colours lines that mention username green and the rest cyan.
func Highlight(line, username string) string {
	if strings.Contains(line, username) {
		return color.Green.Sprint(line)
	}
	return color.Cyan.Sprint(line)
}
