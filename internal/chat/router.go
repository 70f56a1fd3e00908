// Package chat routes chat traffic between connected sessions: it reads the
// username handshake, turns frames into chat events, persists them and fans
// them out through the Registry.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/johndosdos/wschat/internal/model"
)

const privatePrefix = "/msg "

const privateUsage = "[Error] Usage: /msg <user> <message>"

// Conn is a framed, full-duplex connection to one client.
type Conn interface {
	ReadFrame(ctx context.Context) (model.Frame, error)
	WriteFrame(ctx context.Context, frame model.Frame) error
	Close() error
}

type sanitizer interface {
	Sanitize(s string) string
}

// Router runs chat sessions. All state is injected at construction so tests
// can build isolated instances.
type Router struct {
	log          *slog.Logger
	registry     *Registry
	store        MessageStore
	now          func() time.Time
	sanitizer    sanitizer
	writeTimeout time.Duration
	sessions     sync.WaitGroup
}

// Option configures a Router.
type Option func(*Router)

// WithClock replaces time.Now as the source of message timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		r.now = now
	}
}

// WithSanitizer filters every message body through s before it is stored or
// delivered.
func WithSanitizer(s sanitizer) Option {
	return func(r *Router) {
		r.sanitizer = s
	}
}

// WithWriteTimeout bounds each frame write. Zero disables the bound.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Router) {
		r.writeTimeout = d
	}
}

// NewRouter returns a Router that registers sessions in registry and logs
// messages to store.
func NewRouter(log *slog.Logger, registry *Registry, store MessageStore, opts ...Option) *Router {
	r := &Router{
		log:          log,
		registry:     registry,
		store:        store,
		now:          time.Now,
		writeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the registry sessions are published in.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Drain waits for every running session to finish or for ctx to end.
func (r *Router) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Router) handle(ctx context.Context, s *session, text string) {
	timestamp := r.now().Format(model.TimestampLayout)

	if strings.HasPrefix(text, privatePrefix) {
		target, body, ok := parsePrivate(text)
		if ok {
			body, ok = r.clean(body)
		}
		if !ok {
			s.log.DebugContext(ctx, "malformed private message", "text", text)
			s.notify(model.System{Content: privateUsage})
			return
		}

		err := r.deliverPrivate(ctx, s, model.Private{From: s.username, To: target, Content: body, Timestamp: timestamp})
		r.report(ctx, s, err)
		return
	}

	content, ok := r.clean(text)
	if !ok {
		return
	}

	evt := model.Public{From: s.username, Content: content, Timestamp: timestamp}
	r.report(ctx, s, r.persist(ctx, evt))
	r.report(ctx, s, r.broadcast(evt))
}

// report logs a routing error at the level its kind deserves. None of them
// reach the client.
func (r *Router) report(ctx context.Context, s *session, err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrPersistence):
		s.log.ErrorContext(ctx, "message not stored", "error", err)
	default:
		s.log.DebugContext(ctx, "message not delivered", "error", err)
	}
}

// clean applies the sanitizer and reports whether anything is left to send.
func (r *Router) clean(content string) (string, bool) {
	if r.sanitizer != nil {
		content = r.sanitizer.Sanitize(content)
	}
	return content, strings.TrimSpace(content) != ""
}

func (r *Router) persist(ctx context.Context, evt model.ChatEvent) error {
	rec, ok := model.RecordFor(evt)
	if !ok {
		return nil
	}

	if _, err := r.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// deliverPrivate records evt only when its target is online, then hands it
// to the target alone. A persistence failure does not stop delivery.
func (r *Router) deliverPrivate(ctx context.Context, s *session, evt model.Private) error {
	outbox, ok := r.registry.Lookup(evt.To)
	if !ok {
		s.notify(model.System{Content: "[Error] User '" + evt.To + "' not found."})
		return fmt.Errorf("%w: %s", ErrTargetAbsent, evt.To)
	}

	persistErr := r.persist(ctx, evt)

	if !outbox.Push(model.Render(evt)) {
		return errors.Join(persistErr, fmt.Errorf("%w: %s", ErrDelivery, evt.To))
	}
	return persistErr
}

// broadcast pushes evt to every registered outbox. Closed outboxes are
// skipped and counted in the returned error.
func (r *Router) broadcast(evt model.Public) error {
	line := model.Render(evt)
	recipients := r.registry.Snapshot()

	dropped := 0
	for _, outbox := range recipients {
		if !outbox.Push(line) {
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("%w: %d of %d recipients", ErrDelivery, dropped, len(recipients))
	}
	return nil
}

// parsePrivate splits "/msg <target> <body>" on the first space after the
// prefix. Both parts are trimmed and must be non-empty.
func parsePrivate(text string) (target, body string, ok bool) {
	rest := strings.TrimPrefix(text, privatePrefix)
	target, body, found := strings.Cut(rest, " ")
	if !found {
		return "", "", false
	}

	target = strings.TrimSpace(target)
	body = strings.TrimSpace(body)
	if target == "" || body == "" {
		return "", "", false
	}
	return target, body, true
}
