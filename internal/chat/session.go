package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/johndosdos/wschat/internal/model"
)

type session struct {
	id       uuid.UUID
	username string
	outbox   *Outbox
	log      *slog.Logger
}

// notify queues a server notice for this session only.
func (s *session) notify(evt model.System) {
	s.outbox.Push(model.Render(evt))
}

// Serve runs one connection until the client goes away. The first text frame
// is the username; every later text frame is routed as a chat message.
//
// Serve returns nil when the peer closes normally or ctx ends, an error
// wrapping ErrProtocol when the handshake is invalid, and the transport error
// otherwise. When ctx ends the session stops accepting frames, flushes what is
// already queued and then closes conn. Otherwise it closes conn only to
// unblock a failed writer.
func (r *Router) Serve(ctx context.Context, conn Conn) error {
	r.sessions.Add(1)
	defer r.sessions.Done()

	username, err := awaitUsername(ctx, conn)
	if err != nil {
		r.log.DebugContext(ctx, "handshake failed", "error", err)
		return err
	}

	s := &session{
		id:       uuid.New(),
		username: username,
		outbox:   NewOutbox(),
	}
	s.log = r.log.With("session_id", s.id.String(), "username", username)

	r.registry.Register(username, s.outbox)
	s.log.InfoContext(ctx, "user joined", "online", r.registry.Len())

	// Reads and writes outlive ctx: canceling a read would drop the
	// connection with frames still queued.
	sessionCtx := context.WithoutCancel(ctx)

	stop := context.AfterFunc(ctx, func() {
		r.registry.Release(username, s.outbox)
		s.outbox.Close()
	})
	defer stop()

	var g errgroup.Group
	g.Go(func() error {
		err := r.writeLoop(sessionCtx, s, conn)
		if ctx.Err() != nil {
			// Drained after shutdown: wake the reader.
			_ = conn.Close()
		}
		return err
	})

	readErr := r.readLoop(sessionCtx, s, conn)

	r.registry.Release(username, s.outbox)
	s.outbox.Close()
	writeErr := g.Wait()

	s.log.InfoContext(sessionCtx, "user left", "online", r.registry.Len())

	if ctx.Err() != nil {
		return writeErr
	}
	if readErr != nil {
		return readErr
	}
	return writeErr
}

func awaitUsername(ctx context.Context, conn Conn) (string, error) {
	frame, err := conn.ReadFrame(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: reading username: %w", ErrProtocol, err)
	}
	if !frame.IsText() {
		return "", fmt.Errorf("%w: username must be a text frame", ErrProtocol)
	}
	if len(frame.Data) == 0 {
		return "", fmt.Errorf("%w: empty username", ErrProtocol)
	}
	return string(frame.Data), nil
}

func (r *Router) readLoop(ctx context.Context, s *session, conn Conn) error {
	for {
		frame, err := conn.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading frame: %w", err)
		}

		if !frame.IsText() {
			continue
		}

		r.handle(ctx, s, string(frame.Data))
	}
}

func (r *Router) writeLoop(ctx context.Context, s *session, conn Conn) error {
	for {
		line, ok := s.outbox.Next(ctx)
		if !ok {
			return nil
		}

		if err := r.write(ctx, conn, line); err != nil {
			s.log.WarnContext(ctx, "failed to write frame", "error", err)
			// Stop accepting frames and wake the reader so teardown can run.
			s.outbox.Close()
			_ = conn.Close()
			return fmt.Errorf("writing frame: %w", err)
		}
	}
}

func (r *Router) write(ctx context.Context, conn Conn, line string) error {
	if r.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.writeTimeout)
		defer cancel()
	}
	return conn.WriteFrame(ctx, model.TextFrame(line))
}
