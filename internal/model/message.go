// Package model defines data structure.
package model

import "fmt"

// TimestampLayout is the wall-clock format stamped on every chat message.
const TimestampLayout = "2006-01-02 15:04:05"

// ChatEvent is one of Public, Private or System. The set is closed: the
// unexported marker keeps other packages from adding kinds, so every type
// switch over ChatEvent in this module lists all three.
type ChatEvent interface {
	chatEvent()
}

// Public is a message broadcast to every connected user.
type Public struct {
	From      string
	Content   string
	Timestamp string
}

// Private is a direct message from one user to another.
type Private struct {
	From      string
	To        string
	Content   string
	Timestamp string
}

// System is a notice synthesized by the server. It is never persisted.
type System struct {
	Content string
}

func (Public) chatEvent()  {}
func (Private) chatEvent() {}
func (System) chatEvent()  {}

// Render returns the text frame sent to clients for evt.
func Render(evt ChatEvent) string {
	switch e := evt.(type) {
	case Public:
		return fmt.Sprintf("[%s][%s]: %s", e.Timestamp, e.From, e.Content)
	case Private:
		return fmt.Sprintf("[%s][Private from %s to %s]: %s", e.Timestamp, e.From, e.To, e.Content)
	case System:
		return e.Content
	default:
		panic(fmt.Sprintf("model: unhandled chat event %T", evt))
	}
}
