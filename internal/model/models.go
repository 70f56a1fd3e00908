package model

import "fmt"

// MessageRecord is a persisted Public or Private message.
type MessageRecord struct {
	ID        int64
	FromUser  string
	ToUser    *string
	Content   string
	Timestamp string
	IsPrivate bool
}

// RecordFor returns the row to store for evt. System notices have no record.
func RecordFor(evt ChatEvent) (MessageRecord, bool) {
	switch e := evt.(type) {
	case Public:
		return MessageRecord{
			FromUser:  e.From,
			Content:   e.Content,
			Timestamp: e.Timestamp,
		}, true
	case Private:
		to := e.To
		return MessageRecord{
			FromUser:  e.From,
			ToUser:    &to,
			Content:   e.Content,
			Timestamp: e.Timestamp,
			IsPrivate: true,
		}, true
	case System:
		return MessageRecord{}, false
	default:
		panic(fmt.Sprintf("model: unhandled chat event %T", evt))
	}
}

// RenderRecord formats a stored row the same way the live message was sent.
// A private row without a recipient shows "?" in its place.
func RenderRecord(rec MessageRecord) string {
	if !rec.IsPrivate {
		return Render(Public{From: rec.FromUser, Content: rec.Content, Timestamp: rec.Timestamp})
	}

	to := "?"
	if rec.ToUser != nil {
		to = *rec.ToUser
	}
	return Render(Private{From: rec.FromUser, To: to, Content: rec.Content, Timestamp: rec.Timestamp})
}
