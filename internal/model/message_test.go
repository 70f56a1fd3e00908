package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		evt  ChatEvent
		want string
	}{
		{"public", Public{From: "alice", Content: "hello", Timestamp: "2024-01-02 03:04:05"}, "[2024-01-02 03:04:05][alice]: hello"},
		{"private", Private{From: "alice", To: "bob", Content: "hi", Timestamp: "2024-01-02 03:04:05"}, "[2024-01-02 03:04:05][Private from alice to bob]: hi"},
		{"system", System{Content: "[Error] User 'dave' not found."}, "[Error] User 'dave' not found."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.evt))
		})
	}
}

func TestRecordFor(t *testing.T) {
	t.Run("public", func(t *testing.T) {
		rec, ok := RecordFor(Public{From: "alice", Content: "hello", Timestamp: "ts"})
		require.True(t, ok)
		assert.Equal(t, "alice", rec.FromUser)
		assert.Nil(t, rec.ToUser)
		assert.False(t, rec.IsPrivate)
	})

	t.Run("private", func(t *testing.T) {
		rec, ok := RecordFor(Private{From: "alice", To: "bob", Content: "hi", Timestamp: "ts"})
		require.True(t, ok)
		require.NotNil(t, rec.ToUser)
		assert.Equal(t, "bob", *rec.ToUser)
		assert.True(t, rec.IsPrivate)
	})

	t.Run("system_is_not_recorded", func(t *testing.T) {
		_, ok := RecordFor(System{Content: "notice"})
		assert.False(t, ok)
	})
}

func TestRenderRecord(t *testing.T) {
	bob := "bob"
	assert.Equal(t, "[ts][alice]: hello",
		RenderRecord(MessageRecord{FromUser: "alice", Content: "hello", Timestamp: "ts"}))
	assert.Equal(t, "[ts][Private from alice to bob]: hi",
		RenderRecord(MessageRecord{FromUser: "alice", ToUser: &bob, Content: "hi", Timestamp: "ts", IsPrivate: true}))
	assert.Equal(t, "[ts][Private from alice to ?]: hi",
		RenderRecord(MessageRecord{FromUser: "alice", Content: "hi", Timestamp: "ts", IsPrivate: true}))
}
