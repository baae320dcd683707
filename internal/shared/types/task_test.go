package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want TaskStatus
	}{
		{"pending", StatusPending},
		{"In Progress", StatusInProgress},
		{"in-progress", StatusInProgress},
		{"IN_PROGRESS", StatusInProgress},
		{"done", StatusCompleted},
		{"canceled", StatusCancelled},
		{"0", StatusUnassigned},
		{"4", StatusPaused},
		{"", StatusUnknown},
		{"Escalated", TaskStatus("Escalated")},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStatus(tt.in))
		})
	}
}

func TestParsePriority(t *testing.T) {
	assert.Equal(t, PriorityNormal, ParsePriority(""))
	assert.Equal(t, PriorityUrgent, ParsePriority("Critical"))
	assert.Equal(t, PriorityLow, ParsePriority("1"))
	assert.Equal(t, Priority("P0"), ParsePriority("P0"))
}

func TestCanonicalTaskNormalize(t *testing.T) {
	task := CanonicalTask{ID: "1", ProgressPercent: 140, Status: "Escalated", Priority: "P0"}
	task.Normalize()

	assert.Equal(t, 100, task.ProgressPercent)
	assert.True(t, task.StatusFlagged)
	assert.True(t, task.PriorityFlagged)

	empty := CanonicalTask{ID: "2", ProgressPercent: -3}
	empty.Normalize()
	assert.Equal(t, 0, empty.ProgressPercent)
	assert.Equal(t, StatusUnknown, empty.Status)
	assert.False(t, empty.StatusFlagged)
	assert.Equal(t, PriorityNormal, empty.Priority)
}

func TestStatusActive(t *testing.T) {
	for _, s := range []TaskStatus{StatusUnassigned, StatusPending, StatusInProgress} {
		assert.True(t, s.Active(), s)
	}
	for _, s := range []TaskStatus{StatusCompleted, StatusPaused, StatusCancelled, StatusUnknown} {
		assert.False(t, s.Active(), s)
	}
}

func TestTaskIDUnmarshal(t *testing.T) {
	var task struct {
		A TaskID `json:"a"`
		B TaskID `json:"b"`
		C TaskID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 42, "b": "T-7", "c": null}`), &task))

	assert.Equal(t, TaskID("42"), task.A)
	assert.Equal(t, TaskID("T-7"), task.B)
	assert.Equal(t, TaskID(""), task.C)

	n, ok := task.A.Int()
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)
	_, ok = task.B.Int()
	assert.False(t, ok)

	var bad TaskID
	assert.Error(t, json.Unmarshal([]byte(`{}`), &bad))
}

func TestUserNormalize(t *testing.T) {
	u := CanonicalUser{Username: "   "}
	u.Normalize()
	assert.Equal(t, PlaceholderUsername, u.Username)

	assert.False(t, (*Credentials)(nil).Valid())
	assert.False(t, (&Credentials{Username: "a"}).Valid())
	assert.True(t, (&Credentials{Username: "a", Password: "b"}).Valid())
}

func TestTriggersHandoff(t *testing.T) {
	tests := []struct {
		name string
		doc  *MailboxDocument
		want bool
	}{
		{"nil", nil, false},
		{"raw", &MailboxDocument{ProducerFormat: FormatRoleSelection}, false},
		{"role selection", &MailboxDocument{Normalized: true, ProducerFormat: FormatRoleSelection}, true},
		{"deployment", &MailboxDocument{Normalized: true, ProducerFormat: FormatTaskDeployment}, true},
		{"sync", &MailboxDocument{Normalized: true, ProducerFormat: FormatUserDataSync}, true},
		{"legacy", &MailboxDocument{Normalized: true, ProducerFormat: FormatLegacy}, false},
		{"cache", &MailboxDocument{Normalized: true, ProducerFormat: FormatTaskDeployment, Source: SourceCache}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.doc.TriggersHandoff())
		})
	}
}
