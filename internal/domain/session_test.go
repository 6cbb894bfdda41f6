package domain

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionAppendEvictsOldestFirst(t *testing.T) {
	t.Parallel()

	s := NewSession("s1", time.Now())
	for i := 0; i < MaxHistory+25; i++ {
		s.Append(Message{Role: RoleUser, Text: strconv.Itoa(i), TurnIndex: i})
		require.LessOrEqual(t, len(s.History), MaxHistory)
	}

	require.Len(t, s.History, MaxHistory)
	assert.Equal(t, "25", s.History[0].Text)
	assert.Equal(t, strconv.Itoa(MaxHistory+24), s.History[MaxHistory-1].Text)
	for i := 1; i < len(s.History); i++ {
		assert.Less(t, s.History[i-1].TurnIndex, s.History[i].TurnIndex)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	t.Parallel()

	s := NewSession("s1", time.Now())
	s.Slots[SlotRole] = "deck"
	s.Append(Message{Role: RoleUser, Text: "deck", TurnIndex: 1})

	snap := s.Snapshot()
	s.Slots[SlotRole] = "engine"
	s.Append(Message{Role: RoleAssistant, Text: "next?", TurnIndex: 1})

	assert.Equal(t, "deck", snap.Slots[SlotRole])
	assert.Len(t, snap.History, 1)
}

func TestSnapshotTail(t *testing.T) {
	t.Parallel()

	s := NewSession("s1", time.Now())
	for i := 1; i <= 4; i++ {
		s.Append(Message{Role: RoleUser, Text: strconv.Itoa(i), TurnIndex: i})
	}
	snap := s.Snapshot()

	assert.Nil(t, snap.Tail(0))
	assert.Len(t, snap.Tail(10), 4)
	tail := snap.Tail(2)
	require.Len(t, tail, 2)
	assert.Equal(t, "3", tail[0].Text)
	assert.Equal(t, "4", tail[1].Text)
}

func TestUnusedResult(t *testing.T) {
	t.Parallel()

	r := UnusedResult("stub", true)
	assert.True(t, r.OK)
	assert.False(t, r.Used)
	assert.True(t, r.OnDevice)
	assert.Equal(t, "stub", r.ModelName)
	assert.Empty(t, r.Error)
}
