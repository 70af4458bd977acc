package undo

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuse-dev/kuse/internal/errors"
)

func move(id string) Action {
	return MoveReverse{Header: Header{ID: id}, FromPath: "/b/" + id, ToPath: "/a/" + id}
}

func ids(actions []Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = HeaderOf(a).ID
	}
	return out
}

func TestRing_PushPopOrder(t *testing.T) {
	r := newRing(3)
	for _, id := range []string{"1", "2", "3"} {
		_, evicted := r.push(move(id))
		require.False(t, evicted)
	}

	old, evicted := r.push(move("4"))
	require.True(t, evicted)
	require.Equal(t, "1", HeaderOf(old).ID)
	require.Equal(t, []string{"2", "3", "4"}, ids(r.items()))

	a, ok := r.pop()
	require.True(t, ok)
	require.Equal(t, "4", HeaderOf(a).ID)

	r.push(move("5"))
	require.Equal(t, []string{"2", "3", "5"}, ids(r.items()))

	for _, want := range []string{"5", "3", "2"} {
		a, ok := r.pop()
		require.True(t, ok)
		require.Equal(t, want, HeaderOf(a).ID)
	}
	_, ok = r.pop()
	require.False(t, ok)
}

func TestLog_EvictsOldestAtCapacity(t *testing.T) {
	l := NewLog(10)

	for i := 1; i <= 10; i++ {
		require.Nil(t, l.Record("c", move(fmt.Sprint(i))))
	}
	evicted := l.Record("c", move("11"))
	require.NotNil(t, evicted)
	require.Equal(t, "1", HeaderOf(evicted).ID, "the oldest record must be evicted, not the newest")
	require.Equal(t, 10, l.Len("c"))

	entries, err := l.Entries("c")
	require.NoError(t, err)
	require.Equal(t, "2", HeaderOf(entries[0]).ID)
	require.Equal(t, "11", HeaderOf(entries[9]).ID)
}

func TestLog_PopLatest_DistinguishesUnknownFromEmpty(t *testing.T) {
	l := NewLog(10)

	_, err := l.PopLatest("unknown")
	require.True(t, errors.Is(err, errors.ErrNoHistory), "got %v", err)

	l.Record("known", move("1"))
	a, err := l.PopLatest("known")
	require.NoError(t, err)
	require.Equal(t, "1", HeaderOf(a).ID)

	_, err = l.PopLatest("known")
	require.True(t, errors.Is(err, errors.ErrNothingToUndo), "got %v", err)
}

func TestLog_PeekDoesNotRemove(t *testing.T) {
	l := NewLog(10)
	l.Record("c", move("1"))
	l.Record("c", move("2"))

	a, err := l.PeekLatest("c")
	require.NoError(t, err)
	require.Equal(t, "2", HeaderOf(a).ID)
	require.Equal(t, 2, l.Len("c"))

	_, err = l.PeekLatest("other")
	require.True(t, errors.Is(err, errors.ErrNoHistory))
}

func TestLog_ConversationsAreIsolated(t *testing.T) {
	l := NewLog(2)
	l.Record("a", move("a1"))
	l.Record("b", move("b1"))
	l.Record("b", move("b2"))
	l.Record("b", move("b3"))

	require.Equal(t, 1, l.Len("a"))
	require.Equal(t, 2, l.Len("b"))
	require.Equal(t, []ConversationSummary{{ID: "a", Depth: 1}, {ID: "b", Depth: 2}}, l.Conversations())
}

func TestLog_Clear(t *testing.T) {
	l := NewLog(10)
	l.Record("c", move("1"))
	l.Record("c", move("2"))

	require.Equal(t, 2, l.Clear("c"))
	require.Equal(t, 0, l.Clear("c"), "clear is idempotent")

	_, err := l.PopLatest("c")
	require.True(t, errors.Is(err, errors.ErrNoHistory))
}

func TestLog_CapacityFloor(t *testing.T) {
	l := NewLog(0)
	require.Equal(t, 1, l.Capacity())
	l.Record("c", move("1"))
	evicted := l.Record("c", move("2"))
	require.Equal(t, "1", HeaderOf(evicted).ID)
}

func TestLog_ConcurrentRecordSameConversation(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		each    int
		want    int
	}{
		{"below capacity", 3, 3, 9},
		{"above capacity", 8, 25, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLog(10)
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				evicted int
			)
			for w := 0; w < tt.workers; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					for i := 0; i < tt.each; i++ {
						if l.Record("shared", move(fmt.Sprintf("%d-%d", w, i))) != nil {
							mu.Lock()
							evicted++
							mu.Unlock()
						}
					}
				}(w)
			}
			wg.Wait()

			require.Equal(t, tt.want, l.Len("shared"))
			require.Equal(t, tt.workers*tt.each, l.Len("shared")+evicted, "no record may be lost")
		})
	}
}
