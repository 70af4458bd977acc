package undo

import (
	"sort"
	"sync"

	"github.com/kuse-dev/kuse/internal/errors"
)

// ring is a fixed-capacity LIFO that overwrites its oldest slot when full.
type ring struct {
	buf  []Action
	head int // index of the oldest element
	n    int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Action, capacity)}
}

// push appends a and returns the element it evicted, if any.
func (r *ring) push(a Action) (Action, bool) {
	if r.n == len(r.buf) {
		evicted := r.buf[r.head]
		r.buf[r.head] = a
		r.head = (r.head + 1) % len(r.buf)
		return evicted, true
	}
	r.buf[(r.head+r.n)%len(r.buf)] = a
	r.n++
	return nil, false
}

func (r *ring) pop() (Action, bool) {
	if r.n == 0 {
		return nil, false
	}
	idx := (r.head + r.n - 1) % len(r.buf)
	a := r.buf[idx]
	r.buf[idx] = nil
	r.n--
	return a, true
}

func (r *ring) peek() (Action, bool) {
	if r.n == 0 {
		return nil, false
	}
	return r.buf[(r.head+r.n-1)%len(r.buf)], true
}

// items returns the contents oldest first.
func (r *ring) items() []Action {
	out := make([]Action, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Log is the per-conversation action history. One mutex guards the whole
// table; conversations are isolated by key, not by lock.
type Log struct {
	mu       sync.Mutex
	capacity int
	stacks   map[string]*ring
}

// NewLog creates a Log keeping at most capacity actions per conversation.
// A capacity below 1 is treated as 1.
func NewLog(capacity int) *Log {
	if capacity < 1 {
		capacity = 1
	}
	return &Log{
		capacity: capacity,
		stacks:   make(map[string]*ring),
	}
}

// Capacity returns the per-conversation limit.
func (l *Log) Capacity() int {
	return l.capacity
}

// Record appends a to the conversation's stack. When the stack is full the
// oldest action is dropped and returned.
func (l *Log) Record(conversationID string, a Action) (evicted Action) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stack, ok := l.stacks[conversationID]
	if !ok {
		stack = newRing(l.capacity)
		l.stacks[conversationID] = stack
	}
	evicted, _ = stack.push(a)
	return evicted
}

// PopLatest removes and returns the newest action.
// Returns ErrNoHistory for an unknown conversation and ErrNothingToUndo for
// a known one with an empty stack.
func (l *Log) PopLatest(conversationID string) (Action, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stack, ok := l.stacks[conversationID]
	if !ok {
		return nil, errors.NewNoHistory(conversationID)
	}
	a, ok := stack.pop()
	if !ok {
		return nil, errors.NewNothingToUndo(conversationID)
	}
	return a, nil
}

// PeekLatest returns the newest action without removing it.
func (l *Log) PeekLatest(conversationID string) (Action, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stack, ok := l.stacks[conversationID]
	if !ok {
		return nil, errors.NewNoHistory(conversationID)
	}
	a, ok := stack.peek()
	if !ok {
		return nil, errors.NewNothingToUndo(conversationID)
	}
	return a, nil
}

// Entries returns a copy of the conversation's stack, oldest first.
func (l *Log) Entries(conversationID string) ([]Action, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stack, ok := l.stacks[conversationID]
	if !ok {
		return nil, errors.NewNoHistory(conversationID)
	}
	return stack.items(), nil
}

// Len returns the number of actions held for the conversation.
func (l *Log) Len(conversationID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if stack, ok := l.stacks[conversationID]; ok {
		return stack.n
	}
	return 0
}

// ConversationSummary describes one known conversation.
type ConversationSummary struct {
	ID    string `json:"conversation_id"`
	Depth int    `json:"depth"`
}

// Conversations lists known conversations sorted by id.
func (l *Log) Conversations() []ConversationSummary {
	l.mu.Lock()
	out := make([]ConversationSummary, 0, len(l.stacks))
	for id, stack := range l.stacks {
		out = append(out, ConversationSummary{ID: id, Depth: stack.n})
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Clear forgets the conversation. It returns how many actions were dropped.
// Clearing an unknown conversation is a no-op.
func (l *Log) Clear(conversationID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	stack, ok := l.stacks[conversationID]
	if !ok {
		return 0
	}
	delete(l.stacks, conversationID)
	return stack.n
}
