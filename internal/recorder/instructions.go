package recorder

import (
	"context"
	"sync"
	"time"
)

// Instruction is a daemon-to-page-context order collected by the capture
// runner. Recording commands land here because the state machine lives in
// the daemon while the adapter lives in the page-bound context.
type Instruction string

const (
	InstructionStart    Instruction = "begin_recording"
	InstructionPause    Instruction = "pause_recording"
	InstructionResume   Instruction = "resume_recording"
	InstructionStop     Instruction = "stop_recording"
	InstructionHardStop Instruction = "hard_stop_recording"
)

// instructionQueue buffers pending instructions per session key and wakes
// long-polling collectors when new ones arrive.
type instructionQueue struct {
	mu      sync.Mutex
	pending map[string][]Instruction
	wake    map[string]chan struct{}
}

func newInstructionQueue() *instructionQueue {
	return &instructionQueue{
		pending: make(map[string][]Instruction),
		wake:    make(map[string]chan struct{}),
	}
}

func (q *instructionQueue) push(key string, ins Instruction) {
	q.mu.Lock()
	q.pending[key] = append(q.pending[key], ins)
	if ch, ok := q.wake[key]; ok {
		close(ch)
		delete(q.wake, key)
	}
	q.mu.Unlock()
}

// poll drains pending instructions for the key, waiting up to maxWait for
// one to arrive when the queue is empty.
func (q *instructionQueue) poll(ctx context.Context, key string, maxWait time.Duration) []Instruction {
	q.mu.Lock()
	if pending := q.pending[key]; len(pending) > 0 {
		delete(q.pending, key)
		q.mu.Unlock()
		return pending
	}
	ch, ok := q.wake[key]
	if !ok {
		ch = make(chan struct{})
		q.wake[key] = ch
	}
	q.mu.Unlock()

	timer := time.NewTimer(maxWait)
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return nil
	}

	q.mu.Lock()
	pending := q.pending[key]
	delete(q.pending, key)
	q.mu.Unlock()
	return pending
}

// drop discards pending instructions for a torn-down context.
func (q *instructionQueue) drop(key string) {
	q.mu.Lock()
	delete(q.pending, key)
	if ch, ok := q.wake[key]; ok {
		close(ch)
		delete(q.wake, key)
	}
	q.mu.Unlock()
}
