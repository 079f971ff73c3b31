package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPoolClosed is returned by Acquire once the pool has been closed.
var ErrPoolClosed = errors.New("inference: pool closed")

// Model maps token ids to one row of label logits per token.
// *Session is the ONNX implementation.
type Model interface {
	Infer(ctx context.Context, inputIDs, attentionMask []int64) ([][]float32, error)
	Close() error
}

// Pool manages a pool of model sessions for concurrent inference.
type Pool struct {
	sessions chan Model
	size     int
	mu       sync.Mutex
	closed   bool
}

// NewPool creates a pool of n ONNX sessions.
func NewPool(modelPath string, size int) (*Pool, error) {
	return NewPoolFunc(size, func() (Model, error) {
		return NewSession(modelPath)
	})
}

// NewPoolFunc creates a pool of size sessions opened with open.
func NewPoolFunc(size int, open func() (Model, error)) (*Pool, error) {
	if size <= 0 {
		size = 1
	}

	pool := &Pool{
		sessions: make(chan Model, size),
		size:     size,
	}

	// Pre-create all sessions
	for i := 0; i < size; i++ {
		session, err := open()
		if err != nil {
			// Clean up already created sessions
			_ = pool.Close() // Best-effort cleanup; original error takes precedence
			return nil, fmt.Errorf("creating session %d: %w", i, err)
		}
		pool.sessions <- session
	}

	return pool, nil
}

// Acquire gets a session from the pool, blocking if none available.
// Respects context cancellation. Returns error if pool is closed.
func (p *Pool) Acquire(ctx context.Context) (Model, error) {
	select {
	case session, ok := <-p.sessions:
		if !ok {
			return nil, ErrPoolClosed
		}
		return session, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a session to the pool.
func (p *Pool) Release(s Model) {
	if s == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = s.Close() // Pool closed; clean up session
		return
	}

	select {
	case p.sessions <- s:
	default:
		_ = s.Close() // Pool full; clean up excess session
	}
}

// Close closes all sessions in the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.sessions)
	p.mu.Unlock()

	var errs []error
	for session := range p.sessions {
		if err := session.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Size returns the pool size.
func (p *Pool) Size() int {
	return p.size
}
