package async

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Lease pairs a pooled resource with the id that must accompany its release.
// The id prevents a holder from returning a resource under someone else's
// identity: Release rejects ids the pool did not issue.
type Lease[T any] struct {
	ID       string
	Resource T
}

// ResourcePool hands out up to max resources, creating them lazily through a
// factory. Acquire blocks in FIFO order once the pool is exhausted; a
// released resource goes directly to the oldest waiter, otherwise back to
// the idle set.
type ResourcePool[T any] struct {
	mu      sync.Mutex
	max     int
	factory func(ctx context.Context) (T, error)
	idle    []T
	leases  map[string]struct{}
	created int
	waiters []chan T
}

// NewResourcePool creates a pool bounded at max resources.
func NewResourcePool[T any](max int, factory func(ctx context.Context) (T, error)) *ResourcePool[T] {
	if max <= 0 {
		max = 1
	}
	return &ResourcePool[T]{
		max:     max,
		factory: factory,
		leases:  make(map[string]struct{}),
	}
}

// Acquire returns a leased resource: an idle one if available, a freshly
// created one while under the limit, else it blocks FIFO until a holder
// releases.
func (p *ResourcePool[T]) Acquire(ctx context.Context) (*Lease[T], error) {
	p.mu.Lock()

	if n := len(p.idle); n > 0 {
		r := p.idle[n-1]
		p.idle = p.idle[:n-1]
		lease := p.leaseLocked(r)
		p.mu.Unlock()
		return lease, nil
	}

	if p.created < p.max {
		p.created++
		p.mu.Unlock()

		r, err := p.factory(ctx)
		if err != nil {
			p.mu.Lock()
			p.created--
			p.mu.Unlock()
			return nil, err
		}

		p.mu.Lock()
		lease := p.leaseLocked(r)
		p.mu.Unlock()
		return lease, nil
	}

	ch := make(chan T, 1)
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()

	select {
	case r := <-ch:
		p.mu.Lock()
		lease := p.leaseLocked(r)
		p.mu.Unlock()
		return lease, nil
	case <-ctx.Done():
		p.mu.Lock()
		for i, w := range p.waiters {
			if w == ch {
				p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
				p.mu.Unlock()
				return nil, ctx.Err()
			}
		}
		p.mu.Unlock()
		// A resource was handed over concurrently with cancellation;
		// return it to the pool so it is not lost.
		r := <-ch
		p.mu.Lock()
		p.putLocked(r)
		p.mu.Unlock()
		return nil, ctx.Err()
	}
}

// leaseLocked issues a new lease id for r. Caller must hold p.mu.
func (p *ResourcePool[T]) leaseLocked(r T) *Lease[T] {
	id := uuid.New().String()
	p.leases[id] = struct{}{}
	return &Lease[T]{ID: id, Resource: r}
}

// Release returns a leased resource to the pool. The lease id must match one
// the pool issued; otherwise ErrUnknownLease is returned and the pool state
// is untouched.
func (p *ResourcePool[T]) Release(lease *Lease[T]) error {
	if lease == nil {
		return ErrUnknownLease
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.leases[lease.ID]; !ok {
		return ErrUnknownLease
	}
	delete(p.leases, lease.ID)
	p.putLocked(lease.Resource)
	return nil
}

// putLocked hands r to the oldest waiter or returns it to the idle set.
// Caller must hold p.mu.
func (p *ResourcePool[T]) putLocked(r T) {
	if len(p.waiters) > 0 {
		ch := p.waiters[0]
		p.waiters = p.waiters[1:]
		ch <- r
		return
	}
	p.idle = append(p.idle, r)
}

// PoolStatus reports a snapshot of pool occupancy.
type PoolStatus struct {
	Max     int `json:"max"`
	Created int `json:"created"`
	Idle    int `json:"idle"`
	InUse   int `json:"in_use"`
	Waiting int `json:"waiting"`
}

// Status returns the current pool state.
func (p *ResourcePool[T]) Status() PoolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStatus{
		Max:     p.max,
		Created: p.created,
		Idle:    len(p.idle),
		InUse:   len(p.leases),
		Waiting: len(p.waiters),
	}
}
