package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrDuplicate is returned by Claim when a near-duplicate is already committed.
var ErrDuplicate = errors.New("duplicate photo")

// Dedup remembers hashes per key and flags near-duplicates. Safe for
// concurrent use.
//
// A hash is claimed before the work it guards and stays pending until the
// claim is committed or released. Only committed hashes count as duplicates;
// a near-duplicate of a pending claim waits for it to resolve.
type Dedup struct {
	threshold int

	mu   sync.Mutex
	seen map[string][]*entry
}

type entry struct {
	hash     Hash
	name     string
	resolved bool
	done     chan struct{}
}

// Claim is a pending hash reservation returned by Dedup.Claim.
type Claim struct {
	d   *Dedup
	key string
	e   *entry
}

// NewDedup creates a set that treats hashes within threshold bits as equal.
func NewDedup(threshold int) *Dedup {
	return &Dedup{threshold: threshold, seen: make(map[string][]*entry)}
}

// Claim reserves h under key. It returns an error wrapping ErrDuplicate when a
// committed near-duplicate exists, and blocks while a near-duplicate claim is
// still pending.
func (d *Dedup) Claim(ctx context.Context, key, name string, h Hash) (*Claim, error) {
	for {
		d.mu.Lock()
		var pending chan struct{}
		for _, e := range d.seen[key] {
			if !e.hash.NearDuplicate(h, d.threshold) {
				continue
			}
			if e.resolved {
				d.mu.Unlock()
				return nil, fmt.Errorf("%w of %s", ErrDuplicate, e.name)
			}
			pending = e.done
			break
		}
		if pending == nil {
			e := &entry{hash: h, name: name, done: make(chan struct{})}
			d.seen[key] = append(d.seen[key], e)
			d.mu.Unlock()
			return &Claim{d: d, key: key, e: e}, nil
		}
		d.mu.Unlock()

		select {
		case <-pending:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Commit keeps the claimed hash so later near-duplicates are rejected.
func (c *Claim) Commit() {
	c.resolve(true)
}

// Release drops the claimed hash so a near-duplicate can take its place.
func (c *Claim) Release() {
	c.resolve(false)
}

func (c *Claim) resolve(keep bool) {
	if c == nil {
		return
	}
	d := c.d
	d.mu.Lock()
	defer d.mu.Unlock()

	if c.e.resolved {
		return
	}
	c.e.resolved = true
	if !keep {
		d.seen[c.key] = slices.DeleteFunc(d.seen[c.key], func(e *entry) bool { return e == c.e })
		if len(d.seen[c.key]) == 0 {
			delete(d.seen, c.key)
		}
	}
	close(c.e.done)
}
