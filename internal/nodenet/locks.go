package nodenet

import "fmt"

type heldLock struct {
	key     string
	age     int
	timeout int
}

// acquire takes a named lock. Locks held by anyone, including the same key,
// cannot be re-acquired until released or timed out.
func (n *Nodenet) acquire(name, key string, timeout int) error {
	if _, held := n.locks[name]; held {
		return fmt.Errorf("%w: %s", ErrLockHeld, name)
	}
	if timeout <= 0 {
		timeout = n.lockTimeout
	}
	n.locks[name] = &heldLock{key: key, timeout: timeout}
	return nil
}

func (n *Nodenet) isLocked(name string) bool {
	_, held := n.locks[name]
	return held
}

func (n *Nodenet) isLockedBy(name, key string) bool {
	l, held := n.locks[name]
	return held && l.key == key
}

type pendingUnlock struct {
	name string
	lock *heldLock
}

// queueUnlock defers the release of a lock to the end of the current step.
// Only the lock held now is released; if it times out first and someone
// else acquires the name, the new holder keeps it.
func (n *Nodenet) queueUnlock(name string) {
	l, held := n.locks[name]
	if !held {
		return
	}
	n.pendingUnlocks = append(n.pendingUnlocks, pendingUnlock{name: name, lock: l})
}

// ageLocks advances every lock by one step and drops the expired ones.
func (n *Nodenet) ageLocks() {
	for name, l := range n.locks {
		l.age++
		if l.age >= l.timeout {
			n.logger.Debug("lock timed out", "lock", name, "key", l.key)
			delete(n.locks, name)
		}
	}
}

func (n *Nodenet) flushUnlocks() {
	for _, p := range n.pendingUnlocks {
		if n.locks[p.name] == p.lock {
			delete(n.locks, p.name)
		}
	}
	n.pendingUnlocks = nil
}

// Lock acquires a named lock from outside a step.
func (n *Nodenet) Lock(name, key string, timeout int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.acquire(name, key, timeout)
}

// IsLocked reports whether the named lock is held.
func (n *Nodenet) IsLocked(name string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.isLocked(name)
}

// Unlock queues the release of a lock. Like releases requested by node
// functions it takes effect at the end of the next step.
func (n *Nodenet) Unlock(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queueUnlock(name)
}
