package roomsync

import "sync"

// Subscription is the scoped-resource token returned by Attach. Close
// detaches both bus subscriptions and cancels pending timers for the
// session; it is safe to call from a deferred cleanup path and safe to
// call more than once; only the first call releases the underlying
// resources.
type Subscription struct {
	once    sync.Once
	release func()
}

func newSubscription(release func()) *Subscription {
	return &Subscription{release: release}
}

// Close releases the subscription.
func (s *Subscription) Close() {
	s.once.Do(s.release)
}
