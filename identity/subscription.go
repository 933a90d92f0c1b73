package identity

import "sync"

// Subscription is a cancellable registration on an event source.
type Subscription interface {
	// Release stops delivery. It is idempotent.
	Release()
}

type subscription struct {
	once    sync.Once
	release func()
}

// NewSubscription returns a Subscription that runs release at most once.
func NewSubscription(release func()) Subscription {
	return &subscription{release: release}
}

func (s *subscription) Release() {
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}
