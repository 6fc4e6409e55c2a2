// Package watch turns committed writes into live query streams.
package watch

import "sync"

// Notifier fans out invalidation signals per topic (usually a table name).
// Signals coalesce: a subscriber that has not consumed the previous signal
// does not queue another one.
type Notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscription
}

type subscription struct {
	topics map[string]struct{}
	ch     chan struct{}
}

// NewNotifier builds an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]*subscription)}
}

// Subscribe registers interest in topics. An empty topic list matches every
// notification. The returned cancel func is idempotent.
func (n *Notifier) Subscribe(topics ...string) (<-chan struct{}, func()) {
	sub := &subscription{ch: make(chan struct{}, 1)}
	if len(topics) > 0 {
		sub.topics = make(map[string]struct{}, len(topics))
		for _, t := range topics {
			sub.topics[t] = struct{}{}
		}
	}

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = sub
	n.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

// Notify signals every subscriber interested in any of topics.
func (n *Notifier) Notify(topics ...string) {
	if n == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, sub := range n.subs {
		if !sub.matches(topics) {
			continue
		}
		select {
		case sub.ch <- struct{}{}:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (n *Notifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

func (s *subscription) matches(topics []string) bool {
	if s.topics == nil {
		return true
	}
	for _, t := range topics {
		if _, ok := s.topics[t]; ok {
			return true
		}
	}
	return false
}
