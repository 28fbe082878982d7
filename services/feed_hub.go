package services

import (
	"sync"

	"ecodigital/metrics"
)

// FeedHub fans out "the feed changed" signals per company. A signal carries
// no payload; subscribers refetch. Signals coalesce while a subscriber is busy.
type FeedHub struct {
	mu      sync.Mutex
	subs    map[string]map[chan struct{}]struct{}
	metrics *metrics.Metrics
}

func NewFeedHub(m *metrics.Metrics) *FeedHub {
	return &FeedHub{subs: map[string]map[chan struct{}]struct{}{}, metrics: m}
}

// Subscribe registers for companyID. The returned func removes the
// subscription and closes the channel; it is safe to call more than once.
func (h *FeedHub) Subscribe(companyID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	set, ok := h.subs[companyID]
	if !ok {
		set = map[chan struct{}]struct{}{}
		h.subs[companyID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()
	h.metrics.FeedSubscribers(1)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[companyID], ch)
			if len(h.subs[companyID]) == 0 {
				delete(h.subs, companyID)
			}
			close(ch)
			h.mu.Unlock()
			h.metrics.FeedSubscribers(-1)
		})
	}
}

// Publish wakes every subscriber of companyID without blocking.
func (h *FeedHub) Publish(companyID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[companyID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// PublishAll wakes every subscriber; used when the source of a change is unknown.
func (h *FeedHub) PublishAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.subs {
		for ch := range set {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

func (h *FeedHub) Subscribers(companyID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[companyID])
}
