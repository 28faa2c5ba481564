package crud

import (
	"sync"

	"github.com/SocketCluster/sc-crud-rethink/channelnamer"
	"github.com/SocketCluster/sc-crud-rethink/resourcecache"
)

// subState is a per-resource point in the read-by-id state machine from
// spec §4.6. The zero value, subIdle, is never stored explicitly: the
// absence of a map entry for a key IS the Idle state.
type subState int

const (
	subSubscribing subState = iota + 1
	subSubscribed
)

type subEntry struct {
	state  subState
	buffer []resourcecache.Callback
}

// readAction tells a caller of subscriptions.onRead what to do next.
type readAction int

const (
	// actionSubscribe means this call just created the entry (Idle ->
	// Subscribing); the caller must issue the broker subscribe.
	actionSubscribe readAction = iota
	// actionNone means the callback was buffered; some other call (the
	// original subscribe attempt) will drain it.
	actionNone
	// actionDrainNow means the resource channel is already subscribed; the
	// caller should drain this one callback through the cache immediately.
	actionDrainNow
)

// subscriptions holds the orchestrator's per-resource subscription state
// and read buffers. All access is serialized by mu; resourcecache.Key
// values are cheap to hash and copy, so the map is safe to range over
// without needing the finer-grained per-key locking a larger system might
// use for the cache itself.
type subscriptions struct {
	mu      sync.Mutex
	entries map[resourcecache.Key]*subEntry
}

func newSubscriptions() subscriptions {
	return subscriptions{entries: map[resourcecache.Key]*subEntry{}}
}

func resourceChannelName(key resourcecache.Key) string {
	return channelnamer.Resource(key.Type, key.ID)
}

// onRead implements the Idle/Subscribing rows of the state table: append the
// caller, and report whether this call must kick off the subscribe.
func (s *subscriptions) onRead(key resourcecache.Key, cb resourcecache.Callback) readAction {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.entries[key] = &subEntry{state: subSubscribing, buffer: []resourcecache.Callback{cb}}

		return actionSubscribe
	}

	switch e.state {
	case subSubscribing:
		e.buffer = append(e.buffer, cb)

		return actionNone
	default: // subSubscribed
		return actionDrainNow
	}
}

// confirmSubscribed implements "Subscribing -> subscribe ok -> Subscribed":
// it marks the entry subscribed and returns (and clears) its buffer for the
// caller to drain through the cache.
func (s *subscriptions) confirmSubscribed(key resourcecache.Key) []resourcecache.Callback {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	e.state = subSubscribed
	buffer := e.buffer
	e.buffer = nil

	return buffer
}

// failSubscribe implements "Subscribing -> subscribeFail -> Idle": the
// entry is dropped entirely and its buffer returned for the caller to flush
// with an error.
func (s *subscriptions) failSubscribe(key resourcecache.Key) []resourcecache.Callback {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	delete(s.entries, key)

	return e.buffer
}

// remove drops key's entry unconditionally (used by cache expire/clear
// teardown) and reports whether it existed and was in the Subscribed state,
// which is the only state teardown needs to actually unsubscribe/destroy
// the broker channel for.
func (s *subscriptions) remove(key resourcecache.Key) (removed bool, wasSubscribed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false, false
	}
	delete(s.entries, key)

	return true, e.state == subSubscribed
}
