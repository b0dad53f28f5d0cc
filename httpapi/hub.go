package httpapi

import (
	"slices"
	"sort"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/querydesk/schema"
)

// StreamEvent is sent to SSE clients.
type StreamEvent struct {
	Seq       uint64           `json:"seq"`
	Type      string           `json:"type"`
	RequestID schema.RequestID `json:"request_id,omitempty"`
	Result    schema.Result    `json:"result"`
	Timestamp time.Time        `json:"timestamp"`
}

// Hub broadcasts pipeline results per user and keeps a bounded history for
// Last-Event-ID replay.
type Hub struct {
	mu          sync.Mutex
	users       map[schema.UserID]*userHub
	historySize int
	log         pslog.Logger
}

// NewHub constructs a hub with the given history size and no logging.
func NewHub(historySize int) *Hub {
	return NewHubWithLogger(historySize, nil)
}

// NewHubWithLogger constructs a hub that logs through logger.
func NewHubWithLogger(historySize int, logger pslog.Logger) *Hub {
	if historySize <= 0 {
		historySize = 200
	}
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Hub{
		users:       make(map[schema.UserID]*userHub),
		historySize: historySize,
		log:         logger.With("component", "hub"),
	}
}

// OnResult implements core.ResultSink.
func (h *Hub) OnResult(userID schema.UserID, requestID schema.RequestID, result schema.Result) {
	h.log.Trace("hub result event", "user", userID, "request_id", requestID, "status", result.Status, "action", result.Action)
	h.publish(userID, StreamEvent{
		Type:      "result",
		RequestID: requestID,
		Result:    result,
		Timestamp: time.Now(),
	})
}

// Subscribe registers a subscriber for a user. The returned function
// unsubscribes and closes the channel.
func (h *Hub) Subscribe(userID schema.UserID) (<-chan StreamEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	uh := h.getOrCreateUserHubLocked(userID)
	ch := make(chan StreamEvent, 64)
	uh.subs[ch] = struct{}{}
	log := h.log.With("user", userID)
	log.Debug("hub subscribe", "subs", len(uh.subs))
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(uh.subs, ch)
			close(ch)
			remaining := len(uh.subs)
			h.mu.Unlock()
			log.Debug("hub unsubscribe", "subs", remaining)
		})
	}
	return ch, unsub
}

// Replay returns retained events with a sequence number above after.
func (h *Hub) Replay(userID schema.UserID, after uint64) []StreamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	uh := h.users[userID]
	if uh == nil {
		return nil
	}
	return uh.since(after)
}

func (h *Hub) publish(userID schema.UserID, event StreamEvent) {
	h.mu.Lock()
	uh := h.getOrCreateUserHubLocked(userID)
	event = uh.record(event, h.historySize)
	dropped := uh.fanout(event)
	h.mu.Unlock()
	if dropped > 0 {
		h.log.Warn("hub event dropped", "user", userID, "type", event.Type, "seq", event.Seq, "dropped", dropped)
	}
}

func (h *Hub) getOrCreateUserHubLocked(userID schema.UserID) *userHub {
	uh := h.users[userID]
	if uh == nil {
		uh = &userHub{subs: make(map[chan StreamEvent]struct{})}
		h.users[userID] = uh
	}
	return uh
}

// userHub is guarded by Hub.mu.
type userHub struct {
	seq     uint64
	history []StreamEvent
	subs    map[chan StreamEvent]struct{}
}

// record stamps the next sequence number and appends to the bounded history.
func (u *userHub) record(event StreamEvent, limit int) StreamEvent {
	u.seq++
	event.Seq = u.seq
	u.history = append(u.history, event)
	if over := len(u.history) - limit; over > 0 {
		u.history = slices.Delete(u.history, 0, over)
	}
	return event
}

// fanout delivers without blocking and reports how many subscribers missed it.
func (u *userHub) fanout(event StreamEvent) int {
	dropped := 0
	for sub := range u.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	return dropped
}

// since relies on history being ordered by Seq.
func (u *userHub) since(after uint64) []StreamEvent {
	i := sort.Search(len(u.history), func(i int) bool { return u.history[i].Seq > after })
	return slices.Clone(u.history[i:])
}
