package conversation

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single entry in a conversation transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// State is the per-thread conversation record the router mutates each turn.
// Exactly one State exists per thread; turns for the same thread are
// serialized by the router.
type State struct {
	ThreadID  string `json:"thread_id"`
	ChannelID string `json:"channel_id"`
	// History is a sliding window of recent messages. Anything trimmed off
	// the front is handed to the archive before it is dropped.
	History      []Message `json:"history"`
	ActiveIntent Intent    `json:"active_intent"`
	// CollectedSlots only ever holds values that passed the slot's
	// validation rule.
	CollectedSlots map[string]string `json:"collected_slots"`
	// TurnCount counts slot-filling turns for the active intent. Reset
	// whenever the active intent changes.
	TurnCount int `json:"turn_count"`
}

// NewState returns an idle state for a thread seen for the first time.
func NewState(threadID, channelID string) *State {
	if channelID == "" {
		channelID = threadID
	}
	return &State{
		ThreadID:       threadID,
		ChannelID:      channelID,
		CollectedSlots: make(map[string]string),
	}
}

// Clone returns a deep copy, used to snapshot the pre-turn state so a fatal
// turn can be rolled back without partial slot mutation.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := &State{
		ThreadID:       s.ThreadID,
		ChannelID:      s.ChannelID,
		ActiveIntent:   s.ActiveIntent,
		TurnCount:      s.TurnCount,
		History:        make([]Message, len(s.History)),
		CollectedSlots: make(map[string]string, len(s.CollectedSlots)),
	}
	copy(out.History, s.History)
	for k, v := range s.CollectedSlots {
		out.CollectedSlots[k] = v
	}
	return out
}

// Append adds a message to the history.
func (s *State) Append(role, content string) {
	s.History = append(s.History, Message{Role: role, Content: content})
}

// recentWindow returns up to n of the most recent messages, oldest first.
func recentWindow(history []Message, n int) []Message {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// ResetIntent returns the conversation to idle: no active intent, no
// collected slots, turn counter cleared. History is untouched.
func (s *State) ResetIntent() {
	s.ActiveIntent = IntentUnknown
	s.CollectedSlots = make(map[string]string)
	s.TurnCount = 0
}

// BeginIntent activates an intent with a fresh slot map and turn counter.
func (s *State) BeginIntent(intent Intent) {
	s.ActiveIntent = intent
	s.CollectedSlots = make(map[string]string)
	s.TurnCount = 0
}

// Trim bounds the history to the given window and returns the overflow, in
// order, so the caller can archive it.
func (s *State) Trim(window int) []Message {
	if window <= 0 || len(s.History) <= window {
		return nil
	}
	overflow := make([]Message, len(s.History)-window)
	copy(overflow, s.History[:len(s.History)-window])
	s.History = append([]Message(nil), s.History[len(s.History)-window:]...)
	return overflow
}
