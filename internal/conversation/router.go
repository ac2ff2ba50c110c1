package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clinicdesk/clinicdesk/pkg/logging"
)

// Archiver receives transcript messages that fall out of the in-state
// sliding window. Archiving is best-effort: a failing archiver never fails
// a turn.
type Archiver interface {
	ArchiveMessages(ctx context.Context, threadID string, messages []Message) error
}

// TurnMetrics is the slice of instrumentation the router emits. A nil
// implementation is allowed.
type TurnMetrics interface {
	ObserveTurn(intent, outcome string, duration time.Duration)
	RecordFallback(reason string)
}

// RouterOptions tunes the router. Zero values fall back to the defaults.
type RouterOptions struct {
	// SlotRetryLimit bounds how many turns an intent may spend collecting
	// slots before the request is abandoned. Default 5.
	SlotRetryLimit int
	// HistoryWindow is the number of transcript messages kept in live state;
	// older messages are handed to the archiver. Default 40.
	HistoryWindow int
	// TurnTimeout caps the wall time of one turn. Default 20s.
	TurnTimeout time.Duration
}

func (o *RouterOptions) applyDefaults() {
	if o.SlotRetryLimit <= 0 {
		o.SlotRetryLimit = 5
	}
	if o.HistoryWindow <= 0 {
		o.HistoryWindow = 40
	}
	if o.TurnTimeout <= 0 {
		o.TurnTimeout = 20 * time.Second
	}
}

// TurnResult is what one processed turn hands back to the transport layer.
type TurnResult struct {
	Reply  string
	Intent Intent
	// Outcome is one of "prompted", "completed", "retry", "canceled",
	// "fallback".
	Outcome string
}

const (
	outcomePrompted  = "prompted"
	outcomeCompleted = "completed"
	outcomeRetry     = "retry"
	outcomeCanceled  = "canceled"
	outcomeFallback  = "fallback"
)

// persistTimeout bounds the save step separately from the turn budget: a
// collaborator that eats the whole TurnTimeout must not leave the fallback
// reply unpersistable.
const persistTimeout = 5 * time.Second

// Router runs the per-turn decision procedure: classify when idle, collect
// slots while an intent is active, dispatch the handler once the slots are
// complete, and fall back safely on anything else. Turns for the same
// thread are serialized; turns for different threads run concurrently.
type Router struct {
	store      StateStore
	classifier Classifier
	registry   *Registry
	extractor  *Extractor
	handlers   map[Intent]Handler
	archiver   Archiver
	metrics    TurnMetrics
	logger     *logging.Logger
	opts       RouterOptions

	mu      sync.Mutex
	threads map[string]*sync.Mutex
}

// NewRouter wires the router. It refuses to start unless every actionable
// intent has a handler, so a missing registration is a startup failure
// rather than a runtime fallback.
func NewRouter(store StateStore, classifier Classifier, registry *Registry, handlers map[Intent]Handler, archiver Archiver, metrics TurnMetrics, logger *logging.Logger, opts RouterOptions) (*Router, error) {
	if store == nil {
		return nil, fmt.Errorf("conversation: state store is required")
	}
	if classifier == nil {
		return nil, fmt.Errorf("conversation: classifier is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("conversation: slot registry is required")
	}
	for _, intent := range ActionableIntents() {
		if handlers[intent] == nil {
			return nil, fmt.Errorf("conversation: no handler registered for intent %q", intent)
		}
	}
	if logger == nil {
		logger = logging.Default()
	}
	opts.applyDefaults()

	return &Router{
		store:      store,
		classifier: classifier,
		registry:   registry,
		extractor:  NewExtractor(registry),
		handlers:   handlers,
		archiver:   archiver,
		metrics:    metrics,
		logger:     logger,
		opts:       opts,
		threads:    make(map[string]*sync.Mutex),
	}, nil
}

// HandleTurn processes one inbound message for a thread and returns the
// reply. State mutations are all-or-nothing: a fatal handler error rolls
// the thread back to its pre-turn state before the transcript of the failed
// exchange is recorded.
func (r *Router) HandleTurn(ctx context.Context, threadID, channelID, message string) (TurnResult, error) {
	lock := r.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.opts.TurnTimeout)
	defer cancel()

	started := time.Now()
	state, err := r.store.Load(ctx, threadID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("conversation: load state for thread %s: %w", threadID, err)
	}
	if state == nil {
		state = NewState(threadID, channelID)
	}

	snapshot := state.Clone()
	state.Append(RoleUser, message)

	result := r.routeTurn(ctx, state, snapshot, message)

	state.Append(RoleAssistant, result.Reply)

	// The turn context may already be expired if a handler consumed the
	// whole budget; the timed-out turn's fallback reply still has to reach
	// the store.
	saveCtx, saveCancel := context.WithTimeout(context.Background(), persistTimeout)
	defer saveCancel()
	r.archiveOverflow(saveCtx, state)

	if err := r.store.Save(saveCtx, state); err != nil {
		return TurnResult{}, fmt.Errorf("conversation: save state for thread %s: %w", threadID, err)
	}

	if r.metrics != nil {
		r.metrics.ObserveTurn(string(result.Intent), result.Outcome, time.Since(started))
	}
	r.logger.Info("turn handled",
		"thread_id", threadID,
		"intent", string(result.Intent),
		"outcome", result.Outcome,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return result, nil
}

// routeTurn is the decision procedure proper. It mutates state but never
// touches the store; HandleTurn owns persistence.
func (r *Router) routeTurn(ctx context.Context, state *State, snapshot *State, message string) TurnResult {
	// Cancellation pre-empts everything, including an in-progress request.
	classified := r.classifier.Classify(ctx, message, snapshot.History)
	if classified == IntentCancel {
		return r.cancelTurn(state)
	}

	if state.ActiveIntent == IntentUnknown {
		if classified == IntentUnknown {
			return r.fallbackTurn(state, FallbackUnknownIntent)
		}
		state.BeginIntent(classified)
	}

	intent := state.ActiveIntent
	filled := 0
	outstanding := r.registry.Missing(intent, state.CollectedSlots)
	if len(outstanding) > 0 {
		for name, value := range r.extractor.Extract(message, intent, outstanding) {
			state.CollectedSlots[name] = value
			filled++
		}
		outstanding = r.registry.Missing(intent, state.CollectedSlots)
	}

	if len(outstanding) > 0 {
		// Only a turn that made no progress can exhaust the retry budget.
		if filled == 0 && state.TurnCount >= r.opts.SlotRetryLimit {
			state.ResetIntent()
			return r.fallbackTurn(state, FallbackRetryExhausted)
		}
		state.TurnCount++
		return TurnResult{
			Reply:   outstanding[0].Prompt,
			Intent:  intent,
			Outcome: outcomePrompted,
		}
	}

	return r.actTurn(ctx, state, snapshot, intent, message)
}

// actTurn dispatches the completed intent to its handler and applies the
// handler's verdict to the conversation state.
func (r *Router) actTurn(ctx context.Context, state *State, snapshot *State, intent Intent, message string) TurnResult {
	outcome, err := r.handlers[intent].Act(ctx, Request{
		Intent:    intent,
		ThreadID:  state.ThreadID,
		ChannelID: state.ChannelID,
		Message:   message,
		Slots:     cloneSlots(state.CollectedSlots),
	})
	if err != nil {
		r.logger.Error("action failed",
			"thread_id", state.ThreadID,
			"intent", string(intent),
			"error", err.Error(),
		)
		// Undo every mutation of this turn, then record the exchange.
		*state = *snapshot.Clone()
		state.Append(RoleUser, message)
		return r.fallbackTurn(state, FallbackActionFailed)
	}

	switch outcome.Status {
	case StatusRetry:
		if outcome.RetrySlot != "" {
			delete(state.CollectedSlots, outcome.RetrySlot)
		}
		reply := outcome.Reply
		if reply == "" {
			reply = r.retryPrompt(intent, outcome.RetrySlot)
		}
		return TurnResult{Reply: reply, Intent: intent, Outcome: outcomeRetry}
	default:
		state.ResetIntent()
		return TurnResult{Reply: outcome.Reply, Intent: intent, Outcome: outcomeCompleted}
	}
}

func (r *Router) cancelTurn(state *State) TurnResult {
	if state.ActiveIntent == IntentUnknown {
		return TurnResult{
			Reply:   "There's nothing in progress to cancel. Is there anything else I can help you with?",
			Intent:  IntentCancel,
			Outcome: outcomeCanceled,
		}
	}
	state.ResetIntent()
	return TurnResult{
		Reply:   "No problem, I've canceled that request. Is there anything else I can help you with?",
		Intent:  IntentCancel,
		Outcome: outcomeCanceled,
	}
}

func (r *Router) fallbackTurn(state *State, reason FallbackReason) TurnResult {
	if r.metrics != nil {
		r.metrics.RecordFallback(string(reason))
	}
	return TurnResult{
		Reply:   FallbackReply(reason),
		Intent:  state.ActiveIntent,
		Outcome: outcomeFallback,
	}
}

// retryPrompt re-asks for a discarded slot when the handler did not supply
// its own wording.
func (r *Router) retryPrompt(intent Intent, slot string) string {
	for _, spec := range r.registry.Required(intent) {
		if spec.Name == slot {
			return spec.Prompt
		}
	}
	return FallbackReply(FallbackUnknownIntent)
}

func (r *Router) archiveOverflow(ctx context.Context, state *State) {
	overflow := state.Trim(r.opts.HistoryWindow)
	if len(overflow) == 0 || r.archiver == nil {
		return
	}
	if err := r.archiver.ArchiveMessages(ctx, state.ThreadID, overflow); err != nil {
		r.logger.Warn("failed to archive overflow messages",
			"thread_id", state.ThreadID,
			"count", len(overflow),
			"error", err.Error(),
		)
	}
}

func (r *Router) threadLock(threadID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.threads[threadID]
	if !ok {
		lock = &sync.Mutex{}
		r.threads[threadID] = lock
	}
	return lock
}

func cloneSlots(slots map[string]string) map[string]string {
	out := make(map[string]string, len(slots))
	for k, v := range slots {
		out[k] = v
	}
	return out
}
