package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingTurnService struct {
	mu    sync.Mutex
	calls []turnPayload
	reply string
	err   error
}

func (s *recordingTurnService) HandleTurn(_ context.Context, threadID, channelID, message string) (TurnResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, turnPayload{ThreadID: threadID, ChannelID: channelID, Message: message})
	if s.err != nil {
		return TurnResult{}, s.err
	}
	return TurnResult{Reply: s.reply, Outcome: outcomeCompleted}, nil
}

func TestDispatcher_RoundTrip(t *testing.T) {
	service := &recordingTurnService{reply: "booked"}
	dispatcher := NewDispatcher(service, NewMemoryQueue(8), nil, WithWorkerCount(1), WithReceiveWaitSeconds(1))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = dispatcher.Shutdown(ctx)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := dispatcher.HandleTurn(ctx, "t1", "c1", "book me in")
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if result.Reply != "booked" {
		t.Errorf("Reply = %q, want booked", result.Reply)
	}

	service.mu.Lock()
	defer service.mu.Unlock()
	if len(service.calls) != 1 {
		t.Fatalf("service called %d times, want 1", len(service.calls))
	}
	call := service.calls[0]
	if call.ThreadID != "t1" || call.ChannelID != "c1" || call.Message != "book me in" {
		t.Errorf("service saw %+v", call)
	}
}

func TestDispatcher_PropagatesServiceError(t *testing.T) {
	wantErr := errors.New("state store down")
	service := &recordingTurnService{err: wantErr}
	dispatcher := NewDispatcher(service, NewMemoryQueue(8), nil, WithWorkerCount(1), WithReceiveWaitSeconds(1))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = dispatcher.Shutdown(ctx)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := dispatcher.HandleTurn(ctx, "t1", "c1", "book me in")
	if !errors.Is(err, wantErr) {
		t.Errorf("HandleTurn() error = %v, want %v", err, wantErr)
	}
}

func TestDispatcher_ShutdownStopsWorkers(t *testing.T) {
	service := &recordingTurnService{reply: "ok"}
	dispatcher := NewDispatcher(service, NewMemoryQueue(8), nil, WithWorkerCount(2), WithReceiveWaitSeconds(1))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dispatcher.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}
