package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequencerKeepsSenderOrder(t *testing.T) {
	release := make(chan struct{})
	otherDone := make(chan struct{})

	var mu sync.Mutex
	handled := map[string][]int{}
	seq := NewSequencer(func(_ context.Context, u Update) error {
		if u.ID == 1 {
			<-release
		}
		mu.Lock()
		handled[u.SenderID] = append(handled[u.SenderID], u.ID)
		mu.Unlock()
		if u.SenderID == "S2" {
			close(otherDone)
		}
		return nil
	}, nil)

	ctx := context.Background()
	seq.Dispatch(ctx, Update{ID: 1, ChatID: "-100", SenderID: "S1", CallbackID: "a", CallbackData: "st:A:rv"})
	seq.Dispatch(ctx, Update{ID: 2, ChatID: "-100", SenderID: "S1", CallbackID: "b", CallbackData: "st:B:rv"})
	seq.Dispatch(ctx, Update{ID: 3, ChatID: "-100", SenderID: "S1", Text: "remarks for A"})
	seq.Dispatch(ctx, Update{ID: 4, ChatID: "-100", SenderID: "S2", Text: "hello"})

	select {
	case <-otherDone:
	case <-time.After(2 * time.Second):
		t.Fatal("another sender was blocked behind S1")
	}
	close(release)
	seq.Wait()

	assert.Equal(t, []int{1, 2, 3}, handled["S1"])
	assert.Equal(t, []int{4}, handled["S2"])
}

func TestSequencerReleasesIdleSenders(t *testing.T) {
	seq := NewSequencer(func(context.Context, Update) error { return nil }, nil)
	seq.Dispatch(context.Background(), Update{ID: 1, ChatID: "501"})
	seq.Wait()

	seq.mu.Lock()
	defer seq.mu.Unlock()
	require.Empty(t, seq.mailboxes)
}

func TestOrderingKeyFallsBackToChat(t *testing.T) {
	assert.Equal(t, "S1", OrderingKey(Update{ChatID: "-100", SenderID: "S1"}))
	assert.Equal(t, "chat:-100", OrderingKey(Update{ChatID: "-100"}))
}
