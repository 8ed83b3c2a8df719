package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryStoreTrimsToWindow(t *testing.T) {
	f := newFixture(t)
	store := NewHistoryStore(f.redis, time.Hour, 4)
	ctx := context.Background()

	var history []ChatMessage
	for i := 0; i < 5; i++ {
		history = append(history,
			ChatMessage{Role: ChatRoleUser, Content: fmt.Sprintf("q%d", i)},
			ChatMessage{Role: ChatRoleAssistant, Content: fmt.Sprintf("a%d", i)},
		)
	}
	require.NoError(t, store.Save(ctx, "conv", history))

	got, err := store.Load(ctx, "conv")
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "q3", got[0].Content)
	assert.Equal(t, "a4", got[3].Content)

	assert.Equal(t, time.Hour, f.mini.TTL("conversation:conv"))
}

func TestHistoryStoreAppendKeepsWindow(t *testing.T) {
	f := newFixture(t)
	store := NewHistoryStore(f.redis, time.Hour, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ctx, "conv",
			ChatMessage{Role: ChatRoleUser, Content: fmt.Sprintf("q%d", i)},
			ChatMessage{Role: ChatRoleAssistant, Content: fmt.Sprintf("a%d", i)},
		))
	}

	got, err := store.Load(ctx, "conv")
	require.NoError(t, err)
	require.Len(t, got, 2, "an odd window never starts on the assistant")
	assert.Equal(t, "q2", got[0].Content)
	assert.Equal(t, "a2", got[1].Content)
	assert.Equal(t, time.Hour, f.mini.TTL("conversation:conv"))
}

func TestHistoryStoreAppendAcrossInstances(t *testing.T) {
	f := newFixture(t)
	stores := []*HistoryStore{
		NewHistoryStore(f.redis, time.Hour, 200),
		NewHistoryStore(f.redis, time.Hour, 200),
	}
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, stores[i%2].Append(ctx, "shared",
				ChatMessage{Role: ChatRoleUser, Content: fmt.Sprintf("q%d", i)},
				ChatMessage{Role: ChatRoleAssistant, Content: fmt.Sprintf("a%d", i)},
			))
		}(i)
	}
	wg.Wait()

	got, err := stores[0].Load(ctx, "shared")
	require.NoError(t, err)
	require.Len(t, got, 80)
	for i := 0; i < len(got); i += 2 {
		assert.Equal(t, ChatRoleUser, got[i].Role)
		assert.Equal(t, "a"+got[i].Content[1:], got[i+1].Content, "turn pairs stay adjacent")
	}
}

func TestHistoryStoreMissingIsEmpty(t *testing.T) {
	f := newFixture(t)
	store := NewHistoryStore(f.redis, 0, 0)

	got, err := store.Load(context.Background(), "never")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTrimHistoryNeverStartsWithAssistant(t *testing.T) {
	history := []ChatMessage{
		{Role: ChatRoleUser, Content: "q0"},
		{Role: ChatRoleAssistant, Content: "a0"},
		{Role: ChatRoleUser, Content: "q1"},
		{Role: ChatRoleAssistant, Content: "a1"},
	}
	got := trimHistory(history, 3)
	require.Len(t, got, 2)
	assert.Equal(t, "q1", got[0].Content)
}
