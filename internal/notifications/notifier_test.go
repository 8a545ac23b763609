package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChannel(t *testing.T) {
	tests := []struct {
		channel string
		want    Target
		ok      bool
	}{
		{"events:room:abc-123", Target{Kind: TargetRoom, RoomID: "abc-123"}, true},
		{"events:user:42", Target{Kind: TargetUser, UserID: 42}, true},
		{"events:broadcast", Target{Kind: TargetBroadcast}, true},
		{"events:user:not-a-number", Target{}, false},
		{"something:else", Target{}, false},
	}
	for _, tt := range tests {
		got, ok := parseChannel(tt.channel)
		assert.Equal(t, tt.ok, ok, tt.channel)
		if ok {
			assert.Equal(t, tt.want, got, tt.channel)
		}
	}
}

func TestNotifier_RoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	n := NewNotifier(rdb)

	type delivery struct {
		target Target
		ev     Event
	}
	got := make(chan delivery, 4)
	require.NoError(t, n.StartSubscriber(ctx, func(target Target, ev Event) {
		got <- delivery{target, ev}
	}))

	// PSubscribe needs a moment to register before the publish.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, n.PublishRoom(ctx, "lobby", SystemNotice("lobby", "room event")))
	require.NoError(t, n.PublishUser(ctx, 7, Event{Type: "force_disconnect"}))
	require.NoError(t, n.PublishBroadcast(ctx, Event{Type: "announcement", Message: "all hands"}))

	wait := func() delivery {
		select {
		case d := <-got:
			return d
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for event")
			return delivery{}
		}
	}

	first := wait()
	assert.Equal(t, TargetRoom, first.target.Kind)
	assert.Equal(t, "lobby", first.target.RoomID)
	assert.Equal(t, "room event", first.ev.Message)

	second := wait()
	assert.Equal(t, TargetUser, second.target.Kind)
	assert.Equal(t, uint(7), second.target.UserID)
	assert.Equal(t, "force_disconnect", second.ev.Type)

	third := wait()
	assert.Equal(t, TargetBroadcast, third.target.Kind)
	assert.Equal(t, "all hands", third.ev.Message)
}

func TestNotifier_NilClientIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	ctx := context.Background()

	assert.NoError(t, n.PublishRoom(ctx, "lobby", SystemNotice("lobby", "x")))
	assert.NoError(t, n.PublishUser(ctx, 1, Event{}))
	assert.NoError(t, n.PublishBroadcast(ctx, Event{}))
	assert.NoError(t, n.StartSubscriber(ctx, nil))
}
