package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierDeliversQueuedMessages(t *testing.T) {
	sink := NewMemorySink()
	notifier := New(sink, WithQueueSize(8))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notifier.Start(ctx)

	require.True(t, notifier.Enqueue(Notification{Recipient: "grace@example.com", Subject: "reminder", Kind: KindReminder}))
	require.True(t, notifier.Enqueue(Notification{Recipient: "ben@example.com", Subject: "alert", Kind: KindGrantAlert}))

	require.Eventually(t, func() bool { return len(sink.Sent()) == 2 }, 2*time.Second, 10*time.Millisecond)
	sent := sink.Sent()
	assert.Equal(t, "grace@example.com", sent[0].Recipient)
	assert.False(t, sent[0].CreatedAt.IsZero())
	assert.Zero(t, notifier.Dropped())

	cancel()
	notifier.Wait()
}

type failingSink struct {
	calls atomic.Int32
	after int32
}

func (s *failingSink) Deliver(context.Context, Notification) error {
	if s.calls.Add(1) <= s.after {
		return errors.New("smtp unavailable")
	}
	return nil
}

func TestNotifierRetriesDelivery(t *testing.T) {
	sink := &failingSink{after: 2}
	notifier := New(sink, WithAttempts(4))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notifier.Start(ctx)

	require.True(t, notifier.Enqueue(Notification{Recipient: "grace@example.com", Kind: KindShareRequest}))
	require.Eventually(t, func() bool { return sink.calls.Load() >= 3 }, 5*time.Second, 20*time.Millisecond)

	cancel()
	notifier.Wait()
}

func TestNotifierDropsOldestWhenFull(t *testing.T) {
	sink := NewMemorySink()
	// Worker never started, so the queue only fills.
	notifier := New(sink, WithQueueSize(2))

	require.True(t, notifier.Enqueue(Notification{Subject: "first"}))
	require.True(t, notifier.Enqueue(Notification{Subject: "second"}))
	require.True(t, notifier.Enqueue(Notification{Subject: "third"}))

	assert.Equal(t, uint64(1), notifier.Dropped())
	assert.Equal(t, 2, notifier.Pending())
}

func TestLogSinkDelivers(t *testing.T) {
	sink := NewLogSink(nil)
	assert.NoError(t, sink.Deliver(context.Background(), Notification{Recipient: "x", Kind: KindReminder}))
}
