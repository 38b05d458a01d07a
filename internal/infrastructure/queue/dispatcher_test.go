package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/99minutos/direct-messaging/internal/core/domain"
)

type recordingPublisher struct {
	mu   sync.Mutex
	got  []*domain.Message
	fail bool
}

func (p *recordingPublisher) Publish(_ context.Context, msg *domain.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("stream unavailable")
	}
	p.got = append(p.got, msg)
	return nil
}

func (p *recordingPublisher) bodiesFrom(sender string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.got {
		if m.Sender == sender {
			out = append(out, m.Body)
		}
	}
	return out
}

func TestDispatcher_PreservesPerSenderOrder(t *testing.T) {
	req := require.New(t)
	pub := &recordingPublisher{}
	d := NewDispatcher(3, pub, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	var want []string
	for i := range 100 {
		body := fmt.Sprintf("m%d", i)
		want = append(want, body)
		d.Enqueue(&domain.Message{ID: body, Sender: "alice", Receiver: "bob", Body: body})
		d.Enqueue(&domain.Message{ID: "b" + body, Sender: "bob", Receiver: "alice", Body: body})
	}

	cancel()
	d.Wait()

	req.Equal(want, pub.bodiesFrom("alice"))
	req.Equal(want, pub.bodiesFrom("bob"))
}

func TestDispatcher_ShardIndexIsStable(t *testing.T) {
	d := NewDispatcher(0, &recordingPublisher{}, zerolog.Nop())
	require.Len(t, d.workers, defaultWorkers)

	first := d.shardIndex("alice")
	for range 10 {
		require.Equal(t, first, d.shardIndex("alice"))
	}
	require.GreaterOrEqual(t, first, 0)
	require.Less(t, first, defaultWorkers)
}

func TestDispatcher_EnqueueNeverBlocks(t *testing.T) {
	d := NewDispatcher(1, &recordingPublisher{}, zerolog.Nop())

	// Workers not started: the buffer fills, then messages are dropped.
	for i := range channelBuffer + 10 {
		d.Enqueue(&domain.Message{ID: fmt.Sprint(i), Sender: "alice"})
	}
	require.Len(t, d.workers[0], channelBuffer)
}

func TestDispatcher_PublishErrorsAreSwallowed(t *testing.T) {
	pub := &recordingPublisher{fail: true}
	d := NewDispatcher(1, pub, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	d.Enqueue(&domain.Message{ID: "1", Sender: "alice"})
	cancel()
	d.Wait()

	require.Empty(t, pub.got)
}
