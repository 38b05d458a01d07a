package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/direct-messaging/internal/core/domain"
	"github.com/99minutos/direct-messaging/internal/pkg/metrics"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
	publishTimeout = 5 * time.Second
)

// Publisher sends one stored message to an external stream.
type Publisher interface {
	Publish(ctx context.Context, msg *domain.Message) error
}

// Dispatcher fans stored messages out to a fixed set of workers using
// consistent hashing on the sender, guaranteeing per-sender publish order.
type Dispatcher struct {
	workers   []chan *domain.Message
	publisher Publisher
	log       zerolog.Logger
	wg        sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, publisher Publisher, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers:   make([]chan *domain.Message, numWorkers),
		publisher: publisher,
		log:       log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan *domain.Message, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers drain what is already queued
// and stop when ctx is cancelled; Wait blocks until they have.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Wait blocks until every worker has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Enqueue hands msg to the worker responsible for its sender. It never
// blocks: when that worker's buffer is full the message is dropped from the
// mirror (it is already stored) and counted.
func (d *Dispatcher) Enqueue(msg *domain.Message) {
	idx := d.shardIndex(msg.Sender)
	select {
	case d.workers[idx] <- msg:
		metrics.MirrorQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
	default:
		metrics.MirrorPublishedTotal.WithLabelValues("dropped").Inc()
		d.log.Warn().
			Str("message_id", msg.ID).
			Int("worker_id", idx).
			Msg("mirror queue full, message not mirrored")
	}
}

// shardIndex maps a sender deterministically to a worker index.
func (d *Dispatcher) shardIndex(sender string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sender))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan *domain.Message) {
	defer d.wg.Done()
	label := strconv.Itoa(id)
	for {
		select {
		case <-ctx.Done():
			d.drain(id, ch)
			return
		case msg := <-ch:
			metrics.MirrorQueueDepth.WithLabelValues(label).Set(float64(len(ch)))
			d.publish(context.Background(), id, msg)
		}
	}
}

// drain publishes whatever is still buffered after shutdown was requested.
func (d *Dispatcher) drain(id int, ch <-chan *domain.Message) {
	for {
		select {
		case msg := <-ch:
			d.publish(context.Background(), id, msg)
		default:
			return
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, id int, msg *domain.Message) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := d.publisher.Publish(ctx, msg); err != nil {
		metrics.MirrorPublishedTotal.WithLabelValues("error").Inc()
		d.log.Error().Err(err).
			Str("message_id", msg.ID).
			Int("worker_id", id).
			Msg("mirror publish failed")
		return
	}
	metrics.MirrorPublishedTotal.WithLabelValues("ok").Inc()
}
