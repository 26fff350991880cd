package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"lumina-knowledge-base/internal/model"
)

type Indexer interface {
	Index(ctx context.Context, documentID string) error
}

type Locker interface {
	Acquire(ctx context.Context, documentID string) (release func(context.Context) error, acquired bool, err error)
}

const DefaultLockRetryDelay = 5 * time.Second

type Options struct {
	QueueName string
	Workers   int
	Prefetch  int
	// LockRetryDelay is how long a redelivered task waits before it is
	// requeued because another worker holds its document's lock.
	LockRetryDelay time.Duration
}

type action int

const (
	actionAck action = iota
	actionDrop
	actionRequeue
)

// IndexWorker consumes index tasks and runs the indexer on the worker's own
// context, never on the uploader's request.
type IndexWorker struct {
	conn    *amqp.Connection
	indexer Indexer
	lock    Locker
	opts    Options
	logger  *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIndexWorker(conn *amqp.Connection, indexer Indexer, lock Locker, opts Options, logger *zap.Logger) *IndexWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Prefetch < opts.Workers {
		opts.Prefetch = opts.Workers
	}
	if opts.LockRetryDelay <= 0 {
		opts.LockRetryDelay = DefaultLockRetryDelay
	}
	return &IndexWorker{
		conn:    conn,
		indexer: indexer,
		lock:    lock,
		opts:    opts,
		logger:  logger.Named("index-worker"),
	}
}

func (w *IndexWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if _, err := ch.QueueDeclare(w.opts.QueueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	if err := ch.Qos(w.opts.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(w.opts.QueueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	var consumers sync.WaitGroup
	for i := 0; i < w.opts.Workers; i++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			w.consume(workerCtx, deliveries)
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		consumers.Wait()
		_ = ch.Close()
	}()

	w.logger.Info("index worker started",
		zap.String("queue", w.opts.QueueName),
		zap.Int("workers", w.opts.Workers),
		zap.Int("prefetch", w.opts.Prefetch),
	)
	return nil
}

func (w *IndexWorker) consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			var ackErr error
			switch w.process(ctx, d.Body, d.Redelivered) {
			case actionAck:
				ackErr = d.Ack(false)
			case actionDrop:
				ackErr = d.Nack(false, false)
			case actionRequeue:
				ackErr = d.Nack(false, true)
			}
			if ackErr != nil {
				w.logger.Warn("settle delivery failed", zap.Error(ackErr))
			}
		}
	}
}

// process decides how a delivery is settled. A task whose indexing could not
// run is requeued once; a second failure drops it. A redelivered task that
// finds its document locked is requeued until the lock frees.
func (w *IndexWorker) process(ctx context.Context, body []byte, redelivered bool) action {
	var task model.IndexTask
	if err := json.Unmarshal(body, &task); err != nil || strings.TrimSpace(task.DocumentID) == "" {
		w.logger.Error("decode index task failed", zap.ByteString("body", body), zap.Error(err))
		return actionDrop
	}
	log := w.logger.With(zap.String("document_id", task.DocumentID))

	if w.lock != nil {
		release, acquired, err := w.lock.Acquire(ctx, task.DocumentID)
		switch {
		case err != nil:
			log.Warn("index lock unavailable, indexing without it", zap.Error(err))
		case !acquired && !redelivered:
			log.Info("document already being indexed, task dropped")
			return actionAck
		case !acquired:
			// The holder may have died with this delivery unsettled; keep the
			// task until its lock expires or the document leaves processing.
			log.Info("document locked by another worker, redelivered task requeued")
			w.pause(ctx)
			return actionRequeue
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					log.Warn("release index lock failed", zap.Error(err))
				}
			}()
		}
	}

	err := w.indexer.Index(ctx, task.DocumentID)
	switch {
	case err == nil:
		return actionAck
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		log.Info("indexing interrupted, task requeued")
		return actionRequeue
	case redelivered:
		log.Error("indexing failed again, task dropped", zap.Error(err))
		return actionDrop
	default:
		log.Warn("indexing failed, task requeued", zap.Error(err))
		return actionRequeue
	}
}

func (w *IndexWorker) pause(ctx context.Context) {
	t := time.NewTimer(w.opts.LockRetryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (w *IndexWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
