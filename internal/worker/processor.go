package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"campuspush/internal/gateway"
	"campuspush/internal/model"
	"campuspush/pkg/circuitbreaker"
	"campuspush/pkg/metrics"
)

// QueueStore is the slice of queue persistence the processor needs.
type QueueStore interface {
	FetchPending(ctx context.Context, limit, maxAttempts int) ([]model.DeliveryQueueItem, error)
	MarkSent(ctx context.Context, id string) error
	RecordFailure(ctx context.Context, id, errMsg string, maxAttempts int) error
	CountByStatus(ctx context.Context) (model.QueueStats, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PushGateway sends one ordered batch and returns receipts in the same order.
type PushGateway interface {
	Send(ctx context.Context, batch []gateway.Message) ([]gateway.Receipt, error)
}

type Config struct {
	Interval       time.Duration
	FetchLimit     int
	MaxAttempts    int
	MaxBatchSize   int
	GatewayTimeout time.Duration
}

// Processor drains the delivery queue on a fixed interval. It holds no
// durable state of its own; every cycle reads and writes queue rows, so a
// crashed or restarted processor resumes from storage.
type Processor struct {
	store   QueueStore
	gw      PushGateway
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
	cfg     Config

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewProcessor(store QueueStore, gw PushGateway, limiter *rate.Limiter, logger *zap.Logger, cfg Config) *Processor {
	return &Processor{
		store:   store,
		gw:      gw,
		limiter: limiter,
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		logger:  logger,
		cfg:     cfg,
	}
}

// Start begins the timer loop. Starting an already-running processor is a
// no-op. One cycle runs immediately so a fresh start does not wait a full
// interval before draining.
func (p *Processor) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		p.logger.Warn("Queue processor already running, ignoring start")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.running = true
	p.cancel = cancel
	p.mu.Unlock()

	p.logger.Info("Starting queue processor",
		zap.Duration("interval", p.cfg.Interval),
		zap.Int("fetch_limit", p.cfg.FetchLimit),
		zap.Int("max_attempts", p.cfg.MaxAttempts),
	)

	p.wg.Add(1)
	go p.loop(ctx)
}

func (p *Processor) loop(ctx context.Context) {
	defer p.wg.Done()

	p.RunCycle(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Queue processor stopped")
			return
		case <-ticker.C:
			p.RunCycle(ctx)
		}
	}
}

// Stop cancels future cycles and waits for an in-flight cycle to finish its
// reconciliation. It never aborts a batch mid-reconciliation.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

// RunCycle executes one fetch→batch→send→reconcile pass. The loop context
// only gates scheduling; gateway calls and row updates run against their own
// bounded contexts so cancellation cannot strand a half-reconciled batch.
func (p *Processor) RunCycle(ctx context.Context) {
	start := time.Now()

	fetchCtx, cancel := context.WithTimeout(context.Background(), p.cfg.GatewayTimeout)
	items, err := p.store.FetchPending(fetchCtx, p.cfg.FetchLimit, p.cfg.MaxAttempts)
	cancel()
	if err != nil {
		p.logger.Error("Failed to fetch pending deliveries", zap.Error(err))
		return
	}

	if len(items) > 0 {
		p.logger.Info("Processing pending deliveries", zap.Int("count", len(items)))
		for _, batch := range partition(items, p.cfg.MaxBatchSize) {
			if err := p.waitForRate(ctx); err != nil {
				// Shutdown requested mid-cycle; remaining rows stay pending
				// and are picked up on the next start.
				p.logger.Warn("Cycle interrupted before send", zap.Error(err))
				break
			}
			p.sendAndReconcile(batch)
		}
	}

	p.refreshQueueDepth()
	metrics.RecordCycleDuration(time.Since(start))
}

func (p *Processor) waitForRate(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// sendAndReconcile sends one batch and applies receipts positionally.
// Receipts are matched to queue items by index, so batch order must reach
// the gateway untouched.
func (p *Processor) sendAndReconcile(batch []model.DeliveryQueueItem) {
	msgs := make([]gateway.Message, len(batch))
	for i, item := range batch {
		msgs[i] = gateway.Message{
			To:        item.DeviceToken,
			Title:     item.Title,
			Body:      item.Body,
			Data:      item.Data,
			ChannelID: item.Channel,
		}
	}

	sendCtx, cancel := context.WithTimeout(context.Background(), p.cfg.GatewayTimeout)
	defer cancel()

	var receipts []gateway.Receipt
	callStart := time.Now()
	err := p.breaker.Execute(func() error {
		var sendErr error
		receipts, sendErr = p.gw.Send(sendCtx, msgs)
		return sendErr
	})
	callStatus := "ok"
	if err != nil {
		callStatus = "error"
	}
	metrics.RecordGatewayCallLatency(callStatus, time.Since(callStart))

	if err != nil {
		p.logger.Error("Push gateway call failed, batch counts one attempt",
			zap.Int("batch_size", len(batch)),
			zap.Error(err),
		)
		p.failBatch(batch, err.Error())
		return
	}

	if len(receipts) != len(batch) {
		p.logger.Error("Push gateway receipt count mismatch",
			zap.Int("batch_size", len(batch)),
			zap.Int("receipts", len(receipts)),
		)
		p.failBatch(batch, fmt.Sprintf("receipt count mismatch: sent %d, got %d", len(batch), len(receipts)))
		return
	}

	for i, receipt := range receipts {
		item := batch[i]
		if receipt.OK() {
			p.markSent(item)
			continue
		}
		msg := receipt.Message
		if msg == "" {
			msg = "delivery rejected by gateway"
		}
		p.recordFailure(item, msg)
	}
}

// failBatch applies one failed attempt to every item of a batch whose
// gateway call produced no usable receipts. No item is skipped and none is
// counted twice.
func (p *Processor) failBatch(batch []model.DeliveryQueueItem, errMsg string) {
	for _, item := range batch {
		p.recordFailure(item, errMsg)
	}
}

func (p *Processor) markSent(item model.DeliveryQueueItem) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.store.MarkSent(ctx, item.ID); err != nil {
		p.logger.Error("Failed to mark delivery as sent",
			zap.String("id", item.ID),
			zap.Error(err),
		)
		return
	}
	metrics.IncrementDelivery("sent")
}

func (p *Processor) recordFailure(item model.DeliveryQueueItem, errMsg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.store.RecordFailure(ctx, item.ID, errMsg, p.cfg.MaxAttempts); err != nil {
		p.logger.Error("Failed to record delivery failure",
			zap.String("id", item.ID),
			zap.Error(err),
		)
		return
	}
	if item.Attempts+1 >= p.cfg.MaxAttempts {
		metrics.IncrementDelivery("failed")
		p.logger.Warn("Delivery permanently failed",
			zap.String("id", item.ID),
			zap.String("notification_id", item.NotificationID),
			zap.String("error", errMsg),
		)
	} else {
		metrics.IncrementDelivery("retried")
	}
}

func (p *Processor) refreshQueueDepth() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := p.store.CountByStatus(ctx)
	if err != nil {
		p.logger.Error("Failed to count delivery queue", zap.Error(err))
		return
	}
	metrics.SetQueueDepth("pending", float64(stats.Pending))
	metrics.SetQueueDepth("sent", float64(stats.Sent))
	metrics.SetQueueDepth("failed", float64(stats.Failed))
}

// Cleanup deletes terminal rows older than the retention window. It operates
// on a disjoint status predicate from the processing cycle, so the two can
// run concurrently without coordination.
func (p *Processor) Cleanup(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted, err := p.store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		p.logger.Error("Delivery queue cleanup failed", zap.Error(err))
		return err
	}
	if deleted > 0 {
		p.logger.Info("Delivery queue cleanup done",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
	return nil
}

// RunCleanupLoop sweeps terminal rows on its own, slower timer until the
// context is cancelled.
func (p *Processor) RunCleanupLoop(ctx context.Context, interval time.Duration, retentionDays int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Cleanup loop stopped")
			return
		case <-ticker.C:
			_ = p.Cleanup(ctx, retentionDays)
		}
	}
}

// partition splits items into order-preserving chunks of at most size.
func partition(items []model.DeliveryQueueItem, size int) [][]model.DeliveryQueueItem {
	if size <= 0 {
		size = len(items)
	}
	var batches [][]model.DeliveryQueueItem
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}
