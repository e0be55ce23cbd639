package settlement

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mselser95/dex-router/pkg/types"
)

// feedMessage is one settlement observation pushed by the feed endpoint.
type feedMessage struct {
	TxRef         string  `json:"tx_ref"`
	State         string  `json:"state"`
	FinalOut      float64 `json:"final_out"`
	GasUsed       uint64  `json:"gas_used"`
	FailureReason string  `json:"failure_reason,omitempty"`
}

// Feed is a websocket client for pushed settlement observations. It fans
// messages out to per-transaction subscribers and reconnects with jittered
// exponential backoff when the connection drops.
type Feed struct {
	url    string
	logger *zap.Logger

	mu          sync.Mutex
	subscribers map[string]chan *types.TxStatus

	backoff    time.Duration
	minBackoff time.Duration
	maxBackoff time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewFeed creates a settlement feed client for the given websocket URL.
func NewFeed(url string, logger *zap.Logger) (*Feed, error) {
	if url == "" {
		return nil, fmt.Errorf("url cannot be empty")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &Feed{
		url:         url,
		logger:      logger,
		subscribers: make(map[string]chan *types.TxStatus),
		minBackoff:  time.Second,
		maxBackoff:  30 * time.Second,
		backoff:     time.Second,
	}, nil
}

// Start connects and begins dispatching messages until Stop is called or
// the context is cancelled.
func (f *Feed) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel

	f.wg.Add(1)
	go f.run(runCtx)
}

// Stop shuts the feed down and waits for the read loop to exit.
func (f *Feed) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.wg.Wait()
}

// Subscribe returns a channel that receives observations for txRef. The
// channel is buffered; a subscriber that has already stopped listening
// never blocks dispatch.
func (f *Feed) Subscribe(txRef string) <-chan *types.TxStatus {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan *types.TxStatus, 4)
	f.subscribers[txRef] = ch
	return ch
}

// Unsubscribe removes the subscription for txRef.
func (f *Feed) Unsubscribe(txRef string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subscribers, txRef)
}

func (f *Feed) run(ctx context.Context) {
	defer f.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := f.readLoop(ctx); err != nil && ctx.Err() == nil {
			f.logger.Warn("settlement-feed-disconnected", zap.Error(err))
			FeedReconnectsTotal.Inc()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(f.nextBackoff()):
		}
	}
}

func (f *Feed) readLoop(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial settlement feed: %w", err)
	}
	defer conn.Close()

	f.resetBackoff()
	f.logger.Info("settlement-feed-connected", zap.String("url", f.url))

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read settlement feed: %w", err)
		}

		var msg feedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			f.logger.Debug("settlement-feed-bad-message", zap.Error(err))
			continue
		}

		f.dispatch(&msg)
	}
}

func (f *Feed) dispatch(msg *feedMessage) {
	status := &types.TxStatus{
		FinalOut:      msg.FinalOut,
		GasUsed:       msg.GasUsed,
		FailureReason: msg.FailureReason,
	}
	switch msg.State {
	case "confirmed":
		status.State = types.TxConfirmed
	case "failed":
		status.State = types.TxFailed
	default:
		status.State = types.TxPending
	}

	f.mu.Lock()
	ch, ok := f.subscribers[msg.TxRef]
	f.mu.Unlock()

	if !ok {
		return
	}

	FeedMessagesTotal.Inc()
	select {
	case ch <- status:
	default:
	}
}

func (f *Feed) resetBackoff() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backoff = f.minBackoff
}

// nextBackoff doubles the delay up to the cap with up to 20% jitter so a
// fleet of instances does not reconnect in lockstep.
func (f *Feed) nextBackoff() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()

	delay := time.Duration(float64(f.backoff) * (1.0 + rand.Float64()*0.2))

	f.backoff *= 2
	if f.backoff > f.maxBackoff {
		f.backoff = f.maxBackoff
	}

	return delay
}
