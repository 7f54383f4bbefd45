package market

import (
	"fmt"
	"math"
	"sync"
	"time"

	"finedu/notify"
)

// AnomalyDetector watches consecutive batches for sharp moves in real quotes
// and for a feed that has stopped producing real data.
type AnomalyDetector struct {
	mu                 sync.Mutex
	lastReal           map[string]float64
	syntheticRuns      int
	priceJumpThreshold float64
	degradedAfter      int
	degradedNotified   bool
	notify             notify.Func
}

type AnomalyEvent struct {
	Type        string                 `json:"type"`
	Symbol      string                 `json:"symbol,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	Description string                 `json:"description"`
	Details     map[string]interface{} `json:"details"`
}

const (
	AnomalyTypePriceJump    = "price_jump"
	AnomalyTypeFeedDegraded = "feed_degraded"
	AnomalyTypeFeedRestored = "feed_restored"
)

func NewAnomalyDetector(fn notify.Func) *AnomalyDetector {
	return &AnomalyDetector{
		lastReal:           make(map[string]float64),
		priceJumpThreshold: 0.05,
		degradedAfter:      3,
		notify:             fn,
	}
}

func (ad *AnomalyDetector) SetPriceJumpThreshold(threshold float64) {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	ad.priceJumpThreshold = threshold
}

// SetDegradedAfter sets how many all-synthetic batches in a row count as an outage.
func (ad *AnomalyDetector) SetDegradedAfter(n int) {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	if n < 1 {
		n = 1
	}
	ad.degradedAfter = n
}

// ProcessBatch inspects one batch and returns the anomalies it found.
// Synthetic quotes never count as price history.
func (ad *AnomalyDetector) ProcessBatch(batch []Quote) []AnomalyEvent {
	ad.mu.Lock()
	var events []AnomalyEvent
	live := 0
	for _, q := range batch {
		if q.Synthetic() {
			continue
		}
		live++
		if ev, ok := ad.detectPriceJump(q); ok {
			events = append(events, ev)
		}
		ad.lastReal[q.Symbol] = q.Price
	}
	events = append(events, ad.detectDegraded(len(batch), live)...)
	fn := ad.notify
	ad.mu.Unlock()

	for _, ev := range events {
		level := notify.Info
		if ev.Type == AnomalyTypeFeedDegraded {
			level = notify.Error
		}
		notify.Send(fn, notify.Event{Level: level, Title: ev.Type, Message: ev.Description, Source: "market"})
	}
	return events
}

func (ad *AnomalyDetector) detectPriceJump(q Quote) (AnomalyEvent, bool) {
	prev, ok := ad.lastReal[q.Symbol]
	if !ok || prev == 0 {
		return AnomalyEvent{}, false
	}
	move := math.Abs(q.Price-prev) / prev
	if move <= ad.priceJumpThreshold {
		return AnomalyEvent{}, false
	}
	return AnomalyEvent{
		Type:        AnomalyTypePriceJump,
		Symbol:      q.Symbol,
		Timestamp:   q.LastUpdate,
		Description: fmt.Sprintf("%s moved %.2f%% since the previous batch", q.Symbol, move*100),
		Details: map[string]interface{}{
			"current_price":  q.Price,
			"previous_price": prev,
			"change_percent": move * 100,
			"threshold":      ad.priceJumpThreshold * 100,
		},
	}, true
}

func (ad *AnomalyDetector) detectDegraded(total, live int) []AnomalyEvent {
	if total == 0 {
		return nil
	}
	if live > 0 {
		ad.syntheticRuns = 0
		if ad.degradedNotified {
			ad.degradedNotified = false
			return []AnomalyEvent{{
				Type:        AnomalyTypeFeedRestored,
				Timestamp:   time.Now(),
				Description: "market data providers are answering again",
			}}
		}
		return nil
	}
	ad.syntheticRuns++
	if ad.syntheticRuns < ad.degradedAfter || ad.degradedNotified {
		return nil
	}
	ad.degradedNotified = true
	return []AnomalyEvent{{
		Type:        AnomalyTypeFeedDegraded,
		Timestamp:   time.Now(),
		Description: fmt.Sprintf("no real quotes for %d batches, showing synthetic prices", ad.syntheticRuns),
		Details:     map[string]interface{}{"batches": ad.syntheticRuns},
	}}
}

// Reset forgets price history and outage state.
func (ad *AnomalyDetector) Reset() {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	ad.lastReal = make(map[string]float64)
	ad.syntheticRuns = 0
	ad.degradedNotified = false
}
