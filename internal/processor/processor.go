package processor

import (
	"context"
	"fmt"
	"sync"

	appconfig "optionflow/config"
	"optionflow/internal/channel"
	"optionflow/internal/cluster"
	"optionflow/internal/metrics"
	"optionflow/internal/models"
	"optionflow/logger"
)

type lineageKey struct {
	ticker   string
	contract string
}

// Processor feeds the alert and open-interest streams into the cluster
// detector. It keeps a bounded per-lineage history and re-runs detection on
// every append; since detection is pure, only runs that end after the last
// published event are emitted downstream.
type Processor struct {
	cfg      appconfig.ClusterConfig
	channels *channel.Channels
	detector *cluster.Detector

	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	history     map[lineageKey][]models.SeriesPoint
	lastEmitted map[lineageKey]models.ClusterEvent

	alertSinks []func(models.UnusualActivityRecord)
}

func NewProcessor(cfg appconfig.ClusterConfig, channels *channel.Channels) *Processor {
	return &Processor{
		cfg:         cfg,
		channels:    channels,
		detector:    cluster.NewDetector(cfg.MinCount, cfg.MaxGap.Std()),
		wg:          &sync.WaitGroup{},
		log:         logger.GetLogger(),
		history:     make(map[lineageKey][]models.SeriesPoint),
		lastEmitted: make(map[lineageKey]models.ClusterEvent),
	}
}

// AddAlertSink registers a callback invoked for every consumed alert record.
// Sinks must be registered before Start and must not block.
func (p *Processor) AddAlertSink(fn func(models.UnusualActivityRecord)) {
	p.alertSinks = append(p.alertSinks, fn)
}

// Start launches the consumer loop.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("signal processor already running")
	}
	p.running = true
	p.ctx = ctx
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run()

	p.log.WithComponent("signal_processor").WithFields(logger.Fields{
		"min_count":     p.cfg.MinCount,
		"max_gap":       p.cfg.MaxGap.Std().String(),
		"history_limit": p.cfg.HistoryLimit,
	}).Info("signal processor started")
	return nil
}

// Stop waits for the consumer loop to drain.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.log.WithComponent("signal_processor").Info("stopping signal processor")
	p.wg.Wait()
	p.log.WithComponent("signal_processor").Info("signal processor stopped")
}

func (p *Processor) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case rec, ok := <-p.channels.Alerts.Alerts:
			if !ok {
				return
			}
			p.HandleAlert(rec)
		case batch, ok := <-p.channels.OI.Batches:
			if !ok {
				return
			}
			p.HandleOIBatch(batch)
		}
	}
}

// HandleAlert folds one unusual-activity record into its lineage, tracking
// the traded premium as the cluster scalar.
func (p *Processor) HandleAlert(rec models.UnusualActivityRecord) {
	key := lineageKey{ticker: rec.Ticker, contract: rec.Contract.Symbol}
	p.append(key, models.SeriesPoint{Timestamp: rec.SnapshotTime, Value: rec.Contract.Premium})
	for _, sink := range p.alertSinks {
		sink(rec)
	}
}

// HandleOIBatch folds one atomic open-interest batch into its lineages,
// tracking open interest as the cluster scalar.
func (p *Processor) HandleOIBatch(batch models.OIBatch) {
	for _, rec := range batch.Records {
		key := lineageKey{ticker: rec.Ticker, contract: rec.ContractSymbol}
		p.append(key, models.SeriesPoint{Timestamp: rec.RetrievedAt, Value: float64(rec.OpenInterest)})
	}
}

func (p *Processor) append(key lineageKey, point models.SeriesPoint) {
	points := p.history[key]
	if n := len(points); n > 0 && !point.Timestamp.After(points[n-1].Timestamp) {
		// out-of-order or same-instant observation; the lineage is
		// time-ordered by construction, so drop it
		return
	}
	points = append(points, point)
	if len(points) > p.cfg.HistoryLimit {
		points = points[len(points)-p.cfg.HistoryLimit:]
	}
	p.history[key] = points

	p.emitNew(key, points)
}

func (p *Processor) emitNew(key lineageKey, points []models.SeriesPoint) {
	events := p.detector.Detect(key.ticker, key.contract, points)
	newest := points[len(points)-1].Timestamp
	for _, evt := range events {
		if !evt.End.Before(newest) {
			// trailing run is still open; it emits once a later record
			// closes it
			continue
		}
		last, seen := p.lastEmitted[key]
		if seen && !evt.End.After(last.End) {
			continue
		}
		p.lastEmitted[key] = evt

		if !p.channels.Signals.Send(p.ctx, evt) {
			if p.ctx.Err() != nil {
				return
			}
			metrics.EmitDropMetric(p.log, metrics.DropMetricSignal, evt.Ticker, "signal")
			p.log.WithComponent("signal_processor").WithFields(logger.Fields{
				"ticker":   evt.Ticker,
				"contract": evt.ContractSymbol,
			}).Warn("dropping cluster event due to backpressure")
			continue
		}

		metrics.IncrementClusterEvent(evt.Ticker, string(evt.Direction))
		logger.IncrementClusterEvent()
		p.log.WithComponent("signal_processor").WithFields(logger.Fields{
			"ticker":    evt.Ticker,
			"contract":  evt.ContractSymbol,
			"direction": string(evt.Direction),
			"points":    len(evt.Points),
			"strength":  evt.Strength,
		}).Info("cluster event detected")
	}
}
