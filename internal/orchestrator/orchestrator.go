package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	appconfig "optionflow/config"
	"optionflow/internal/scanner"
	"optionflow/logger"
)

// Orchestrator schedules concurrent, cancellable scan cycles across the
// configured ticker set. It owns pool sizing and cycle lifecycle; the scanner
// itself never blocks past its own timeout, and a cancelled cycle surfaces
// cancellation rather than partial results.
type Orchestrator struct {
	cfg     appconfig.OrchestratorConfig
	tickers []string
	every   time.Duration
	scan    *scanner.Scanner

	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	onScan func(ticker string, err error)
}

func NewOrchestrator(cfg appconfig.OrchestratorConfig, scanCfg appconfig.ScannerConfig, scan *scanner.Scanner) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		tickers: append([]string(nil), scanCfg.Tickers...),
		every:   scanCfg.Interval.Std(),
		scan:    scan,
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
	}
}

// SetScanListener registers a callback invoked with the outcome of every
// completed ticker scan. Cancelled scans are not reported; they say nothing
// about upstream health. Must be set before Start.
func (o *Orchestrator) SetScanListener(fn func(ticker string, err error)) {
	o.onScan = fn
}

// Start launches the scheduling loop. The first cycle runs immediately.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("scan orchestrator already running")
	}
	o.running = true
	o.ctx = ctx
	o.mu.Unlock()

	if len(o.tickers) == 0 {
		return fmt.Errorf("no tickers configured for scan orchestrator")
	}

	o.wg.Add(1)
	go o.loop()

	o.log.WithComponent("orchestrator").WithFields(logger.Fields{
		"tickers":     o.tickers,
		"max_workers": o.cfg.MaxWorkers,
		"interval":    o.every.String(),
	}).Info("scan orchestrator started")
	return nil
}

// Stop waits for the current cycle to wind down.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	o.mu.Unlock()

	o.log.WithComponent("orchestrator").Info("stopping scan orchestrator")
	o.wg.Wait()
	o.log.WithComponent("orchestrator").Info("scan orchestrator stopped")
}

func (o *Orchestrator) loop() {
	defer o.wg.Done()

	t := time.NewTicker(o.every)
	defer t.Stop()

	o.RunCycle(o.ctx)
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-t.C:
			o.RunCycle(o.ctx)
		}
	}
}

// RunCycle fans the ticker set out over a bounded worker pool and waits for
// every scan to finish or the cycle deadline to pass. Each worker aborts at
// its next suspension point once the cycle is cancelled.
func (o *Orchestrator) RunCycle(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.CycleTimeout.Std())
	defer cancel()

	start := time.Now()
	sem := make(chan struct{}, o.cfg.MaxWorkers)
	var wg sync.WaitGroup
	var scanned, failed, cancelled int64

	for _, ticker := range o.tickers {
		if ctx.Err() != nil {
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(t string) {
			defer wg.Done()
			defer func() { <-sem }()

			_, records, err := o.scan.Scan(ctx, t)
			if err != nil {
				if scanner.IsCancelled(err) {
					atomic.AddInt64(&cancelled, 1)
					return
				}
				atomic.AddInt64(&failed, 1)
				if o.onScan != nil {
					o.onScan(t, err)
				}
				o.log.WithComponent("orchestrator").WithError(err).WithFields(logger.Fields{
					"ticker": t,
				}).Error("scan failed")
				return
			}

			atomic.AddInt64(&scanned, 1)
			if o.onScan != nil {
				o.onScan(t, nil)
			}
			o.scan.Publish(ctx, records)
		}(ticker)
	}
	wg.Wait()

	o.log.WithComponent("orchestrator").WithFields(logger.Fields{
		"scanned":     atomic.LoadInt64(&scanned),
		"failed":      atomic.LoadInt64(&failed),
		"cancelled":   atomic.LoadInt64(&cancelled),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("scan cycle complete")
}
