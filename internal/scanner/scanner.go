package scanner

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	appconfig "optionflow/config"
	alertchannel "optionflow/internal/channel/alerts"
	"optionflow/internal/fetch"
	"optionflow/internal/metrics"
	"optionflow/internal/models"
	"optionflow/logger"
)

// Scanner retrieves option-chain snapshots through the anti-ban fetch client,
// applies the configured thresholds and emits unusual-activity records. One
// instance serves all tickers; the orchestrator drives its schedule.
type Scanner struct {
	cfg      appconfig.ScannerConfig
	client   *fetch.Client
	channels *alertchannel.Channels
	log      *logger.Log
}

func NewScanner(cfg appconfig.ScannerConfig, client *fetch.Client, ch *alertchannel.Channels) *Scanner {
	return &Scanner{
		cfg:      cfg,
		client:   client,
		channels: ch,
		log:      logger.GetLogger(),
	}
}

// Scan fetches and parses the current chain for ticker, then filters it down
// to the contracts that clear the thresholds. The snapshot is all-or-nothing:
// any failure yields a typed ScanError and no records. The scan never blocks
// past the configured per-ticker timeout.
func (s *Scanner) Scan(ctx context.Context, ticker string) (*models.ChainSnapshot, []models.UnusualActivityRecord, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout.Std())
	defer cancel()

	start := time.Now()
	resp, err := s.client.Get(ctx, s.cfg.URL, url.Values{"ticker": []string{ticker}})
	if err != nil {
		scanErr := s.mapFetchError(ticker, err)
		metrics.IncrementScanError(ticker, scanErr.(*ScanError).Kind.String())
		return nil, nil, scanErr
	}

	snapshot, err := parseChain(ticker, resp.Body)
	if err != nil {
		s.log.WithComponent("scanner").WithError(err).WithFields(logger.Fields{
			"ticker": ticker,
		}).Warn("discarding malformed chain response")
		metrics.IncrementScanError(ticker, KindParseFailure.String())
		return nil, nil, &ScanError{Kind: KindParseFailure, Ticker: ticker, Err: err}
	}

	records := s.filter(snapshot)
	logger.IncrementChainScan(len(resp.Body))
	metrics.IncrementScanSuccess(ticker)
	s.log.WithComponent("scanner").WithFields(logger.Fields{
		"ticker":      ticker,
		"contracts":   len(snapshot.Contracts),
		"unusual":     len(records),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("chain scan complete")

	return snapshot, records, nil
}

// Publish pushes records to the alert channels, dropping on backpressure the
// way every producer in the pipeline does.
func (s *Scanner) Publish(ctx context.Context, records []models.UnusualActivityRecord) {
	for _, rec := range records {
		if s.channels.Send(ctx, rec) {
			logger.IncrementAlert()
			continue
		}
		if ctx.Err() != nil {
			return
		}
		metrics.EmitDropMetric(s.log, metrics.DropMetricAlert, rec.Ticker, "alert")
		s.log.WithComponent("scanner").WithFields(logger.Fields{
			"ticker": rec.Ticker,
		}).Warn("dropping unusual-activity record due to backpressure")
	}
}

func (s *Scanner) filter(snapshot *models.ChainSnapshot) []models.UnusualActivityRecord {
	th := s.cfg.Thresholds
	var records []models.UnusualActivityRecord
	for _, c := range snapshot.Contracts {
		if c.Volume < th.MinVolume || c.OpenInterest < th.MinOpenInterest {
			continue
		}
		if c.Premium < th.MinPremium {
			continue
		}
		if c.Delta < th.DeltaMin || c.Delta > th.DeltaMax {
			continue
		}
		records = append(records, models.UnusualActivityRecord{
			Ticker:       snapshot.Ticker,
			Contract:     c,
			SnapshotTime: snapshot.Timestamp,
			Side:         classifySide(c),
		})
	}
	return records
}

func (s *Scanner) mapFetchError(ticker string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return &ScanError{Kind: KindCancelled, Ticker: ticker, Err: err}
	case fetch.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded):
		return &ScanError{Kind: KindTimeout, Ticker: ticker, Err: err}
	default:
		return &ScanError{Kind: KindFetch, Ticker: ticker, Err: err}
	}
}
