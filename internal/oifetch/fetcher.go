package oifetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	appconfig "optionflow/config"
	oichannel "optionflow/internal/channel/oi"
	"optionflow/internal/fetch"
	"optionflow/internal/metrics"
	"optionflow/internal/models"
	"optionflow/logger"
)

// Fetcher retrieves the vendor's paginated open-interest dataset per ticker.
// Fetches are atomic: either every page of a cycle parses and the full
// deduplicated batch is published, or the cycle yields nothing.
type Fetcher struct {
	cfg      appconfig.OpenInterestConfig
	client   *fetch.Client
	channels *oichannel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
	host     string
}

func NewFetcher(cfg appconfig.OpenInterestConfig, client *fetch.Client, ch *oichannel.Channels) *Fetcher {
	host := ""
	if u, err := url.Parse(cfg.URL); err == nil {
		host = u.Host
	}
	return &Fetcher{
		cfg:      cfg,
		client:   client,
		channels: ch,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
		host:     host,
	}
}

// Start launches one polling worker per configured ticker.
func (f *Fetcher) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("open-interest fetcher already running")
	}
	f.running = true
	f.ctx = ctx
	f.mu.Unlock()

	if !f.cfg.Enabled {
		f.log.WithComponent("oi_fetcher").Warn("open-interest fetcher disabled via configuration")
		return fmt.Errorf("open-interest fetcher disabled")
	}
	if len(f.cfg.Tickers) == 0 {
		return fmt.Errorf("no tickers configured for open-interest fetcher")
	}

	for _, ticker := range f.cfg.Tickers {
		t := strings.ToUpper(ticker)
		f.wg.Add(1)
		go f.pollTicker(t)
	}

	f.log.WithComponent("oi_fetcher").WithFields(logger.Fields{
		"tickers":   f.cfg.Tickers,
		"page_size": f.cfg.PageSize,
	}).Info("open-interest fetcher started")
	return nil
}

// Stop waits for all polling workers to exit.
func (f *Fetcher) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	f.mu.Unlock()

	f.log.WithComponent("oi_fetcher").Info("stopping open-interest fetcher")
	f.wg.Wait()
	f.log.WithComponent("oi_fetcher").Info("open-interest fetcher stopped")
}

func (f *Fetcher) pollTicker(ticker string) {
	defer f.wg.Done()

	interval := f.cfg.Interval.Std()
	t := time.NewTicker(interval)
	defer t.Stop()

	f.fetchCycle(ticker)
	for {
		select {
		case <-f.ctx.Done():
			return
		case <-t.C:
			f.fetchCycle(ticker)
		}
	}
}

func (f *Fetcher) fetchCycle(ticker string) {
	records, err := f.FetchAll(f.ctx, ticker)
	if err != nil {
		if f.ctx.Err() != nil {
			return
		}
		metrics.IncrementOIError(ticker, errorKind(err))
		f.log.WithComponent("oi_fetcher").WithError(err).WithFields(logger.Fields{
			"ticker": ticker,
		}).Error("open-interest fetch failed")
		return
	}

	metrics.IncrementOISuccess(ticker)
	batch := models.OIBatch{Ticker: ticker, Records: records, FetchedAt: time.Now().UTC()}
	if !f.channels.Send(f.ctx, batch) {
		if f.ctx.Err() != nil {
			return
		}
		metrics.EmitDropMetric(f.log, metrics.DropMetricOIBatch, ticker, "batch")
		f.log.WithComponent("oi_fetcher").WithFields(logger.Fields{
			"ticker":  ticker,
			"records": len(records),
		}).Warn("dropping open-interest batch due to backpressure")
	}
}

// FetchAll retrieves every page of the ticker's open-interest dataset.
// Pagination stops once the vendor-reported total is covered or a short page
// arrives. A fresh session is forced every PagesPerSession pages; any page
// failure aborts the whole fetch with no partial result.
func (f *Fetcher) FetchAll(ctx context.Context, ticker string) ([]models.OIRecord, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout.Std())
	defer cancel()

	var all []models.OIRecord
	total := -1

	for page := 0; ; page++ {
		if page > 0 && page%f.cfg.PagesPerSession == 0 {
			f.client.RenewSession(f.host)
		}

		recs, reportedTotal, err := f.fetchPage(ctx, ticker, page)
		if err != nil {
			return nil, err
		}
		if reportedTotal > 0 {
			total = reportedTotal
		}

		all = append(all, recs...)
		logger.IncrementOIPage(len(recs))

		if len(recs) < f.cfg.PageSize {
			break
		}
		if total >= 0 && len(all) >= total {
			break
		}
	}

	f.log.WithComponent("oi_fetcher").WithFields(logger.Fields{
		"ticker":  ticker,
		"records": len(all),
	}).Debug("open-interest pagination complete")

	return dedupe(all), nil
}

type oiPageResponse struct {
	Ticker  string         `json:"ticker"`
	Total   int            `json:"total"`
	Records []oiPageRecord `json:"records"`
}

type oiPageRecord struct {
	Symbol       string `json:"symbol"`
	OpenInterest *int64 `json:"openInterest"`
	OIChange     int64  `json:"oiChange"`
}

func (f *Fetcher) fetchPage(ctx context.Context, ticker string, page int) ([]models.OIRecord, int, error) {
	query := url.Values{
		"ticker": []string{ticker},
		"page":   []string{strconv.Itoa(page)},
		"limit":  []string{strconv.Itoa(f.cfg.PageSize)},
	}
	resp, err := f.client.Get(ctx, f.cfg.URL, query)
	if err != nil {
		return nil, 0, err
	}

	parsed, err := parsePage(resp.Body)
	if err != nil {
		return nil, 0, &fetch.Error{Kind: fetch.KindTransport, Host: f.host, Err: fmt.Errorf("page %d: %w", page, err)}
	}

	now := time.Now().UTC()
	records := make([]models.OIRecord, 0, len(parsed.Records))
	for _, r := range parsed.Records {
		records = append(records, models.OIRecord{
			Ticker:         ticker,
			ContractSymbol: r.Symbol,
			OpenInterest:   *r.OpenInterest,
			OIChange:       r.OIChange,
			Page:           page,
			RetrievedAt:    now,
		})
	}
	return records, parsed.Total, nil
}

// dedupe collapses repeated contract identities keeping the most recently
// retrieved value while preserving the position of the first occurrence, so
// page order survives vendor-side dataset shifts.
func dedupe(records []models.OIRecord) []models.OIRecord {
	out := make([]models.OIRecord, 0, len(records))
	index := make(map[string]int, len(records))
	for _, rec := range records {
		if i, ok := index[rec.ContractSymbol]; ok {
			out[i].OpenInterest = rec.OpenInterest
			out[i].OIChange = rec.OIChange
			out[i].Page = rec.Page
			out[i].RetrievedAt = rec.RetrievedAt
			continue
		}
		index[rec.ContractSymbol] = len(out)
		out = append(out, rec)
	}
	return out
}

func errorKind(err error) string {
	var fe *fetch.Error
	if errors.As(err, &fe) {
		return fe.Kind.String()
	}
	return "unknown"
}
