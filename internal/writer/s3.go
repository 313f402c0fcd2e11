package writer

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "optionflow/config"
	"optionflow/internal/models"
	"optionflow/logger"
)

type alertParquetRecord struct {
	Ticker       string  `parquet:"name=ticker, type=BYTE_ARRAY, convertedtype=UTF8"`
	Contract     string  `parquet:"name=contract, type=BYTE_ARRAY, convertedtype=UTF8"`
	Strike       float64 `parquet:"name=strike, type=DOUBLE"`
	Expiration   string  `parquet:"name=expiration, type=BYTE_ARRAY, convertedtype=UTF8"`
	Type         string  `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Volume       int64   `parquet:"name=volume, type=INT64"`
	OpenInterest int64   `parquet:"name=open_interest, type=INT64"`
	LastPrice    float64 `parquet:"name=last_price, type=DOUBLE"`
	Premium      float64 `parquet:"name=premium, type=DOUBLE"`
	Delta        float64 `parquet:"name=delta, type=DOUBLE"`
	Side         string  `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	SnapshotTime int64   `parquet:"name=snapshot_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

type clusterParquetRecord struct {
	Ticker         string  `parquet:"name=ticker, type=BYTE_ARRAY, convertedtype=UTF8"`
	ContractSymbol string  `parquet:"name=contract_symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Direction      string  `parquet:"name=direction, type=BYTE_ARRAY, convertedtype=UTF8"`
	Start          int64   `parquet:"name=start, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	End            int64   `parquet:"name=end, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	PointCount     int32   `parquet:"name=point_count, type=INT32"`
	Strength       float64 `parquet:"name=strength, type=DOUBLE"`
}

type uploadBatch struct {
	dataset string
	ticker  string
	alerts  []models.UnusualActivityRecord
	events  []models.ClusterEvent
	reason  string
}

type memFile struct {
	buffer *bytes.Buffer
}

func newMemFile() *memFile {
	return &memFile{buffer: &bytes.Buffer{}}
}

func (m *memFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFile) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFile) Read([]byte) (int, error)                  { return 0, fmt.Errorf("read not supported") }
func (m *memFile) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFile) Close() error                              { return nil }
func (m *memFile) Bytes() []byte                             { return m.buffer.Bytes() }

// S3Writer archives unusual-activity records and cluster events to S3 as
// partitioned Parquet files. Records buffer per ticker and flush on an
// interval or when a buffer fills.
type S3Writer struct {
	cfg      *appconfig.Config
	s3Client *s3.Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     *sync.WaitGroup

	log *logger.Log

	mu          sync.Mutex
	alerts      map[string][]models.UnusualActivityRecord
	events      map[string][]models.ClusterEvent
	flushTicker *time.Ticker
	maxBuffer   int

	jobCh   chan uploadBatch
	running bool
}

// NewS3Writer configures an S3Writer. It fails when S3 storage is disabled so
// the caller can skip wiring the sink entirely.
func NewS3Writer(cfg *appconfig.Config) (*S3Writer, error) {
	if !cfg.Storage.S3.Enabled {
		return nil, fmt.Errorf("s3 storage disabled")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Storage.S3.Region)}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	maxBuffer := cfg.Storage.S3.MaxBuffer
	if maxBuffer <= 0 {
		maxBuffer = 256
	}

	jobCapacity := maxBuffer * 2
	if jobCapacity < 64 {
		jobCapacity = 64
	}

	return &S3Writer{
		cfg:       cfg,
		s3Client:  s3Client,
		wg:        &sync.WaitGroup{},
		log:       logger.GetLogger(),
		alerts:    make(map[string][]models.UnusualActivityRecord),
		events:    make(map[string][]models.ClusterEvent),
		maxBuffer: maxBuffer,
		jobCh:     make(chan uploadBatch, jobCapacity),
	}, nil
}

// Start launches the flush and upload workers.
func (w *S3Writer) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("s3 writer already running")
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.alerts = make(map[string][]models.UnusualActivityRecord)
	w.events = make(map[string][]models.ClusterEvent)
	interval := w.cfg.Storage.S3.FlushInterval.Std()
	if interval <= 0 {
		interval = time.Minute
	}
	w.flushTicker = time.NewTicker(interval)
	w.mu.Unlock()

	w.log.WithComponent("s3_writer").WithFields(logger.Fields{
		"flush_interval": interval,
		"max_buffer":     w.maxBuffer,
		"bucket":         w.cfg.Storage.S3.Bucket,
	}).Info("Starting S3 archive writer")

	w.wg.Add(1)
	go w.flushLoop()

	w.wg.Add(1)
	go w.uploadWorker()

	return nil
}

// Stop flushes pending buffers and waits for the workers to finish.
func (w *S3Writer) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	ticker := w.flushTicker
	w.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
	}

	w.flushBuffers("shutdown")
	close(w.jobCh)
	w.wg.Wait()

	if cancel != nil {
		cancel()
	}
	w.log.WithComponent("s3_writer").Info("S3 archive writer stopped")
}

// EnqueueAlert buffers an unusual-activity record for archival.
func (w *S3Writer) EnqueueAlert(rec models.UnusualActivityRecord) {
	var flush []models.UnusualActivityRecord
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.alerts[rec.Ticker] = append(w.alerts[rec.Ticker], rec)
	if len(w.alerts[rec.Ticker]) >= w.maxBuffer {
		flush = w.alerts[rec.Ticker]
		delete(w.alerts, rec.Ticker)
	}
	w.mu.Unlock()

	if len(flush) > 0 {
		w.enqueue(uploadBatch{dataset: "alerts", ticker: rec.Ticker, alerts: flush, reason: "max_buffer"})
	}
}

// EnqueueCluster buffers a cluster event for archival.
func (w *S3Writer) EnqueueCluster(evt models.ClusterEvent) {
	var flush []models.ClusterEvent
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.events[evt.Ticker] = append(w.events[evt.Ticker], evt)
	if len(w.events[evt.Ticker]) >= w.maxBuffer {
		flush = w.events[evt.Ticker]
		delete(w.events, evt.Ticker)
	}
	w.mu.Unlock()

	if len(flush) > 0 {
		w.enqueue(uploadBatch{dataset: "clusters", ticker: evt.Ticker, events: flush, reason: "max_buffer"})
	}
}

func (w *S3Writer) flushLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flushBuffers("interval")
		}
	}
}

func (w *S3Writer) flushBuffers(reason string) {
	w.mu.Lock()
	alerts := w.alerts
	events := w.events
	w.alerts = make(map[string][]models.UnusualActivityRecord)
	w.events = make(map[string][]models.ClusterEvent)
	w.mu.Unlock()

	for ticker, recs := range alerts {
		if len(recs) == 0 {
			continue
		}
		w.enqueue(uploadBatch{dataset: "alerts", ticker: ticker, alerts: recs, reason: reason})
	}
	for ticker, evts := range events {
		if len(evts) == 0 {
			continue
		}
		w.enqueue(uploadBatch{dataset: "clusters", ticker: ticker, events: evts, reason: reason})
	}
}

func (w *S3Writer) enqueue(batch uploadBatch) {
	select {
	case w.jobCh <- batch:
	default:
		w.log.WithComponent("s3_writer").WithFields(logger.Fields{
			"dataset": batch.dataset,
			"ticker":  batch.ticker,
		}).Warn("Upload queue full, dropping batch")
	}
}

func (w *S3Writer) uploadWorker() {
	defer w.wg.Done()
	for batch := range w.jobCh {
		w.processBatch(batch)
	}
}

func (w *S3Writer) processBatch(batch uploadBatch) {
	count := len(batch.alerts) + len(batch.events)
	entryLog := w.log.WithComponent("s3_writer").WithFields(logger.Fields{
		"dataset":      batch.dataset,
		"ticker":       batch.ticker,
		"record_count": count,
		"reason":       batch.reason,
	})

	data, err := w.createParquet(batch)
	if err != nil {
		entryLog.WithError(err).Error("Failed to create parquet file")
		return
	}

	key := w.generateS3Key(batch)
	if err := w.uploadToS3(key, data); err != nil {
		entryLog.WithError(err).WithFields(logger.Fields{"key": key}).Error("Failed to upload parquet file")
		return
	}

	logger.IncrementS3Write(int64(len(data)))
	entryLog.WithFields(logger.Fields{
		"s3_key":    key,
		"file_size": len(data),
	}).Info("Batch uploaded")
}

func (w *S3Writer) createParquet(batch uploadBatch) ([]byte, error) {
	mem := newMemFile()

	var pw *writer.ParquetWriter
	var err error
	switch batch.dataset {
	case "alerts":
		pw, err = writer.NewParquetWriter(mem, new(alertParquetRecord), 1)
	case "clusters":
		pw, err = writer.NewParquetWriter(mem, new(clusterParquetRecord), 1)
	default:
		return nil, fmt.Errorf("unknown dataset %q", batch.dataset)
	}
	if err != nil {
		return nil, fmt.Errorf("new parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rec := range batch.alerts {
		row := alertParquetRecord{
			Ticker:       rec.Ticker,
			Contract:     rec.Contract.Symbol,
			Strike:       rec.Contract.Strike,
			Expiration:   rec.Contract.Expiration,
			Type:         string(rec.Contract.Type),
			Volume:       rec.Contract.Volume,
			OpenInterest: rec.Contract.OpenInterest,
			LastPrice:    rec.Contract.LastPrice,
			Premium:      rec.Contract.Premium,
			Delta:        rec.Contract.Delta,
			Side:         string(rec.Side),
			SnapshotTime: rec.SnapshotTime.UnixMilli(),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("write alert record: %w", err)
		}
	}
	for _, evt := range batch.events {
		row := clusterParquetRecord{
			Ticker:         evt.Ticker,
			ContractSymbol: evt.ContractSymbol,
			Direction:      string(evt.Direction),
			Start:          evt.Start.UnixMilli(),
			End:            evt.End.UnixMilli(),
			PointCount:     int32(len(evt.Points)),
			Strength:       evt.Strength,
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("write cluster record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("finalize parquet: %w", err)
	}
	return mem.Bytes(), nil
}

func (w *S3Writer) generateS3Key(batch uploadBatch) string {
	now := time.Now().UTC()
	filename := fmt.Sprintf("%s_%s_%s.parquet",
		strings.ToUpper(batch.ticker),
		now.Format("20060102150405"),
		uuid.NewString(),
	)
	key := filepath.Join(
		fmt.Sprintf("dataset=%s", batch.dataset),
		fmt.Sprintf("ticker=%s", strings.ToUpper(batch.ticker)),
		fmt.Sprintf("date=%s", now.Format("2006-01-02")),
		filename,
	)
	return filepath.ToSlash(key)
}

func (w *S3Writer) uploadToS3(key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.cfg.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type": "parquet",
			"compression":  "snappy",
		},
	}

	ctx, cancel := context.WithTimeout(w.ctx, 2*time.Minute)
	defer cancel()
	if _, err := w.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("upload parquet: %w", err)
	}
	return nil
}
