package feed

import (
	"sync"
	"time"

	"optionflow/internal/models"
)

// ScanStatus is the per-ticker health the feed exposes: consumers render the
// last successful records plus an explicit stale indicator instead of blank
// data when scans start failing.
type ScanStatus struct {
	Ticker      string    `json:"ticker"`
	LastSuccess time.Time `json:"last_success"`
	LastError   string    `json:"last_error,omitempty"`
	Stale       bool      `json:"stale"`
}

// Store retains the most recent alert and cluster records per ticker for late
// joiners, plus scan health. All values handed out are copies.
type Store struct {
	mu       sync.RWMutex
	history  int
	alerts   map[string][]models.UnusualActivityRecord
	clusters map[string][]models.ClusterEvent
	status   map[string]*ScanStatus

	subs   map[int64]chan Update
	nextID int64
}

// Update is one live feed item pushed to websocket subscribers.
type Update struct {
	Kind    string                        `json:"kind"`
	Alert   *models.UnusualActivityRecord `json:"alert,omitempty"`
	Cluster *models.ClusterEvent          `json:"cluster,omitempty"`
}

func NewStore(history int) *Store {
	if history <= 0 {
		history = 200
	}
	return &Store{
		history:  history,
		alerts:   make(map[string][]models.UnusualActivityRecord),
		clusters: make(map[string][]models.ClusterEvent),
		status:   make(map[string]*ScanStatus),
		subs:     make(map[int64]chan Update),
	}
}

// AddAlert retains the record and pushes it to live subscribers.
func (s *Store) AddAlert(rec models.UnusualActivityRecord) {
	s.mu.Lock()
	list := append(s.alerts[rec.Ticker], rec)
	if len(list) > s.history {
		list = list[len(list)-s.history:]
	}
	s.alerts[rec.Ticker] = list
	s.mu.Unlock()

	s.broadcast(Update{Kind: "alert", Alert: &rec})
}

// AddCluster retains the event and pushes it to live subscribers.
func (s *Store) AddCluster(evt models.ClusterEvent) {
	s.mu.Lock()
	list := append(s.clusters[evt.Ticker], evt)
	if len(list) > s.history {
		list = list[len(list)-s.history:]
	}
	s.clusters[evt.Ticker] = list
	s.mu.Unlock()

	s.broadcast(Update{Kind: "cluster", Cluster: &evt})
}

// RecordScan notes the outcome of a scan cycle for the ticker. A nil error
// clears the stale indicator; a failure keeps the last successful data but
// flags it stale.
func (s *Store) RecordScan(ticker string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.status[ticker]
	if st == nil {
		st = &ScanStatus{Ticker: ticker}
		s.status[ticker] = st
	}
	if err == nil {
		st.LastSuccess = time.Now().UTC()
		st.LastError = ""
		st.Stale = false
		return
	}
	st.LastError = err.Error()
	st.Stale = true
}

// Alerts returns the retained alerts for the ticker, newest last.
func (s *Store) Alerts(ticker string) []models.UnusualActivityRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.UnusualActivityRecord(nil), s.alerts[ticker]...)
}

// Clusters returns the retained cluster events for the ticker, newest last.
func (s *Store) Clusters(ticker string) []models.ClusterEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ClusterEvent(nil), s.clusters[ticker]...)
}

// Status returns the scan health for every known ticker.
func (s *Store) Status() []ScanStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ScanStatus, 0, len(s.status))
	for _, st := range s.status {
		out = append(out, *st)
	}
	return out
}

// Subscribe registers a live update channel. Slow subscribers drop updates
// rather than blocking producers.
func (s *Store) Subscribe() (int64, <-chan Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	ch := make(chan Update, 64)
	s.subs[id] = ch
	return id, ch
}

// Unsubscribe removes and closes the subscriber channel.
func (s *Store) Unsubscribe(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Store) broadcast(u Update) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.subs {
		select {
		case ch <- u:
		default:
		}
	}
}
