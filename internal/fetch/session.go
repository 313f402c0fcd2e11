package fetch

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxConsecutiveRejects retires a session after this many back-to-back
// vendor rejections (429/403).
const maxConsecutiveRejects = 2

// userAgents maps a fingerprint profile id to the User-Agent the vendor sees.
// Profiles without an entry fall back to a recent Chrome string.
var userAgents = map[string]string{
	"chrome110":  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/110.0.0.0 Safari/537.36",
	"chrome116":  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/116.0.0.0 Safari/537.36",
	"chrome119":  "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"chrome120":  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"chrome123":  "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"chrome124":  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"edge99":     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/99.0.4844.51 Safari/537.36 Edg/99.0.1150.36",
	"edge101":    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/101.0.4951.64 Safari/537.36 Edg/101.0.1210.47",
	"safari15_3": "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.3 Safari/605.1.15",
	"safari15_5": "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.5 Safari/605.1.15",
	"safari17_0": "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
}

const fallbackUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Session is one vendor-facing identity: a fingerprint profile plus an opaque
// token the vendor can correlate cookies against. Owned by the pool; callers
// only read it.
type Session struct {
	ID      string
	Profile string
	Token   string
	Created time.Time

	requests           int
	consecutiveRejects int
	retired            bool
}

func (s *Session) UserAgent() string {
	if ua, ok := userAgents[s.Profile]; ok {
		return ua
	}
	return fallbackUserAgent
}

// SessionPool hands out sessions per host and tracks their health. A session
// is retired on its second consecutive rejection, after maxRequests uses, or
// once it outlives maxAge. Rotation never picks the host's previous profile.
type SessionPool struct {
	mu          sync.Mutex
	profiles    []string
	maxRequests int
	maxAge      time.Duration
	rng         *rand.Rand

	active      map[string]*Session
	lastProfile map[string]string
}

func NewSessionPool(profiles []string, maxRequests int, maxAge time.Duration) *SessionPool {
	return &SessionPool{
		profiles:    append([]string(nil), profiles...),
		maxRequests: maxRequests,
		maxAge:      maxAge,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		active:      make(map[string]*Session),
		lastProfile: make(map[string]string),
	}
}

// Acquire returns the host's live session, replacing it first when it is
// retired, stale, or over its request budget. The request counter is bumped
// under the pool lock so concurrent workers share the budget correctly.
func (p *SessionPool) Acquire(host string) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.active[host]
	if s == nil || s.retired || s.requests >= p.maxRequests || time.Since(s.Created) > p.maxAge {
		s = p.newSessionLocked(host)
		p.active[host] = s
	}
	s.requests++
	return s
}

// Retire discards the host's current session regardless of its health, so the
// next Acquire mints a fresh identity. Used on 429 and for the paginated
// fetcher's periodic renewal.
func (p *SessionPool) Retire(host string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s := p.active[host]; s != nil {
		s.retired = true
	}
}

// RecordSuccess clears the session's consecutive-rejection streak.
func (p *SessionPool) RecordSuccess(s *Session) {
	p.mu.Lock()
	s.consecutiveRejects = 0
	p.mu.Unlock()
}

// RecordRejection notes a vendor rejection against the session and retires it
// once the streak reaches the limit. Returns true when the session was retired.
func (p *SessionPool) RecordRejection(s *Session) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	s.consecutiveRejects++
	if s.consecutiveRejects >= maxConsecutiveRejects {
		s.retired = true
	}
	return s.retired
}

func (p *SessionPool) newSessionLocked(host string) *Session {
	profile := p.pickProfileLocked(host)
	p.lastProfile[host] = profile
	return &Session{
		ID:      uuid.NewString(),
		Profile: profile,
		Token:   uuid.NewString(),
		Created: time.Now(),
	}
}

func (p *SessionPool) pickProfileLocked(host string) string {
	if len(p.profiles) == 1 {
		return p.profiles[0]
	}
	last := p.lastProfile[host]
	for {
		profile := p.profiles[p.rng.Intn(len(p.profiles))]
		if profile != last {
			return profile
		}
	}
}
