package selector

import (
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/dvo/proxypool/app"
	"github.com/dvo/proxypool/refresher"
	"github.com/dvo/proxypool/store"

	"github.com/rs/zerolog/log"
)

type poolStore interface {
	SelectBest() (*store.Record, error)
	Working() ([]store.Record, error)
	RecordUsageFailure(proxyURL string) error
}

type refreshTrigger interface {
	TriggerNow()
}

// Selector is the consumer-facing side of the pool. GetProxy returning
// an empty string is a normal outcome, callers fall back to a direct
// connection or skip the operation.
type Selector struct {
	store     poolStore
	refresher refreshTrigger
	refreshed <-chan bool

	strategy string
	rotation atomic.Value // []string, replaced wholesale
	next     uint32
}

func NewSelector(pool *store.Pool, ref *refresher.Refresher) *Selector {
	s := &Selector{
		store:     pool,
		refresher: ref,
		refreshed: ref.Subscribe(),
		strategy:  "fastest",
	}
	s.rotation.Store([]string{})
	return s
}

func (s *Selector) Configure(c app.Config) error {
	s.strategy = c.StrOr("strategy", "fastest")
	switch s.strategy {
	case "fastest", "roundrobin":
		return nil
	default:
		return fmt.Errorf("invalid strategy: %s", s.strategy)
	}
}

func (s *Selector) Start(ctx app.Context) {
	go s.main(ctx)
}

func (s *Selector) main(ctx app.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.refreshed:
			s.rebuild()
			ctx.Heartbeat()
		}
	}
}

// rebuild replaces the round-robin rotation wholesale after every
// refresh cycle, it is never mutated in place.
func (s *Selector) rebuild() {
	records, err := s.store.Working()
	if err != nil {
		log.Warn().Err(err).Msg("cannot rebuild rotation")
		return
	}
	urls := make([]string, 0, len(records))
	for _, r := range records {
		urls = append(urls, r.Proxy.String())
	}
	s.rotation.Store(urls)
}

func (s *Selector) GetProxy() string {
	if s.strategy == "roundrobin" {
		urls, _ := s.rotation.Load().([]string)
		if len(urls) == 0 {
			s.nudge()
			return ""
		}
		n := atomic.AddUint32(&s.next, 1)
		return urls[int(n-1)%len(urls)]
	}
	best, err := s.store.SelectBest()
	if err != nil {
		log.Warn().Err(err).Msg("cannot select best proxy")
		return ""
	}
	if best == nil {
		s.nudge()
		return ""
	}
	return best.Proxy.String()
}

// ReportFailure is fire-and-forget feedback from a consumer whose
// request through a served proxy failed. It only ever logs.
func (s *Selector) ReportFailure(proxyURL string) {
	if proxyURL == "" {
		return
	}
	err := s.store.RecordUsageFailure(proxyURL)
	if err != nil {
		log.Warn().Err(err).Msg("cannot record usage failure")
	}
}

// an empty pool is a good reason to refresh ahead of schedule
func (s *Selector) nudge() {
	if s.refresher == nil {
		return
	}
	s.refresher.TriggerNow()
}

type served struct {
	Proxy string `json:",omitempty"`
}

func (s *Selector) HttpGet(_ *http.Request) (interface{}, error) {
	return served{s.GetProxy()}, nil
}
