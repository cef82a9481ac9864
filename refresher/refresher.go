package refresher

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dvo/proxypool/app"
	"github.com/dvo/proxypool/checker"
	"github.com/dvo/proxypool/feeds"
	"github.com/dvo/proxypool/pxy"
	"github.com/dvo/proxypool/store"
)

type candidateSource interface {
	Fetch(ctx context.Context) []pxy.Proxy
}

type proxyChecker interface {
	Check(ctx context.Context, proxy pxy.Proxy) (time.Duration, error)
}

type poolStore interface {
	UpsertWorking(c pxy.Proxy, latency time.Duration) error
	MarkFailed(host string, port uint16) error
	EvictDead(threshold int) (int, error)
}

// Cycle is what one scheduled refresh did, kept for the REST surface.
type Cycle struct {
	Started    time.Time
	Took       time.Duration
	Candidates int
	Checked    int
	Working    int
	Evicted    int
	Stopped    bool `json:",omitempty"`
}

// Refresher periodically pulls candidates from the feeds, probes them
// in bounded-concurrency batches and persists every outcome as soon as
// it is known, so that partial progress survives a crash mid-cycle.
type Refresher struct {
	feeds   candidateSource
	checker proxyChecker
	store   poolStore

	interval   time.Duration
	batchSize  int
	minChecked int
	minWorking int
	evictAfter int

	trigger  chan bool
	snapshot chan chan Cycle
	subs     []chan bool
	last     Cycle
}

func NewRefresher(feeds *feeds.Adapter, checker checker.Checker, pool *store.Pool) *Refresher {
	return &Refresher{
		feeds:      feeds,
		checker:    checker,
		store:      pool,
		interval:   30 * time.Minute,
		batchSize:  20,
		minChecked: 10,
		minWorking: 3,
		evictAfter: 5,
		trigger:    make(chan bool, 1),
		snapshot:   make(chan chan Cycle),
	}
}

func (r *Refresher) Configure(c app.Config) error {
	r.interval = c.DurOr("interval", 30*time.Minute)
	r.batchSize = c.IntOr("batch", 20)
	r.minChecked = c.IntOr("min_checked", 10)
	r.minWorking = c.IntOr("min_working", 3)
	r.evictAfter = c.IntOr("evict_after", 5)
	return nil
}

// Subscribe returns a channel that fires after every finished cycle.
// Must be called before Start.
func (r *Refresher) Subscribe() <-chan bool {
	sub := make(chan bool, 1)
	r.subs = append(r.subs, sub)
	return sub
}

// TriggerNow schedules an out-of-band cycle. Non-blocking, a cycle
// already pending is good enough.
func (r *Refresher) TriggerNow() {
	select {
	case r.trigger <- true:
	default:
	}
}

func (r *Refresher) Start(ctx app.Context) {
	go r.main(ctx)
}

func (r *Refresher) main(ctx app.Context) {
	next := time.Now()
	for {
		start := time.After(time.Until(next))
		select {
		case <-ctx.Done():
			return
		case res := <-r.snapshot:
			res <- r.last
			continue
		case <-r.trigger:
		case <-start:
		}
		r.last = r.runCycle(ctx.Ctx())
		next = time.Now().Add(r.interval)
		for _, sub := range r.subs {
			select {
			case sub <- true:
			default:
			}
		}
		ctx.Heartbeat()
	}
}

// runCycle never propagates a failure: a bad feed, a bad proxy or a
// store hiccup must not stop the schedule.
func (r *Refresher) runCycle(ctx context.Context) (c Cycle) {
	log := app.Log.From(ctx)
	c.Started = time.Now()
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("refresh cycle panicked")
		}
		c.Took = time.Since(c.Started).Round(time.Millisecond)
	}()
	candidates := r.feeds.Fetch(ctx)
	c.Candidates = len(candidates)
	if len(candidates) == 0 {
		log.Info().Msg("no candidates, empty cycle")
		return
	}
	// avoid always probing the same prefix of a large feed
	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	for i := 0; i < len(candidates); i += r.batchSize {
		end := i + r.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		c.Working += r.validateBatch(ctx, candidates[i:end])
		c.Checked += end - i
		if c.Checked >= r.minChecked && c.Working >= r.minWorking {
			c.Stopped = true
			log.Debug().
				Int("checked", c.Checked).
				Int("working", c.Working).
				Msg("pool replenished, stopping early")
			break
		}
	}
	if c.Working < r.minWorking {
		log.Warn().
			Int("checked", c.Checked).
			Int("working", c.Working).
			Msg("exhausted candidates below working minimum")
	}
	evicted, err := r.store.EvictDead(r.evictAfter)
	if err != nil {
		log.Warn().Err(err).Msg("cannot evict")
	}
	c.Evicted = evicted
	log.Info().
		Int("candidates", c.Candidates).
		Int("checked", c.Checked).
		Int("working", c.Working).
		Int("evicted", c.Evicted).
		Dur("took", time.Since(c.Started)).
		Msg("finished refresh cycle")
	return c
}

func (r *Refresher) validateBatch(ctx context.Context, batch []pxy.Proxy) int {
	var wg sync.WaitGroup
	var working int32
	for _, proxy := range batch {
		wg.Add(1)
		go func(proxy pxy.Proxy) {
			defer wg.Done()
			pctx := app.Log.WithStringer(ctx, "proxy", proxy)
			log := app.Log.From(pctx)
			speed, err := r.checker.Check(pctx, proxy)
			if err != nil {
				log.Trace().Err(app.ShErr(err)).Msg("check failed")
				err = r.store.MarkFailed(proxy.Host, proxy.Port)
				if err != nil {
					log.Warn().Err(err).Msg("cannot mark failed")
				}
				return
			}
			err = r.store.UpsertWorking(proxy, speed)
			if err != nil {
				log.Warn().Err(err).Msg("cannot save")
				return
			}
			atomic.AddInt32(&working, 1)
			log.Debug().Dur("speed", speed).Msg("working")
		}(proxy)
	}
	wg.Wait()
	return int(working)
}

func (r *Refresher) Snapshot() Cycle {
	out := make(chan Cycle)
	defer close(out)
	r.snapshot <- out
	return <-out
}

func (r *Refresher) HttpGet(_ *http.Request) (interface{}, error) {
	return r.Snapshot(), nil
}

func (r *Refresher) HttpPost(_ *http.Request) (interface{}, error) {
	r.TriggerNow()
	return "scheduled", nil
}
