package stats

import (
	"net/http"
	"time"

	"github.com/dvo/proxypool/app"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type state string

const (
	Idle    state = "idle"
	Running state = "running"
	Failed  state = "failed"
)

type Stat struct {
	Name    string
	State   state
	Found   int
	Updated time.Time
	Failure string `json:",omitempty"`
}

type increment int

const (
	launched increment = iota
	found
	finished
)

// update is a "fat" model to reduce number of channels
type update struct {
	feedID int
	name   string
	state  increment
	found  int
	err    error
}

type Feeds map[int]Stat

func (f Feeds) IsRunning(id int) bool {
	return f[id].State == Running
}

// Stats keeps per-feed refresh bookkeeping. All mutation happens on
// the main goroutine, callers only ever see copies.
type Stats struct {
	feeds    map[int]*Stat
	updates  chan update
	snapshot chan chan Feeds
}

func NewStats() *Stats {
	return &Stats{
		feeds:    map[int]*Stat{},
		updates:  make(chan update),
		snapshot: make(chan chan Feeds),
	}
}

func (s *Stats) Start(ctx app.Context) {
	go s.main(ctx)
}

func (s *Stats) main(ctx app.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-s.updates:
			s.apply(u)
			ctx.Heartbeat()
		case req := <-s.snapshot:
			out := Feeds{}
			for k, v := range s.feeds {
				out[k] = *v
			}
			req <- out
		}
	}
}

func (s *Stats) apply(u update) {
	v, ok := s.feeds[u.feedID]
	if !ok {
		v = &Stat{State: Idle}
		s.feeds[u.feedID] = v
	}
	if u.name != "" {
		v.Name = u.name
	}
	switch u.state {
	case launched:
		v.State = Running
		v.Found = 0
		v.Failure = ""
	case found:
		v.Found += u.found
	case finished:
		v.State = Idle
		v.Updated = time.Now()
		if u.err != nil {
			v.State = Failed
			v.Failure = app.ShErr(u.err).Error()
		}
	}
}

func (s *Stats) Launch(id int, name string) {
	s.updates <- update{feedID: id, name: name, state: launched}
}

func (s *Stats) Found(id int, count int) {
	s.updates <- update{feedID: id, state: found, found: count}
}

func (s *Stats) Finish(id int, err error) {
	s.updates <- update{feedID: id, state: finished, err: err}
}

func (s *Stats) Snapshot() Feeds {
	req := make(chan Feeds)
	defer close(req)
	s.snapshot <- req
	return <-req
}

func (s *Stats) HttpGet(_ *http.Request) (interface{}, error) {
	snapshot := s.Snapshot()
	ids := maps.Keys(snapshot)
	slices.Sort(ids)
	out := make([]Stat, 0, len(ids))
	for _, id := range ids {
		out = append(out, snapshot[id])
	}
	return out, nil
}
