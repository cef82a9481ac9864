package app

import (
	"context"

	"github.com/rs/zerolog/log"
)

func MockCtx() *mockCtx {
	ctx, cancel := context.WithCancel(context.Background())
	return &mockCtx{
		ctx:    ctx,
		Cancel: cancel,
		Wait:   make(chan bool),
	}
}

// MockStart runs a service under a cancellable mock context and
// returns the stop callback, usually deferred right away.
func MockStart(s Service) func() {
	ctx := MockCtx()
	ctx.Start(s)
	return func() {
		ctx.Cancel()
	}
}

type mockCtx struct {
	ctx    context.Context
	Cancel func()
	Wait   chan bool
	name   string
	spin   bool
}

func (a *mockCtx) Start(s Service) {
	s.Start(a)
	a.Spin()
}

// Spin makes subsequent heartbeats non-blocking
func (a *mockCtx) Spin() {
	a.spin = true
}

// WaitAndSpin blocks until the first heartbeat arrives
func (a *mockCtx) WaitAndSpin() {
	<-a.Wait
	a.spin = true
}

func (a *mockCtx) Ctx() context.Context {
	return a.ctx
}

func (a *mockCtx) Done() <-chan struct{} {
	return a.ctx.Done()
}

func (a *mockCtx) Heartbeat() {
	if a.spin {
		return
	}
	log.Trace().Str("service", a.name).Msg("heartbeat mock")
	a.Wait <- true
}
