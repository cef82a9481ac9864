package app

import "context"

type Service interface {
	Start(Context)
}

type Context interface {
	Ctx() context.Context

	// Propagates Done channel from parent context.
	Done() <-chan struct{}

	// Heartbeat marks the service as recently active, so that the
	// monitor endpoint can report per-service update times. Second
	// major use is as unit testing blocking hook.
	Heartbeat()
}

type serviceContext struct {
	ctx  context.Context
	name string
	sync chan string
}

func (sc *serviceContext) Ctx() context.Context {
	return sc.ctx
}

func (sc *serviceContext) Done() <-chan struct{} {
	return sc.ctx.Done()
}

func (sc *serviceContext) Heartbeat() {
	sc.sync <- sc.name
}
