package app

import (
	"fmt"
	"net/http"
)

func newServiceA() *serviceA {
	return &serviceA{
		Number: 100500,
	}
}

type serviceA struct {
	Number int
}

func (a *serviceA) Configure(c Config) (err error) {
	return nil
}

func (a *serviceA) Start(ctx Context) {
	// immediately update a state
	go ctx.Heartbeat()
}

func (a *serviceA) HttpGet(*http.Request) (interface{}, error) {
	return 1, nil
}

func (a *serviceA) HttpPost(*http.Request) (interface{}, error) {
	return "accepted", nil
}

func (a *serviceA) HttpDeleteByID(id string, r *http.Request) (interface{}, error) {
	switch id {
	case "error":
		return nil, fmt.Errorf("just error: %s", id)
	case "not-found":
		return nil, NotFound("no ID found")
	default:
		panic(fmt.Errorf("panic with error: %s", id))
	}
}
