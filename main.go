package main

import (
	"context"
	"fmt"

	"github.com/dvo/proxypool/app"
	"github.com/dvo/proxypool/checker"
	"github.com/dvo/proxypool/feeds"
	"github.com/dvo/proxypool/refresher"
	"github.com/dvo/proxypool/selector"
	"github.com/dvo/proxypool/stats"
	"github.com/dvo/proxypool/store"
)

var version = "devel"

func main() {
	fmt.Printf("proxypool v%s\n", version)
	app.Run(context.Background(), app.Factories{
		"checker":   checker.NewChecker,
		"feeds":     feeds.NewAdapter,
		"pool":      store.NewPool,
		"refresher": refresher.NewRefresher,
		"selector":  selector.NewSelector,
		"stats":     stats.NewStats,
	})
}
