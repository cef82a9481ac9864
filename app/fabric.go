package app

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.DurationFieldUnit = time.Second
}

type Fabric struct {
	Factories Factories

	singletons    Singletons
	services      map[string]Service
	contexts      map[string]*serviceContext
	updated       map[string]time.Time
	configuration configuration

	syncService chan string
	askStats    chan chan stats
}

type stat struct {
	Endpoint string `json:",omitempty"`
	Updated  time.Time
}

type stats map[string]stat

type aServer interface {
	ListenAndServe() error
	Close() error
}

func Run(ctx context.Context, f Factories) {
	(&Fabric{Factories: f}).Start(ctx)
}

func (f *Fabric) Start(ctx context.Context) {
	f.syncService = make(chan string)
	f.askStats = make(chan chan stats)
	f.updated = map[string]time.Time{}
	f.contexts = map[string]*serviceContext{}
	f.services = map[string]Service{}
	f.loadConfiguration()
	f.initLogging()
	// REST resources need server router to attach to
	f.Factories["server"] = newServer
	// server needs fabric
	f.Factories["fabric"] = func() *Fabric {
		return f
	}
	// and every dependency would just recursively resolve
	f.singletons = f.Factories.Init()

	monitor := f.singletons.Monitor()

	// treat all ListenAndServe exposing singletons as another service
	f.services["monitor"] = monitor

	f.initServices()
	f.configureServices()
	f.startAll(ctx)
	go f.sync(ctx)

	// wait for all servers to stop
	monitor.Wait()
}

func (f *Fabric) initLogging() {
	levels := map[string]zerolog.Level{
		"trace": zerolog.TraceLevel,
		"debug": zerolog.DebugLevel,
		"info":  zerolog.InfoLevel,
		"warn":  zerolog.WarnLevel,
	}
	logLevel := f.configuration["log"].StrOr("level", "info")
	level, ok := levels[logLevel]
	if !ok {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logFormat := f.configuration["log"].StrOr("format", "pretty")
	switch logFormat {
	case "pretty":
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	case "json":
		log.Logger = log.Output(os.Stdout)
	case "file":
		var lb lumberjack.Logger
		lb.Filename = f.configuration["log"].StrOr("file", "$PWD/$APP.log")
		lb.MaxBackups = 0
		log.Logger = log.Output(&lb)
	}
}

func (f *Fabric) loadConfiguration() {
	conf, err := getConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load configuration")
	}
	f.configuration = conf
}

func (s Singletons) Monitor() *monitorServers {
	return &monitorServers{Singletons: s}
}

type monitorServers struct {
	sync.WaitGroup
	Singletons
}

func (m *monitorServers) Start(ctx Context) {
	for s, v := range m.Singletons {
		srv, ok := v.(aServer)
		if !ok {
			continue
		}
		m.Add(1)
		go m.closeOnDone(ctx.Done(), s, srv)
		go m.listenAndServe(s, srv)
	}
}

func (m *monitorServers) closeOnDone(done <-chan struct{}, service string, srv aServer) {
	<-done
	err := srv.Close()
	log.Warn().Str("service", service).Err(err).Msg("parent context done")
}

func (m *monitorServers) listenAndServe(service string, server aServer) {
	log.Info().Str("service", service).Msg("starting")
	err := server.ListenAndServe()
	log.Warn().Str("service", service).Err(err).Msg("stopped")
	m.Done()
}

func (f *Fabric) startAll(ctx context.Context) {
	for service := range f.services {
		log.Debug().Str("service", service).Msg("starting")
		f.contexts[service] = &serviceContext{
			ctx:  ctx,
			sync: f.syncService,
			name: service,
		}
		f.services[service].Start(f.contexts[service])
	}
	log.Debug().Msg("all services loaded")
}

func (f *Fabric) configureServices() {
	for service, s := range f.singletons {
		c, ok := s.(configurable)
		if !ok {
			continue
		}
		err := c.Configure(f.configuration[service])
		if err != nil {
			log.Fatal().Err(err).
				Str("service", service).
				Msg("cannot configure")
		}
	}
}

func (f *Fabric) initServices() {
	for k, v := range f.singletons {
		srv, ok := v.(Service)
		if !ok {
			continue
		}
		f.services[k] = srv
	}
}

func (f *Fabric) snapshot() stats {
	resp := make(chan stats)
	f.askStats <- resp
	return <-resp
}

func (f *Fabric) sync(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case resp := <-f.askStats:
			s := stats{}
			for k := range f.services {
				s[k] = stat{
					Updated: f.updated[k],
				}
			}
			resp <- s
		case service := <-f.syncService:
			// keep service up-to-date time
			f.updated[service] = time.Now()
		}
	}
}
