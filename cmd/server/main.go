package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tycho/api/tcp"
	"tycho/engine"
	"tycho/infra/metrics"
	"tycho/jobs/bsbot"
	"tycho/jobs/feed"
	"tycho/jobs/marketsim"
	"tycho/quant"
)

const (
	tcpPort     = 9001
	metricsAddr = ":9100"
)

func main() {
	// ---------------- Metrics ----------------

	registry := prometheus.NewRegistry()
	met := metrics.New(registry)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("[metrics] server exited: %v", err)
		}
	}()

	// ---------------- Trade feed ----------------

	// Kafka egress stays dark unless brokers are wired in.
	pub, err := feed.New(feed.Config{})
	if err != nil {
		log.Fatalf("trade feed init failed: %v", err)
	}

	var tradeFeed engine.TradeFeed
	if pub != nil {
		tradeFeed = pub
		defer pub.Close()
	}

	// ---------------- Engine ----------------

	eng := engine.NewServer(engine.Config{
		Symbol:        "FOO",
		InCapacity:    4096,
		OutCapacity:   4096,
		TrackedUserID: 1,
		BotUserID:     9999,
	}, tradeFeed, met)
	eng.Start()

	demux := engine.NewDemux(eng)

	// ---------------- Market simulator ----------------

	sim := marketsim.New(eng, marketsim.Config{
		UserID:       0,
		InstrumentID: 1,
		S0:           100.0,
		Sigma:        0.20,
		Dt:           0.15,
		Tick:         0.01,
	})
	sim.Start()

	// ---------------- Black–Scholes bot ----------------

	bot := bsbot.New(eng, demux.Subscribe(8192), bsbot.Config{
		UserID:               9999,
		UnderlyingInstrument: 1,
		OptionInstrument:     2,
		OptType:              quant.Call,
		Strike:               100.0,
		ExpirySeconds:        3600 * 24,
		Rate:                 0.0,
		IV:                   0.20,
		Spread:               0.5,
		Qty:                  5,
		HedgeTolerance:       0.5,
	})
	bot.Start()

	// ---------------- Network ----------------

	srv := tcp.NewServer(eng, demux, tcpPort)
	if err := srv.Start(); err != nil {
		log.Fatalf("tcp server start failed: %v", err)
	}

	demux.Start()

	log.Printf("system ready: engine, simulator, bs-bot, tcp :%d, metrics %s", tcpPort, metricsAddr)

	// Idle until terminated.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Printf("shutting down")
	bot.Stop()
	sim.Stop()
	srv.Stop()
	demux.Stop()
	eng.Stop()
}
