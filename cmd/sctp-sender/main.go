package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alxayo/sctp-sender/internal/ipxmit"
	"github.com/alxayo/sctp-sender/internal/logger"
	"github.com/alxayo/sctp-sender/internal/metrics"
	"github.com/alxayo/sctp-sender/internal/sctp/association"
	"github.com/alxayo/sctp-sender/internal/sctp/chunk"
	"github.com/alxayo/sctp-sender/internal/sctp/packet"
	"github.com/alxayo/sctp-sender/internal/sctp/transport"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	logger.Init()
	if err := logger.SetLevel(cfg.logLevel); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", cfg.logLevel)
	}
	log := logger.Logger().With("component", "cli")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.New("sctp_sender",
		[]string{"transport"},
		prometheus.Labels{"dest": cfg.dest},
	)
	prometheus.MustRegister(collector)

	var metricsServer *http.Server
	if cfg.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.metricsAddr, Handler: mux}
		go func() {
			log.Info("metrics server listening", "addr", cfg.metricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server stopped", "error", err.Error())
			}
		}()
	}

	conn, err := net.Dial("tcp", cfg.dest)
	if err != nil {
		log.Error("failed to dial destination", "dest", cfg.dest, "error", err.Error())
		os.Exit(1)
	}
	defer conn.Close()

	route := ipxmit.DetectRoute(conn)
	tr := transport.NewTraced(int(cfg.pathMTU), route)
	tr.Cwnd = 1 << 20
	tr.AFSpecific.Xmit = ipxmit.Xmit
	tr.AFSpecific.ECNCapable = ipxmit.ECNCapable
	collector.AddTransport(tr, tr.ID)
	defer collector.RemoveTransport(tr)

	asoc := association.New()
	asoc.Peer.Rwnd = 1 << 20
	asoc.Rwnd = 1 << 20
	collector.Add(asoc, tr.ID)
	defer collector.Remove(asoc)

	if cfg.authKey != "" {
		asoc.AuthKeys = map[uint16][]byte{uint16(cfg.authKeyID): []byte(cfg.authKey)}
		asoc.Peer.AuthKeyID = uint16(cfg.authKeyID)
		asoc.Peer.AuthHMACID = 1
	}

	log.Info("sender started", "dest", cfg.dest, "transport", tr.ID, "version", version)

	if err := runSendLoop(ctx, log, collector, tr, asoc, cfg); err != nil {
		log.Error("send loop stopped with error", "error", err.Error())
	}

	log.Info("shutdown signal received")
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics server shutdown error", "error", err.Error())
		}
	}
}

// runSendLoop offers cfg.count DATA chunks to p one at a time, pacing them by
// cfg.interval and stopping early if ctx is cancelled. Each chunk admission
// accepts is transmitted at once. A chunk answered with Delay or any other
// non-Ok result (the latter logged) is skipped: it is not queued and not
// retried.
func runSendLoop(ctx context.Context, log interface {
	Info(string, ...any)
	Warn(string, ...any)
}, collector *metrics.Collector, tr *transport.Transport, asoc *association.Association, cfg *cliConfig) error {
	p := packet.Init(tr, uint16(cfg.sourcePort), uint16(cfg.destPort))
	p.Association = asoc
	p.NoDelay = cfg.nodelay
	p.Metrics = collector
	p.Configure(uint32(time.Now().UnixNano()), cfg.ecn)

	ticker := time.NewTicker(cfg.interval)
	defer ticker.Stop()

	for i := uint(0); i < cfg.count; i++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		authRequired := asoc.AuthKeys != nil
		c, err := chunk.NewData(0, 0, make([]byte, cfg.payloadSize), true, true, authRequired)
		if err != nil {
			return err
		}

		res := p.AppendChunk(c)
		if res == packet.Delay {
			continue
		}
		if res != packet.Ok {
			log.Warn("chunk rejected by admission", "result", res.String())
			continue
		}

		if _, err := p.Transmit(); err != nil {
			log.Warn("transmit error", "error", err.Error())
		}
	}

	// Flush anything still queued after the loop ends. A chunk that got
	// Delay was never queued, so it is not part of this flush.
	if !p.IsEmpty() {
		if _, err := p.Transmit(); err != nil {
			log.Warn("final flush transmit error", "error", err.Error())
		}
	}
	return nil
}
