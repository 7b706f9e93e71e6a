package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"
)

// version is injected at build time with -ldflags "-X main.version=...".
var version = "dev"

// cliConfig holds user-supplied flag values prior to translation into the
// transport/association pair main.go builds.
type cliConfig struct {
	dest        string
	sourcePort  uint
	destPort    uint
	pathMTU     uint
	payloadSize uint
	count       uint
	interval    time.Duration
	nodelay     bool
	ecn         bool
	authKey     string
	authKeyID   uint
	metricsAddr string
	logLevel    string
	showVersion bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("sctp-sender", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}
	fs.StringVar(&cfg.dest, "dest", "", "destination address, host:port (required unless -version)")
	fs.UintVar(&cfg.sourcePort, "source-port", 10000, "SCTP source port")
	fs.UintVar(&cfg.destPort, "dest-port", 10000, "SCTP destination port")
	fs.UintVar(&cfg.pathMTU, "pathmtu", 1500, "initial path MTU in bytes")
	fs.UintVar(&cfg.payloadSize, "payload-size", 512, "DATA chunk payload size in bytes")
	fs.UintVar(&cfg.count, "count", 10, "number of DATA chunks to send")
	fs.DurationVar(&cfg.interval, "interval", 100*time.Millisecond, "delay between sends")
	fs.BoolVar(&cfg.nodelay, "nodelay", false, "disable Nagle-style coalescing")
	fs.BoolVar(&cfg.ecn, "ecn", false, "mark the underlying socket ECN-capable")
	fs.StringVar(&cfg.authKey, "auth-key", "", "shared secret for SCTP-AUTH (empty disables AUTH bundling)")
	fs.UintVar(&cfg.authKeyID, "auth-key-id", 0, "shared key id for SCTP-AUTH")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", "", "address to serve /metrics on (empty disables the exporter)")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	fs.BoolVar(&cfg.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.showVersion {
		return cfg, nil
	}
	if cfg.dest == "" {
		return nil, errors.New("-dest is required")
	}
	if cfg.pathMTU < 68 {
		return nil, fmt.Errorf("-pathmtu must be at least 68, got %d", cfg.pathMTU)
	}
	switch cfg.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid -log-level %q", cfg.logLevel)
	}
	return cfg, nil
}
