package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/liamashdown/whaletracker/internal/cache"
	"github.com/liamashdown/whaletracker/internal/config"
	"github.com/liamashdown/whaletracker/internal/explorer"
	"github.com/liamashdown/whaletracker/internal/ratelimit"
	"github.com/liamashdown/whaletracker/internal/rng"
	"github.com/liamashdown/whaletracker/internal/tracker"
)

var verbose bool

// rootCmd is the base command for the whaletracker CLI
var rootCmd = &cobra.Command{
	Use:   "whaletracker",
	Short: "Whale activity tracker for ERC-20 transfers",
	Long: `whaletracker watches large token transfers through a block explorer API,
classifies the wallets behind them into whale tiers and derives insights and
alerts. Without an explorer API key every command serves deterministic mock data.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds everything a command needs once configuration is loaded
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	service *tracker.Service
	closers []io.Closer
}

// newApp loads configuration and wires the tracker. JSON logs go to stdout for
// the long-running server; one-shot commands log text to stderr so stdout
// stays parseable.
func newApp(server bool) (*app, error) {
	log := logrus.New()
	if server {
		log.SetFormatter(&logrus.JSONFormatter{})
		log.SetOutput(os.Stdout)
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		log.SetOutput(os.Stderr)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)

	a := &app{cfg: cfg, log: log}

	var backend cache.Backend
	if cfg.RedisAddr != "" {
		r := cache.NewRedis(cfg.RedisAddr)
		a.closers = append(a.closers, r)
		backend = r
	} else {
		backend = cache.NewMemory()
	}
	c := cache.New(backend, cfg.CacheTTL, log)

	var upstream tracker.Upstream
	if !cfg.MockOnly() {
		limiter := ratelimit.New(cfg.RateLimitPerMinute, time.Minute, cfg.RateLimitMinSpacing)
		upstream = explorer.NewClient(cfg, limiter, c, log)
	}

	svc, err := tracker.NewService(cfg, upstream, c, rng.FromSeed(cfg.MockSeed), log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create tracker: %w", err)
	}
	a.service = svc

	log.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"chain_id":    cfg.ChainID,
		"mock_only":   cfg.MockOnly(),
		"redis":       cfg.RedisAddr != "",
		"alert_mode":  cfg.AlertMode,
	}).Debug("Configuration loaded")

	return a, nil
}

// Close releases connections opened by newApp
func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close resource")
		}
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
