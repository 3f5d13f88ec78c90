package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"ico2png/internal/fetch"
	"ico2png/internal/handler"
	"ico2png/pkg/logger"
	"ico2png/pkg/ratelimit"

	"golang.org/x/sync/errgroup"
)

// Config is the daemon configuration. Every flag may also be set through
// an ICO2PNG_* environment variable; flags win.
type Config struct {
	Port          int
	LogLevel      string
	MaxBodyBytes  int64
	BrowserMaxAge time.Duration
	CDNSMaxAge    time.Duration
	UseETag       bool
	Lenient       bool
	AllowFetch    bool
	FetchTimeout  time.Duration
	GlobalRate    int
	GlobalBurst   int
	IPRate        int
	IPBurst       int
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger.Init()
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Error("%v", err)
		os.Exit(2)
	}
	logger.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := serve(ctx, cfg); err != nil {
		logger.Error("Server failed: %v", err)
		os.Exit(1)
	}
}

func loadConfig(args []string) (*Config, error) {
	c := &Config{}
	fs := flag.NewFlagSet("ico2pngd", flag.ContinueOnError)
	fs.IntVar(&c.Port, "port", envInt("ICO2PNG_PORT", 8080), "listen port")
	fs.StringVar(&c.LogLevel, "log-level", envString("ICO2PNG_LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	fs.Int64Var(&c.MaxBodyBytes, "max-body", int64(envInt("ICO2PNG_MAX_BODY", handler.DefaultMaxBodyBytes)), "largest accepted POST body in bytes")
	fs.DurationVar(&c.BrowserMaxAge, "browser-max-age", envDuration("ICO2PNG_BROWSER_MAX_AGE", 24*time.Hour), "Cache-Control max-age")
	fs.DurationVar(&c.CDNSMaxAge, "cdn-max-age", envDuration("ICO2PNG_CDN_MAX_AGE", 7*24*time.Hour), "Cache-Control s-maxage")
	fs.BoolVar(&c.UseETag, "etag", envBool("ICO2PNG_ETAG", true), "send ETags and answer If-None-Match")
	fs.BoolVar(&c.Lenient, "lenient", envBool("ICO2PNG_LENIENT", false), "always allow the fallback decoder")
	fs.BoolVar(&c.AllowFetch, "allow-fetch", envBool("ICO2PNG_ALLOW_FETCH", true), "allow conversion by url= and page=")
	fs.DurationVar(&c.FetchTimeout, "fetch-timeout", envDuration("ICO2PNG_FETCH_TIMEOUT", 10*time.Second), "upstream fetch timeout")
	fs.IntVar(&c.GlobalRate, "rate", envInt("ICO2PNG_RATE", 0), "global requests per second (0 = unlimited)")
	fs.IntVar(&c.GlobalBurst, "burst", envInt("ICO2PNG_BURST", 0), "global burst")
	fs.IntVar(&c.IPRate, "ip-rate", envInt("ICO2PNG_IP_RATE", 0), "per-client requests per second (0 = unlimited)")
	fs.IntVar(&c.IPBurst, "ip-burst", envInt("ICO2PNG_IP_BURST", 0), "per-client burst")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if c.Port <= 0 || c.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", c.Port)
	}
	return c, nil
}

func serve(ctx context.Context, c *Config) error {
	var fetcher *fetch.Client
	if c.AllowFetch {
		fetcher = fetch.NewClient(c.FetchTimeout, false)
	}
	hcfg := handler.NewConfig(fetcher, c.BrowserMaxAge, c.CDNSMaxAge, c.UseETag)
	hcfg.MaxBodyBytes = c.MaxBodyBytes
	hcfg.Lenient = c.Lenient

	limiter := ratelimit.NewLimiter(c.GlobalRate, c.GlobalBurst, c.IPRate, c.IPBurst)
	defer limiter.Stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.Port),
		Handler:           handler.NewMux(hcfg, limiter),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      1 * time.Minute,
		IdleTimeout:       1 * time.Minute,
	}

	log := logger.Default().WithPrefix("ico2pngd")
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Listening on %s (fetch=%v lenient=%v)", server.Addr, c.AllowFetch, c.Lenient)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return def
}
