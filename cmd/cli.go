package cmd

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"speech-presenter/internal/clock"
	"speech-presenter/internal/platform/config"
)

// Hub transports.
const (
	TransportSignalR = "signalr"
	TransportRedis   = "redis"
)

// Config holds the presenter configuration. Defaults come from the
// environment; flags override them.
type Config struct {
	Port            int           // HTTP control API port
	Transport       string        // "signalr" or "redis"
	HubURL          string        // SignalR hub URL
	SkipNegotiation bool          // dial HubURL directly
	RedisAddr       string        // Redis address for the redis transport
	RedisPrefix     string        // Redis channel prefix
	Script          string        // performance file path or URL
	Loader          string        // loader name; empty picks by location
	TickInterval    time.Duration // playback clock period
	LogLevel        string
	LogFormat       string
	AutoConnect     bool // connect to the hub on startup
}

// ParseArgs parses command line arguments and returns a Config.
func ParseArgs(args []string) (*Config, error) {
	return parse(args, os.Stderr)
}

func parse(args []string, out io.Writer) (*Config, error) {
	c := &Config{}

	fs := flag.NewFlagSet("speech-presenter", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() { printUsage(out) }

	fs.IntVar(&c.Port, "port", config.GetEnvInt("PORT", 8180), "HTTP port")
	fs.StringVar(&c.Transport, "transport", config.GetEnv("HUB_TRANSPORT", TransportSignalR), "hub transport (signalr, redis)")
	fs.StringVar(&c.HubURL, "hub", config.GetEnv("HUB_URL", "ws://localhost:5000/StreamHub"), "SignalR hub URL")
	fs.BoolVar(&c.SkipNegotiation, "skip-negotiation", config.GetEnvBool("HUB_SKIP_NEGOTIATION", false), "dial the hub without negotiating")
	fs.StringVar(&c.RedisAddr, "redis", config.GetEnv("REDIS_ADDR", "localhost:6379"), "Redis address")
	fs.StringVar(&c.RedisPrefix, "redis-prefix", config.GetEnv("REDIS_PREFIX", "StreamHub"), "Redis channel prefix")
	fs.StringVar(&c.Script, "script", config.GetEnv("SCRIPT", ""), "performance script path or URL")
	fs.StringVar(&c.Loader, "loader", config.GetEnv("SCRIPT_LOADER", ""), "script loader name (file, http)")
	fs.DurationVar(&c.TickInterval, "tick", config.GetEnvMillis("TICK_INTERVAL_MS", clock.DefaultInterval), "playback clock period")
	fs.StringVar(&c.LogLevel, "log-level", config.GetEnv("LOG_LEVEL", "info"), "log level")
	fs.StringVar(&c.LogFormat, "log-format", config.GetEnv("LOG_FORMAT", "json"), "log format (json, text)")
	fs.BoolVar(&c.AutoConnect, "connect", config.GetEnvBool("AUTO_CONNECT", true), "connect to the hub on startup")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// positional script for convenience
	if c.Script == "" && fs.NArg() > 0 {
		c.Script = fs.Arg(0)
	}

	if c.Script == "" {
		return nil, errors.New("script is required")
	}
	if c.Transport != TransportSignalR && c.Transport != TransportRedis {
		return nil, fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", c.Port)
	}
	if c.TickInterval <= 0 {
		return nil, fmt.Errorf("invalid tick interval %s", c.TickInterval)
	}

	return c, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  speech-presenter [flags] -script <path|url>")
	fmt.Fprintln(w, "  speech-presenter [flags] <path|url>")
	fmt.Fprintln(w, "\nFlags:")
	fmt.Fprintln(w, "  -port              HTTP port (PORT, default 8180)")
	fmt.Fprintln(w, "  -transport         signalr or redis (HUB_TRANSPORT)")
	fmt.Fprintln(w, "  -hub               SignalR hub URL (HUB_URL)")
	fmt.Fprintln(w, "  -skip-negotiation  dial the hub directly (HUB_SKIP_NEGOTIATION)")
	fmt.Fprintln(w, "  -redis             Redis address (REDIS_ADDR)")
	fmt.Fprintln(w, "  -redis-prefix      Redis channel prefix (REDIS_PREFIX)")
	fmt.Fprintln(w, "  -script            performance script (SCRIPT)")
	fmt.Fprintln(w, "  -loader            force a script loader: file, http (SCRIPT_LOADER)")
	fmt.Fprintln(w, "  -tick              clock period, e.g. 1s (TICK_INTERVAL_MS)")
	fmt.Fprintln(w, "  -log-level         debug, info, warn, error (LOG_LEVEL)")
	fmt.Fprintln(w, "  -log-format        json or text (LOG_FORMAT)")
	fmt.Fprintln(w, "  -connect           connect on startup (AUTO_CONNECT)")
	fmt.Fprintln(w, "\nExamples:")
	fmt.Fprintln(w, "  speech-presenter -hub http://localhost:5000/StreamHub show.yaml")
	fmt.Fprintln(w, "  speech-presenter -transport redis -script https://example.com/show.json")
	fmt.Fprintln(w)
}

// PrintUsageAndExit prints usage and exits with code 1.
func PrintUsageAndExit() {
	printUsage(os.Stderr)
	os.Exit(1)
}
