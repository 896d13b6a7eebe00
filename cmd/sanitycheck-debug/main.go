package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/UlisseMini/sanitycheck-sub001/internal/config"
	"github.com/UlisseMini/sanitycheck-sub001/pkg/event"
	"github.com/UlisseMini/sanitycheck-sub001/pkg/mirror"
	"github.com/UlisseMini/sanitycheck-sub001/pkg/parser"
	"github.com/UlisseMini/sanitycheck-sub001/pkg/relay"
	"github.com/UlisseMini/sanitycheck-sub001/pkg/server"
	"github.com/UlisseMini/sanitycheck-sub001/pkg/storage"
)

const userAgent = "sanitycheck-debug/1.0"

func main() {
	// Define flags
	configPath := flag.String("config", config.DefaultPath, "Path to config file")
	logFile := flag.String("log-file", "", "Log file path (overrides config)")
	host := flag.String("host", "", "Listen host (server mode)")
	port := flag.Int("port", 0, "HTTP server port (server mode)")
	endpoint := flag.String("endpoint", "", "Sink URL to relay to (collect mode)")
	source := flag.String("source", "", "Source tag for relayed lines (collect mode)")
	format := flag.String("format", "auto", "Log format: auto, json, logfmt (collect mode)")
	openUI := flag.Bool("open", false, "Open the log viewer in a browser (server mode)")
	help := flag.Bool("help", false, "Show help")

	// Check for subcommand first
	args := os.Args[1:]
	mode := "server"

	if len(args) > 0 && args[0] == "server" {
		os.Args = append([]string{os.Args[0]}, args[1:]...)
		flag.Parse()
	} else if len(args) > 0 && (args[0] == "help" || args[0] == "--help") {
		printHelp()
		return
	} else {
		flag.Parse()
		if *help {
			printHelp()
			return
		}
		if isStdinPiped() {
			mode = "collect"
		}
	}

	// Environment overrides may live in a .env file next to the binary
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Override config with CLI flags
	if *logFile != "" {
		cfg.Sink.LogFile = *logFile
	}
	if *host != "" {
		cfg.Sink.Host = *host
	}
	if *port > 0 {
		cfg.Sink.Port = *port
	}
	if *endpoint != "" {
		cfg.Producer.Endpoint = *endpoint
	}
	if *source != "" {
		cfg.Producer.Source = *source
	}

	console := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.GetLogLevel()})
	slog.SetDefault(slog.New(console))

	if mode == "collect" {
		err = runCollectMode(cfg, *format, console)
	} else {
		err = runServerMode(cfg, *openUI)
	}
	if err != nil {
		slog.Error(mode+" mode failed", "error", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println(`sanitycheck-debug - debug log sink and relay

USAGE:
    sanitycheck-debug server [OPTIONS]           Run the debug log sink
    tail -f app.log | sanitycheck-debug [OPTIONS] Relay stdin lines to a running sink

OPTIONS:
    --config FILE      Path to config file (default: ~/.sanitycheck/config.toml)
    --log-file PATH    Sink log file (default: ~/.sanitycheck/debug.log)
    --host HOST        Sink listen host (default: 127.0.0.1)
    --port PORT        Sink listen port (default: 3001)
    --open             Open the log viewer in a browser
    --endpoint URL     Sink to relay to (default: http://127.0.0.1:3001)
    --source NAME      Source tag for relayed lines (default: collect)
    --format FORMAT    auto | json | logfmt (default: auto)
    --help             Show this help

ENVIRONMENT:
    Every config key can be overridden with SANITYCHECK_<SECTION>_<KEY>,
    e.g. SANITYCHECK_SINK_PORT=4000 or SANITYCHECK_MIRROR_REDIS_URL=redis://localhost:6379/0.
    A .env file in the working directory is loaded first.

ENDPOINTS:
    POST   /debug/log           Append a log record
    GET    /debug/logs?lines=N  Last N records (default 100)
    DELETE /debug/logs          Clear the log file
    GET    /debug/health        Sink status
    GET    /debug/logs/export   zstd-compressed log file
    GET    /debug/stream        WebSocket live tail`)
}

func isStdinPiped() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

func runServerMode(cfg *config.Config, openUI bool) error {
	store, err := storage.NewFileStore(cfg.Sink.LogFile)
	if err != nil {
		return fmt.Errorf("failed to initialize log file: %w", err)
	}

	opts := server.Options{
		Store:          store,
		AllowedOrigins: cfg.Sink.AllowedOrigins,
		Logger:         slog.Default(),
	}

	if cfg.UseMirror() {
		pub, err := mirror.NewRedis(mirror.RedisOptions{
			URL:     cfg.Mirror.RedisURL,
			Channel: cfg.Mirror.Channel,
		})
		if err != nil {
			slog.Warn("redis mirror unavailable, continuing without it", "error", err)
		} else {
			slog.Info("mirroring records to redis", "channel", pub.Channel())
			opts.Mirror = pub
		}
	}

	srv := server.New(opts)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(cfg.Addr())
	}()

	if openUI {
		go openBrowser("http://" + cfg.Addr())
	}

	select {
	case <-sigChan:
		slog.Info("shutting down gracefully")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

func runCollectMode(cfg *config.Config, format string, console slog.Handler) error {
	if !cfg.Producer.Enabled {
		slog.Warn("producer disabled in config; lines will not be relayed")
	}

	amb := event.Ambient{URL: "stdin://" + cfg.Producer.Source, UserAgent: userAgent}
	client := relay.NewClient(relay.Options{
		Endpoint:  cfg.Producer.Endpoint,
		Source:    cfg.Producer.Source,
		Timeout:   cfg.GetTimeout(),
		QueueSize: cfg.Producer.QueueSize,
		Disabled:  !cfg.Producer.Enabled,
		Ambient:   amb,
		Fallback:  slog.New(console),
	})

	// Warnings about this process itself also reach the sink
	logger := slog.New(relay.NewHandler(console, client)).With("source", "sanitycheck-debug")
	logger.Info("relaying stdin", "endpoint", cfg.Producer.Endpoint, "format", format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &collector{
		detector: parser.NewDetector(),
		client:   client,
		format:   format,
		source:   cfg.Producer.Source,
		ambient:  amb,
		logger:   logger,
	}
	count, err := c.run(ctx, os.Stdin)
	if err != nil {
		return err
	}

	if err := client.Flush(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("sink unreachable at exit, some lines were not delivered", "error", err)
	}

	stats := client.Stats()
	logger.Info("collection complete",
		"lines", count,
		"delivered", stats.Delivered,
		"queued", stats.Queued,
		"dropped", stats.Dropped)
	return nil
}

// collector turns piped log lines into relayed events
type collector struct {
	detector *parser.Detector
	client   *relay.Client
	format   string
	source   string
	ambient  event.Ambient
	logger   *slog.Logger
}

// run relays each non-empty line of r until EOF or ctx is cancelled and
// returns the number of lines relayed
func (c *collector) run(ctx context.Context, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	count := 0

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}

		line := scanner.Text()
		if line == "" {
			continue
		}

		entry, err := c.detector.ParseWithFormat(line, c.format)
		if err != nil {
			c.logger.Debug("skipping line", "error", err)
			continue
		}

		src := entry.Source
		if src == "" {
			src = c.source
		}
		c.client.Send(ctx, event.New(entry.Level, entry.Message, entry.Fields, src, c.ambient, entry.Time))

		count++
		if count%1000 == 0 {
			c.logger.Info("relayed log lines", "count", count)
		}
	}

	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("error reading stdin: %w", err)
	}
	return count, nil
}

func openBrowser(url string) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		slog.Info("cannot auto-open browser", "os", runtime.GOOS, "url", url)
		return
	}

	if err := cmd.Start(); err != nil {
		slog.Warn("failed to open browser", "error", err, "url", url)
	}
}
