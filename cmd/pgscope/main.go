package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/justjake/pgscope/pkg/pgscopecfg"
	"github.com/justjake/pgscope/pkg/proxy"
	"github.com/justjake/pgscope/pkg/telemetry"
)

var bannerLines = []string{
	` ____  ____  ___  ___ ___  ____  ____ `,
	`|  _ \/ ___|/ __|/ __/ _ \|  _ \/ ___|`,
	`| |_) \___ \ (__| (_| (_) | |_) \___ \`,
	`|  __/ ____) \___|\___\___/|  __/____)`,
	`|_|  |_____/                 |_|      `,
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00CED1"))

	flagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9B30FF")).
			Bold(true)

	descStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))
)

func printBanner() {
	box := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#00CED1")).
		Bold(true).
		Padding(0, 1).
		Render(strings.Join(bannerLines, "\n"))
	fmt.Println(box)
	fmt.Println(descStyle.Render("  a transparent PostgreSQL wire protocol observability proxy"))
	fmt.Println()
}

func printUsage() {
	fmt.Println(titleStyle.Render("Usage:"))
	fmt.Print("  pgscope ")
	flag.VisitAll(func(f *flag.Flag) {
		fmt.Printf("%s ", flagStyle.Render("-"+f.Name+" <"+f.Name+">"))
	})
	fmt.Println()
	fmt.Println()

	fmt.Println(titleStyle.Render("Options:"))
	flag.VisitAll(func(f *flag.Flag) {
		fmt.Printf("  %s\n      %s (default %q)\n", flagStyle.Render("-"+f.Name), f.Usage, f.DefValue)
	})
	fmt.Println()
}

func main() {
	os.Exit(run())
}

func run() int {
	def := pgscopecfg.Default()

	listenPort := flag.Uint("listen", uint(def.ListenPort), "TCP port pgscope listens on")
	upstream := flag.String("upstream", def.Upstream, "upstream PostgreSQL address (host:port)")
	mode := flag.String("mode", string(pgscopecfg.ModeAuto), "output mode: tui, raw, or auto")
	thresholdMs := flag.Int("threshold", int(def.SlowThreshold/time.Millisecond), "slow query threshold in milliseconds")
	jsonLogs := flag.Bool("json-logs", false, "emit logs as JSON instead of text")
	promMetrics := flag.Bool("metrics", false, "mirror telemetry onto Prometheus metrics")
	metricsAddr := flag.String("metrics-addr", ":9090", "address the /metrics endpoint listens on when -metrics is set")
	showHelp := flag.Bool("help", false, "show usage")
	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printBanner()
		printUsage()
		return 0
	}

	var handler slog.Handler
	if *jsonLogs {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	} else {
		handler = slog.NewTextHandler(os.Stderr, nil)
	}
	logger := slog.New(handler)

	cfg := def
	cfg.ListenPort = uint16(*listenPort)
	cfg.Upstream = *upstream
	cfg.Mode = pgscopecfg.Mode(*mode)
	cfg.SlowThreshold = time.Duration(*thresholdMs) * time.Millisecond

	if cfg.Mode == pgscopecfg.ModeAuto {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			cfg.Mode = pgscopecfg.ModeTUI
		} else {
			cfg.Mode = pgscopecfg.ModeRaw
		}
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 2
	}

	bus := telemetry.NewBus(cfg.EventBusCapacity)
	aggOpts := []telemetry.AggregatorOption{
		telemetry.WithSlowThreshold(cfg.SlowThreshold),
		telemetry.WithEventRingSize(cfg.EventRingSize),
		telemetry.WithFingerprintTableSize(cfg.FingerprintTableSize),
	}

	var prom *telemetry.PromMetrics
	var metricsSrv *telemetry.MetricsServer
	if *promMetrics {
		prom = telemetry.NewPromMetrics()
		aggOpts = append(aggOpts, telemetry.WithPromMetrics(prom))
		metricsSrv = telemetry.NewMetricsServer(*metricsAddr, logger)
		metricsSrv.Start()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}
	agg := telemetry.NewAggregator(aggOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	go agg.Run(ctx, bus.Recv())

	if prom != nil {
		go forwardDroppedEvents(ctx, bus, prom)
	}

	switch cfg.Mode {
	case pgscopecfg.ModeRaw:
		go renderRaw(ctx, agg)
	default:
		logger.Info("tui mode is not implemented by this entry point; falling back to raw")
		go renderRaw(ctx, agg)
	}

	listener := proxy.NewListener(cfg, bus, logger)
	if err := listener.Serve(ctx); err != nil {
		logger.Error("listener failed", "error", err)
		return 1
	}

	return 0
}

// forwardDroppedEvents mirrors Bus.DroppedEvents onto the Prometheus counter
// on a tick, since the bus has no direct reference to the aggregator's
// optional Prometheus mirror. Overflow stays a counter, never a propagated
// error.
func forwardDroppedEvents(ctx context.Context, bus *telemetry.Bus, prom *telemetry.PromMetrics) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total := bus.DroppedEvents()
			if total > last {
				prom.RecordDroppedEvents(total - last)
				last = total
			}
		}
	}
}

// renderRaw prints one line per completion or error, pulled off the
// aggregator's best-effort event feed.
func renderRaw(ctx context.Context, agg *telemetry.Aggregator) {
	for {
		select {
		case <-ctx.Done():
			return
		case o, ok := <-agg.Events():
			if !ok {
				return
			}
			printRawLine(o)
		}
	}
}

func printRawLine(o telemetry.Observation) {
	switch v := o.(type) {
	case telemetry.QueryComplete:
		latencyMs := float64(v.TEnd.Sub(v.TStart)) / float64(time.Millisecond)
		rows := ""
		if v.RowCount != nil {
			rows = fmt.Sprintf(" [%d rows]", *v.RowCount)
		}
		fmt.Printf("%s [conn:%d] %.1fms  %s%s\n",
			v.TEnd.Format("15:04:05.000"), v.ConnID, latencyMs, v.SQL, rows)
	case telemetry.QueryError:
		fmt.Printf("%s [conn:%d]            ERR %s: %s\n",
			v.T.Format("15:04:05.000"), v.ConnID, v.SQLSTATE, v.Message)
	}
}
