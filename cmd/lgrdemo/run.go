package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/abyssdigger/lgrbus"
	"github.com/abyssdigger/lgrbus/consolewriter"
	"github.com/abyssdigger/lgrbus/filewriter"
	"github.com/abyssdigger/lgrbus/hecwriter"
	"github.com/abyssdigger/lgrbus/metrics"
)

const (
	LVL_TEST = "TEST"

	NUMBER_LOGGER = "NumberListLogger"
	STRING_LOGGER = "StringLogger"
)

func consoleColors(s string) consolewriter.ColorMode {
	return consolewriter.ColorMode(strings.ToLower(s))
}

// joinTransformer renders "<level>: <logger>: <writer>: <file>: <data>" with
// the data arguments joined by sep.
func joinTransformer(sep string) lgrbus.Transformer[string] {
	return func(ev *lgrbus.Event, writerName string, writerConfig any) string {
		cfg, _ := writerConfig.(filewriter.Config)
		data := ev.Data()
		parts := make([]string, len(data))
		for i, d := range data {
			parts[i] = lgrbus.FormatArgs(d)
		}
		return fmt.Sprintf("%s: %s: %s: %s: %s", ev.Level(), ev.LoggerName(), writerName, cfg.Filename, strings.Join(parts, sep))
	}
}

func run(ctx context.Context, cfg demoConfig, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	diagLog := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("app", "lgrdemo")

	var collector metrics.Collector = metrics.Nop{}
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		pc, err := metrics.NewPrometheusCollector("lgrdemo")
		if err != nil {
			return err
		}
		collector = pc
		mux := http.NewServeMux()
		mux.Handle("/metrics", pc.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				diagLog.Error("metrics server stopped", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
	}

	reg := lgrbus.DefaultRegistry()
	if err := reg.AddLevels(map[string]lgrbus.LevelConfig{
		lgrbus.LVL_INFO: {Rank: 20002, Color: lgrbus.COLOR_GREEN},
		LVL_TEST:        {Rank: 20001, Color: lgrbus.COLOR_GREEN},
	}); err != nil {
		return err
	}
	bus := lgrbus.InitDefaultBus(lgrbus.WithMetrics(collector), lgrbus.WithDiagnostics(diagLog))

	fw, err := filewriter.New(cfg.File, filewriter.WithLogger(diagLog), filewriter.WithMetrics(collector))
	if err != nil {
		return err
	}
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go func() {
		if err := fw.Watch(watchCtx, nil); err != nil {
			diagLog.Warn("log file watch stopped", "error", err)
		}
	}()

	console := consolewriter.New(cfg.Console, stdout)
	layout := lgrbus.DefaultTextLayout()
	attachments := []error{
		lgrbus.Attach(bus, fw, NUMBER_LOGGER, lgrbus.LVL_DEBUG, joinTransformer(", ")),
		lgrbus.Attach(bus, fw, STRING_LOGGER, lgrbus.LVL_DEBUG, joinTransformer(" - ")),
		lgrbus.Attach(bus, console, NUMBER_LOGGER, lgrbus.LVL_DEBUG, consolewriter.Transformer(layout)),
		lgrbus.Attach(bus, console, STRING_LOGGER, lgrbus.LVL_DEBUG, consolewriter.Transformer(layout)),
	}
	if cfg.HEC.BaseURL != "" {
		hw, err := hecwriter.New(cfg.HEC, hecwriter.WithLogger(diagLog), hecwriter.WithMetrics(collector))
		if err != nil {
			return err
		}
		attachments = append(attachments, lgrbus.Attach(bus, hw, STRING_LOGGER, LVL_TEST, hecwriter.EventTransformer()))
	}
	if err := errors.Join(attachments...); err != nil {
		return err
	}

	numberLogger, err := lgrbus.NewLoggerWithParams(NUMBER_LOGGER, lgrbus.LoggerOptions{Level: lgrbus.LVL_DEBUG, Diagnostics: diagLog})
	if err != nil {
		return err
	}
	logger, err := lgrbus.NewLoggerWithParams(STRING_LOGGER, lgrbus.LoggerOptions{Level: lgrbus.LVL_DEBUG, Diagnostics: diagLog})
	if err != nil {
		return err
	}

	numberLogger.Debug(1, 2, 3)
	if test, ok := logger.Method("test"); ok {
		test("sample string", 1, 2, 3)
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	reason := "timeout"
	select {
	case <-sigCtx.Done():
		reason = "signal"
		if ctx.Err() != nil {
			reason = "canceled"
		}
	case <-time.After(cfg.Duration):
	}
	logger.Info("exit: " + reason)

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	err = bus.ShutdownContext(shCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shCtx)
	}
	return err
}
