package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/e7canasta/filtershow/internal/config"
	"github.com/e7canasta/filtershow/internal/control"
	"github.com/e7canasta/filtershow/internal/decoder"
	"github.com/e7canasta/filtershow/internal/emitter"
	"github.com/e7canasta/filtershow/internal/httpapi"
	"github.com/e7canasta/filtershow/internal/pipeline"
	"github.com/e7canasta/filtershow/internal/preset"
	"github.com/e7canasta/filtershow/internal/processing"
	"github.com/e7canasta/filtershow/modules/notifybus"
	"github.com/e7canasta/filtershow/modules/previewsupplier"
)

const (
	version           = "v0.1.0"
	defaultConfigPath = "config/filtershow.yaml"
)

type flags struct {
	configPath    string
	debug         bool
	jsonLogs      bool
	printConfig   bool
	statsInterval time.Duration
}

func main() {
	f := parseFlags()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if f.printConfig {
		out, err := config.Dump(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}

	// Setup structured logger
	logLevel := slog.LevelInfo
	if f.debug {
		logLevel = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if f.jsonLogs {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	printBanner(cfg, f)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, f, logger); err != nil && err != context.Canceled {
		logger.Error("filtershowd failed", "error", err)
		os.Exit(1)
	}

	logger.Info("filtershowd stopped successfully")
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", defaultConfigPath, "Path to configuration file")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&f.jsonLogs, "json-logs", false, "Log as JSON instead of text")
	flag.BoolVar(&f.printConfig, "print-config", false, "Print the effective configuration and exit")

	var statsIntervalSec int
	flag.IntVar(&statsIntervalSec, "stats-interval", 0, "Statistics reporting interval in seconds (0 disables)")
	flag.Parse()

	f.statsInterval = time.Duration(statsIntervalSec) * time.Second
	return f
}

// daemon holds the running components.
type daemon struct {
	pipeline *pipeline.Pipeline
	bus      notifybus.Bus
	saver    *processing.Service
	emitter  *emitter.MQTTEmitter
	control  *control.Handler
	http     *httpapi.Server
}

func run(ctx context.Context, cfg *config.Config, f flags, logger *slog.Logger) error {
	d := &daemon{}

	// 1. Pipeline context (filters, triple buffer, preview loops)
	dec := decoder.New(decoder.NewPool(cfg.Pipeline.PoolSize), logger)
	d.pipeline = pipeline.New(pipeline.Config{
		PreviewWidth:  cfg.Pipeline.PreviewWidth,
		PreviewHeight: cfg.Pipeline.PreviewHeight,
		DisplayFPS:    cfg.Pipeline.DisplayFPS,
		JPEGQuality:   cfg.Pipeline.JPEGQuality,
	}, dec, previewsupplier.New(), logger)

	if err := d.pipeline.Init(); err != nil {
		return fmt.Errorf("failed to init pipeline: %w", err)
	}
	if err := d.pipeline.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	// 2. Notification bus + save service
	d.bus = notifybus.New(time.Duration(cfg.Processing.DeliveryTimeoutMS) * time.Millisecond)
	d.saver = processing.New(processing.Config{
		QueueSize:      cfg.Processing.QueueSize,
		OutputDir:      cfg.Processing.OutputDir,
		SpoolDir:       cfg.Processing.SpoolDir,
		JPEGQuality:    cfg.Processing.JPEGQuality,
		ProgressRateHz: cfg.Processing.ProgressRateHz,
		WriteRetry:     time.Duration(cfg.Processing.WriteRetryS) * time.Second,
	}, d.pipeline, d.bus, logger)

	if err := d.saver.Start(ctx); err != nil {
		d.shutdown(context.Background(), logger)
		return fmt.Errorf("failed to start processing service: %w", err)
	}

	// 3. MQTT (optional)
	if cfg.MQTT.Enabled {
		if err := d.startMQTT(ctx, cfg, logger); err != nil {
			d.shutdown(context.Background(), logger)
			return err
		}
	}

	// 4. HTTP API
	deps := httpapi.Deps{Saver: d.saver, Preview: d.pipeline}
	if d.emitter != nil {
		deps.MQTTConnected = func() bool { return d.emitter.Stats().Connected }
	}
	d.http = httpapi.NewServer(cfg.HTTP.Addr, deps, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.http.ListenAndServe()
	}()

	// 5. Statistics reporter
	if f.statsInterval > 0 {
		go reportStats(ctx, f.statsInterval, d)
	}

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case runErr = <-errCh:
	}

	shutdownTimeout := cfg.ShutdownTimeout()
	logger.Info("shutting down gracefully", "timeout", shutdownTimeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := d.shutdown(shutdownCtx, logger); err != nil {
		return err
	}

	printFinalStats(d)
	return runErr
}

func (d *daemon) startMQTT(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	d.emitter = emitter.NewMQTTEmitter(cfg, logger)
	if err := d.emitter.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect mqtt: %w", err)
	}
	if err := d.emitter.Start(d.bus); err != nil {
		return err
	}

	d.control = control.NewHandler(cfg, d.emitter.Client, control.CommandCallbacks{
		OnSave: d.saver.HandleSaveRequest,
		OnGetStatus: func() map[string]interface{} {
			st := d.saver.Status()
			ps := d.pipeline.Stats()
			return map[string]interface{}{
				"running":        st.Running,
				"active":         st.Active,
				"queued":         st.Queued,
				"saved":          st.Saved,
				"failed":         st.Failed,
				"interrupted":    st.Interrupted,
				"preview_frames": ps.Displayed,
			}
		},
		OnInvalidate: func() error {
			d.pipeline.Invalidate()
			return nil
		},
		OnSetPreview: func(p control.PreviewParams) error {
			var pr *preset.Preset
			if len(p.Preset) > 0 {
				parsed, err := preset.Parse(p.Preset)
				if err != nil {
					return err
				}
				pr = parsed
			}
			return d.pipeline.SetPreview(p.Source, pr)
		},
	}, logger)

	if err := d.control.Start(ctx); err != nil {
		return fmt.Errorf("failed to start control plane: %w", err)
	}

	if payload, err := json.Marshal(map[string]interface{}{
		"instance_id": cfg.InstanceID,
		"status":      "online",
		"version":     version,
	}); err == nil {
		if err := d.emitter.PublishStatus(payload); err != nil {
			logger.Warn("failed to publish online status", "error", err)
		}
	}
	return nil
}

// shutdown stops components in reverse dependency order: intake first, then
// the save service (active save finishes or is re-spooled), then sinks.
func (d *daemon) shutdown(ctx context.Context, logger *slog.Logger) error {
	done := make(chan struct{})
	go func() {
		defer close(done)

		if d.control != nil {
			d.control.Stop()
		}
		if d.saver != nil {
			d.saver.Stop()
		}
		if d.emitter != nil {
			d.emitter.Stop()
			d.emitter.Disconnect()
		}
		// Stops the preview supplier, which releases MJPEG viewers.
		d.pipeline.Shutdown()
		if d.http != nil {
			if err := d.http.Shutdown(ctx); err != nil {
				logger.Warn("http shutdown", "error", err)
			}
		}
		if d.bus != nil {
			d.bus.Close()
		}
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func printBanner(cfg *config.Config, f flags) {
	title := headerColor("%s", "filtershowd - buffered preview & save service")

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Printf("║    %-59s║\n", title)
	fmt.Printf("║                    Version %-35s║\n", version)
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Config File:     %s\n", f.configPath)
	fmt.Printf("  Instance:        %s\n", cfg.InstanceID)
	fmt.Printf("  HTTP:            %s\n", cfg.HTTP.Addr)
	fmt.Printf("  Preview:         %dx%d @ %.0f fps\n",
		cfg.Pipeline.PreviewWidth, cfg.Pipeline.PreviewHeight, cfg.Pipeline.DisplayFPS)
	fmt.Printf("  Save Queue:      %d\n", cfg.Processing.QueueSize)
	fmt.Printf("  Output Dir:      %s\n", cfg.Processing.OutputDir)
	fmt.Printf("  Spool Dir:       %s\n", cfg.Processing.SpoolDir)
	if cfg.MQTT.Enabled {
		fmt.Printf("  MQTT:            %s\n", okColor("%s", cfg.MQTT.Broker))
	} else {
		fmt.Printf("  MQTT:            %s\n", warnColor("%s", "disabled"))
	}
	fmt.Println()
	fmt.Println("Pipeline:")
	fmt.Println("  render → SharedBuffer → display → PreviewSupplier → viewers")
	fmt.Println("  save request → TaskController → NotifyBus → sinks")
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop gracefully")
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println()
}
