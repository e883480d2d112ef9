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
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/openclaw/qr/api"
	"github.com/openclaw/qr/config"
	"github.com/openclaw/qr/render"
	"github.com/openclaw/qr/store"
	"github.com/openclaw/qr/tracker"
)

var version = "v0.1.0"

func main() {
	root := &cobra.Command{
		Use:   "openclaw-qr",
		Short: "QR code generator with logo overlay and scan tracking",
	}

	// --- serve command -------------------------------------------------------
	var configPath string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the generator page and scan tracker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to config file")
	root.AddCommand(serveCmd)

	// --- generate command ----------------------------------------------------
	var gen generateFlags
	generateCmd := &cobra.Command{
		Use:   "generate [text]",
		Short: "Render a QR code to a PNG file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				gen.text = args[0]
			}
			gen.logoSet = cmd.Flags().Changed("logo")
			gen.marginSet = cmd.Flags().Changed("margin")
			return runGenerate(cmd.Context(), gen)
		},
	}
	generateCmd.Flags().StringVarP(&gen.configPath, "config", "c", "config.yaml", "Path to config file")
	generateCmd.Flags().IntVar(&gen.size, "size", 0, "Image width and height in pixels")
	generateCmd.Flags().IntVar(&gen.margin, "margin", 0, "Quiet zone in modules")
	generateCmd.Flags().StringVar(&gen.dark, "dark", "", "Module color (#RRGGBB)")
	generateCmd.Flags().StringVar(&gen.light, "light", "", "Background color (#RRGGBB)")
	generateCmd.Flags().StringVar(&gen.level, "level", "", "Error correction level: L, M, Q or H")
	generateCmd.Flags().StringVar(&gen.logo, "logo", "", "Logo URL or file path; empty disables the overlay")
	generateCmd.Flags().StringVarP(&gen.out, "out", "o", "", "Output file (default: <prefix>-<millis>.png)")
	root.AddCommand(generateCmd)

	// --- status command ------------------------------------------------------
	var statusAddr string
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Check the running service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(statusAddr + "/status")
		},
	}
	statusCmd.Flags().StringVar(&statusAddr, "addr", "http://localhost:8556", "Service HTTP address")
	root.AddCommand(statusCmd)

	// --- stats command -------------------------------------------------------
	var statsAddr string
	statsCmd := &cobra.Command{
		Use:   "stats [summary|daily|monthly|hourly|yearly]",
		Short: "Print scan statistics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := "summary"
			if len(args) == 1 {
				kind = args[0]
			}
			switch kind {
			case "summary", "daily", "monthly", "hourly", "yearly":
			default:
				return fmt.Errorf("unknown stats kind %q", kind)
			}
			return runGet(statsAddr + "/stats/" + kind)
		},
	}
	statsCmd.Flags().StringVar(&statsAddr, "addr", "http://localhost:8556", "Service HTTP address")
	root.AddCommand(statsCmd)

	// --- version command -----------------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("openclaw-qr %s\n", version)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

func renderDefaults(cfg *config.Config) render.Options {
	return render.Options{
		Size:   cfg.Render.Size,
		Margin: cfg.Render.Margin,
		Dark:   cfg.Render.Dark,
		Light:  cfg.Render.Light,
		Level:  cfg.Render.Level,
	}
}

// runServe is the main service entrypoint that wires all components together.
func runServe(configPath string) error {
	// 1. Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("ensure data dir: %w", err)
	}

	// 2. Setup logger
	log := newLogger(cfg.LogLevel, os.Stdout)
	slog.SetDefault(log)

	log.Info("starting openclaw-qr", "version", version, "port", cfg.Port, "data_dir", cfg.DataDir)

	// 3. Open scan store
	scans, err := store.NewScanStore(cfg.DBPath(), time.Local)
	if err != nil {
		return fmt.Errorf("open scan store: %w", err)
	}
	defer scans.Close()

	// 4. Render pipeline and session
	if cfg.LogoURL == "" {
		log.Info("logo overlay disabled")
	}
	defaults := renderDefaults(cfg)
	session := render.NewSession(render.SessionConfig{
		Pipeline: &render.Pipeline{
			Logo:        render.NewLogoSource(cfg.LogoURL, cfg.LogoTimeout.Duration),
			LogoTimeout: cfg.LogoTimeout.Duration,
			Log:         log,
		},
		Defaults:       defaults,
		DefaultText:    cfg.DefaultText,
		DownloadPrefix: cfg.DownloadPrefix,
		MaxSize:        cfg.Render.MaxSize,
	})

	// 5. Scan webhook
	notifier := tracker.NewNotifier(cfg.WebhookURL, cfg.WebhookIgnoreAgents, log)

	// 6. HTTP server
	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		Handler: api.NewRouter(&api.Server{
			Session:   session,
			Store:     scans,
			Notifier:  notifier,
			Defaults:  defaults,
			Log:       log,
			Version:   version,
			StartTime: time.Now(),
		}),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("HTTP server listening", "addr", srv.Addr, "generator_url", fmt.Sprintf("http://localhost:%d/", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// 7. Retention
	if cfg.Retention.Duration > 0 {
		g.Go(func() error {
			err := tracker.RunPruneLoop(gctx, scans, cfg.PruneInterval.Duration, cfg.Retention.Duration, log)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	// 8. Wait for shutdown signal or a failing component
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("goodbye")
	return nil
}

type generateFlags struct {
	configPath string
	text       string
	size       int
	margin     int
	marginSet  bool
	dark       string
	light      string
	level      string
	logo       string
	logoSet    bool
	out        string
}

// runGenerate renders one code with the same pipeline the service uses and
// writes it to disk.
func runGenerate(ctx context.Context, f generateFlags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := newLogger(cfg.LogLevel, os.Stderr)

	logoRef := cfg.LogoURL
	if f.logoSet {
		logoRef = f.logo
	}

	session := render.NewSession(render.SessionConfig{
		Pipeline: &render.Pipeline{
			Logo:        render.NewLogoSource(logoRef, cfg.LogoTimeout.Duration),
			LogoTimeout: cfg.LogoTimeout.Duration,
			Log:         log,
		},
		Defaults:       renderDefaults(cfg),
		DefaultText:    cfg.DefaultText,
		DownloadPrefix: cfg.DownloadPrefix,
		MaxSize:        cfg.Render.MaxSize,
	})

	req := render.Request{
		Text: f.text,
		Options: render.Options{
			Size:   f.size,
			Margin: cfg.Render.Margin,
			Dark:   f.dark,
			Light:  f.light,
			Level:  f.level,
		},
	}
	if f.marginSet {
		req.Margin = f.margin
	}

	if ctx == nil {
		ctx = context.Background()
	}
	res, err := session.Generate(ctx, req)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	art, err := session.Download()
	if err != nil {
		return err
	}

	out := f.out
	if out == "" {
		out = art.Filename
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(out, art.PNG, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	fmt.Printf("%s (%dx%d, %s)\n", out, art.Width, art.Height, res.Status)
	if res.LogoErr != nil {
		fmt.Fprintf(os.Stderr, "warning: rendered without logo: %v\n", res.LogoErr)
	}
	return nil
}

// runGet prints the body of a GET against the running service.
func runGet(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to reach service at %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	fmt.Println(string(body))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("service returned %s", resp.Status)
	}
	return nil
}
