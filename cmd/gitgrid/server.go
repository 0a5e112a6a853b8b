package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gitgrid/gitgrid/internal/backup"
	"github.com/gitgrid/gitgrid/internal/duckdb"
	"github.com/gitgrid/gitgrid/internal/filterstore"
	"github.com/gitgrid/gitgrid/internal/httpserver"
	"github.com/gitgrid/gitgrid/internal/logging"
	"github.com/gitgrid/gitgrid/internal/registry"
	"github.com/gitgrid/gitgrid/internal/service"
	"golang.org/x/sync/errgroup"
)

// runServer opens both stores and serves the HTTP API until signalled.
func runServer(cfg appConfig) error {
	cleanupLogger := logging.Setup(logging.Config{
		File:       cfg.LogFile,
		Stderr:     cfg.LogStderr,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Compress:   cfg.LogCompress,
	})
	defer cleanupLogger()

	// Record collections live in DuckDB.
	store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer store.Close()
	store.SetMaxConcurrentQueries(cfg.MaxConcurrentReads)

	// Saved filters live in SQLite.
	filters, err := filterstore.Open(context.Background(), filterstore.Config{Path: cfg.FiltersDBPath})
	if err != nil {
		return fmt.Errorf("failed to open filter store: %w", err)
	}
	defer filters.Close()

	// Start periodic backups when enabled.
	backupManager, err := backup.NewManager([]backup.Source{
		{Name: "records", Ext: ".duckdb", Store: store},
		{Name: "filters", Ext: ".db", Store: filters},
	}, backup.Config{
		Enabled:        cfg.BackupEnabled,
		Interval:       cfg.BackupInterval,
		LocalDir:       cfg.BackupLocalDir,
		KeepLast:       cfg.BackupKeepLast,
		BucketURL:      cfg.BackupBucketURL,
		S3Endpoint:     cfg.BackupS3Endpoint,
		S3Region:       cfg.BackupS3Region,
		S3AccessKey:    cfg.BackupS3AccessKey,
		S3SecretKey:    cfg.BackupS3SecretKey,
		S3SessionToken: cfg.BackupS3SessionToken,
		S3UseSSL:       cfg.BackupS3UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize backups: %w", err)
	}
	if backupManager != nil {
		defer backupManager.Stop()
	}

	svc := service.New(registry.New(store), filters)

	apiServer := httpserver.NewServer(httpserver.Config{
		Addr:        cfg.APIAddr,
		Development: cfg.Development,
		CORSOrigin:  cfg.CORSOrigin,
		RateLimit:   cfg.RateLimit,
		RateWindow:  cfg.RateLimitWindow,
		Auth:        cfg.authConfig(),
	}, svc, map[string]httpserver.HealthChecker{
		"records": store,
		"filters": filters,
	})
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	log.Printf("server: listening on %s", apiServer.Addr())

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		os.Exit(1)
	}()

	printStartupBanner(cfg)

	// Serve until the API fails or a signal cancels ctx.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(apiServer.Serve)
	g.Go(func() error {
		<-gctx.Done()
		return apiServer.Stop()
	})

	err = g.Wait()
	signal.Stop(sigCh)
	if err != nil {
		log.Printf("server: API exited with error: %v", err)
		return fmt.Errorf("API server: %w", err)
	}
	log.Printf("server: shutting down")
	return nil
}

func printStartupBanner(cfg appConfig) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╔═╗╦╔╦╗╔═╗╦═╗╦╔╦╗
    ║ ╦║ ║ ║ ╦╠╦╝║ ║║
    ╚═╝╩ ╩ ╚═╝╩╚═╩═╩╝`)

	var lines []string
	lines = append(lines, "", logo, "    "+dim.Render("v"+version), "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator, "")

	lines = append(lines, bold.Render("    Gateway"), "")
	lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
	switch {
	case cfg.JWTSecret != "" && cfg.AllowHeaderAuth:
		lines = append(lines, fmt.Sprintf("    %s  Auth           %s", check, dim.Render("jwt + X-User-Id")))
	case cfg.JWTSecret != "":
		lines = append(lines, fmt.Sprintf("    %s  Auth           %s", check, dim.Render("jwt")))
	default:
		lines = append(lines, fmt.Sprintf("    %s  Auth           %s", yellow.Render("●"), yellow.Render("X-User-Id only")))
	}
	if cfg.RateLimit > 0 {
		lines = append(lines, fmt.Sprintf("    %s  Rate Limit     %s", check, dim.Render(fmt.Sprintf("%d / %s per IP", cfg.RateLimit, cfg.RateLimitWindow))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Rate Limit     %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Storage"), "")
	lines = append(lines, fmt.Sprintf("    %s  Records        %s", check, dim.Render(shortenPath(cfg.DBPath))))
	lines = append(lines, fmt.Sprintf("    %s  Filters        %s", check, dim.Render(shortenPath(cfg.FiltersDBPath))))
	if cfg.BackupEnabled {
		target := shortenPath(cfg.BackupLocalDir)
		if cfg.BackupBucketURL != "" {
			target += " → " + cfg.BackupBucketURL
		}
		lines = append(lines, fmt.Sprintf("    %s  Snapshots      %s", check, dim.Render(target)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Snapshots      %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Config"), "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}
	if cfg.Development {
		lines = append(lines, fmt.Sprintf("    %s  Mode           %s", yellow.Render("●"), yellow.Render("development")))
	}

	lines = append(lines, "", separator, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"), "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
