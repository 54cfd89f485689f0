package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/labstack/echo/v4"
	"github.com/olx-analyzer/backend/internal/api"
	"github.com/olx-analyzer/backend/internal/config"
	"github.com/olx-analyzer/backend/internal/session"
	"github.com/olx-analyzer/backend/internal/storage"
	"github.com/olx-analyzer/backend/internal/upload"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const cleanupInterval = 5 * time.Minute

func main() {
	configPath := flag.String("config", "", "path of the XML configuration (default: next to the executable)")
	flag.Parse()
	defer glog.Flush()

	if *configPath == "" {
		exePath, err := os.Executable()
		if err != nil {
			fmt.Printf("Failed to get executable path: %v\n", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(exePath), "OLXAnalyzer.config")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	fileStore, err := storage.NewLocalStore(cfg.Storage.UploadsDirectory)
	if err != nil {
		fmt.Printf("Failed to initialize storage: %v\n", err)
		os.Exit(1)
	}

	persist := session.NewPersistentStores(filepath.Join(cfg.Storage.DataDirectory, "diffs"))
	sessionMgr := session.NewManager(session.Options{
		TempDir:             cfg.Storage.TempDirectory,
		SuccessiveThreshold: cfg.SuccessiveThreshold(),
		ProgressEvery:       cfg.Processing.ProgressEvery,
		Persist:             persist,
	})
	defer sessionMgr.Close()

	uploadMgr := upload.NewManager(fileStore)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go cleanup(ctx, cfg, fileStore, sessionMgr, uploadMgr, persist)

	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e, cfg)
	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Store:         fileStore,
		SessionMgr:    sessionMgr,
		UploadMgr:     uploadMgr,
		ExportDir:     cfg.Storage.ExportDirectory,
		DefaultFilter: cfg.Filter.DefaultConfigPath,
		AllowedTypes:  cfg.AllowedExtensions(),
		Version:       Version,
	}))

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           OLX Analyzer Server                             ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", *configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.Storage.DataDirectory)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Errorf("[HTTP] server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	glog.Info("[HTTP] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("[HTTP] shutdown: %v", err)
	}
}

// cleanup expires idle sessions, finished upload jobs and stored diffs of
// files that were deleted while the server was down.
func cleanup(ctx context.Context, cfg *config.AppConfig, store storage.Store, sessionMgr *session.Manager, uploadMgr *upload.Manager, persist *session.PersistentStores) {
	timeout := time.Duration(cfg.Processing.SessionTimeoutMinutes) * time.Minute
	sweepOrphans := func() {
		files, err := store.List(0)
		if err != nil {
			glog.Warningf("[Storage] listing files: %v", err)
			return
		}
		ids := make([]string, len(files))
		for i, f := range files {
			ids[i] = f.ID
		}
		if n := persist.CleanupOrphaned(ids); n > 0 {
			glog.Infof("[ParsedStore] removed %d orphaned stores", n)
		}
	}
	sweepOrphans()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessionMgr.CleanupOldSessions(timeout)
			uploadMgr.CleanupOldJobs(time.Hour)
			sweepOrphans()
		}
	}
}
