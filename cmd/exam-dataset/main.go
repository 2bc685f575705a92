package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/a3tai/exam-dataset/internal/config"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// setupLogging configures logging based on the mode
func setupLogging(cfg *config.Config) *log.Logger {
	if cfg.IsMCPMode() {
		// stdout carries the MCP protocol
		if !cfg.IsDebug() {
			return log.New(io.Discard, "", 0)
		}
		return log.New(os.Stderr, "", log.LstdFlags)
	}
	if cfg.IsDebug() {
		return log.New(os.Stderr, "", log.LstdFlags|log.Lshortfile)
	}
	return log.New(os.Stderr, "", log.LstdFlags)
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if version != "dev" {
		cfg.Version = version
	}

	logger := setupLogging(cfg)
	if cfg.IsDebug() && !cfg.IsMCPMode() {
		logger.Printf("Starting with configuration: %s", cfg.String())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	err = run(ctx, cfg, logger, os.Stdout)
	stop()
	if err != nil {
		logger.Printf("%s failed: %v", cfg.Mode, err)
		os.Exit(1)
	}
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("Exam Dataset\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}
