// main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ndquang/portfolio-rtc/internal/app"
	"github.com/ndquang/portfolio-rtc/internal/config"
)

var (
	showHelp = flag.Bool("h", false, "Show help")
	version  = flag.Bool("version", false, "Show version")
)

// appVersion is set at build time via -ldflags "-X main.appVersion=x.y.z"
var appVersion = "dev"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("portfolio-rtc v%s\n", appVersion)
		return
	}
	if *showHelp {
		showUsage()
		return
	}

	args := flag.Args()
	if len(args) < 2 {
		if len(args) == 1 {
			fmt.Fprintf(os.Stderr, "Error: %s command requires a directory path\n\n", args[0])
		}
		showUsage()
		os.Exit(1)
	}

	command, dir := args[0], args[1]
	switch command {
	case "visitor":
		runMode(dir, app.RunVisitor, "Visitor")
	case "admin":
		runMode(dir, app.RunAdmin, "Admin")
	case "history":
		runMode(dir, app.RunHistory, "History")
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command '%s'\n\n", command)
		showUsage()
		os.Exit(1)
	}
}

func runMode(dirArg string, run func(context.Context, app.Options) error, label string) {
	absDir, err := filepath.Abs(dirArg)
	if err != nil {
		log.Fatalf("Invalid directory: %v", err)
	}
	if err := os.MkdirAll(absDir, 0755); err != nil {
		log.Fatalf("Create directory: %v", err)
	}

	// .env next to the config feeds the PORTFOLIO_* overrides; absence is
	// fine.
	if err := godotenv.Load(filepath.Join(absDir, ".env")); err != nil && !os.IsNotExist(err) {
		log.Printf("MAIN: .env not loaded: %v", err)
	}

	cfgPath := filepath.Join(absDir, "portfolio.json")
	cfg, created, err := config.Ensure(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if created {
		log.Printf("MAIN: wrote default config to %s", cfgPath)
	}

	printBanner(label, absDir, cfgPath, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("\nShutting down gracefully...")
		cancel()
	}()

	if err := run(ctx, app.Options{Dir: absDir, CfgPath: cfgPath, Cfg: cfg}); err != nil {
		log.Fatalf("%s mode failed: %v", label, err)
	}
}

func printBanner(label, dir, cfgPath string, cfg config.Config) {
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Printf("║  Portfolio RTC · %-19s ║\n", label)
	fmt.Println("╚══════════════════════════════════════╝")
	fmt.Printf("  dir:     %s\n", dir)
	fmt.Printf("  config:  %s\n", cfgPath)
	fmt.Printf("  backend: %s\n", cfg.Server.BaseURL)
	fmt.Printf("  socket:  %s\n", cfg.Server.SocketURL)
	fmt.Println()
}

func showUsage() {
	fmt.Println("portfolio-rtc - realtime client for the portfolio backend")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  portfolio-rtc visitor <directory>   Chat and video-call as a guest")
	fmt.Println("  portfolio-rtc admin <directory>     Answer chat/calls and sync content")
	fmt.Println("  portfolio-rtc history <directory>   Print the cached chat transcript")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  visitor <directory>")
	fmt.Println("        Connect to the portfolio backend as a visitor.")
	fmt.Println("        The directory holds portfolio.json (created on first run).")
	fmt.Println()
	fmt.Println("  admin <directory>")
	fmt.Println("        Run the owner side: incoming call requests, chat, and the")
	fmt.Println("        content/ directory watcher that pushes edits to the backend.")
	fmt.Println()
	fmt.Println("  history <directory>")
	fmt.Println("        Refresh the local SQLite history cache and print it.")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -h        Show this help message")
	fmt.Println("  -version  Show version information")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  portfolio-rtc visitor ./me")
	fmt.Println("  PORTFOLIO_BASE_URL=https://site.example portfolio-rtc admin ./owner")
}
