package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/clouddesk/internal/infrastructure/config"
	"github.com/GriffinCanCode/clouddesk/internal/infrastructure/server"
)

func main() {
	configFile := flag.String("config", "", "Static configuration file (.toml, .yaml)")
	port := flag.String("port", "", "Inbound listener port (overrides PORT)")
	mailboxDir := flag.String("mailbox", "", "Mailbox directory (overrides MAILBOX_DIR)")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	if *configFile != "" {
		os.Setenv(config.FileEnv, *configFile)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *mailboxDir != "" {
		cfg.Mailbox.Dir = *mailboxDir
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	srv, err := server.NewLauncher(cfg)
	if err != nil {
		log.Fatalf("Failed to create launcher: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := srv.Run(ctx)
	if err := srv.Close(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	if runErr != nil {
		log.Fatalf("Launcher error: %v", runErr)
	}
}
