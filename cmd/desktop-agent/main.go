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
	autoOpen := flag.Bool("auto-open-tasks", false, "Fetch and show tasks immediately on start")
	backup := flag.Bool("backup", false, "Archive existing mailbox backups on start")
	restore := flag.Bool("restore", false, "Reinstate the newest mailbox backup on start")
	exitMode := flag.String("exit-mode", "", "On exit ask the launcher to return to the browser: terminate or keep")
	configFile := flag.String("config", "", "Static configuration file (.toml, .yaml)")
	port := flag.String("port", "", "Agent listener port (overrides AGENT_PORT)")
	launcherURL := flag.String("launcher", "", "Launcher base URL (overrides LAUNCHER_URL)")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	mode, err := server.ParseExitMode(*exitMode)
	if err != nil {
		log.Fatalf("Invalid -exit-mode: %v", err)
	}

	if *configFile != "" {
		os.Setenv(config.FileEnv, *configFile)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Agent.Port = *port
	}
	if *launcherURL != "" {
		cfg.Agent.LauncherURL = *launcherURL
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	srv, err := server.NewAgent(cfg, server.AgentOptions{
		AutoOpenTasks: *autoOpen,
		Backup:        *backup,
		Restore:       *restore,
		ExitMode:      mode,
	})
	if err != nil {
		log.Fatalf("Failed to create desktop agent: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := srv.Run(ctx)
	if err := srv.Close(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	if runErr != nil {
		log.Fatalf("Desktop agent error: %v", runErr)
	}
}
