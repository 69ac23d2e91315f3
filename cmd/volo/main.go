package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/volo-project/volo/internal"
	"github.com/volo-project/volo/pkg/logger"
)

var log = logger.Get("Main")

// main is the entry point to the program. It loads the user's
// configuration (file when present, environment otherwise) and runs
// Volo until an interrupt arrives or a service crashes.
func main() {
	configPath := flag.String("config", "volo.yaml", "path to the YAML configuration file")
	flag.Parse()

	config := internal.VoloConfig{}
	if _, err := os.Stat(*configPath); err == nil {
		if err := config.LoadFromFile(*configPath); err != nil {
			log.Emit(logger.FATAL, "Failed to load configuration: %s\n", err.Error())
			os.Exit(1)
		}
	} else {
		// No config file; environment variables and defaults suffice.
		if err := config.LoadFromEnv(); err != nil {
			log.Emit(logger.FATAL, "Failed to load configuration from environment: %s\n", err.Error())
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := internal.New(config).Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Volo exited with error: %s\n", err.Error())
		os.Exit(1)
	}

	log.Emit(logger.STOP, "Volo shut down\n")
}
