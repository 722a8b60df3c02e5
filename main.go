// main.go
// Application entry point: loads configuration, initializes the logger and
// starts the presence server.
package main

import (
	"fmt"
	"os"

	"github.com/gymstack/presenced/internal/api"
	"github.com/gymstack/presenced/internal/logger"
	"github.com/gymstack/presenced/internal/util"
)

func main() {
	configPath := "config.json"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	config, err := util.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v, using defaults\n", err)
	}

	logger.InitLogger(config.Logger)
	serverLogger := logger.NewLogger("server")
	serverLogger.WithFields(map[string]interface{}{
		"addr":     config.Addr,
		"nats_url": config.NatsURL,
		"mongo_db": config.Mongo.Database,
		"level":    config.Logger.Level,
	}).Info("Configuration loaded")

	if err := api.StartServer(config, serverLogger); err != nil {
		serverLogger.Fatalf("Server exited: %v", err)
	}
}
