package main

import (
	"context"
	"flag"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vitalwatch-io/vw-alert-engine/pkg/config"
	"github.com/vitalwatch-io/vw-alert-engine/pkg/timeplus"
)

// One-shot stream provisioning. The server also does this on startup;
// this tool exists for CI and for environments where the server runs
// without DDL privileges.
func main() {
	logrus.SetLevel(logrus.InfoLevel)

	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	client, err := timeplus.NewClient(&cfg.Timeplus)
	if err != nil {
		logrus.Fatalf("Failed to connect to Timeplus: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := client.SetupStreams(ctx); err != nil {
		logrus.Fatalf("Failed to set up streams: %v", err)
	}

	streams, err := client.ListStreams(ctx)
	if err != nil {
		logrus.Fatalf("Failed to list streams: %v", err)
	}
	logrus.Infof("Available streams: %v", streams)
	logrus.Info("Setup completed")
}
