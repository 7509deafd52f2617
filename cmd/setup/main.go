// Setup creates the engine's streams plus local-development copies of the
// ingest-side streams (quotes, analytics, catalog). In production the ingest
// pipeline owns those three; this tool exists so the engine and simulator
// can run against a bare Timeplus instance.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dealradar/alert-engine/pkg/config"
	"github.com/dealradar/alert-engine/pkg/timeplus"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	client, err := timeplus.NewClient(timeplus.ConnConfig{
		Address:   cfg.Timeplus.Address,
		Username:  cfg.Timeplus.Username,
		Password:  cfg.Timeplus.Password,
		Workspace: cfg.Timeplus.Workspace,
	})
	if err != nil {
		logrus.Fatalf("Failed to connect to Timeplus: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := timeplus.SetupStreams(ctx, client); err != nil {
		logrus.Fatalf("Failed to create engine streams: %v", err)
	}

	ingest := []struct {
		name string
		ddl  string
	}{
		{timeplus.QuotesStream, fmt.Sprintf(
			"CREATE STREAM `%s` (`item_id` string, `item_name` string, `category` string, `platform` string, `price` float64, `fee_percent` float64, `volume` float64)",
			timeplus.QuotesStream)},
		{timeplus.AnalyticsStream, fmt.Sprintf(
			"CREATE STREAM `%s` (`item_id` string, `recommendation` string, `risk_level` string)",
			timeplus.AnalyticsStream)},
		{timeplus.ItemsStream, fmt.Sprintf(
			"CREATE MUTABLE STREAM `%s` (`item_id` string, `name` string, `category` string, `price` float64) PRIMARY KEY (item_id)",
			timeplus.ItemsStream)},
	}
	for _, stream := range ingest {
		exists, err := client.StreamExists(ctx, stream.name)
		if err != nil {
			logrus.Fatalf("Failed to check stream %s: %v", stream.name, err)
		}
		if exists {
			logrus.Infof("Stream %s already exists", stream.name)
			continue
		}
		if err := client.ExecuteDDL(ctx, stream.ddl); err != nil {
			logrus.Fatalf("Failed to create stream %s: %v", stream.name, err)
		}
		logrus.Infof("Created stream %s", stream.name)
	}

	logrus.Info("Setup complete")
}
