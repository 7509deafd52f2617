// Cleanup drops every engine stream. Development tool; destructive.
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

	streams := []string{
		timeplus.RulesStream,
		timeplus.AlertsStream,
		timeplus.QuotesStream,
		timeplus.AnalyticsStream,
		timeplus.ItemsStream,
	}
	for _, name := range streams {
		exists, err := client.StreamExists(ctx, name)
		if err != nil {
			logrus.Warnf("Failed to check stream %s: %v", name, err)
			continue
		}
		if !exists {
			continue
		}
		if err := client.ExecuteDDL(ctx, fmt.Sprintf("DROP STREAM `%s`", name)); err != nil {
			logrus.Warnf("Failed to drop stream %s: %v", name, err)
			continue
		}
		logrus.Infof("Dropped stream %s", name)
	}
	logrus.Info("Cleanup complete")
}
