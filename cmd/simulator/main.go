// Simulator seeds the catalog and generates a continuous feed of synthetic
// market quotes and analytics, standing in for the ingest pipeline during
// local development.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dealradar/alert-engine/pkg/config"
	"github.com/dealradar/alert-engine/pkg/timeplus"
)

var platforms = []struct {
	name       string
	feePercent float64
}{
	{"steammarket", 15},
	{"skinport", 12},
	{"buff", 2.5},
	{"dmarket", 7},
}

var recommendations = []string{"Strong Buy", "Buy", "Hold", "Sell"}
var riskLevels = []string{"low", "medium", "high"}

type simItem struct {
	id        string
	name      string
	category  string
	basePrice float64
}

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	itemCount, _ := strconv.Atoi(getEnv("ITEM_COUNT", "20"))
	intervalMs, _ := strconv.Atoi(getEnv("INTERVAL_MS", "2000"))

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
	}()

	items := makeItems(itemCount)
	if err := seedCatalog(ctx, client, items); err != nil {
		logrus.Fatalf("Failed to seed catalog: %v", err)
	}
	logrus.Infof("Seeded %d catalog items; emitting quotes every %dms", len(items), intervalMs)

	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logrus.Info("Simulator stopped")
			return
		case <-ticker.C:
			if err := emitQuotes(ctx, client, items); err != nil {
				logrus.Errorf("Failed to emit quotes: %v", err)
			}
			// Analytics move much slower than quotes.
			if rand.Intn(10) == 0 {
				if err := emitAnalytics(ctx, client, items); err != nil {
					logrus.Errorf("Failed to emit analytics: %v", err)
				}
			}
		}
	}
}

func makeItems(count int) []simItem {
	categories := []string{"knives", "rifles", "pistols", "gloves"}
	items := make([]simItem, 0, count)
	for i := 0; i < count; i++ {
		category := categories[i%len(categories)]
		items = append(items, simItem{
			id:        fmt.Sprintf("item-%03d", i),
			name:      fmt.Sprintf("%s-%03d", category, i),
			category:  category,
			basePrice: 5 + rand.Float64()*195,
		})
	}
	return items
}

func seedCatalog(ctx context.Context, client timeplus.Client, items []simItem) error {
	columns := []string{"item_id", "name", "category", "price"}
	for _, item := range items {
		values := []interface{}{item.id, item.name, item.category, item.basePrice}
		if err := client.InsertIntoStream(ctx, timeplus.ItemsStream, columns, values); err != nil {
			return err
		}
	}
	return nil
}

func emitQuotes(ctx context.Context, client timeplus.Client, items []simItem) error {
	columns := []string{"item_id", "item_name", "category", "platform", "price", "fee_percent", "volume"}
	for _, item := range items {
		for _, platform := range platforms {
			// Jitter around the base price, with the occasional sharp drop.
			price := item.basePrice * (0.9 + rand.Float64()*0.2)
			if rand.Intn(50) == 0 {
				price *= 0.7
			}
			values := []interface{}{
				item.id, item.name, item.category, platform.name,
				price, platform.feePercent, float64(rand.Intn(500)),
			}
			if err := client.InsertIntoStream(ctx, timeplus.QuotesStream, columns, values); err != nil {
				return err
			}
		}
	}
	return nil
}

func emitAnalytics(ctx context.Context, client timeplus.Client, items []simItem) error {
	columns := []string{"item_id", "recommendation", "risk_level"}
	for _, item := range items {
		values := []interface{}{
			item.id,
			recommendations[rand.Intn(len(recommendations))],
			riskLevels[rand.Intn(len(riskLevels))],
		}
		if err := client.InsertIntoStream(ctx, timeplus.AnalyticsStream, columns, values); err != nil {
			return err
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
