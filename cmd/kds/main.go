package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tablestack/config"
	"tablestack/internal/logger"
	"tablestack/internal/messaging"
	"tablestack/internal/pos/kitchen"
)

// The KDS feed is push-first over RabbitMQ with a periodic poll of the core
// service as reconciliation, so a dropped message never strands a ticket.
func main() {
	station := flag.String("station", "", "prep station to display (empty for expo)")
	coreURL := flag.String("core-url", "http://localhost:8080", "POS core base URL")
	pollEvery := flag.Duration("poll", 15*time.Second, "reconciliation poll interval")
	flag.Parse()

	cfg := config.LoadConfig()
	appLog := logger.New("kds")

	conn, err := messaging.New(cfg.AMQP.URL, cfg.AMQP.Stations, appLog)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer conn.Close()

	queue := messaging.ExpoQueue
	tag := "kds-expo"
	if *station != "" {
		queue = messaging.StationQueue(*station)
		tag = "kds-" + *station
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		appLog.Info("shutdown", "signal received, stopping", nil)
		cancel()
	}()

	if *station != "" {
		go pollActiveItems(ctx, appLog, *coreURL, *station, *pollEvery)
	}

	consumer := messaging.NewConsumer(conn, queue, tag, 10)
	err = consumer.Start(ctx, func(ctx context.Context, body []byte) error {
		return display(appLog, body)
	})
	if err != nil && err != context.Canceled {
		log.Fatalf("Consumer stopped: %v", err)
	}
}

func display(appLog *logger.Logger, body []byte) error {
	var head struct {
		EventType string `json:"event_type"`
	}
	if err := messaging.ParseMessage(body, &head); err != nil {
		return fmt.Errorf("failed to parse message: %w", err)
	}

	switch head.EventType {
	case kitchen.EventTicketCreated:
		var ticket kitchen.TicketMessage
		if err := messaging.ParseMessage(body, &ticket); err != nil {
			return err
		}
		for _, item := range ticket.Items {
			line := fmt.Sprintf("%dx %s", item.Quantity, item.Name)
			if item.Seat != nil {
				line += fmt.Sprintf(" (seat %d)", *item.Seat)
			}
			appLog.Info("ticket_item", line, map[string]any{
				"order_number": ticket.OrderNumber,
				"station":      ticket.Station,
				"item_id":      item.ItemID,
				"modifiers":    item.Modifiers,
			})
		}
	case kitchen.EventOrderReady, kitchen.EventOrderBumped:
		var event kitchen.OrderEventMessage
		if err := messaging.ParseMessage(body, &event); err != nil {
			return err
		}
		appLog.Info(head.EventType, "order event", map[string]any{
			"order_id":     event.OrderID,
			"order_number": event.OrderNumber,
		})
	default:
		appLog.Debug("unknown_event", "ignoring message", map[string]any{"event_type": head.EventType})
	}
	return nil
}

// pollActiveItems refreshes the full in-flight list from the core service so
// the display converges even if a ticket message was lost.
func pollActiveItems(ctx context.Context, appLog *logger.Logger, baseURL, station string, every time.Duration) {
	client := &http.Client{Timeout: 10 * time.Second}
	url := fmt.Sprintf("%s/api/v1/kitchen/stations/%s/items", baseURL, station)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			items, err := fetchActiveItems(ctx, client, url)
			if err != nil {
				appLog.Error("poll_failed", "could not refresh active items", err, map[string]any{"station": station})
				continue
			}
			appLog.Info("poll_refresh", "active items refreshed", map[string]any{
				"station": station,
				"count":   len(items),
			})
		}
	}
}

func fetchActiveItems(ctx context.Context, client *http.Client, url string) ([]kitchen.ActiveItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Success bool                 `json:"success"`
		Data    []kitchen.ActiveItem `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}
