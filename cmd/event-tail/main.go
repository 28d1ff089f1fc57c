package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"voipms-gateway/internal/adapters/queue/rabbitmq"
	"voipms-gateway/internal/config"
	"voipms-gateway/internal/ports"
)

// event-tail consumes the gateway event stream and prints each event as one
// JSON line on stdout. It stands in for the home-automation side of the bus
// during development: new-message events, webhook URL announcements and
// error notifications all land here.

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	conf, err := config.Load()
	if err != nil {
		log.Error("load config", "err", err)
		os.Exit(1)
	}

	consumer, err := rabbitmq.NewConsumer(conf.AMQPURL, log)
	if err != nil {
		log.Error("connect rabbitmq consumer", "err", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("event-tail started")

	if err := consumer.Consume(ctx, func(_ context.Context, ev ports.Event) error {
		line, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		fmt.Println(string(line))
		return nil
	}); err != nil && ctx.Err() == nil {
		log.Error("consumer error", "err", err)
		os.Exit(1)
	}

	log.Info("shutting down event-tail")
}
