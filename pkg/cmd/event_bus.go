package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/flowrun/pkg/channels/gochannel"
	"github.com/dukex/flowrun/pkg/channels/kafka"
	"github.com/dukex/flowrun/pkg/eventbus"
)

// NewEventBus creates the event bus for the provider. Kafka brokers come from KAFKA_BROKERS.
func NewEventBus(provider, serviceName string, logger *slog.Logger) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, serviceName, kafkaBrokers())
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}

func kafkaBrokers() []string {
	var brokers []string

	for _, broker := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}

	return brokers
}
