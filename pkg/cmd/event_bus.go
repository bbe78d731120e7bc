package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/skein-dev/skein/pkg/channels/gochannel"
	"github.com/skein-dev/skein/pkg/channels/kafka"
	"github.com/skein-dev/skein/pkg/eventbus"
)

// NewEventBus wires an event bus over the requested channel provider. "none"
// (or an empty provider) returns nil, which the engine treats as "do not
// publish". Brokers is a comma-separated address list, only read for kafka.
func NewEventBus(logger *slog.Logger, provider, brokers, consumerGroup string) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch strings.ToLower(provider) {
	case "kafka":
		publisher, subscriber, err := kafka.CreateChannel(wmLogger, kafka.Config{
			Brokers:       strings.Split(brokers, ","),
			ConsumerGroup: consumerGroup,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka channel: %w", err)
		}

		return eventbus.NewWatermillEventBus(publisher, subscriber), nil
	case "gochannel":
		publisher, subscriber := gochannel.CreateChannel(wmLogger)

		return eventbus.NewWatermillEventBus(publisher, subscriber), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider %q (supported: kafka, gochannel, none)", provider)
	}
}
