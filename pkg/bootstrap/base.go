package bootstrap

import (
	"context"
	"fmt"
	"os"

	"otprelay/internal/broker"
	"otprelay/internal/config"
	"otprelay/internal/constants"
	"otprelay/internal/logger"
)

type Base struct {
	Config   *config.Config
	Logger   logger.Logger
	Producer broker.Producer
	Consumer broker.Consumer
	// ConfigConsumer reads config update events. On Kafka it joins a
	// per-instance group so every relay sees every update.
	ConfigConsumer broker.Consumer
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

func (b *Base) InitBroker(serviceName string) error {
	producer, consumer, err := broker.New(b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create broker: %w", err)
	}

	if serviceName != "" {
		consumer.SetServiceName(serviceName)
	}

	b.Producer = producer
	b.Consumer = consumer
	b.ConfigConsumer = consumer

	kafkaCfg := b.Config.Broker.Kafka
	if b.Config.Broker.Type == constants.BackendKafka && kafkaCfg.ConfigUpdateTopic != "" {
		kafkaCfg.GroupID = configGroupID(kafkaCfg.GroupID)
		kafkaCfg.DLQTopic = ""
		cc := broker.NewKafkaConsumer(kafkaCfg, b.Logger)
		cc.SetServiceName(serviceName + "-config")
		b.ConfigConsumer = cc
	}

	b.Logger.Infow("Broker initialized", "type", b.Config.Broker.Type)
	return nil
}

func configGroupID(base string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return fmt.Sprintf("%s-config-%s", base, host)
}

func (b *Base) ShutdownBroker() []error {
	var errs []error

	if b.Producer != nil {
		if err := b.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}

	if b.ConfigConsumer != nil && b.ConfigConsumer != b.Consumer {
		if err := b.ConfigConsumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("config consumer close error: %w", err))
		}
	}

	// The memory broker is both producer and consumer.
	if b.Consumer != nil && interface{}(b.Consumer) != interface{}(b.Producer) {
		if err := b.Consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer close error: %w", err))
		}
	}

	return errs
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	errs = append(errs, b.ShutdownBroker()...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
