package broker

import (
	"fmt"

	"otprelay/internal/config"
	"otprelay/internal/constants"
	"otprelay/internal/logger"
)

// New returns a connected producer/consumer pair for the configured broker type.
func New(cfg config.BrokerConfig, log logger.Logger) (Producer, Consumer, error) {
	switch cfg.Type {
	case constants.BackendKafka:
		return NewKafkaProducer(cfg.Kafka, log), NewKafkaConsumer(cfg.Kafka, log), nil
	case constants.BackendMemory:
		b := NewMemoryBroker(cfg.Memory, log)
		return b, b, nil
	default:
		return nil, nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}
