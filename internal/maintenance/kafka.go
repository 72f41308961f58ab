// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

package maintenance

import (
	"encoding/json"

	"github.com/Shopify/sarama"
)

// KafkaPublisher fans tick summaries out to a Kafka topic for downstream
// analytics. It is fire-and-forget: publish failures are logged, never
// propagated, since the maintenance loop must never block on this sink.
type KafkaPublisher struct {
	producer sarama.AsyncProducer
	topic    string
}

// NewKafkaPublisher connects an async producer to brokers and starts a
// goroutine that drains the producer's Errors channel, logging each
// publish failure at warn.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	producer, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	kp := &KafkaPublisher{producer: producer, topic: topic}
	go kp.drainErrors()
	return kp, nil
}

func (k *KafkaPublisher) drainErrors() {
	for err := range k.producer.Errors() {
		logger.Warn("maintenance tick publish failed", "error", err.Err)
	}
}

// Publish implements TickPublisher.
func (k *KafkaPublisher) Publish(summary TickSummary) {
	b, err := json.Marshal(summary)
	if err != nil {
		logger.Warn("failed to marshal maintenance tick summary", "error", err)
		return
	}
	select {
	case k.producer.Input() <- &sarama.ProducerMessage{Topic: k.topic, Value: sarama.ByteEncoder(b)}:
	default:
		logger.Warn("maintenance tick publish dropped, producer input full")
	}
}

// Close releases the underlying producer.
func (k *KafkaPublisher) Close() error {
	return k.producer.Close()
}
