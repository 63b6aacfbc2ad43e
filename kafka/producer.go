package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
)

// Producer publishes an event for every image the save stage wrote.
type Producer interface {
	PublishSaved(ctx context.Context, event *ImageEvent) error
	Close() error
}

type ImageEvent struct {
	RunID      string `json:"run_id"`
	ImageID    string `json:"image_id"`
	OutputPath string `json:"output_path"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

type producer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewProducer(brokers []string, topic string) (Producer, error) {
	p, err := sarama.NewSyncProducer(brokers, newConfig())
	if err != nil {
		return nil, err
	}

	return newProducer(p, topic), nil
}

func newConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	return config
}

func newProducer(p sarama.SyncProducer, topic string) *producer {
	return &producer{producer: p, topic: topic}
}

func (p *producer) PublishSaved(ctx context.Context, event *ImageEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.ImageID),
		Value: sarama.ByteEncoder(data),
	}

	_, _, err = p.producer.SendMessage(msg)
	return err
}

func (p *producer) Close() error {
	return p.producer.Close()
}
