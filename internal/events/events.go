package events

import (
	"fmt"

	"github.com/nsqio/go-nsq"
	"github.com/sirupsen/logrus"

	"mingmou/internal/config"
	"mingmou/internal/dao"
	"mingmou/pkg/log"
)

// Publisher announces finished detections to downstream consumers.
type Publisher interface {
	Publish(ev *dao.DetectionEvent) error
	Stop()
}

// NewPublisher returns an NSQ publisher when enabled, a no-op one otherwise.
func NewPublisher(conf config.NSQConfig) (Publisher, error) {
	if !conf.Enabled {
		return Nop{}, nil
	}
	return NewNSQPublisher(conf.NSQDAddr, conf.Topic)
}

type NSQPublisher struct {
	producer *nsq.Producer
	topic    string
	logger   *logrus.Entry
}

func NewNSQPublisher(addr, topic string) (*NSQPublisher, error) {
	producer, err := nsq.NewProducer(addr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("create NSQ producer failed: %w", err)
	}
	producer.SetLoggerLevel(nsq.LogLevelWarning)
	return &NSQPublisher{
		producer: producer,
		topic:    topic,
		logger:   log.Component("events"),
	}, nil
}

func (p *NSQPublisher) Topic() string {
	return p.topic
}

func (p *NSQPublisher) Publish(ev *dao.DetectionEvent) error {
	msgData, err := ev.Marshal()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.producer.Publish(p.topic, msgData); err != nil {
		return fmt.Errorf("publish to NSQ failed: %w", err)
	}
	p.logger.Debugf("published result %s to %s", ev.ResultId, p.topic)
	return nil
}

func (p *NSQPublisher) Stop() {
	p.producer.Stop()
}

type Nop struct{}

func (Nop) Publish(*dao.DetectionEvent) error { return nil }

func (Nop) Stop() {}
