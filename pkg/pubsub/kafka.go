package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"

	"github.com/israelseleshi/building-management-system-sub000/pkg/log"
)

const kafkaPollTimeoutMs = 200

// kafkaRoute locates a channel on Kafka. All conversations share one topic
// and are told apart by the record key, so one conversation stays on one
// partition and keeps its insert order.
//
//	"chat:conversation:C123:messages" → topic "chat-messages", key "C123"
type kafkaRoute struct {
	topic string
	key   string // empty for pattern routes
}

func routeForChannel(channel string) (kafkaRoute, error) {
	parts := strings.Split(channel, ":")
	if len(parts) != 4 || parts[1] != "conversation" || parts[2] == "" || parts[2] == "*" {
		return kafkaRoute{}, fmt.Errorf("invalid channel format: %s", channel)
	}
	return kafkaRoute{topic: parts[0] + "-" + parts[3], key: parts[2]}, nil
}

func routeForPattern(pattern string) (kafkaRoute, error) {
	parts := strings.Split(pattern, ":")
	if len(parts) != 4 || parts[1] != "conversation" || parts[2] != "*" {
		return kafkaRoute{}, fmt.Errorf("unsupported pattern: %s", pattern)
	}
	return kafkaRoute{topic: parts[0] + "-" + parts[3]}, nil
}

func (r kafkaRoute) matches(topic, key string) bool {
	return r.topic == topic && (r.key == "" || r.key == key)
}

type kafkaListener struct {
	route kafkaRoute
	ch    chan *Event
	done  chan struct{}
}

// KafkaPubSub implements PubSub on Apache Kafka.
//
// Each process runs a single consumer in a group of its own, so it sees every
// record of the topics it follows. Records are demultiplexed by key to the
// local listeners; Subscribe and Unsubscribe never touch the group.
type KafkaPubSub struct {
	producer *kafka.Producer
	consumer *kafka.Consumer
	config   KafkaConfig

	mu        sync.Mutex
	listeners map[string]*kafkaListener // channel or pattern → listener
	topics    map[string]struct{}
	closed    bool

	stop         chan struct{}
	closeOnce    sync.Once
	pollDone     chan struct{}
	deliveryDone chan struct{}
}

// NewKafkaPubSub connects a producer and this instance's consumer.
func NewKafkaPubSub(cfg KafkaConfig) (*KafkaPubSub, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"group.id":           instanceGroupID(cfg.GroupID),
		"auto.offset.reset":  "latest",
		"enable.auto.commit": false,
	})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	k := &KafkaPubSub{
		producer:     p,
		consumer:     c,
		config:       cfg,
		listeners:    make(map[string]*kafkaListener),
		topics:       make(map[string]struct{}),
		stop:         make(chan struct{}),
		pollDone:     make(chan struct{}),
		deliveryDone: make(chan struct{}),
	}

	if route, err := routeForPattern(PatternConversationMessages); err == nil {
		if err := k.ensureTopics(route.topic); err != nil {
			l := log.L()
			l.Warn().Err(err).Msg("failed to ensure kafka topics (may already exist)")
		}
	}

	go k.deliveryReports()
	go k.poll()

	return k, nil
}

// instanceGroupID gives every process its own consumer group. Offsets are
// never committed; a restarted instance starts from the log end.
func instanceGroupID(base string) string {
	if base == "" {
		base = "messaging"
	}
	return base + "-" + uuid.NewString()
}

func (k *KafkaPubSub) ensureTopics(topics ...string) error {
	admin, err := kafka.NewAdminClientFromProducer(k.producer)
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	partitions := k.config.Partitions
	if partitions <= 0 {
		partitions = 4
	}

	specs := make([]kafka.TopicSpecification, 0, len(topics))
	for _, t := range topics {
		specs = append(specs, kafka.TopicSpecification{
			Topic:             t,
			NumPartitions:     partitions,
			ReplicationFactor: 1,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, specs)
	if err != nil {
		return fmt.Errorf("failed to create topics: %w", err)
	}
	for _, r := range results {
		if code := r.Error.Code(); code != kafka.ErrNoError && code != kafka.ErrTopicAlreadyExists {
			l := log.L()
			l.Warn().Str("topic", r.Topic).Str("error", r.Error.String()).Msg("failed to create kafka topic")
		}
	}
	return nil
}

func (k *KafkaPubSub) deliveryReports() {
	defer close(k.deliveryDone)
	for e := range k.producer.Events() {
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			l := log.L()
			l.Error().Err(m.TopicPartition.Error).Msg("kafka delivery failed")
		}
	}
}

// Publish produces the event keyed by its conversation. Delivery is reported
// asynchronously.
func (k *KafkaPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	route, err := routeForChannel(channel)
	if err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &route.topic, Partition: kafka.PartitionAny},
		Key:            []byte(route.key),
		Value:          data,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	return nil
}

// Subscribe follows one conversation's channel.
func (k *KafkaPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	route, err := routeForChannel(channel)
	if err != nil {
		return nil, err
	}
	return k.listen(ctx, channel, route)
}

// SubscribePattern follows every conversation on the pattern's topic.
func (k *KafkaPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	route, err := routeForPattern(pattern)
	if err != nil {
		return nil, err
	}
	return k.listen(ctx, pattern, route)
}

func (k *KafkaPubSub) listen(ctx context.Context, name string, route kafkaRoute) (<-chan *Event, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil, ErrClosed
	}

	if _, ok := k.topics[route.topic]; !ok {
		k.topics[route.topic] = struct{}{}
		if err := k.consumer.SubscribeTopics(k.topicList(), nil); err != nil {
			delete(k.topics, route.topic)
			return nil, fmt.Errorf("failed to subscribe to topic %s: %w", route.topic, err)
		}
	}

	if existing, ok := k.listeners[name]; ok {
		k.dropLocked(name, existing)
	}

	lst := &kafkaListener{
		route: route,
		ch:    make(chan *Event, eventBufferSize),
		done:  make(chan struct{}),
	}
	k.listeners[name] = lst

	go func() {
		select {
		case <-ctx.Done():
			k.mu.Lock()
			k.dropLocked(name, lst)
			k.mu.Unlock()
		case <-lst.done:
		}
	}()

	return lst.ch, nil
}

func (k *KafkaPubSub) topicList() []string {
	topics := make([]string, 0, len(k.topics))
	for t := range k.topics {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// dropLocked removes lst if it is still registered under name.
func (k *KafkaPubSub) dropLocked(name string, lst *kafkaListener) {
	if cur, ok := k.listeners[name]; !ok || cur != lst {
		return
	}
	delete(k.listeners, name)
	close(lst.done)
	close(lst.ch)
}

func (k *KafkaPubSub) dropAllLocked() {
	for name, lst := range k.listeners {
		k.dropLocked(name, lst)
	}
}

func (k *KafkaPubSub) poll() {
	defer close(k.pollDone)
	l := log.L()

	for {
		select {
		case <-k.stop:
			return
		default:
		}

		switch e := k.consumer.Poll(kafkaPollTimeoutMs).(type) {
		case *kafka.Message:
			k.dispatch(e)
		case kafka.Error:
			l.Error().Err(e).Int("code", int(e.Code())).Bool("fatal", e.IsFatal()).Msg("kafka consumer error")
			if e.IsFatal() {
				// Listeners see their channel close and treat the feed as lost.
				k.mu.Lock()
				k.closed = true
				k.dropAllLocked()
				k.mu.Unlock()
				return
			}
		}
	}
}

func (k *KafkaPubSub) dispatch(m *kafka.Message) {
	if m.TopicPartition.Topic == nil {
		return
	}
	topic, key := *m.TopicPartition.Topic, string(m.Key)

	var event Event
	if err := json.Unmarshal(m.Value, &event); err != nil {
		l := log.L()
		l.Warn().Err(err).Str("topic", topic).Msg("failed to unmarshal kafka event")
		return
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	for name, lst := range k.listeners {
		if !lst.route.matches(topic, key) {
			continue
		}
		select {
		case lst.ch <- &event:
		default:
			l := log.L()
			l.Warn().Str(log.FieldChannel, name).Msg("subscriber buffer full, event dropped")
		}
	}
}

// Unsubscribe closes the local listener. The consumer keeps following the
// topic for the process's other listeners.
func (k *KafkaPubSub) Unsubscribe(ctx context.Context, channel string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if lst, ok := k.listeners[channel]; ok {
		k.dropLocked(channel, lst)
	}
	return nil
}

// Close ends every listener, leaves the group and flushes pending produces.
func (k *KafkaPubSub) Close() error {
	var err error
	k.closeOnce.Do(func() {
		k.mu.Lock()
		k.closed = true
		k.dropAllLocked()
		k.mu.Unlock()

		close(k.stop)
		<-k.pollDone

		if cerr := k.consumer.Close(); cerr != nil {
			err = fmt.Errorf("failed to close consumer: %w", cerr)
		}

		k.producer.Flush(5000)
		k.producer.Close()
		<-k.deliveryDone
	})
	return err
}
