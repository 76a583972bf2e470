package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edulens/edulens-api/internal/dto"
	"github.com/edulens/edulens-api/internal/observability"
)

const eventBufferSize = 16

// EventService fans grading events out to the submitting student's SSE
// streams on every node. Redis pub/sub and NATS are both optional; with
// neither configured events stay in-process.
type EventService interface {
	PublishGraded(ctx context.Context, event dto.GradingEvent)
	Subscribe(userID string) (<-chan dto.GradingEvent, func())
	Start(ctx context.Context)
}

type eventService struct {
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	sanitizer   *bluemonday.Policy
	broker      *eventBroker
	logger      zerolog.Logger
	nodeID      string
}

type gradingEnvelope struct {
	Source string           `json:"source"`
	Event  dto.GradingEvent `json:"event"`
	SentAt time.Time        `json:"sent_at"`
}

type eventBroker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan dto.GradingEvent]struct{}
}

// NewEventService constructs the grading event fan-out.
func NewEventService(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) EventService {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":grading"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".grading"
	}

	return &eventService{
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		sanitizer:   bluemonday.StrictPolicy(),
		broker: &eventBroker{
			subscribers: make(map[string]map[chan dto.GradingEvent]struct{}),
		},
		logger: logger.With().Str("component", "event_service").Logger(),
		nodeID: uuid.NewString(),
	}
}

func (s *eventService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

// PublishGraded delivers the event to local subscribers and forwards it to
// the other nodes. Failures are logged; grading never depends on delivery.
func (s *eventService) PublishGraded(ctx context.Context, event dto.GradingEvent) {
	if event.Type == "" {
		event.Type = dto.EventTypeGraded
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	event.Message = strings.TrimSpace(s.sanitizer.Sanitize(event.Message))

	observability.EventsPublished().WithLabelValues(event.Type).Inc()
	s.broker.broadcast(event.StudentID, event)

	if err := s.forward(ctx, event); err != nil {
		s.logger.Warn().Err(err).Msg("failed to forward grading event")
	}
}

// Subscribe registers an SSE stream for a user. The returned cleanup must be
// called when the stream closes.
func (s *eventService) Subscribe(userID string) (<-chan dto.GradingEvent, func()) {
	channel := make(chan dto.GradingEvent, eventBufferSize)

	s.broker.subscribe(userID, channel)
	observability.SSEClients().Inc()

	cleanup := func() {
		s.broker.unsubscribe(userID, channel)
		observability.SSEClients().Dec()
	}

	return channel, cleanup
}

func (s *eventService) forward(ctx context.Context, event dto.GradingEvent) error {
	if (s.redis == nil || s.redisStream == "") && (s.nats == nil || s.natsSubject == "") {
		return nil
	}

	payload, err := json.Marshal(gradingEnvelope{
		Source: s.nodeID,
		Event:  event,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisStream != "" {
		if err := s.redis.Publish(ctx, s.redisStream, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (s *eventService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("grading event redis subscription closed")
			return
		}
		s.handleEnvelope([]byte(msg.Payload))
	}
}

func (s *eventService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "edulens-events", func(msg *nats.Msg) {
		s.handleEnvelope(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats grading subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain grading nats subscription")
		}
	}()
}

func (s *eventService) handleEnvelope(payload []byte) {
	var envelope gradingEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("invalid grading event payload")
		return
	}

	if envelope.Source == s.nodeID {
		return
	}

	event := envelope.Event
	if event.Type == "" {
		event.Type = dto.EventTypeGraded
	}

	observability.EventsPublished().WithLabelValues(event.Type).Inc()
	s.broker.broadcast(event.StudentID, event)
}

func (b *eventBroker) subscribe(userID string, ch chan dto.GradingEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[userID]; !exists {
		b.subscribers[userID] = make(map[chan dto.GradingEvent]struct{})
	}
	b.subscribers[userID][ch] = struct{}{}
}

func (b *eventBroker) unsubscribe(userID string, ch chan dto.GradingEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[userID]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, userID)
		}
	}
}

func (b *eventBroker) broadcast(userID string, event dto.GradingEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subscribers := b.subscribers[userID]
	for ch := range subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
