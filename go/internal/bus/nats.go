package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

const (
	headerMessageID = "Message-ID"
	headerChannel   = "Channel"
	headerPublisher = "Publisher-ID"

	liveToken    = "live"
	historyToken = "history"

	historyBatchSize = 256
)

// NATSConfig configures the NATS transport.
type NATSConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration // How long to keep history
	MaxMsgs         int64         // Max number of history messages to keep
	Replicas        int
	DuplicateWindow time.Duration
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:             nats.DefaultURL,
		StreamName:      "LIVESTREAM_HISTORY",
		SubjectPrefix:   "livestream",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		MaxMsgs:         -1,
		Replicas:        1,
		DuplicateWindow: 2 * time.Minute,
	}
}

// NATSBus publishes live messages on core NATS and persisted messages through
// JetStream. Subjects are <prefix>.live.<channel> and <prefix>.history.<channel>;
// only the latter are captured by the history stream.
type NATSBus struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config NATSConfig
}

func NewNATSBus(cfg NATSConfig) (*NATSBus, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	b := &NATSBus{nc: nc, js: js, config: cfg}

	if err := b.ensureStream(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return b, nil
}

func (b *NATSBus) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        b.config.StreamName,
		Description: "Persisted live stream messages for late joiners",
		Subjects:    []string{b.subject(historyToken, ">")},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      b.config.MaxAge,
		MaxMsgs:     b.config.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    b.config.Replicas,
		Duplicates:  b.config.DuplicateWindow,
	}

	stream, err := b.js.Stream(ctx, b.config.StreamName)
	if err != nil {
		if _, err = b.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().
			Str("stream", b.config.StreamName).
			Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = b.js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().
			Str("stream", b.config.StreamName).
			Msg("updated JetStream stream")
	}
	return nil
}

func (b *NATSBus) subject(token, channel string) string {
	return fmt.Sprintf("%s.%s.%s", b.config.SubjectPrefix, token, channel)
}

// Publish implements Bus.Publish.
func (b *NATSBus) Publish(ctx context.Context, channel string, payload any, persist bool) error {
	if b.nc.IsClosed() {
		return ErrClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	id := uuid.New().String()
	token := liveToken
	if persist {
		token = historyToken
	}
	msg := &nats.Msg{
		Subject: b.subject(token, channel),
		Data:    data,
		Header: nats.Header{
			headerMessageID: []string{id},
			headerChannel:   []string{channel},
			headerPublisher: []string{PublisherFrom(ctx)},
		},
	}

	if !persist {
		if err := b.nc.PublishMsg(msg); err != nil {
			return fmt.Errorf("publish to NATS: %w", err)
		}
		return nil
	}

	ack, err := b.js.PublishMsg(ctx, msg,
		jetstream.WithMsgID(id),
		jetstream.WithExpectStream(b.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", msg.Subject).
		Str("message_id", id).
		Uint64("sequence", ack.Sequence).
		Msg("persisted message")

	return nil
}

type natsSubscription struct {
	subs []*nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error {
	var errs []error
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe implements Bus.Subscribe. Both live and persisted messages are delivered.
func (b *NATSBus) Subscribe(ctx context.Context, channels []string, handler Handler) (Subscription, error) {
	out := &natsSubscription{}
	for _, channel := range channels {
		historySubject := b.subject(historyToken, channel)
		sub, err := b.nc.Subscribe(b.subject("*", channel), func(m *nats.Msg) {
			handler(ctx, fromNATS(m, channel, m.Subject == historySubject))
		})
		if err != nil {
			_ = out.Unsubscribe()
			return nil, fmt.Errorf("subscribe %s: %w", channel, err)
		}
		out.subs = append(out.subs, sub)
	}
	return out, nil
}

func fromNATS(m *nats.Msg, channel string, persisted bool) Message {
	msg := Message{
		Channel:   channel,
		Data:      m.Data,
		Persisted: persisted,
		Timestamp: time.Now(),
	}
	if m.Header != nil {
		msg.ID = m.Header.Get(headerMessageID)
		msg.PublisherID = m.Header.Get(headerPublisher)
	}
	return msg
}

// History implements Bus.History, returning at most limit of the newest persisted messages.
func (b *NATSBus) History(ctx context.Context, channel string, limit int) ([]Message, error) {
	cons, err := b.js.OrderedConsumer(ctx, b.config.StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{b.subject(historyToken, channel)},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create history consumer: %w", err)
	}

	var out []Message
	for {
		batch, err := cons.FetchNoWait(historyBatchSize)
		if err != nil {
			return nil, fmt.Errorf("fetch history: %w", err)
		}

		n := 0
		for m := range batch.Messages() {
			n++
			out = append(out, fromJetStream(m, channel))
			if limit > 0 && len(out) > limit {
				out = out[1:]
			}
		}
		if err := batch.Error(); err != nil && !errors.Is(err, jetstream.ErrNoMessages) {
			return nil, fmt.Errorf("fetch history: %w", err)
		}
		if n < historyBatchSize {
			break
		}
	}
	return out, nil
}

func fromJetStream(m jetstream.Msg, channel string) Message {
	msg := Message{
		Channel:   channel,
		Data:      m.Data(),
		Persisted: true,
	}
	if h := m.Headers(); h != nil {
		msg.ID = h.Get(headerMessageID)
		msg.PublisherID = h.Get(headerPublisher)
	}
	if meta, err := m.Metadata(); err == nil {
		msg.Timestamp = meta.Timestamp
	}
	return msg
}

// Close drains and closes the connection.
func (b *NATSBus) Close() error {
	if b.nc != nil {
		if err := b.nc.Drain(); err != nil {
			b.nc.Close()
			return err
		}
	}
	return nil
}

// isStreamConfigEqual reports whether an update is unnecessary. Storage is
// immutable on an existing stream and is not compared.
func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		slices.Equal(a.Subjects, b.Subjects) &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgs == b.MaxMsgs &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}
