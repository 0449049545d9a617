package events

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Emitter is the slice of the gateway the subscriber needs. Deliverable is
// the gateway's allow-list of collaborator events.
type Emitter interface {
	Deliverable(event string) bool
	EmitToUsers(event string, userIDs []string, data any)
	EmitToChat(event, chatID string, data any)
}

// envelope is the payload the CRUD services publish on <subject>.<event>.
type envelope struct {
	UserIDs []string       `json:"user_ids,omitempty"`
	ChatID  string         `json:"chat_id,omitempty"`
	Data    map[string]any `json:"data"`
}

// Subscriber listens on the collaborator event subject and hands the
// payloads to the gateway for delivery. The gateway is only the delivery
// mechanism here; the events themselves originate in the CRUD services.
type Subscriber struct {
	nc  *nats.Conn
	sub *nats.Subscription
	log *zap.SugaredLogger
}

func NewSubscriber(url string, log *zap.SugaredLogger) (*Subscriber, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &Subscriber{nc: nc, log: log}, nil
}

// Start subscribes to subject.* (e.g. chat.events.group-created). The last
// subject token is the wire event name.
func (s *Subscriber) Start(subject string, emitter Emitter) error {
	sub, err := s.nc.Subscribe(subject+".*", func(msg *nats.Msg) {
		s.deliver(msg.Subject[len(subject)+1:], msg.Data, emitter)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

// deliver validates and forwards one collaborator event. Anything on the
// bus can publish under the subject, so the same allow-list as the HTTP
// emit path applies before a name reaches clients.
func (s *Subscriber) deliver(event string, data []byte, emitter Emitter) {
	if !emitter.Deliverable(event) {
		s.log.Warnw("undeliverable collaborator event", "event", event)
		return
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.log.Warnw("bad collaborator event", "event", event, "err", err)
		return
	}
	if len(env.UserIDs) > 0 {
		emitter.EmitToUsers(event, env.UserIDs, env.Data)
	}
	if env.ChatID != "" {
		emitter.EmitToChat(event, env.ChatID, env.Data)
	}
}

func (s *Subscriber) Close() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	s.nc.Close()
}
