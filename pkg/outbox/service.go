package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
)

// envelopeVersion is stamped on events that do not pick their own version.
const envelopeVersion = 1

// ActorRef identifies who caused an event.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and published
// unchanged as the Pub/Sub message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DomainEvent is a state change to be published after its transaction commits.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

func (e DomainEvent) validate() error {
	var errs error
	if !e.EventType.IsValid() {
		errs = multierr.Append(errs, fmt.Errorf("unknown event type %q", e.EventType))
	}
	if !e.AggregateType.IsValid() {
		errs = multierr.Append(errs, fmt.Errorf("unknown aggregate type %q", e.AggregateType))
	}
	if e.AggregateID == uuid.Nil {
		errs = multierr.Append(errs, errors.New("aggregate id is required"))
	}
	if e.Data == nil {
		errs = multierr.Append(errs, errors.New("event data is required"))
	}
	return errs
}

// row encodes the event into the envelope consumers decode.
func (e DomainEvent) row(now time.Time) (models.OutboxEvent, PayloadEnvelope, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("encode %s data: %w", e.EventType, err)
	}
	id := uuid.New()
	env := PayloadEnvelope{
		Version:    e.Version,
		EventID:    id.String(),
		OccurredAt: e.OccurredAt,
		Actor:      e.Actor,
		Data:       data,
	}
	if env.Version == 0 {
		env.Version = envelopeVersion
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = now
	}
	env.OccurredAt = env.OccurredAt.UTC()

	payload, err := json.Marshal(env)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("encode %s envelope: %w", e.EventType, err)
	}
	return models.OutboxEvent{
		ID:            id,
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Payload:       payload,
	}, env, nil
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit stores event inside tx so it commits or rolls back with the change it
// describes. The row id doubles as the envelope event id.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if err := event.validate(); err != nil {
		return fmt.Errorf("invalid outbox event: %w", err)
	}
	row, env, err := event.row(s.now())
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":     env.EventID,
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}
