package rooms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tableside-backend/internal/tables"
	"github.com/angelmondragon/tableside-backend/internal/users"
	"github.com/angelmondragon/tableside-backend/pkg/config"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/metrics"
	"github.com/angelmondragon/tableside-backend/pkg/types"
)

// State is where a room session is in its lifecycle.
type State string

const (
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateEnding     State = "ending"
	StateDeleted    State = "deleted"
	StateError      State = "error"
	StateClosed     State = "closed"
)

// EventType tags the frames a session emits.
type EventType string

const (
	EventState    EventType = "state"
	EventTable    EventType = "table"
	EventRoster   EventType = "roster"
	EventEnding   EventType = "ending"
	EventError    EventType = "error"
	EventRedirect EventType = "redirect"
)

const (
	homePath           = "/home"
	msgTableDeleted    = "This table has been deleted."
	msgFeedFailed      = "Lost connection to this table."
	defaultEndedReason = "The table creator has ended this table."
)

// Event is one frame sent to the room client.
type Event struct {
	Type               EventType              `json:"type"`
	State              State                  `json:"state,omitempty"`
	Table              *tables.TableDTO       `json:"table,omitempty"`
	ConversationPrompt string                 `json:"conversation_prompt,omitempty"`
	Participants       []users.ParticipantDTO `json:"participants,omitempty"`
	Message            string                 `json:"message,omitempty"`
	Reason             string                 `json:"reason,omitempty"`
	Redirect           string                 `json:"redirect,omitempty"`
}

// Emitter delivers events to the client. An error ends the session.
type Emitter func(Event) error

type tableReader interface {
	Get(ctx context.Context, locationID string, tableID uuid.UUID) (*tables.TableDTO, error)
	ReleaseEndedTable(ctx context.Context, userID uuid.UUID, table tables.TableDTO) error
}

type rosterLoader interface {
	Participants(ctx context.Context, ids []uuid.UUID) ([]users.ParticipantDTO, error)
}

// ManagerParams groups the room dependencies.
type ManagerParams struct {
	Feed    tables.SnapshotSubscriber
	Tables  tableReader
	Roster  rosterLoader
	Metrics *metrics.RoomMetrics
	Logger  *logger.Logger
	Config  config.TablesConfig
	After   func(time.Duration) <-chan time.Time
}

// Manager runs room sessions.
type Manager struct {
	feed    tables.SnapshotSubscriber
	tables  tableReader
	roster  rosterLoader
	metrics *metrics.RoomMetrics
	logg    *logger.Logger
	delays  redirectDelays
	after   func(time.Duration) <-chan time.Time
}

type redirectDelays struct {
	notified time.Duration
	inactive time.Duration
	failed   time.Duration
}

func NewManager(params ManagerParams) (*Manager, error) {
	if params.Feed == nil {
		return nil, fmt.Errorf("table feed required")
	}
	if params.Tables == nil {
		return nil, fmt.Errorf("table reader required")
	}
	if params.Roster == nil {
		return nil, fmt.Errorf("roster loader required")
	}
	after := params.After
	if after == nil {
		after = time.After
	}
	return &Manager{
		feed:    params.Feed,
		tables:  params.Tables,
		roster:  params.Roster,
		metrics: params.Metrics,
		logg:    params.Logger,
		delays: redirectDelays{
			notified: orDefault(params.Config.EndedRedirectDelay, 3*time.Second),
			inactive: orDefault(params.Config.InactiveRedirectDelay, 5*time.Second),
			failed:   orDefault(params.Config.DeletedRedirectDelay, 2*time.Second),
		},
		after: after,
	}, nil
}

func orDefault(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}

// session is the per-connection state machine.
type session struct {
	m          *Manager
	userID     uuid.UUID
	locationID string
	tableID    uuid.UUID
	emit       Emitter

	state  State
	ending bool
	roster types.UUIDList
	seen   bool
}

// Run drives one user's room for a table until it ends, fails or ctx is cancelled.
// It returns the final state.
func (m *Manager) Run(ctx context.Context, userID uuid.UUID, locationID string, tableID uuid.UUID, emit Emitter) (State, error) {
	s := &session{
		m:          m,
		userID:     userID,
		locationID: locationID,
		tableID:    tableID,
		emit:       emit,
		state:      StateConnecting,
	}
	if m.logg != nil {
		ctx = m.logg.WithTable(m.logg.WithUserID(ctx, userID.String()), locationID, tableID.String())
	}
	m.metrics.Opened()
	final, err := s.run(ctx)
	m.metrics.Finished(string(final))
	return final, err
}

func (s *session) run(ctx context.Context) (State, error) {
	if err := s.transition(StateConnecting); err != nil {
		return StateClosed, err
	}

	events, unsubscribe, err := s.m.feed.Subscribe(ctx, s.locationID, s.tableID)
	if err != nil {
		s.m.warn(ctx, "room subscription failed", err)
		return s.fail(ctx, StateError, msgFeedFailed)
	}
	defer unsubscribe()

	// the initial read only seeds the view; the feed is authoritative afterwards
	table, err := s.m.tables.Get(ctx, s.locationID, s.tableID)
	switch {
	case err == nil:
	case tables.ReasonOf(err) == tables.ReasonTableNotFound:
		return s.fail(ctx, StateDeleted, msgTableDeleted)
	default:
		s.m.warn(ctx, "initial table read failed", err)
	}

	if err := s.transition(StateActive); err != nil {
		return StateClosed, err
	}
	if table != nil {
		if done, final, err := s.apply(ctx, table); done {
			return final, err
		}
	}

	for {
		select {
		case <-ctx.Done():
			s.state = StateClosed
			return StateClosed, nil
		case ev, ok := <-events:
			if !ok {
				return s.fail(ctx, StateError, msgFeedFailed)
			}
			if ev.Err != nil {
				s.m.warn(ctx, "room feed failed", ev.Err)
				return s.fail(ctx, StateError, msgFeedFailed)
			}
			if ev.Snapshot == nil {
				continue
			}
			if ev.Snapshot.Deleted || ev.Snapshot.Table == nil {
				return s.fail(ctx, StateDeleted, msgTableDeleted)
			}
			if done, final, err := s.apply(ctx, ev.Snapshot.Table); done {
				return final, err
			}
		}
	}
}

// apply renders one table state and reports whether the session is finished.
func (s *session) apply(ctx context.Context, table *tables.TableDTO) (bool, State, error) {
	if err := s.emit(Event{Type: EventTable, Table: table, ConversationPrompt: table.ConversationPrompt}); err != nil {
		return true, StateClosed, err
	}

	joined := types.UUIDList(table.JoinedUsers)
	if !s.seen || !joined.Equal(s.roster) {
		s.seen = true
		s.roster = append(types.UUIDList(nil), joined...)
		participants, err := s.m.roster.Participants(ctx, joined)
		if err != nil {
			s.m.warn(ctx, "roster lookup failed", err)
		} else if err := s.emit(Event{Type: EventRoster, Participants: participants}); err != nil {
			return true, StateClosed, err
		}
	}

	notified := table.ShouldNotify(s.userID)
	if table.IsActive() && !notified {
		return false, "", nil
	}
	if table.CreatorID == s.userID {
		// the creator's leave already released the table; no notice or redirect
		return true, StateClosed, s.transition(StateClosed)
	}
	final, err := s.end(ctx, table, notified)
	return true, final, err
}

// end moves the session to Ending. The guard keeps it to one run per session.
func (s *session) end(ctx context.Context, table *tables.TableDTO, notified bool) (State, error) {
	if s.ending {
		return StateEnding, nil
	}
	s.ending = true

	if err := s.m.tables.ReleaseEndedTable(ctx, s.userID, *table); err != nil {
		s.m.warn(ctx, "release ended table failed", err)
	}
	if err := s.transition(StateEnding); err != nil {
		return StateClosed, err
	}
	reason := defaultEndedReason
	if table.EndReason != nil && *table.EndReason != "" {
		reason = *table.EndReason
	}
	if err := s.emit(Event{Type: EventEnding, Table: table, Reason: reason}); err != nil {
		return StateClosed, err
	}

	delay := s.m.delays.inactive
	if notified {
		delay = s.m.delays.notified
	}
	return s.redirectAfter(ctx, StateEnding, delay)
}

// fail reports a terminal problem to the client and redirects home.
func (s *session) fail(ctx context.Context, state State, message string) (State, error) {
	if err := s.transition(state); err != nil {
		return StateClosed, err
	}
	if err := s.emit(Event{Type: EventError, Message: message}); err != nil {
		return StateClosed, err
	}
	return s.redirectAfter(ctx, state, s.m.delays.failed)
}

func (s *session) redirectAfter(ctx context.Context, state State, delay time.Duration) (State, error) {
	select {
	case <-ctx.Done():
		return StateClosed, nil
	case <-s.m.after(delay):
	}
	if err := s.emit(Event{Type: EventRedirect, Redirect: homePath}); err != nil {
		return StateClosed, err
	}
	return state, nil
}

func (s *session) transition(next State) error {
	s.state = next
	return s.emit(Event{Type: EventState, State: next})
}

func (m *Manager) warn(ctx context.Context, msg string, err error) {
	if m.logg == nil || err == nil || errors.Is(err, context.Canceled) {
		return
	}
	m.logg.Warn(m.logg.WithField(ctx, "error", err.Error()), msg)
}
