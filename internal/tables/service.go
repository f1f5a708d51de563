package tables

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/tableside-backend/internal/locations"
	"github.com/angelmondragon/tableside-backend/internal/users"
	"github.com/angelmondragon/tableside-backend/pkg/config"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/metrics"
	"github.com/angelmondragon/tableside-backend/pkg/outbox"
	"github.com/angelmondragon/tableside-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/tableside-backend/pkg/types"
)

const savepointEndParticipation = "end_participation"

type dbRunner interface {
	DB() *gorm.DB
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service runs the table lifecycle: create, join, leave/end and status checks.
type Service interface {
	Create(ctx context.Context, input CreateTableInput) (*TableDTO, error)
	CheckUserTableStatus(ctx context.Context, userID uuid.UUID, force bool) (bool, error)
	Join(ctx context.Context, input JoinInput) (*TableDTO, error)
	Leave(ctx context.Context, input LeaveInput) (*LeaveResult, error)
	Get(ctx context.Context, locationID string, tableID uuid.UUID) (*TableDTO, error)
	ListActive(ctx context.Context, locationID string) ([]TableDTO, error)
	UpdateConversationPrompt(ctx context.Context, input PromptInput) (*TableDTO, error)
	ReleaseEndedTable(ctx context.Context, userID uuid.UUID, table TableDTO) error
	ReconcileOrphans(ctx context.Context, batchSize int) (ReconcileResult, error)
	LeaveCurrentTable(ctx context.Context, userID uuid.UUID, reason string) error
}

// ServiceParams groups the table service dependencies.
type ServiceParams struct {
	DB        dbRunner
	Cache     StatusCache
	Outbox    outboxEmitter
	Publisher SnapshotPublisher
	Metrics   *metrics.TableMetrics
	Logger    *logger.Logger
	Config    config.TablesConfig
	Now       func() time.Time
}

type service struct {
	db        dbRunner
	cache     StatusCache
	outbox    outboxEmitter
	publisher SnapshotPublisher
	metrics   *metrics.TableMetrics
	logg      *logger.Logger
	cfg       config.TablesConfig
	now       func() time.Time
}

// NewService validates the dependencies and builds the table service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	cfg := withDefaults(params.Config)
	cache := params.Cache
	if cache == nil {
		cache = NewMemoryStatusCache(cfg.StatusCacheTTL, now)
	}
	return &service{
		db:        params.DB,
		cache:     cache,
		outbox:    params.Outbox,
		publisher: params.Publisher,
		metrics:   params.Metrics,
		logg:      params.Logger,
		cfg:       cfg,
		now:       now,
	}, nil
}

func withDefaults(cfg config.TablesConfig) config.TablesConfig {
	if cfg.MinSeats <= 0 {
		cfg.MinSeats = 2
	}
	if cfg.MaxSeats < cfg.MinSeats {
		cfg.MaxSeats = 12
	}
	if cfg.PromptMaxLength <= 0 {
		cfg.PromptMaxLength = 200
	}
	if cfg.StatusCacheTTL == 0 {
		cfg.StatusCacheTTL = 10 * time.Second
	}
	if cfg.ReconcileBatchSize <= 0 {
		cfg.ReconcileBatchSize = 200
	}
	return cfg
}

// repos binds every repository to one connection, usually a transaction.
type repos struct {
	tables    *Repository
	users     *users.Repository
	locations *locations.Repository
}

func newRepos(conn *gorm.DB) repos {
	return repos{
		tables:    NewRepository(conn),
		users:     users.NewRepository(conn),
		locations: locations.NewRepository(conn),
	}
}

func (s *service) Create(ctx context.Context, input CreateTableInput) (dto *TableDTO, err error) {
	defer func() { s.metrics.ObserveOperation("create", outcomeOf(err)) }()

	if input.UserID == uuid.Nil {
		return nil, errNotAuthenticated()
	}
	locationID := strings.TrimSpace(input.LocationID)
	if locationID == "" {
		return nil, errMissingLocationInfo()
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = defaultTitle
	}
	description := strings.TrimSpace(input.Description)
	if err := s.validateCreate(title, description, input); err != nil {
		return nil, err
	}

	location, err := newRepos(s.db.DB()).locations.FindByID(ctx, locationID)
	if err != nil {
		if isNotFound(err) {
			return nil, errLocationNotFound()
		}
		return nil, storeError(err, "load location")
	}
	zone := strings.TrimSpace(input.Zone)
	if len(location.Zones) > 0 && !location.Zones.Contains(zone) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "zone is not part of this location")
	}

	inTable, err := s.CheckUserTableStatus(ctx, input.UserID, true)
	if err != nil {
		return nil, err
	}
	if inTable {
		return nil, errAlreadyInTable()
	}

	now := s.now().UTC()
	var created *models.Table
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		r := newRepos(tx)
		user, err := r.users.FindByIDForUpdate(ctx, input.UserID)
		if err != nil {
			if isNotFound(err) {
				return errNotAuthenticated()
			}
			return err
		}
		if user.CurrentTable != nil {
			return errAlreadyInTable()
		}

		name := displayNameFor(input.DisplayName, user)
		table := &models.Table{
			LocationID:           locationID,
			Title:                title,
			Description:          description,
			Seats:                input.Seats,
			AvailableSeats:       input.Seats - 1,
			Zone:                 zone,
			Position:             input.Position,
			CreatorID:            user.ID,
			CreatorName:          name,
			JoinedUsers:          types.UUIDList{user.ID},
			ParticipationHistory: types.ParticipationHistory{}.Activate(user.ID, name, enums.ParticipantRoleCreator, now),
			Status:               enums.TableStatusActive,
			ParticipantsToNotify: types.UUIDList{},
		}
		if err := r.tables.Create(ctx, table); err != nil {
			return err
		}
		if err := r.users.SetCurrentTable(ctx, user.ID, types.CurrentTable{
			ID:           table.ID,
			LocationID:   locationID,
			LocationName: location.Name,
			Title:        title,
			IsCreator:    true,
			JoinedAt:     now,
		}); err != nil {
			return err
		}
		created = table

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTableCreated,
			AggregateType: enums.AggregateTable,
			AggregateID:   table.ID,
			Actor:         &outbox.ActorRef{UserID: user.ID, Role: string(enums.ParticipantRoleCreator)},
			Data: payloads.TableCreatedEvent{
				TableID:    table.ID,
				LocationID: locationID,
				CreatorID:  user.ID,
				Title:      title,
				Zone:       zone,
				Seats:      table.Seats,
				CreatedAt:  now,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, storeError(err, "create table")
	}

	s.cache.Set(ctx, input.UserID, true)
	s.info(ctx, locationID, created.ID, "table created")
	if fresh := s.publish(ctx, locationID, created.ID); fresh != nil {
		return fresh, nil
	}
	return FromModel(created), nil
}

func (s *service) validateCreate(title, description string, input CreateTableInput) error {
	if input.Seats < s.cfg.MinSeats || input.Seats > s.cfg.MaxSeats {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("seats must be between %d and %d", s.cfg.MinSeats, s.cfg.MaxSeats))
	}
	if !input.Position.Valid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "position must be within 0 and 100")
	}
	if utf8.RuneCountInString(title) > titleMaxLength {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("title must be at most %d characters", titleMaxLength))
	}
	if utf8.RuneCountInString(description) > descMaxLength {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("description must be at most %d characters", descMaxLength))
	}
	return nil
}

func (s *service) CheckUserTableStatus(ctx context.Context, userID uuid.UUID, force bool) (bool, error) {
	if userID == uuid.Nil {
		return false, nil
	}
	if !force {
		if inTable, ok := s.cache.Get(ctx, userID); ok {
			s.metrics.ObserveCache(true)
			return inTable, nil
		}
		s.metrics.ObserveCache(false)
	}

	user, err := newRepos(s.db.DB()).users.FindByID(ctx, userID)
	if err != nil {
		if !isNotFound(err) {
			return false, storeError(err, "load user")
		}
		s.cache.Set(ctx, userID, false)
		return false, nil
	}
	inTable, _, err := s.verifyPointer(ctx, user)
	if err != nil {
		return false, err
	}
	s.cache.Set(ctx, userID, inTable)
	return inTable, nil
}

// verifyPointer checks the user's current table and clears the pointer when it is orphaned.
func (s *service) verifyPointer(ctx context.Context, user *models.User) (inTable bool, healed bool, err error) {
	if user.CurrentTable == nil {
		return false, false, nil
	}
	pointer := *user.CurrentTable
	table, err := newRepos(s.db.DB()).tables.FindByID(ctx, pointer.LocationID, pointer.ID)
	if err != nil && !isNotFound(err) {
		return false, false, storeError(err, "load current table")
	}
	if err == nil && table.IsActive() && table.JoinedUsers.Contains(user.ID) {
		return true, false, nil
	}
	healed, err = s.healPointer(ctx, user.ID, pointer, table)
	if err != nil {
		return false, false, err
	}
	return false, healed, nil
}

// healPointer clears pointer from the user record if it is still set, recording the
// table in the user's history when the table still exists.
func (s *service) healPointer(ctx context.Context, userID uuid.UUID, pointer types.CurrentTable, table *models.Table) (bool, error) {
	now := s.now().UTC()
	healed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		r := newRepos(tx)
		user, err := r.users.FindByIDForUpdate(ctx, userID)
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return err
		}
		if user.CurrentTable == nil || user.CurrentTable.ID != pointer.ID {
			return nil
		}
		healed = true
		if table == nil {
			return r.users.ClearCurrentTable(ctx, userID)
		}
		entry := historyEntry(table, userID, s.locationName(ctx, r, table.LocationID, pointer.LocationName), now)
		if !table.IsActive() {
			entry.EndedBy = enums.EndedByCreator
		}
		history, _ := user.TableHistory.Merge(entry)
		return r.users.ReleaseTable(ctx, userID, history)
	})
	if err != nil {
		return false, storeError(err, "clear orphaned table pointer")
	}
	if healed {
		s.metrics.IncHealed()
		s.info(ctx, pointer.LocationID, pointer.ID, "orphaned table pointer cleared")
	}
	return healed, nil
}

func (s *service) Join(ctx context.Context, input JoinInput) (dto *TableDTO, err error) {
	defer func() { s.metrics.ObserveOperation("join", outcomeOf(err)) }()

	if input.UserID == uuid.Nil {
		return nil, errNotAuthenticated()
	}
	inTable, err := s.CheckUserTableStatus(ctx, input.UserID, true)
	if err != nil {
		return nil, err
	}
	if inTable {
		return nil, errAlreadyInTable()
	}
	locationID := strings.TrimSpace(input.LocationID)
	if locationID == "" || input.TableID == uuid.Nil {
		return nil, errMissingLocationInfo()
	}

	now := s.now().UTC()
	var joined *models.Table
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		r := newRepos(tx)
		user, err := r.users.FindByIDForUpdate(ctx, input.UserID)
		if err != nil {
			if isNotFound(err) {
				return errNotAuthenticated()
			}
			return err
		}
		if user.CurrentTable != nil {
			return errAlreadyInTable()
		}
		table, err := r.tables.FindByIDForUpdate(ctx, locationID, input.TableID)
		if err != nil {
			if isNotFound(err) {
				return errTableNotFound()
			}
			return err
		}
		if !table.IsActive() {
			return errTableInactive()
		}

		isCreator := table.CreatorID == user.ID
		name := displayNameFor(input.DisplayName, user)
		history := table.ParticipationHistory.Activate(user.ID, name, enums.RoleFor(isCreator), now)
		if table.JoinedUsers.Contains(user.ID) {
			// already seated on the table side; only the user pointer is missing
			if err := r.tables.UpdateParticipation(ctx, table.ID, history); err != nil {
				return err
			}
		} else {
			if table.AvailableSeats <= 0 {
				return errTableFull()
			}
			ok, err := r.tables.TakeSeat(ctx, table.ID, table.JoinedUsers.With(user.ID), history)
			if err != nil {
				return err
			}
			if !ok {
				return errTableFull()
			}
			table.AvailableSeats--
			table.JoinedUsers = table.JoinedUsers.With(user.ID)
		}
		table.ParticipationHistory = history

		if err := r.users.SetCurrentTable(ctx, user.ID, types.CurrentTable{
			ID:           table.ID,
			LocationID:   locationID,
			LocationName: s.locationName(ctx, r, locationID, ""),
			Title:        table.Title,
			IsCreator:    isCreator,
			JoinedAt:     now,
		}); err != nil {
			return err
		}
		joined = table

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTableJoined,
			AggregateType: enums.AggregateTable,
			AggregateID:   table.ID,
			Actor:         &outbox.ActorRef{UserID: user.ID, Role: string(enums.RoleFor(isCreator))},
			Data: payloads.TableJoinedEvent{
				TableID:        table.ID,
				LocationID:     locationID,
				UserID:         user.ID,
				AvailableSeats: table.AvailableSeats,
				JoinedAt:       now,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, storeError(err, "join table")
	}

	s.cache.Set(ctx, input.UserID, true)
	s.info(ctx, locationID, input.TableID, "table joined")
	if fresh := s.publish(ctx, locationID, input.TableID); fresh != nil {
		return fresh, nil
	}
	return FromModel(joined), nil
}

func (s *service) Leave(ctx context.Context, input LeaveInput) (result *LeaveResult, err error) {
	defer func() { s.metrics.ObserveOperation("leave", outcomeOf(err)) }()

	if input.UserID == uuid.Nil {
		return nil, errNotAuthenticated()
	}
	locationID := strings.TrimSpace(input.LocationID)
	if locationID == "" || input.TableID == uuid.Nil {
		return nil, errMissingLocationInfo()
	}

	now := s.now().UTC()
	result = &LeaveResult{}
	touched := false
	stillSeated := false
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		r := newRepos(tx)
		user, err := r.users.FindByIDForUpdate(ctx, input.UserID)
		if err != nil {
			if isNotFound(err) {
				return errNotAuthenticated()
			}
			return err
		}
		pointsHere := user.CurrentTable != nil && user.CurrentTable.ID == input.TableID
		stillSeated = user.CurrentTable != nil && !pointsHere

		table, err := r.tables.FindByIDForUpdate(ctx, locationID, input.TableID)
		if err != nil {
			if !isNotFound(err) {
				return err
			}
			if pointsHere {
				return r.users.ClearCurrentTable(ctx, user.ID)
			}
			return nil
		}
		isCreator := table.CreatorID == user.ID
		if input.IsCreator && !isCreator {
			return errNotCreator()
		}
		// strangers leave no trace in their history or the table
		member := pointsHere || isCreator ||
			table.JoinedUsers.Contains(user.ID) || table.ParticipationHistory.Includes(user.ID)
		if !member {
			return nil
		}
		touched = true

		locationName := input.LocationName
		if locationName == "" && pointsHere {
			locationName = user.CurrentTable.LocationName
		}
		entry := historyEntry(table, user.ID, s.locationName(ctx, r, locationID, locationName), now)
		history, merged := user.TableHistory.Merge(entry)
		switch {
		case pointsHere:
			if err := r.users.ReleaseTable(ctx, user.ID, history); err != nil {
				return err
			}
		case merged:
			if err := r.users.UpdateTableHistory(ctx, user.ID, history); err != nil {
				return err
			}
		}

		participation := table.ParticipationHistory.Deactivate(user.ID, now)
		if isCreator {
			result.Ended = true
			return s.endTable(ctx, tx, r, table, input.Reason, participation, now)
		}
		if !table.IsActive() || !table.JoinedUsers.Contains(user.ID) {
			return nil
		}
		released, err := r.tables.ReleaseSeat(ctx, table.ID, table.JoinedUsers.Without(user.ID), participation)
		if err != nil {
			return err
		}
		if !released {
			return nil
		}
		available := table.AvailableSeats + 1
		if available > table.Seats {
			available = table.Seats
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTableLeft,
			AggregateType: enums.AggregateTable,
			AggregateID:   table.ID,
			Actor:         &outbox.ActorRef{UserID: user.ID, Role: string(enums.ParticipantRoleParticipant)},
			Data: payloads.TableLeftEvent{
				TableID:        table.ID,
				LocationID:     locationID,
				UserID:         user.ID,
				AvailableSeats: available,
				Reason:         strings.TrimSpace(input.Reason),
				LeftAt:         now,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, storeError(err, "leave table")
	}

	if stillSeated {
		s.cache.Invalidate(ctx, input.UserID)
	} else {
		s.cache.Set(ctx, input.UserID, false)
	}
	if touched {
		result.Table = s.publish(ctx, locationID, input.TableID)
		s.info(ctx, locationID, input.TableID, "table left")
	}
	return result, nil
}

// endTable flips an active table to inactive. The status write is fatal on failure;
// closing the remaining participation entries runs under a savepoint and is best effort.
func (s *service) endTable(ctx context.Context, tx *gorm.DB, r repos, table *models.Table, reason string, participation types.ParticipationHistory, now time.Time) error {
	if !table.IsActive() {
		return nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultEndReason
	}
	notify := make(types.UUIDList, 0, len(table.JoinedUsers))
	notify = append(notify, table.JoinedUsers...)

	ended, err := r.tables.End(ctx, table.ID, EndParams{
		EndedAt:              now,
		EndedBy:              table.CreatorID,
		Reason:               reason,
		ParticipantsToNotify: notify,
		History:              participation,
	})
	if err != nil {
		return err
	}
	if !ended {
		return nil
	}

	if err := tx.SavePoint(savepointEndParticipation).Error; err != nil {
		return err
	}
	if err := r.tables.UpdateParticipation(ctx, table.ID, participation.DeactivateAll(now)); err != nil {
		if rbErr := tx.RollbackTo(savepointEndParticipation).Error; rbErr != nil {
			return rbErr
		}
		s.warn(ctx, table.LocationID, table.ID, "closing participation entries failed", err)
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventTableEnded,
		AggregateType: enums.AggregateTable,
		AggregateID:   table.ID,
		Actor:         &outbox.ActorRef{UserID: table.CreatorID, Role: string(enums.ParticipantRoleCreator)},
		Data: payloads.TableEndedEvent{
			TableID:              table.ID,
			LocationID:           table.LocationID,
			EndedBy:              table.CreatorID,
			EndReason:            reason,
			ParticipantsToNotify: notify,
			EndedAt:              now,
		},
		OccurredAt: now,
	})
}

func (s *service) Get(ctx context.Context, locationID string, tableID uuid.UUID) (*TableDTO, error) {
	locationID = strings.TrimSpace(locationID)
	if locationID == "" || tableID == uuid.Nil {
		return nil, errMissingLocationInfo()
	}
	table, err := newRepos(s.db.DB()).tables.FindByID(ctx, locationID, tableID)
	if err != nil {
		if isNotFound(err) {
			return nil, errTableNotFound()
		}
		return nil, storeError(err, "load table")
	}
	return FromModel(table), nil
}

func (s *service) ListActive(ctx context.Context, locationID string) ([]TableDTO, error) {
	locationID = strings.TrimSpace(locationID)
	if locationID == "" {
		return nil, errMissingLocationInfo()
	}
	rows, err := newRepos(s.db.DB()).tables.ListActive(ctx, locationID)
	if err != nil {
		return nil, storeError(err, "list tables")
	}
	out := make([]TableDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) UpdateConversationPrompt(ctx context.Context, input PromptInput) (dto *TableDTO, err error) {
	defer func() { s.metrics.ObserveOperation("prompt", outcomeOf(err)) }()

	if input.UserID == uuid.Nil {
		return nil, errNotAuthenticated()
	}
	locationID := strings.TrimSpace(input.LocationID)
	if locationID == "" || input.TableID == uuid.Nil {
		return nil, errMissingLocationInfo()
	}
	prompt := strings.TrimSpace(input.Prompt)
	if utf8.RuneCountInString(prompt) > s.cfg.PromptMaxLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("conversation prompt must be at most %d characters", s.cfg.PromptMaxLength))
	}

	now := s.now().UTC()
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		r := newRepos(tx)
		table, err := r.tables.FindByIDForUpdate(ctx, locationID, input.TableID)
		if err != nil {
			if isNotFound(err) {
				return errTableNotFound()
			}
			return err
		}
		if table.CreatorID != input.UserID {
			return errNotCreator()
		}
		ok, err := r.tables.UpdatePrompt(ctx, table.ID, prompt, now)
		if err != nil {
			return err
		}
		if !ok {
			return errTableInactive()
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err, "update conversation prompt")
	}
	if fresh := s.publish(ctx, locationID, input.TableID); fresh != nil {
		return fresh, nil
	}
	return s.Get(ctx, locationID, input.TableID)
}

func (s *service) ReleaseEndedTable(ctx context.Context, userID uuid.UUID, table TableDTO) error {
	if userID == uuid.Nil {
		return errNotAuthenticated()
	}
	if table.ID == uuid.Nil || strings.TrimSpace(table.LocationID) == "" {
		return errMissingLocationInfo()
	}

	now := s.now().UTC()
	released := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		r := newRepos(tx)
		user, err := r.users.FindByIDForUpdate(ctx, userID)
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return err
		}
		pointsHere := user.CurrentTable != nil && user.CurrentTable.ID == table.ID
		locationName := ""
		if pointsHere {
			locationName = user.CurrentTable.LocationName
		}
		entry := types.TableHistoryEntry{
			ID:           table.ID,
			Title:        table.Title,
			LocationID:   table.LocationID,
			LocationName: s.locationName(ctx, r, table.LocationID, locationName),
			Date:         now,
			Role:         enums.RoleFor(table.CreatorID == userID),
			EndedBy:      enums.EndedByCreator,
		}
		history, merged := user.TableHistory.Merge(entry)
		if pointsHere {
			released = true
			return r.users.ReleaseTable(ctx, userID, history)
		}
		if merged {
			return r.users.UpdateTableHistory(ctx, userID, history)
		}
		return nil
	})
	if err != nil {
		return storeError(err, "release ended table")
	}
	if released {
		s.cache.Set(ctx, userID, false)
	}
	return nil
}

func (s *service) ReconcileOrphans(ctx context.Context, batchSize int) (ReconcileResult, error) {
	if batchSize <= 0 {
		batchSize = s.cfg.ReconcileBatchSize
	}
	var (
		result ReconcileResult
		errs   error
		after  uuid.UUID
	)
	usersRepo := newRepos(s.db.DB()).users
	for {
		rows, err := usersRepo.ListWithCurrentTable(ctx, after, batchSize)
		if err != nil {
			return result, multierr.Append(errs, storeError(err, "list seated users"))
		}
		for i := range rows {
			user := &rows[i]
			after = user.ID
			result.Scanned++
			_, healed, err := s.verifyPointer(ctx, user)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("user %s: %w", user.ID, err))
				continue
			}
			if healed {
				result.Healed++
				s.cache.Set(ctx, user.ID, false)
			}
		}
		if len(rows) < batchSize {
			return result, errs
		}
		if err := ctx.Err(); err != nil {
			return result, multierr.Append(errs, err)
		}
	}
}

func (s *service) LeaveCurrentTable(ctx context.Context, userID uuid.UUID, reason string) error {
	if userID == uuid.Nil {
		return errNotAuthenticated()
	}
	user, err := newRepos(s.db.DB()).users.FindByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return storeError(err, "load user")
	}
	if user.CurrentTable == nil {
		return nil
	}
	pointer := *user.CurrentTable
	_, err = s.Leave(ctx, LeaveInput{
		UserID:       userID,
		LocationID:   pointer.LocationID,
		TableID:      pointer.ID,
		Title:        pointer.Title,
		LocationName: pointer.LocationName,
		Reason:       reason,
	})
	return err
}

// publish pushes the committed state of a table to room sessions and returns it.
func (s *service) publish(ctx context.Context, locationID string, tableID uuid.UUID) *TableDTO {
	snapshot := Snapshot{LocationID: locationID, TableID: tableID}
	table, err := newRepos(s.db.DB()).tables.FindByID(ctx, locationID, tableID)
	switch {
	case err == nil:
		snapshot.Table = FromModel(table)
	case isNotFound(err):
		snapshot.Deleted = true
	default:
		s.warn(ctx, locationID, tableID, "reload table for snapshot failed", err)
		return nil
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, snapshot); err != nil {
			s.warn(ctx, locationID, tableID, "publish table snapshot failed", err)
		}
	}
	return snapshot.Table
}

func (s *service) locationName(ctx context.Context, r repos, locationID, known string) string {
	if known != "" {
		return known
	}
	loc, err := r.locations.FindByID(ctx, locationID)
	if err != nil {
		return locationID
	}
	return loc.Name
}

func historyEntry(table *models.Table, userID uuid.UUID, locationName string, now time.Time) types.TableHistoryEntry {
	return types.TableHistoryEntry{
		ID:           table.ID,
		Title:        table.Title,
		LocationID:   table.LocationID,
		LocationName: locationName,
		Date:         now,
		Role:         enums.RoleFor(table.CreatorID == userID),
	}
}

func displayNameFor(requested string, user *models.User) string {
	if name := strings.TrimSpace(requested); name != "" {
		return name
	}
	return strings.TrimSpace(user.DisplayName)
}

func (s *service) info(ctx context.Context, locationID string, tableID uuid.UUID, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithTable(ctx, locationID, tableID.String()), msg)
}

func (s *service) warn(ctx context.Context, locationID string, tableID uuid.UUID, msg string, err error) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithTable(ctx, locationID, tableID.String())
	s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), msg)
}
