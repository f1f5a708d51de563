package controllers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/angelmondragon/tableside-backend/api/responses"
	"github.com/angelmondragon/tableside-backend/internal/rooms"
	"github.com/angelmondragon/tableside-backend/internal/tables"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
)

const (
	roomWriteTimeout = 10 * time.Second
	roomPongWait     = 60 * time.Second
	roomPingPeriod   = (roomPongWait * 9) / 10
	roomReadLimit    = 4096
)

type roomTableReader interface {
	Get(ctx context.Context, locationID string, tableID uuid.UUID) (*tables.TableDTO, error)
}

type roomRunner interface {
	Run(ctx context.Context, userID uuid.UUID, locationID string, tableID uuid.UUID, emit rooms.Emitter) (rooms.State, error)
}

// Tokens arrive in the query string, not cookies, so any origin may upgrade.
var roomUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TableRoom upgrades to a websocket and streams the caller's room session as JSON frames.
// Only users seated at the table may open its room.
func TableRoom(tableSvc roomTableReader, manager roomRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if tableSvc == nil || manager == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "room service unavailable"))
			return
		}
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tableID, err := pathUUID(r, "tableId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		locationID := pathString(r, "locationId")

		table, err := tableSvc.Get(r.Context(), locationID, tableID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !table.HasJoined(userID) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "only seated users can open this room"))
			return
		}

		conn, err := roomUpgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already replied to the client.
			if logg != nil {
				logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "room upgrade failed")
			}
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sock := &roomSocket{conn: conn}
		go sock.readUntilClosed(cancel)
		go sock.keepAlive(ctx)

		final, runErr := manager.Run(ctx, userID, locationID, tableID, sock.emit)
		if runErr != nil && logg != nil && ctx.Err() == nil {
			logg.Warn(logg.WithField(ctx, "error", runErr.Error()), "room session aborted")
		}
		if logg != nil {
			logg.Info(logg.WithField(ctx, "room_state", string(final)), "room session finished")
		}
		sock.close()
	}
}

// roomSocket serialises writes; gorilla connections allow one concurrent writer.
type roomSocket struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *roomSocket) emit(ev rooms.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(roomWriteTimeout))
	return s.conn.WriteJSON(ev)
}

// readUntilClosed drains client frames so pongs and close frames are processed.
func (s *roomSocket) readUntilClosed(cancel context.CancelFunc) {
	defer cancel()
	s.conn.SetReadLimit(roomReadLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(roomPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(roomPongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *roomSocket) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(roomPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(roomWriteTimeout))
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *roomSocket) close() {
	s.mu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "room closed"),
		time.Now().Add(roomWriteTimeout))
	s.mu.Unlock()
	_ = s.conn.Close()
}
