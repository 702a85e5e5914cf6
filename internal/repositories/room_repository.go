package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"chat-realtime/internal/models"
)

const roomColumns = `r.id, r.name, r.description, r.avatar, r.kind, r.creator_id, r.is_active, r.last_message_id, r.created_at, r.updated_at`

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

type memberRow struct {
	RoomID  int  `db:"room_id"`
	UserID  int  `db:"user_id"`
	IsAdmin bool `db:"is_admin"`
	Hidden  bool `db:"hidden"`
}

// CreateRoom inserts a room and its member rows atomically.
func (r *RoomRepo) CreateRoom(ctx context.Context, room models.Room) (models.Room, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, err
	}
	defer tx.Rollback()

	created, err := insertRoom(ctx, tx, room, nil)
	if err != nil {
		return models.Room{}, err
	}
	if err := writeMembers(ctx, tx, created); err != nil {
		return models.Room{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Room{}, err
	}
	return created, nil
}

// FindRoom fetches a room with its members and admins.
func (r *RoomRepo) FindRoom(ctx context.Context, roomID int) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT `+roomColumns+` FROM rooms r WHERE r.id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	if err != nil {
		return models.Room{}, err
	}
	rooms := []models.Room{room}
	if err := r.attachMembers(ctx, rooms); err != nil {
		return models.Room{}, err
	}
	return rooms[0], nil
}

// SaveRoom persists metadata and replaces the member set of a room.
func (r *RoomRepo) SaveRoom(ctx context.Context, room models.Room) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE rooms SET name=$2, description=$3, avatar=$4, is_active=$5, last_message_id=$6, updated_at=NOW() WHERE id=$1`,
		room.ID, room.Name, room.Description, room.Avatar, room.Active, room.LastMessageID)
	if err != nil {
		return err
	}
	if count, err := res.RowsAffected(); err != nil {
		return err
	} else if count == 0 {
		return ErrRoomNotFound
	}

	query, args, err := sqlx.In(`DELETE FROM room_members WHERE room_id=? AND user_id NOT IN (?)`, room.ID, append([]int{0}, room.Members...))
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return err
	}
	if err := writeMembers(ctx, tx, room); err != nil {
		return err
	}
	return tx.Commit()
}

// FindOrCreateDirectRoom returns the direct room of a pair, creating it once.
func (r *RoomRepo) FindOrCreateDirectRoom(ctx context.Context, userA, userB int) (models.Room, bool, error) {
	if userA == userB {
		return models.Room{}, false, ErrSelfDirectRoom
	}
	pair := []int{userA, userB}
	sort.Ints(pair)
	key := directKey(pair[0], pair[1])

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, false, err
	}
	defer tx.Rollback()

	room := models.Room{
		Kind:      models.RoomDirect,
		CreatorID: userA,
		Members:   pair,
		Admins:    pair,
		Active:    true,
	}
	created, err := insertRoom(ctx, tx, room, &key)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// another caller owns the key
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			return models.Room{}, false, err
		}
		var id int
		if err := r.db.GetContext(ctx, &id, `SELECT id FROM rooms WHERE direct_key=$1`, key); err != nil {
			return models.Room{}, false, err
		}
		existing, err := r.FindRoom(ctx, id)
		return existing, false, err
	case err != nil:
		return models.Room{}, false, err
	}

	if err := writeMembers(ctx, tx, created); err != nil {
		return models.Room{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return models.Room{}, false, err
	}
	return created, true, nil
}

// ListRoomsForUser returns active rooms the user belongs to and has not hidden.
func (r *RoomRepo) ListRoomsForUser(ctx context.Context, userID int) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.SelectContext(ctx, &rooms, `SELECT `+roomColumns+` FROM rooms r
        INNER JOIN room_members rm ON rm.room_id = r.id
        WHERE rm.user_id=$1 AND rm.hidden = FALSE AND r.is_active = TRUE
        ORDER BY r.updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return rooms, r.attachMembers(ctx, rooms)
}

// ListPublicRooms returns every active group room.
func (r *RoomRepo) ListPublicRooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.SelectContext(ctx, &rooms, `SELECT `+roomColumns+` FROM rooms r WHERE r.kind=$1 AND r.is_active = TRUE ORDER BY r.updated_at DESC`, models.RoomGroup)
	if err != nil {
		return nil, err
	}
	return rooms, r.attachMembers(ctx, rooms)
}

// MarkRoomViewed moves the member's read watermark forward.
func (r *RoomRepo) MarkRoomViewed(ctx context.Context, roomID, userID int, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE room_members SET last_viewed_at = GREATEST(COALESCE(last_viewed_at, $3), $3)
        WHERE room_id=$1 AND user_id=$2`, roomID, userID, at)
	return err
}

func (r *RoomRepo) attachMembers(ctx context.Context, rooms []models.Room) error {
	if len(rooms) == 0 {
		return nil
	}
	ids := make([]int, 0, len(rooms))
	for _, room := range rooms {
		ids = append(ids, room.ID)
	}
	query, args, err := sqlx.In(`SELECT room_id, user_id, is_admin, hidden FROM room_members WHERE room_id IN (?) ORDER BY joined_at ASC, user_id ASC`, ids)
	if err != nil {
		return err
	}
	var rows []memberRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return err
	}

	index := make(map[int]int, len(rooms))
	for i := range rooms {
		index[rooms[i].ID] = i
		rooms[i].Members = []int{}
		rooms[i].Admins = []int{}
	}
	for _, row := range rows {
		i := index[row.RoomID]
		rooms[i].Members = append(rooms[i].Members, row.UserID)
		if row.IsAdmin {
			rooms[i].Admins = append(rooms[i].Admins, row.UserID)
		}
		if row.Hidden {
			rooms[i].HiddenFor = append(rooms[i].HiddenFor, row.UserID)
		}
	}
	return nil
}

func insertRoom(ctx context.Context, tx *sqlx.Tx, room models.Room, key *string) (models.Room, error) {
	var created models.Room
	err := tx.QueryRowxContext(ctx, `INSERT INTO rooms (name, description, avatar, kind, creator_id, is_active, direct_key)
        VALUES ($1, $2, $3, $4, $5, TRUE, $6)
        ON CONFLICT (direct_key) DO NOTHING
        RETURNING id, name, description, avatar, kind, creator_id, is_active, last_message_id, created_at, updated_at`,
		room.Name, room.Description, room.Avatar, room.Kind, room.CreatorID, key).StructScan(&created)
	if err != nil {
		return models.Room{}, err
	}
	created.Members = room.Members
	created.Admins = room.Admins
	created.HiddenFor = room.HiddenFor
	return created, nil
}

func writeMembers(ctx context.Context, tx *sqlx.Tx, room models.Room) error {
	for _, userID := range room.Members {
		if _, err := tx.ExecContext(ctx, `INSERT INTO room_members (room_id, user_id, is_admin, hidden) VALUES ($1, $2, $3, $4)
            ON CONFLICT (room_id, user_id) DO UPDATE SET is_admin = EXCLUDED.is_admin, hidden = EXCLUDED.hidden`,
			room.ID, userID, room.IsAdmin(userID), room.IsHiddenFor(userID)); err != nil {
			return err
		}
	}
	return nil
}

func directKey(low, high int) string {
	return fmt.Sprintf("%d:%d", low, high)
}
