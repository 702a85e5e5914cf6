package repositories

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"chat-realtime/internal/models"
)

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// UpsertUser records the latest display data of an identity.
func (r *UserRepo) UpsertUser(ctx context.Context, user models.Identity) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (id, username, avatar) VALUES ($1, $2, $3)
        ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username, avatar = EXCLUDED.avatar, updated_at = NOW()`,
		user.ID, user.Username, user.Avatar)
	return err
}

// FindUsers returns the known identities among ids. Unknown ids are skipped.
func (r *UserRepo) FindUsers(ctx context.Context, ids []int) ([]models.Identity, error) {
	if len(ids) == 0 {
		return []models.Identity{}, nil
	}
	query, args, err := sqlx.In(`SELECT id, username, avatar FROM users WHERE id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	users := []models.Identity{}
	err = r.db.SelectContext(ctx, &users, r.db.Rebind(query), args...)
	return users, err
}

// NewPostgresStore wires the sqlx repositories into a Store.
func NewPostgresStore(db *sqlx.DB) Store {
	return Store{
		Rooms:    NewRoomRepo(db),
		Messages: NewMessageRepo(db),
		Users:    NewUserRepo(db),
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
