package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/VoiceHub/internal/adapters/storage/migrations"
	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/domain"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/mattn/go-sqlite3"    // registers "sqlite3"
	"github.com/rs/zerolog/log"
)

// SQLStore implements core.Store over database/sql. The queries stick to
// the dialect shared by SQLite and PostgreSQL: $n placeholders used once
// each and in order, and ON CONFLICT upserts.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

var _ core.Store = (*SQLStore)(nil)

// OpenSQLite opens path (or ":memory:") with foreign keys enforced and the
// schema migrated.
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return newSQLStore(db, migrations.SQLite)
}

// OpenPostgres connects through the pgx stdlib driver.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return newSQLStore(db, migrations.Postgres)
}

func newSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if err := migrations.MigrateUp(db, dialect); err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Str("module", "adapters.storage").Str("dialect", dialect).Msg("sql store ready")
	return &SQLStore{db: db, dialect: dialect}, nil
}

func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) Close() error { return s.db.Close() }

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func notFound(err error, op, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFound(op, what)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Identities

func (s *SQLStore) GetIdentity(ctx context.Context, id domain.UserID) (*domain.Identity, error) {
	u := &domain.Identity{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, level, xp, status FROM identities WHERE id = $1`, id,
	).Scan(&u.ID, &u.DisplayName, &u.Level, &u.XP, &u.Status)
	if err != nil {
		return nil, notFound(err, "storage.get_identity", "identity")
	}
	return u, nil
}

func (s *SQLStore) SaveIdentity(ctx context.Context, u *domain.Identity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identities (id, display_name, level, xp, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			display_name = excluded.display_name,
			level = excluded.level,
			xp = excluded.xp,
			status = excluded.status`,
		u.ID, u.DisplayName, u.Level, u.XP, u.Status)
	if err != nil {
		return fmt.Errorf("storage.save_identity: %w", err)
	}
	return nil
}

// Catalog

func (s *SQLStore) GetServer(ctx context.Context, id domain.ServerID) (*domain.Server, error) {
	srv := &domain.Server{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, visibility, lobby_id, member_threshold FROM servers WHERE id = $1`, id,
	).Scan(&srv.ID, &srv.Name, &srv.OwnerID, &srv.Visibility, &srv.LobbyID, &srv.MemberThreshold)
	if err != nil {
		return nil, notFound(err, "storage.get_server", "server")
	}
	return srv, nil
}

func (s *SQLStore) SaveServer(ctx context.Context, srv *domain.Server) error {
	if err := srv.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO servers (id, name, owner_id, visibility, lobby_id, member_threshold)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			owner_id = excluded.owner_id,
			visibility = excluded.visibility,
			lobby_id = excluded.lobby_id,
			member_threshold = excluded.member_threshold`,
		srv.ID, srv.Name, srv.OwnerID, srv.Visibility, srv.LobbyID, srv.MemberThreshold)
	if err != nil {
		return fmt.Errorf("storage.save_server: %w", err)
	}
	return nil
}

const channelColumns = `id, server_id, parent_id, name, visibility, is_lobby, is_category, position`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(r rowScanner) (*domain.Channel, error) {
	ch := &domain.Channel{}
	err := r.Scan(&ch.ID, &ch.ServerID, &ch.ParentID, &ch.Name, &ch.Visibility, &ch.IsLobby, &ch.IsCategory, &ch.Position)
	return ch, err
}

func (s *SQLStore) GetChannel(ctx context.Context, id domain.ChannelID) (*domain.Channel, error) {
	ch, err := scanChannel(s.db.QueryRowContext(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "storage.get_channel", "channel")
	}
	return ch, nil
}

func (s *SQLStore) SaveChannel(ctx context.Context, ch *domain.Channel) error {
	if err := ch.Validate(); err != nil {
		return err
	}
	if ch.ParentID != "" {
		parent, err := s.GetChannel(ctx, ch.ParentID)
		if err != nil && domain.KindOf(err) != domain.KindNotFound {
			return err
		}
		if parent == nil || parent.ServerID != ch.ServerID {
			return domain.Validation("storage.save_channel", "parent_other_server", "parent must belong to the same server")
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (`+channelColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			server_id = excluded.server_id,
			parent_id = excluded.parent_id,
			name = excluded.name,
			visibility = excluded.visibility,
			is_lobby = excluded.is_lobby,
			is_category = excluded.is_category,
			position = excluded.position`,
		ch.ID, ch.ServerID, ch.ParentID, ch.Name, ch.Visibility, ch.IsLobby, ch.IsCategory, ch.Position)
	if err != nil {
		return fmt.Errorf("storage.save_channel: %w", err)
	}
	return nil
}

func (s *SQLStore) ListChannels(ctx context.Context, sid domain.ServerID) ([]*domain.Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE server_id = $1 ORDER BY position, id`, sid)
	if err != nil {
		return nil, fmt.Errorf("storage.list_channels: %w", err)
	}
	defer rows.Close()
	out := make([]*domain.Channel, 0)
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.list_channels: %w", err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// Memberships

const membershipColumns = `user_id, server_id, level, contribution, nickname, blocked, joined_at`

func scanMembership(r rowScanner) (*domain.Membership, error) {
	m := &domain.Membership{}
	var joined int64
	if err := r.Scan(&m.UserID, &m.ServerID, &m.Level, &m.Contribution, &m.Nickname, &m.Blocked, &joined); err != nil {
		return nil, err
	}
	m.JoinedAt = fromMillis(joined)
	return m, nil
}

func (s *SQLStore) GetMembership(ctx context.Context, uid domain.UserID, sid domain.ServerID) (*domain.Membership, error) {
	m, err := scanMembership(s.db.QueryRowContext(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE user_id = $1 AND server_id = $2`, uid, sid))
	if err != nil {
		return nil, notFound(err, "storage.get_membership", "membership")
	}
	return m, nil
}

func (s *SQLStore) SaveMembership(ctx context.Context, m *domain.Membership) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memberships (`+membershipColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, server_id) DO UPDATE SET
			level = excluded.level,
			contribution = excluded.contribution,
			nickname = excluded.nickname,
			blocked = excluded.blocked`,
		m.UserID, m.ServerID, m.Level, m.Contribution, m.Nickname, m.Blocked, millis(m.JoinedAt))
	if err != nil {
		return fmt.Errorf("storage.save_membership: %w", err)
	}
	return nil
}

func (s *SQLStore) ListMemberships(ctx context.Context, sid domain.ServerID) ([]*domain.Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE server_id = $1 ORDER BY user_id`, sid)
	if err != nil {
		return nil, fmt.Errorf("storage.list_memberships: %w", err)
	}
	defer rows.Close()
	out := make([]*domain.Membership, 0)
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.list_memberships: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Applications

func scanApplication(r rowScanner) (*domain.Application, error) {
	a := &domain.Application{}
	var created int64
	if err := r.Scan(&a.UserID, &a.ServerID, &a.Note, &created); err != nil {
		return nil, err
	}
	a.CreatedAt = fromMillis(created)
	return a, nil
}

func (s *SQLStore) GetApplication(ctx context.Context, uid domain.UserID, sid domain.ServerID) (*domain.Application, error) {
	a, err := scanApplication(s.db.QueryRowContext(ctx,
		`SELECT user_id, server_id, note, created_at FROM applications WHERE user_id = $1 AND server_id = $2`, uid, sid))
	if err != nil {
		return nil, notFound(err, "storage.get_application", "application")
	}
	return a, nil
}

func (s *SQLStore) CreateApplication(ctx context.Context, a *domain.Application) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO applications (user_id, server_id, note, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, server_id) DO NOTHING`,
		a.UserID, a.ServerID, a.Note, millis(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("storage.create_application: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.Conflict("storage.create_application", "application_pending", "application already pending")
	}
	return nil
}

func (s *SQLStore) DeleteApplication(ctx context.Context, uid domain.UserID, sid domain.ServerID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM applications WHERE user_id = $1 AND server_id = $2`, uid, sid)
	if err != nil {
		return fmt.Errorf("storage.delete_application: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.NotFound("storage.delete_application", "application")
	}
	return nil
}

func (s *SQLStore) ListApplications(ctx context.Context, sid domain.ServerID) ([]*domain.Application, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, server_id, note, created_at FROM applications WHERE server_id = $1 ORDER BY created_at, user_id`, sid)
	if err != nil {
		return nil, fmt.Errorf("storage.list_applications: %w", err)
	}
	defer rows.Close()
	out := make([]*domain.Application, 0)
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.list_applications: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Presence

func (s *SQLStore) GetPresence(ctx context.Context, uid domain.UserID) (domain.Presence, error) {
	var (
		p                 domain.Presence
		active, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, server_id, channel_id, status, last_active_at, updated_at FROM presence WHERE user_id = $1`, uid,
	).Scan(&p.UserID, &p.ServerID, &p.ChannelID, &p.Status, &active, &updatedAt)
	if err != nil {
		return domain.Presence{}, notFound(err, "storage.get_presence", "presence")
	}
	p.LastActiveAt = fromMillis(active)
	p.UpdatedAt = fromMillis(updatedAt)
	return p, nil
}

func (s *SQLStore) PutPresence(ctx context.Context, p domain.Presence) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO presence (user_id, server_id, channel_id, status, last_active_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			server_id = excluded.server_id,
			channel_id = excluded.channel_id,
			status = excluded.status,
			last_active_at = excluded.last_active_at,
			updated_at = excluded.updated_at`,
		p.UserID, p.ServerID, p.ChannelID, p.Status, millis(p.LastActiveAt), millis(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("storage.put_presence: %w", err)
	}
	return nil
}
