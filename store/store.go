// Copyright 2026 The Roleward Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists community role policy in SQLite: category
// assignments, announcement channels, managed bot roles, self-service
// role markers, and temporary grants with their expiry deadlines.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/roleward/roleward/lib/clock"
	"github.com/roleward/roleward/lib/sqlitepool"
	"github.com/roleward/roleward/platform"
	"github.com/roleward/roleward/policy"
)

// ErrGrantExists reports an attempt to create a temporary grant for a
// (community, user, role) triple that already has an active one. The
// existing deadline stands; callers tell the operator to remove the
// grant first if they want a different duration.
var ErrGrantExists = errors.New("store: temporary grant already exists")

const schema = `
CREATE TABLE IF NOT EXISTS protected_roles (
	community_id TEXT NOT NULL,
	role_id      TEXT NOT NULL,
	PRIMARY KEY (community_id, role_id)
);

CREATE TABLE IF NOT EXISTS bypass_roles (
	community_id TEXT NOT NULL,
	role_id      TEXT NOT NULL,
	PRIMARY KEY (community_id, role_id)
);

CREATE TABLE IF NOT EXISTS auto_roles (
	community_id TEXT NOT NULL,
	role_id      TEXT NOT NULL,
	PRIMARY KEY (community_id, role_id)
);

CREATE TABLE IF NOT EXISTS manager_roles (
	community_id TEXT NOT NULL,
	role_id      TEXT NOT NULL,
	PRIMARY KEY (community_id, role_id)
);

CREATE TABLE IF NOT EXISTS announcements (
	community_id TEXT NOT NULL PRIMARY KEY,
	channel_id   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bot_roles (
	community_id TEXT NOT NULL PRIMARY KEY,
	role_id      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS self_roles (
	community_id TEXT NOT NULL,
	role_id      TEXT NOT NULL,
	PRIMARY KEY (community_id, role_id)
);

CREATE TABLE IF NOT EXISTS temp_roles (
	community_id TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	role_id      TEXT NOT NULL,
	expires_at   INTEGER NOT NULL,
	PRIMARY KEY (community_id, user_id, role_id)
);

CREATE INDEX IF NOT EXISTS temp_roles_expiry ON temp_roles (expires_at);
`

// categoryTables maps each role category to its table. The values are
// static identifiers, never caller input, so interpolating them into
// query text is safe.
var categoryTables = map[policy.Category]string{
	policy.Protected: "protected_roles",
	policy.Bypass:    "bypass_roles",
	policy.Auto:      "auto_roles",
	policy.Manager:   "manager_roles",
}

// allRoleTables lists every table holding a role_id column, in purge
// order.
var allRoleTables = []string{
	"protected_roles",
	"bypass_roles",
	"auto_roles",
	"manager_roles",
	"self_roles",
}

// Grant is one temporary role assignment awaiting expiry.
type Grant struct {
	Community platform.CommunityID
	UserID    platform.UserID
	RoleID    platform.RoleID
	ExpiresAt time.Time
}

// Store manages SQLite storage for role policy. All methods are safe
// for concurrent use; the connection pool serializes writes.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// StoreConfig holds the parameters for opening a policy store.
type StoreConfig struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist.
	Path string

	// PoolSize is the number of connections in the pool. Defaults to
	// 4 if zero or negative.
	PoolSize int

	// Clock provides the current time for expiry comparisons.
	Clock clock.Clock

	// Logger receives operational messages.
	Logger *slog.Logger
}

// OpenStore opens the policy store, creating the database file and
// schema if they do not exist.
func OpenStore(cfg StoreConfig) (*Store, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("policy store: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("policy store: Logger is required")
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   cfg.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			// Idempotent; every table is CREATE IF NOT EXISTS.
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("policy store: %w", err)
	}

	return &Store{pool: pool, clock: cfg.Clock, logger: cfg.Logger}, nil
}

// Close closes the underlying connection pool. Blocks until all
// borrowed connections are returned.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Config reads a community's full policy configuration. Always a
// fresh read; callers must not cache the result across events.
func (s *Store) Config(ctx context.Context, community platform.CommunityID) (*policy.Config, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy store: config: %w", err)
	}
	defer s.pool.Put(conn)

	config := &policy.Config{Community: community}
	for category, table := range categoryTables {
		roles, err := readRoles(conn, table, community)
		if err != nil {
			return nil, fmt.Errorf("policy store: reading %s: %w", table, err)
		}
		switch category {
		case policy.Protected:
			config.Protected = roles
		case policy.Bypass:
			config.Bypass = roles
		case policy.Auto:
			config.Auto = roles
		case policy.Manager:
			config.Manager = roles
		}
	}

	err = sqlitex.Execute(conn,
		`SELECT channel_id FROM announcements WHERE community_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{string(community)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				config.AnnouncementChannel = platform.ChannelID(stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("policy store: reading announcement channel: %w", err)
	}

	err = sqlitex.Execute(conn,
		`SELECT role_id FROM bot_roles WHERE community_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{string(community)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				config.BotRole = platform.RoleID(stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("policy store: reading bot role: %w", err)
	}

	return config, nil
}

func readRoles(conn *sqlite.Conn, table string, community platform.CommunityID) ([]platform.RoleID, error) {
	var roles []platform.RoleID
	query := fmt.Sprintf(
		`SELECT role_id FROM %s WHERE community_id = ? ORDER BY role_id`, table)
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{string(community)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			roles = append(roles, platform.RoleID(stmt.ColumnText(0)))
			return nil
		},
	})
	return roles, err
}

// AddRole assigns a role id to a category. Returns false if the role
// was already assigned to that category.
func (s *Store) AddRole(ctx context.Context, community platform.CommunityID, category policy.Category, role platform.RoleID) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("policy store: add role: %w", err)
	}
	defer s.pool.Put(conn)

	query := fmt.Sprintf(
		`INSERT OR IGNORE INTO %s (community_id, role_id) VALUES (?, ?)`,
		categoryTables[category])
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{string(community), string(role)},
	})
	if err != nil {
		return false, fmt.Errorf("policy store: add role: %w", err)
	}
	return conn.Changes() > 0, nil
}

// RemoveRole removes a role id from a category. Returns false if the
// role was not assigned to that category.
func (s *Store) RemoveRole(ctx context.Context, community platform.CommunityID, category policy.Category, role platform.RoleID) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("policy store: remove role: %w", err)
	}
	defer s.pool.Put(conn)

	query := fmt.Sprintf(
		`DELETE FROM %s WHERE community_id = ? AND role_id = ?`,
		categoryTables[category])
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{string(community), string(role)},
	})
	if err != nil {
		return false, fmt.Errorf("policy store: remove role: %w", err)
	}
	return conn.Changes() > 0, nil
}

// SetAnnouncementChannel records the channel the bot announces to.
// Overwrites any previous channel.
func (s *Store) SetAnnouncementChannel(ctx context.Context, community platform.CommunityID, channel platform.ChannelID) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("policy store: set announcement channel: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO announcements (community_id, channel_id) VALUES (?, ?)
		 ON CONFLICT (community_id) DO UPDATE SET channel_id = excluded.channel_id`,
		&sqlitex.ExecOptions{Args: []any{string(community), string(channel)}})
	if err != nil {
		return fmt.Errorf("policy store: set announcement channel: %w", err)
	}
	return nil
}

// ClearAnnouncementChannel removes the announcement channel record if
// it matches the given channel. Returns whether a record was removed.
func (s *Store) ClearAnnouncementChannel(ctx context.Context, community platform.CommunityID, channel platform.ChannelID) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("policy store: clear announcement channel: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM announcements WHERE community_id = ? AND channel_id = ?`,
		&sqlitex.ExecOptions{Args: []any{string(community), string(channel)}})
	if err != nil {
		return false, fmt.Errorf("policy store: clear announcement channel: %w", err)
	}
	return conn.Changes() > 0, nil
}

// SetBotRole records the platform-managed role that represents the
// bot itself in a community. Overwrites any previous record.
func (s *Store) SetBotRole(ctx context.Context, community platform.CommunityID, role platform.RoleID) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("policy store: set bot role: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO bot_roles (community_id, role_id) VALUES (?, ?)
		 ON CONFLICT (community_id) DO UPDATE SET role_id = excluded.role_id`,
		&sqlitex.ExecOptions{Args: []any{string(community), string(role)}})
	if err != nil {
		return fmt.Errorf("policy store: set bot role: %w", err)
	}
	return nil
}

// SetSelfRole marks or unmarks a role as self-assignable.
func (s *Store) SetSelfRole(ctx context.Context, community platform.CommunityID, role platform.RoleID, selfAssignable bool) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("policy store: set self role: %w", err)
	}
	defer s.pool.Put(conn)

	query := `INSERT OR IGNORE INTO self_roles (community_id, role_id) VALUES (?, ?)`
	if !selfAssignable {
		query = `DELETE FROM self_roles WHERE community_id = ? AND role_id = ?`
	}
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{string(community), string(role)},
	})
	if err != nil {
		return fmt.Errorf("policy store: set self role: %w", err)
	}
	return nil
}

// IsSelfRole reports whether a role is marked self-assignable.
func (s *Store) IsSelfRole(ctx context.Context, community platform.CommunityID, role platform.RoleID) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("policy store: is self role: %w", err)
	}
	defer s.pool.Put(conn)

	var found bool
	err = sqlitex.Execute(conn,
		`SELECT 1 FROM self_roles WHERE community_id = ? AND role_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{string(community), string(role)},
			ResultFunc: func(*sqlite.Stmt) error {
				found = true
				return nil
			},
		})
	if err != nil {
		return false, fmt.Errorf("policy store: is self role: %w", err)
	}
	return found, nil
}

// AddGrant records a temporary role grant. Returns ErrGrantExists if
// the (community, user, role) triple already has an active grant.
func (s *Store) AddGrant(ctx context.Context, grant Grant) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("policy store: add grant: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO temp_roles (community_id, user_id, role_id, expires_at)
		 VALUES (?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			string(grant.Community),
			string(grant.UserID),
			string(grant.RoleID),
			grant.ExpiresAt.Unix(),
		}})
	if err != nil {
		if sqlite.ErrCode(err) == sqlite.ResultConstraintPrimaryKey {
			return ErrGrantExists
		}
		return fmt.Errorf("policy store: add grant: %w", err)
	}
	return nil
}

// RemoveGrant deletes a temporary grant record. Returns false if no
// such grant existed.
func (s *Store) RemoveGrant(ctx context.Context, community platform.CommunityID, user platform.UserID, role platform.RoleID) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("policy store: remove grant: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM temp_roles WHERE community_id = ? AND user_id = ? AND role_id = ?`,
		&sqlitex.ExecOptions{Args: []any{string(community), string(user), string(role)}})
	if err != nil {
		return false, fmt.Errorf("policy store: remove grant: %w", err)
	}
	return conn.Changes() > 0, nil
}

// DueGrants returns every grant whose deadline is at or before the
// current time, oldest first.
func (s *Store) DueGrants(ctx context.Context) ([]Grant, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy store: due grants: %w", err)
	}
	defer s.pool.Put(conn)

	var grants []Grant
	err = sqlitex.Execute(conn,
		`SELECT community_id, user_id, role_id, expires_at FROM temp_roles
		 WHERE expires_at <= ? ORDER BY expires_at`,
		&sqlitex.ExecOptions{
			Args: []any{s.clock.Now().Unix()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				grants = append(grants, scanGrant(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("policy store: due grants: %w", err)
	}
	return grants, nil
}

// Grants returns every active grant in a community, soonest deadline
// first.
func (s *Store) Grants(ctx context.Context, community platform.CommunityID) ([]Grant, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy store: grants: %w", err)
	}
	defer s.pool.Put(conn)

	var grants []Grant
	err = sqlitex.Execute(conn,
		`SELECT community_id, user_id, role_id, expires_at FROM temp_roles
		 WHERE community_id = ? ORDER BY expires_at`,
		&sqlitex.ExecOptions{
			Args: []any{string(community)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				grants = append(grants, scanGrant(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("policy store: grants: %w", err)
	}
	return grants, nil
}

func scanGrant(stmt *sqlite.Stmt) Grant {
	return Grant{
		Community: platform.CommunityID(stmt.ColumnText(0)),
		UserID:    platform.UserID(stmt.ColumnText(1)),
		RoleID:    platform.RoleID(stmt.ColumnText(2)),
		ExpiresAt: time.Unix(stmt.ColumnInt64(3), 0).UTC(),
	}
}

// PurgeRole removes a role id from every table it can appear in:
// category assignments, the bot role record, self-role markers, and
// pending temporary grants. One IMMEDIATE transaction, so a partial
// purge is never observable.
func (s *Store) PurgeRole(ctx context.Context, community platform.CommunityID, role platform.RoleID) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("policy store: purge role: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("policy store: purge role: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	args := []any{string(community), string(role)}
	for _, table := range allRoleTables {
		query := fmt.Sprintf(
			`DELETE FROM %s WHERE community_id = ? AND role_id = ?`, table)
		if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
			return fmt.Errorf("policy store: purging %s: %w", table, err)
		}
	}
	err = sqlitex.Execute(conn,
		`DELETE FROM bot_roles WHERE community_id = ? AND role_id = ?`,
		&sqlitex.ExecOptions{Args: args})
	if err != nil {
		return fmt.Errorf("policy store: purging bot_roles: %w", err)
	}
	err = sqlitex.Execute(conn,
		`DELETE FROM temp_roles WHERE community_id = ? AND role_id = ?`,
		&sqlitex.ExecOptions{Args: args})
	if err != nil {
		return fmt.Errorf("policy store: purging temp_roles: %w", err)
	}
	return nil
}

// PurgeCommunity removes every record for a community across all
// tables in one IMMEDIATE transaction. Used when the bot leaves or is
// removed from a community, and by the blacklist sweep.
func (s *Store) PurgeCommunity(ctx context.Context, community platform.CommunityID) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("policy store: purge community: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("policy store: purge community: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	tables := append([]string{}, allRoleTables...)
	tables = append(tables, "announcements", "bot_roles", "temp_roles")
	for _, table := range tables {
		query := fmt.Sprintf(`DELETE FROM %s WHERE community_id = ?`, table)
		err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: []any{string(community)},
		})
		if err != nil {
			return fmt.Errorf("policy store: purging %s: %w", table, err)
		}
	}
	return nil
}

// RemoveInvalid deletes category rows whose role id is the invalid
// placeholder "0", left behind by historical imports. Returns the
// number of rows removed.
func (s *Store) RemoveInvalid(ctx context.Context, community platform.CommunityID) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("policy store: remove invalid: %w", err)
	}
	defer s.pool.Put(conn)

	removed := 0
	for _, table := range allRoleTables {
		query := fmt.Sprintf(
			`DELETE FROM %s WHERE community_id = ? AND role_id = '0'`, table)
		err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: []any{string(community)},
		})
		if err != nil {
			return removed, fmt.Errorf("policy store: cleaning %s: %w", table, err)
		}
		removed += conn.Changes()
	}
	return removed, nil
}
