// Package postgres — migrations.go содержит схему базы данных.
// Новые миграции добавляются в конец списка с новой версией; старые не меняются.
package postgres

// Migrations — все версии схемы по порядку.
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "users_and_sessions",
		SQL: `
			CREATE TABLE users (
				id               UUID PRIMARY KEY,
				username         TEXT NOT NULL,
				password_hash    TEXT NOT NULL,
				level            INTEGER NOT NULL DEFAULT 1,
				experience       BIGINT NOT NULL DEFAULT 0,
				telegram_chat_id BIGINT,
				last_reminder_on DATE,
				created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE UNIQUE INDEX users_username_lower_idx ON users (LOWER(username));

			CREATE TABLE sessions (
				token         TEXT PRIMARY KEY,
				user_id       UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				created_at    TIMESTAMPTZ NOT NULL,
				expires_at    TIMESTAMPTZ NOT NULL,
				last_activity TIMESTAMPTZ
			);
			CREATE INDEX sessions_expires_at_idx ON sessions (expires_at);

			CREATE TABLE login_attempts (
				id           BIGSERIAL PRIMARY KEY,
				username     TEXT NOT NULL,
				success      BOOLEAN NOT NULL,
				attempt_time TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX login_attempts_username_time_idx ON login_attempts (username, attempt_time);
		`,
	},
	{
		Version: 2,
		Name:    "user_state_and_xp_ledger",
		SQL: `
			CREATE TABLE user_state (
				user_id    UUID PRIMARY KEY,
				state      JSONB NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);

			CREATE TABLE xp_ledger (
				id           BIGSERIAL PRIMARY KEY,
				user_id      UUID NOT NULL,
				habit_id     TEXT NOT NULL,
				completed_on DATE NOT NULL,
				amount       BIGINT NOT NULL,
				reason       TEXT NOT NULL,
				created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE (user_id, habit_id, completed_on)
			);
			CREATE INDEX xp_ledger_user_created_idx ON xp_ledger (user_id, created_at DESC);
		`,
	},
	{
		Version: 3,
		Name:    "communities",
		SQL: `
			CREATE TABLE communities (
				id          BIGSERIAL PRIMARY KEY,
				name        TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				category    TEXT NOT NULL,
				creator_id  UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);

			CREATE TABLE community_members (
				community_id BIGINT NOT NULL REFERENCES communities(id) ON DELETE CASCADE,
				user_id      UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				joined_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (community_id, user_id)
			);
			CREATE INDEX community_members_user_idx ON community_members (user_id);
		`,
	},
	{
		Version: 4,
		Name:    "admin_settings",
		SQL: `
			CREATE TABLE admin_settings (
				key        TEXT PRIMARY KEY,
				value      TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
		`,
	},
}
