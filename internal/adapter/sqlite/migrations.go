package sqlite

import migrate "github.com/rubenv/sql-migrate"

var migrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "0001_users",
			Up: []string{`
				CREATE TABLE users (
					id             TEXT PRIMARY KEY,
					email          TEXT NOT NULL UNIQUE COLLATE NOCASE,
					name           TEXT NOT NULL DEFAULT '',
					photo_url      TEXT NOT NULL DEFAULT '',
					password_hash  TEXT NOT NULL,
					email_verified INTEGER NOT NULL DEFAULT 0,
					created_at     TEXT NOT NULL,
					updated_at     TEXT NOT NULL
				)`,
			},
			Down: []string{`DROP TABLE users`},
		},
		{
			Id: "0002_conversations",
			Up: []string{
				`CREATE TABLE conversations (
					id         TEXT PRIMARY KEY,
					owner_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					title      TEXT NOT NULL,
					created_at TEXT NOT NULL,
					updated_at TEXT NOT NULL
				)`,
				`CREATE INDEX conversations_owner_updated_idx ON conversations(owner_id, updated_at DESC)`,
				`CREATE TABLE turns (
					id              TEXT PRIMARY KEY,
					conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
					prompt          TEXT NOT NULL,
					reply           TEXT NOT NULL,
					created_at      TEXT NOT NULL
				)`,
				`CREATE INDEX turns_conversation_created_idx ON turns(conversation_id, created_at)`,
			},
			Down: []string{`DROP TABLE turns`, `DROP TABLE conversations`},
		},
		{
			Id: "0003_reference",
			Up: []string{
				`CREATE TABLE quick_prompts (
					id         TEXT PRIMARY KEY,
					emoji      TEXT NOT NULL,
					text       TEXT NOT NULL,
					created_at TEXT NOT NULL
				)`,
				`CREATE TABLE countries (
					id         TEXT PRIMARY KEY,
					code       TEXT NOT NULL UNIQUE,
					name       TEXT NOT NULL,
					flag_url   TEXT NOT NULL,
					language   TEXT NOT NULL,
					created_at TEXT NOT NULL,
					updated_at TEXT NOT NULL
				)`,
				`INSERT INTO countries (id, code, name, flag_url, language, created_at, updated_at) VALUES
					('1', 'US', 'United States',  'https://flagcdn.com/w320/us.png', 'English', strftime('%Y-%m-%dT%H:%M:%S.000000000Z', 'now'), strftime('%Y-%m-%dT%H:%M:%S.000000000Z', 'now')),
					('2', 'GB', 'United Kingdom', 'https://flagcdn.com/w320/gb.png', 'English', strftime('%Y-%m-%dT%H:%M:%S.000000000Z', 'now'), strftime('%Y-%m-%dT%H:%M:%S.000000000Z', 'now')),
					('3', 'EG', 'Egypt',          'https://flagcdn.com/w320/eg.png', 'Arabic',  strftime('%Y-%m-%dT%H:%M:%S.000000000Z', 'now'), strftime('%Y-%m-%dT%H:%M:%S.000000000Z', 'now'))`,
			},
			Down: []string{`DROP TABLE countries`, `DROP TABLE quick_prompts`},
		},
	},
}
