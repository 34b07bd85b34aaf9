package store

// migrations returns the schema history for a driver. Versions are never
// edited once released; add a new one instead.
func migrations(driver string) map[int][]string {
	if driver == DriverPostgres {
		return postgresMigrations
	}
	return sqliteMigrations
}

var postgresMigrations = map[int][]string{
	1: {
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE,
			full_name TEXT,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title TEXT DEFAULT 'New Conversation',
			started_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			last_updated TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
			content TEXT NOT NULL,
			metadata JSONB DEFAULT '{}',
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS usage (
			user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			total_tokens BIGINT DEFAULT 0,
			total_conversations BIGINT DEFAULT 0,
			total_messages BIGINT DEFAULT 0,
			last_used TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
	},
	2: indexes,
}

var sqliteMigrations = map[int][]string{
	1: {
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE,
			full_name TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title TEXT DEFAULT 'New Conversation',
			started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			last_updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
			content TEXT NOT NULL,
			metadata TEXT DEFAULT '{}',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS usage (
			user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			total_tokens INTEGER DEFAULT 0,
			total_conversations INTEGER DEFAULT 0,
			total_messages INTEGER DEFAULT 0,
			last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	},
	2: indexes,
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_conversations_user_id ON conversations(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_last_updated ON conversations(last_updated DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages(conversation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at DESC)`,
}
