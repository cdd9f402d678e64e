package main

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

func initDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS parties (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		admin_secret TEXT NOT NULL,
		power_hour_until DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS folders (
		id TEXT PRIMARY KEY,
		party_id TEXT NOT NULL,
		name TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (party_id) REFERENCES parties(id)
	);

	CREATE TABLE IF NOT EXISTS cards (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		party_id TEXT NOT NULL,
		folder_id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		tier TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user_id, party_id)
	);

	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		card_id TEXT NOT NULL,
		url TEXT NOT NULL,
		sn INTEGER NOT NULL,
		FOREIGN KEY (card_id) REFERENCES cards(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS engagement_logs (
		id TEXT PRIMARY KEY,
		viewer_id TEXT NOT NULL,
		viewer_name TEXT NOT NULL,
		card_id TEXT NOT NULL,
		post_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK(status IN ('PENDING', 'DONE')),
		points INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(viewer_id, card_id, post_id)
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		party_id TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		sender_name TEXT NOT NULL,
		type TEXT NOT NULL,
		message TEXT NOT NULL,
		read INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_folders_party ON folders(party_id);
	CREATE INDEX IF NOT EXISTS idx_cards_party ON cards(party_id);
	CREATE INDEX IF NOT EXISTS idx_posts_card ON posts(card_id);
	CREATE INDEX IF NOT EXISTS idx_logs_viewer ON engagement_logs(viewer_id);
	CREATE INDEX IF NOT EXISTS idx_logs_card ON engagement_logs(card_id);
	CREATE INDEX IF NOT EXISTS idx_notifications_party ON notifications(party_id);
	CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id);
	`

	_, err := db.Exec(schema)
	return err
}
