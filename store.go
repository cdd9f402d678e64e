package main

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// getParty implements the partyLookup slice of the directory used by the
// credential resolver. A missing party returns (nil, nil).
func (s *Server) getParty(id string) (*Party, error) {
	var p Party
	err := s.db.QueryRow(`
		SELECT id, name, admin_secret, power_hour_until, created_at
		FROM parties
		WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.AdminSecret, &p.PowerHourUntil, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Server) createParty(id, name, adminSecret string) error {
	existing, err := s.getParty(id)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrPartyExists
	}

	_, err = s.db.Exec(`
		INSERT INTO parties (id, name, admin_secret) VALUES (?, ?, ?)
	`, id, name, adminSecret)
	return err
}

// powerHourActive reports whether the party's power-hour window covers now.
func (s *Server) powerHourActive(partyID string, now time.Time) bool {
	party, err := s.getParty(partyID)
	if err != nil || party == nil || party.PowerHourUntil == nil {
		return false
	}
	return now.Before(*party.PowerHourUntil)
}

func (s *Server) startPowerHour(partyID string, until time.Time) error {
	res, err := s.db.Exec(`
		UPDATE parties SET power_hour_until = ? WHERE id = ?
	`, until, partyID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrPartyNotFound
	}
	return nil
}

func (s *Server) listFolders(partyID string) ([]Folder, error) {
	query := `SELECT id, party_id, name, created_by, created_at FROM folders`
	args := []interface{}{}
	if partyID != "" {
		query += ` WHERE party_id = ?`
		args = append(args, partyID)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folders []Folder
	for rows.Next() {
		var f Folder
		if err := rows.Scan(&f.ID, &f.PartyID, &f.Name, &f.CreatedBy, &f.CreatedAt); err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

func (s *Server) createFolder(f Folder) (Folder, error) {
	f.ID = "folder-" + uuid.NewString()
	f.CreatedAt = time.Now()
	_, err := s.db.Exec(`
		INSERT INTO folders (id, party_id, name, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, f.ID, f.PartyID, f.Name, f.CreatedBy, f.CreatedAt)
	return f, err
}

// listCards returns cards with their posts in sequence order. Empty partyID
// means unscoped (the DEV view); folderID further narrows within a party.
func (s *Server) listCards(partyID, folderID string) ([]Card, error) {
	query := `SELECT id, user_id, party_id, folder_id, display_name, tier, created_at FROM cards`
	var args []interface{}
	switch {
	case partyID != "" && folderID != "":
		query += ` WHERE party_id = ? AND folder_id = ?`
		args = append(args, partyID, folderID)
	case partyID != "":
		query += ` WHERE party_id = ?`
		args = append(args, partyID)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []Card
	for rows.Next() {
		var c Card
		if err := rows.Scan(&c.ID, &c.UserID, &c.PartyID, &c.FolderID, &c.DisplayName, &c.Tier, &c.CreatedAt); err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range cards {
		posts, err := s.listPosts(cards[i].ID)
		if err != nil {
			return nil, err
		}
		cards[i].Posts = posts
	}
	return cards, nil
}

func (s *Server) listPosts(cardID string) ([]Post, error) {
	rows, err := s.db.Query(`
		SELECT id, card_id, url, sn FROM posts WHERE card_id = ? ORDER BY sn ASC
	`, cardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.CardID, &p.URL, &p.SequenceNumber); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *Server) getCard(id string) (*Card, error) {
	var c Card
	err := s.db.QueryRow(`
		SELECT id, user_id, party_id, folder_id, display_name, tier, created_at
		FROM cards WHERE id = ?
	`, id).Scan(&c.ID, &c.UserID, &c.PartyID, &c.FolderID, &c.DisplayName, &c.Tier, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	posts, err := s.listPosts(c.ID)
	if err != nil {
		return nil, err
	}
	c.Posts = posts
	return &c, nil
}

// upsertCard replaces the member's existing payload in the party, if any,
// with the new one. Delete and insert run in one transaction so a redeploy
// never leaves a member with two active cards.
func (s *Server) upsertCard(c Card) (Card, error) {
	c.ID = "card-" + uuid.NewString()
	c.CreatedAt = time.Now()

	tx, err := s.db.Begin()
	if err != nil {
		return c, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM posts WHERE card_id IN (SELECT id FROM cards WHERE user_id = ? AND party_id = ?)
	`, c.UserID, c.PartyID); err != nil {
		return c, err
	}
	if _, err := tx.Exec(`DELETE FROM cards WHERE user_id = ? AND party_id = ?`, c.UserID, c.PartyID); err != nil {
		return c, err
	}

	if _, err := tx.Exec(`
		INSERT INTO cards (id, user_id, party_id, folder_id, display_name, tier, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.UserID, c.PartyID, c.FolderID, c.DisplayName, c.Tier, c.CreatedAt); err != nil {
		return c, err
	}

	for i := range c.Posts {
		c.Posts[i].ID = "post-" + uuid.NewString()
		c.Posts[i].CardID = c.ID
		c.Posts[i].SequenceNumber = i + 1
		if _, err := tx.Exec(`
			INSERT INTO posts (id, card_id, url, sn) VALUES (?, ?, ?, ?)
		`, c.Posts[i].ID, c.ID, c.Posts[i].URL, c.Posts[i].SequenceNumber); err != nil {
			return c, err
		}
	}

	return c, tx.Commit()
}

// listLedgerEntries returns entries for the cards of one party, or every
// entry when partyID is empty (the DEV view).
func (s *Server) listLedgerEntries(partyID string) ([]EngagementLogEntry, error) {
	query := `
		SELECT l.id, l.viewer_id, l.viewer_name, l.card_id, l.post_id, l.status, l.points, l.created_at
		FROM engagement_logs l
	`
	var args []interface{}
	if partyID != "" {
		query += ` JOIN cards c ON l.card_id = c.id WHERE c.party_id = ?`
		args = append(args, partyID)
	}
	query += ` ORDER BY l.created_at ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []EngagementLogEntry
	for rows.Next() {
		var e EngagementLogEntry
		if err := rows.Scan(&e.ID, &e.ViewerID, &e.ViewerName, &e.CardID, &e.PostID, &e.Status, &e.PointsEarned, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Server) listCardEntries(cardID string) ([]EngagementLogEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, viewer_id, viewer_name, card_id, post_id, status, points, created_at
		FROM engagement_logs WHERE card_id = ? ORDER BY created_at ASC
	`, cardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []EngagementLogEntry
	for rows.Next() {
		var e EngagementLogEntry
		if err := rows.Scan(&e.ID, &e.ViewerID, &e.ViewerName, &e.CardID, &e.PostID, &e.Status, &e.PointsEarned, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// appendLedgerEntry writes one append-only fact. The unique index on
// (viewer, card, post) plus INSERT OR IGNORE makes duplicate clicks and
// duplicate completion markers collapse instead of erroring, so concurrent
// writers need no coordination. Returns whether a row was actually written.
func (s *Server) appendLedgerEntry(e EngagementLogEntry) (bool, error) {
	e.ID = "log-" + uuid.NewString()
	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO engagement_logs (id, viewer_id, viewer_name, card_id, post_id, status, points, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.ViewerID, e.ViewerName, e.CardID, e.PostID, e.Status, e.PointsEarned, time.Now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// listNotifications returns notifications addressed to the recipient or to
// the party-wide broadcast sentinel, newest first. Empty partyID returns
// everything (the DEV view).
func (s *Server) listNotifications(partyID, recipientID string) ([]Notification, error) {
	query := `
		SELECT id, party_id, recipient_id, sender_id, sender_name, type, message, read, created_at
		FROM notifications
	`
	var args []interface{}
	if partyID != "" {
		query += ` WHERE party_id = ? AND (recipient_id = ? OR recipient_id = ?)`
		args = append(args, partyID, recipientID, BroadcastRecipient)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifs []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.PartyID, &n.RecipientID, &n.SenderID, &n.SenderName, &n.Type, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifs = append(notifs, n)
	}
	return notifs, rows.Err()
}

func (s *Server) appendNotification(n Notification) error {
	n.ID = "notif-" + uuid.NewString()
	_, err := s.db.Exec(`
		INSERT INTO notifications (id, party_id, recipient_id, sender_id, sender_name, type, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.PartyID, n.RecipientID, n.SenderID, n.SenderName, n.Type, n.Message, time.Now())
	if err != nil {
		return fmt.Errorf("append notification: %w", err)
	}
	return nil
}

// partyState assembles the full snapshot a client renders from. DEV sessions
// get the unscoped view.
func (s *Server) partyState(ident *Identity, folderID string) (*PartyState, error) {
	scope := ident.PartyID
	if ident.Capabilities.CanSeeAllParties {
		scope = ""
	}

	folders, err := s.listFolders(scope)
	if err != nil {
		return nil, err
	}
	cards, err := s.listCards(scope, folderID)
	if err != nil {
		return nil, err
	}
	logs, err := s.listLedgerEntries(scope)
	if err != nil {
		return nil, err
	}
	var notifs []Notification
	if scope == "" {
		notifs, err = s.listNotifications("", "")
	} else {
		notifs, err = s.listNotifications(scope, ident.ID)
	}
	if err != nil {
		return nil, err
	}

	return &PartyState{
		Folders:       folders,
		Cards:         cards,
		Logs:          logs,
		Notifications: notifs,
	}, nil
}
