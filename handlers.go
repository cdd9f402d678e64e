package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

const (
	sessionName     = "podnet_session"
	identityKey     = "identity"
	basePoints      = 10
	powerHourWindow = time.Hour
)

// currentIdentity loads the caller's resolved identity from the session
// cookie. Nil means no session.
func (s *Server) currentIdentity(r *http.Request) *Identity {
	session, err := s.sessions.Get(r, sessionName)
	if err != nil {
		return nil
	}
	raw, ok := session.Values[identityKey].(string)
	if !ok || raw == "" {
		return nil
	}
	var ident Identity
	if err := json.Unmarshal([]byte(raw), &ident); err != nil {
		return nil
	}
	return &ident
}

func (s *Server) saveIdentity(w http.ResponseWriter, r *http.Request, ident *Identity) error {
	session, _ := s.sessions.Get(r, sessionName)
	raw, err := json.Marshal(ident)
	if err != nil {
		return err
	}
	session.Values[identityKey] = string(raw)
	session.Options.HttpOnly = true
	session.Options.Path = "/"
	session.Options.MaxAge = 86400
	return session.Save(r, w)
}

func (s *Server) clearIdentity(w http.ResponseWriter, r *http.Request) {
	session, _ := s.sessions.Get(r, sessionName)
	session.Values[identityKey] = ""
	session.Options.MaxAge = -1
	session.Save(r, w)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// authError maps resolver failures to user-facing responses. None of these
// are retried; the text goes straight back to the initiating user.
func (s *Server) authError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPartyNotFound):
		http.Error(w, "Target Sector not found. Ensure ID is accurate.", http.StatusNotFound)
	case errors.Is(err, ErrPartyExists):
		http.Error(w, "A Sector with this identifier already exists.", http.StatusConflict)
	case errors.Is(err, ErrNameRequired):
		http.Error(w, "Display name required.", http.StatusBadRequest)
	default:
		s.log.Errorw("auth failure", "error", err)
		http.Error(w, "Authorization failed.", http.StatusInternalServerError)
	}
}

func (s *Server) handleEstablishParty(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		AdminName string `json:"admin_name"`
		Password  string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.AdminName == "" || req.Password == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	partyID := normalizePartyID(req.Name)
	if err := s.createParty(partyID, req.Name, req.Password); err != nil {
		s.authError(w, err)
		return
	}

	ident := &Identity{
		ID:           "admin-" + partyID,
		Name:         req.AdminName,
		Role:         RoleAdmin,
		Tier:         TierPlatinum,
		PartyID:      partyID,
		Capabilities: capabilitiesFor(RoleAdmin),
	}
	if err := s.saveIdentity(w, r, ident); err != nil {
		s.log.Errorw("session save failed", "error", err)
		http.Error(w, "Session error", http.StatusInternalServerError)
		return
	}

	s.log.Infow("sector established", "party", partyID, "admin", req.AdminName)
	s.writeJSON(w, map[string]interface{}{"success": true, "user": ident})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Party    string `json:"party"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	ident, err := resolveCredential(req.Password, req.Name, req.Party, s)
	if err != nil {
		s.authError(w, err)
		return
	}
	if err := s.saveIdentity(w, r, ident); err != nil {
		s.log.Errorw("session save failed", "error", err)
		http.Error(w, "Session error", http.StatusInternalServerError)
		return
	}

	s.log.Infow("operative authorized", "party", ident.PartyID, "role", ident.Role)
	s.writeJSON(w, map[string]interface{}{"success": true, "user": ident})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.clearIdentity(w, r)
	s.writeJSON(w, map[string]interface{}{"success": true})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	ident := s.currentIdentity(r)
	if ident == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	s.writeJSON(w, ident)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	ident := s.currentIdentity(r)
	if ident == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	state, err := s.partyState(ident, r.URL.Query().Get("folder"))
	if err != nil {
		s.log.Errorw("state fetch failed", "party", ident.PartyID, "error", err)
		http.Error(w, "Failed to load sector state", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, state)
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	ident := s.currentIdentity(r)
	if ident == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !ident.Capabilities.CanCreateFolder {
		http.Error(w, "Not authorized to create folders", http.StatusForbidden)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "Missing folder name", http.StatusBadRequest)
		return
	}

	folder, err := s.createFolder(Folder{
		PartyID:   ident.PartyID,
		Name:      req.Name,
		CreatedBy: ident.ID,
	})
	if err != nil {
		s.log.Errorw("folder create failed", "party", ident.PartyID, "error", err)
		http.Error(w, "Failed to create folder", http.StatusInternalServerError)
		return
	}

	s.broadcastChange(ident.PartyID)
	s.writeJSON(w, map[string]interface{}{"success": true, "folder": folder})
}

func (s *Server) handleDeployCard(w http.ResponseWriter, r *http.Request) {
	ident := s.currentIdentity(r)
	if ident == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		FolderID string   `json:"folder_id"`
		URLs     []string `json:"urls"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	var posts []Post
	for _, u := range req.URLs {
		if u == "" {
			continue
		}
		posts = append(posts, Post{URL: u})
	}
	if req.FolderID == "" || len(posts) == 0 {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	card, err := s.upsertCard(Card{
		UserID:      ident.ID,
		PartyID:     ident.PartyID,
		FolderID:    req.FolderID,
		DisplayName: ident.Name,
		Tier:        ident.Tier,
		Posts:       posts,
	})
	if err != nil {
		s.log.Errorw("card deploy failed", "party", ident.PartyID, "error", err)
		http.Error(w, "Failed to deploy payload", http.StatusInternalServerError)
		return
	}

	s.broadcastChange(ident.PartyID)
	s.writeJSON(w, map[string]interface{}{"success": true, "card": card})
}

// handleRecordClick logs one post click for the caller. First-time clicks
// append a PENDING ledger entry; repeats are no-ops.
func (s *Server) handleRecordClick(w http.ResponseWriter, r *http.Request) {
	ident := s.currentIdentity(r)
	if ident == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	card, ok := s.loadEngageableCard(w, r, ident)
	if !ok {
		return
	}

	var req struct {
		PostID string `json:"post_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PostID == "" {
		http.Error(w, "Missing post id", http.StatusBadRequest)
		return
	}

	found := false
	for _, p := range card.Posts {
		if p.ID == req.PostID {
			found = true
			break
		}
	}
	if !found {
		http.Error(w, "Post not found on card", http.StatusNotFound)
		return
	}

	entries, err := s.listCardEntries(card.ID)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if isConnected(card.ID, ident.ID, entries) {
		// Already connected: the link may be reopened but nothing is logged.
		s.writeJSON(w, map[string]interface{}{"success": true, "recorded": false})
		return
	}

	recorded, err := s.appendLedgerEntry(EngagementLogEntry{
		ViewerID:   ident.ID,
		ViewerName: ident.Name,
		CardID:     card.ID,
		PostID:     req.PostID,
		Status:     StatusPending,
	})
	if err != nil {
		s.log.Errorw("click append failed", "card", card.ID, "error", err)
		http.Error(w, "Failed to record interaction", http.StatusInternalServerError)
		return
	}

	if recorded {
		s.broadcastChange(card.PartyID)
	}
	s.writeJSON(w, map[string]interface{}{"success": true, "recorded": recorded})
}

// handleConnect is the completion action. The gate is enforced here rather
// than trusted from the client: every post needs a logged click from this
// viewer, self-engagement is rejected, and an existing completion marker
// makes the whole call a no-op.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	ident := s.currentIdentity(r)
	if ident == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	card, ok := s.loadEngageableCard(w, r, ident)
	if !ok {
		return
	}

	entries, err := s.listCardEntries(card.ID)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if isConnected(card.ID, ident.ID, entries) {
		s.writeJSON(w, map[string]interface{}{"success": true, "message": "Connection already secured."})
		return
	}
	if err := checkConnect(*card, ident.ID, entries); err != nil {
		switch {
		case errors.Is(err, ErrSelfEngagement):
			http.Error(w, "Own payload cannot be engaged", http.StatusForbidden)
		case errors.Is(err, ErrGateIncomplete):
			http.Error(w, "Verification sequence incomplete", http.StatusConflict)
		default:
			http.Error(w, "Connect failed", http.StatusInternalServerError)
		}
		return
	}

	points := basePoints
	if s.powerHourActive(card.PartyID, time.Now()) {
		points *= 2
	}

	recorded, err := s.appendLedgerEntry(EngagementLogEntry{
		ViewerID:     ident.ID,
		ViewerName:   ident.Name,
		CardID:       card.ID,
		Status:       StatusDone,
		PointsEarned: points,
	})
	if err != nil {
		s.log.Errorw("completion append failed", "card", card.ID, "error", err)
		http.Error(w, "Failed to record completion", http.StatusInternalServerError)
		return
	}

	if recorded {
		// Independent write, no transactional grouping with the ledger
		// entry; a partial outcome is surfaced in the log only.
		err := s.appendNotification(Notification{
			PartyID:     card.PartyID,
			RecipientID: card.UserID,
			SenderID:    ident.ID,
			SenderName:  ident.Name,
			Type:        NotifEngagementReceived,
			Message:     fmt.Sprintf("%s has completed engagement.", ident.Name),
		})
		if err != nil {
			s.log.Errorw("notification append failed", "card", card.ID, "error", err)
		}
		s.broadcastChange(card.PartyID)
	}

	s.writeJSON(w, map[string]interface{}{"success": true, "points": points})
}

// loadEngageableCard fetches the card in the route and rejects engagement a
// caller is never allowed to make: missing cards, cards outside the caller's
// sector, and the caller's own card.
func (s *Server) loadEngageableCard(w http.ResponseWriter, r *http.Request, ident *Identity) (*Card, bool) {
	card, err := s.getCard(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return nil, false
	}
	if card == nil {
		http.Error(w, "Card not found", http.StatusNotFound)
		return nil, false
	}
	if !ident.Capabilities.CanSeeAllParties && card.PartyID != ident.PartyID {
		http.Error(w, "Card outside your sector", http.StatusForbidden)
		return nil, false
	}
	if card.UserID == ident.ID {
		http.Error(w, "Own payload cannot be engaged", http.StatusForbidden)
		return nil, false
	}
	return card, true
}

func (s *Server) partyStandings(ident *Identity) ([]MemberStanding, error) {
	scope := ident.PartyID
	if ident.Capabilities.CanSeeAllParties {
		scope = ""
	}
	cards, err := s.listCards(scope, "")
	if err != nil {
		return nil, err
	}
	entries, err := s.listLedgerEntries(scope)
	if err != nil {
		return nil, err
	}
	return computeStandings(cards, entries, memberRoster(cards, entries)), nil
}

func (s *Server) handleGetStandings(w http.ResponseWriter, r *http.Request) {
	ident := s.currentIdentity(r)
	if ident == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	standings, err := s.partyStandings(ident)
	if err != nil {
		s.log.Errorw("standings failed", "party", ident.PartyID, "error", err)
		http.Error(w, "Failed to compute standings", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, standings)
}

func (s *Server) handleExportStandings(w http.ResponseWriter, r *http.Request) {
	ident := s.currentIdentity(r)
	if ident == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !ident.Capabilities.CanBroadcastWarning {
		http.Error(w, "Not authorized", http.StatusForbidden)
		return
	}

	standings, err := s.partyStandings(ident)
	if err != nil {
		http.Error(w, "Failed to compute standings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="pod_report_%s.csv"`, time.Now().Format("2006-01-02")))
	if err := writeStandingsCSV(w, standings); err != nil {
		s.log.Errorw("csv export failed", "party", ident.PartyID, "error", err)
	}
}

// handleBroadcastWarning fans out a SYSTEM_WARNING to the whole sector plus
// one RECIPROCATION_DUE per current defaulter.
func (s *Server) handleBroadcastWarning(w http.ResponseWriter, r *http.Request) {
	ident := s.currentIdentity(r)
	if ident == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !ident.Capabilities.CanBroadcastWarning {
		http.Error(w, "Not authorized", http.StatusForbidden)
		return
	}

	if err := s.appendNotification(Notification{
		PartyID:     ident.PartyID,
		RecipientID: BroadcastRecipient,
		SenderID:    ident.ID,
		SenderName:  ident.Name,
		Type:        NotifSystemWarning,
		Message:     "Reciprocity enforcement sweep: complete your pending engagements.",
	}); err != nil {
		s.log.Errorw("warning broadcast failed", "party", ident.PartyID, "error", err)
		http.Error(w, "Failed to broadcast warning", http.StatusInternalServerError)
		return
	}

	standings, err := s.partyStandings(ident)
	if err != nil {
		http.Error(w, "Failed to compute standings", http.StatusInternalServerError)
		return
	}
	notified := 0
	for _, st := range standings {
		if !st.Defaulter {
			continue
		}
		err := s.appendNotification(Notification{
			PartyID:     ident.PartyID,
			RecipientID: st.ID,
			SenderID:    ident.ID,
			SenderName:  ident.Name,
			Type:        NotifReciprocationDue,
			Message:     fmt.Sprintf("Engagement score %s. Return engagement is due.", st.Score),
		})
		if err != nil {
			s.log.Errorw("defaulter notice failed", "member", st.ID, "error", err)
			continue
		}
		notified++
	}

	s.broadcastChange(ident.PartyID)
	s.writeJSON(w, map[string]interface{}{"success": true, "defaulters_notified": notified})
}

func (s *Server) handleStartPowerHour(w http.ResponseWriter, r *http.Request) {
	ident := s.currentIdentity(r)
	if ident == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !ident.Capabilities.CanTriggerPowerHour {
		http.Error(w, "Not authorized", http.StatusForbidden)
		return
	}

	until := time.Now().Add(powerHourWindow)
	if err := s.startPowerHour(ident.PartyID, until); err != nil {
		if errors.Is(err, ErrPartyNotFound) {
			http.Error(w, "Target Sector not found. Ensure ID is accurate.", http.StatusNotFound)
			return
		}
		s.log.Errorw("power hour start failed", "party", ident.PartyID, "error", err)
		http.Error(w, "Failed to start power hour", http.StatusInternalServerError)
		return
	}

	if err := s.appendNotification(Notification{
		PartyID:     ident.PartyID,
		RecipientID: BroadcastRecipient,
		SenderID:    ident.ID,
		SenderName:  ident.Name,
		Type:        NotifPowerHourStart,
		Message:     "Power Hour is live. Completions earn double points.",
	}); err != nil {
		s.log.Errorw("power hour notice failed", "party", ident.PartyID, "error", err)
	}

	s.broadcastChange(ident.PartyID)
	s.writeJSON(w, map[string]interface{}{"success": true, "until": until})
}
