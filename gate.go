package main

import "errors"

// GateState is the per-(card, viewer) progress through the two-step
// verification sequence. It is never persisted; it is re-derived from ledger
// snapshots on every fetch.
type GateState string

const (
	GateLocked         GateState = "LOCKED"
	GateProfileOpened  GateState = "PROFILE_OPENED"
	GatePostsPending   GateState = "POSTS_PENDING"
	GateReadyToConnect GateState = "READY_TO_CONNECT"
	GateConnected      GateState = "CONNECTED"
)

var (
	ErrSelfEngagement = errors.New("own payload cannot be engaged")
	ErrGateIncomplete = errors.New("verification sequence incomplete")
)

// clickedPosts returns the set of post ids the viewer has a logged click for
// on this card.
func clickedPosts(cardID, viewerID string, entries []EngagementLogEntry) map[string]bool {
	clicked := make(map[string]bool)
	for _, e := range entries {
		if e.CardID == cardID && e.ViewerID == viewerID && e.PostID != "" {
			clicked[e.PostID] = true
		}
	}
	return clicked
}

// isConnected reports whether a DONE completion marker exists for the
// (viewer, card) pair.
func isConnected(cardID, viewerID string, entries []EngagementLogEntry) bool {
	for _, e := range entries {
		if e.CardID == cardID && e.ViewerID == viewerID && e.Status == StatusDone {
			return true
		}
	}
	return false
}

// allPostsClicked reports whether every post on the card has a logged click
// from the viewer. A card with no posts can never satisfy the sequence.
func allPostsClicked(card Card, viewerID string, entries []EngagementLogEntry) bool {
	if len(card.Posts) == 0 {
		return false
	}
	clicked := clickedPosts(card.ID, viewerID, entries)
	for _, p := range card.Posts {
		if !clicked[p.ID] {
			return false
		}
	}
	return true
}

// gateState derives the viewer's gate position for a card. The profile-open
// step is a client-local flag and is passed in rather than read from the
// ledger. The card owner is always LOCKED.
func gateState(card Card, viewerID string, profileOpened bool, entries []EngagementLogEntry) GateState {
	if card.UserID == viewerID {
		return GateLocked
	}
	if isConnected(card.ID, viewerID, entries) {
		return GateConnected
	}
	if !profileOpened {
		return GateLocked
	}
	if allPostsClicked(card, viewerID, entries) {
		return GateReadyToConnect
	}
	if len(clickedPosts(card.ID, viewerID, entries)) > 0 {
		return GatePostsPending
	}
	return GateProfileOpened
}

// checkConnect validates the completion action server-side: the viewer must
// not own the card and every post must have a logged click. An existing DONE
// marker is not an error; callers treat it as a no-op.
func checkConnect(card Card, viewerID string, entries []EngagementLogEntry) error {
	if card.UserID == viewerID {
		return ErrSelfEngagement
	}
	if isConnected(card.ID, viewerID, entries) {
		return nil
	}
	if !allPostsClicked(card, viewerID, entries) {
		return ErrGateIncomplete
	}
	return nil
}

// hasReciprocated reports whether the viewer completed engagement on the
// given card. The two directions of a reciprocity pair are tracked
// independently; callers query each separately.
func hasReciprocated(viewerID, cardID string, entries []EngagementLogEntry) bool {
	return isConnected(cardID, viewerID, entries)
}
