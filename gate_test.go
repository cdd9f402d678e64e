package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testCard() Card {
	return Card{
		ID:     "card-1",
		UserID: "owner-1",
		Posts: []Post{
			{ID: "post-1", CardID: "card-1", SequenceNumber: 1},
			{ID: "post-2", CardID: "card-1", SequenceNumber: 2},
		},
	}
}

func click(viewer, card, post string) EngagementLogEntry {
	return EngagementLogEntry{ViewerID: viewer, CardID: card, PostID: post, Status: StatusPending}
}

func doneMarker(viewer, card string) EngagementLogEntry {
	return EngagementLogEntry{ViewerID: viewer, CardID: card, Status: StatusDone}
}

func TestGateState_Progression(t *testing.T) {
	card := testCard()
	viewer := "viewer-1"

	assert.Equal(t, GateLocked, gateState(card, viewer, false, nil))
	assert.Equal(t, GateProfileOpened, gateState(card, viewer, true, nil))

	oneClick := []EngagementLogEntry{click(viewer, card.ID, "post-1")}
	assert.Equal(t, GatePostsPending, gateState(card, viewer, true, oneClick))

	allClicks := append(oneClick, click(viewer, card.ID, "post-2"))
	assert.Equal(t, GateReadyToConnect, gateState(card, viewer, true, allClicks))

	connected := append(allClicks, doneMarker(viewer, card.ID))
	assert.Equal(t, GateConnected, gateState(card, viewer, true, connected))
}

func TestGateState_ConnectedRegardlessOfProfileFlag(t *testing.T) {
	card := testCard()
	entries := []EngagementLogEntry{doneMarker("viewer-1", card.ID)}

	assert.Equal(t, GateConnected, gateState(card, "viewer-1", false, entries))
}

func TestGateState_OwnerAlwaysLocked(t *testing.T) {
	card := testCard()
	entries := []EngagementLogEntry{
		click(card.UserID, card.ID, "post-1"),
		click(card.UserID, card.ID, "post-2"),
		doneMarker(card.UserID, card.ID),
	}

	assert.Equal(t, GateLocked, gateState(card, card.UserID, true, entries))
}

func TestGateState_ZeroPostCardNeverReady(t *testing.T) {
	card := Card{ID: "card-empty", UserID: "owner-1"}

	assert.Equal(t, GateProfileOpened, gateState(card, "viewer-1", true, nil))
}

func TestGateState_OtherViewersDoNotCount(t *testing.T) {
	card := testCard()
	entries := []EngagementLogEntry{
		click("someone-else", card.ID, "post-1"),
		click("someone-else", card.ID, "post-2"),
		doneMarker("someone-else", card.ID),
	}

	assert.Equal(t, GateProfileOpened, gateState(card, "viewer-1", true, entries))
}

func TestClickedPosts_DeduplicatesRepeatClicks(t *testing.T) {
	card := testCard()
	entries := []EngagementLogEntry{
		click("viewer-1", card.ID, "post-1"),
		click("viewer-1", card.ID, "post-1"),
		click("viewer-1", card.ID, "post-1"),
	}

	clicked := clickedPosts(card.ID, "viewer-1", entries)
	assert.Len(t, clicked, 1)
	assert.True(t, clicked["post-1"])
}

func TestCheckConnect(t *testing.T) {
	card := testCard()
	viewer := "viewer-1"

	t.Run("self engagement rejected", func(t *testing.T) {
		err := checkConnect(card, card.UserID, nil)
		assert.ErrorIs(t, err, ErrSelfEngagement)
	})

	t.Run("incomplete sequence rejected", func(t *testing.T) {
		oneClick := []EngagementLogEntry{click(viewer, card.ID, "post-1")}
		err := checkConnect(card, viewer, oneClick)
		assert.ErrorIs(t, err, ErrGateIncomplete)
	})

	t.Run("zero post card rejected", func(t *testing.T) {
		empty := Card{ID: "card-empty", UserID: "owner-1"}
		err := checkConnect(empty, viewer, nil)
		assert.ErrorIs(t, err, ErrGateIncomplete)
	})

	t.Run("all posts clicked allows connect", func(t *testing.T) {
		entries := []EngagementLogEntry{
			click(viewer, card.ID, "post-1"),
			click(viewer, card.ID, "post-2"),
		}
		assert.NoError(t, checkConnect(card, viewer, entries))
	})

	t.Run("already connected is a no-op", func(t *testing.T) {
		entries := []EngagementLogEntry{doneMarker(viewer, card.ID)}
		assert.NoError(t, checkConnect(card, viewer, entries))
	})
}

func TestHasReciprocated_DirectionsAreIndependent(t *testing.T) {
	// A's card and B's card; B completed A's card, A did nothing.
	entries := []EngagementLogEntry{doneMarker("member-b", "card-a")}

	assert.True(t, hasReciprocated("member-b", "card-a", entries))
	assert.False(t, hasReciprocated("member-a", "card-b", entries))
}
