package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func standingFixture() ([]Card, []EngagementLogEntry, []Member) {
	cards := []Card{
		{ID: "card-a", UserID: "member-a", DisplayName: "Ada"},
		{ID: "card-b", UserID: "member-b", DisplayName: "Bob"},
		{ID: "card-c", UserID: "member-c", DisplayName: "Cyd"},
	}
	entries := []EngagementLogEntry{
		{ViewerID: "member-a", CardID: "card-b", Status: StatusDone, PointsEarned: 10},
		{ViewerID: "member-a", CardID: "card-c", Status: StatusDone, PointsEarned: 20},
		{ViewerID: "member-b", CardID: "card-a", Status: StatusDone, PointsEarned: 10},
		{ViewerID: "member-b", CardID: "card-c", PostID: "post-1", Status: StatusPending},
	}
	members := []Member{
		{ID: "member-a", Name: "Ada"},
		{ID: "member-b", Name: "Bob"},
		{ID: "member-c", Name: "Cyd"},
	}
	return cards, entries, members
}

func standingByID(t *testing.T, standings []MemberStanding, id string) MemberStanding {
	t.Helper()
	for _, s := range standings {
		if s.ID == id {
			return s
		}
	}
	t.Fatalf("no standing for %s", id)
	return MemberStanding{}
}

func TestComputeStandings(t *testing.T) {
	cards, entries, members := standingFixture()
	standings := computeStandings(cards, entries, members)
	require.Len(t, standings, 3)

	a := standingByID(t, standings, "member-a")
	assert.True(t, a.Posted)
	assert.Equal(t, 2, a.EngagementsDone)
	assert.Equal(t, 2, a.TargetCount)
	assert.Equal(t, "2/2", a.Score)
	assert.Equal(t, 30, a.Points)
	assert.False(t, a.Defaulter)

	b := standingByID(t, standings, "member-b")
	assert.Equal(t, 1, b.EngagementsDone)
	assert.Equal(t, 2, b.TargetCount)
	assert.Equal(t, 10, b.Points) // PENDING rows carry no points
	assert.True(t, b.Defaulter)

	c := standingByID(t, standings, "member-c")
	assert.Equal(t, 0, c.EngagementsDone)
	assert.Equal(t, "0/2", c.Score)
	assert.True(t, c.Defaulter)
}

func TestComputeStandings_NoTargetsNoDefault(t *testing.T) {
	// A member who owns the only card has no targets; they can never be a
	// defaulter no matter their engagement count.
	cards := []Card{{ID: "card-a", UserID: "member-a", DisplayName: "Ada"}}
	members := []Member{{ID: "member-a", Name: "Ada"}}

	standings := computeStandings(cards, nil, members)
	require.Len(t, standings, 1)
	assert.Equal(t, 0, standings[0].TargetCount)
	assert.False(t, standings[0].Defaulter)

	// Same with no cards at all.
	standings = computeStandings(nil, nil, members)
	require.Len(t, standings, 1)
	assert.False(t, standings[0].Defaulter)
}

func TestComputeStandings_DeterministicUnderReordering(t *testing.T) {
	cards, entries, members := standingFixture()

	first := computeStandings(cards, entries, members)

	reversedCards := []Card{cards[2], cards[1], cards[0]}
	reversedEntries := []EngagementLogEntry{entries[3], entries[2], entries[1], entries[0]}
	reversedMembers := []Member{members[2], members[1], members[0]}
	second := computeStandings(reversedCards, reversedEntries, reversedMembers)

	assert.Equal(t, first, second)
}

func TestStandingTier(t *testing.T) {
	tests := []struct {
		name     string
		memberID string
		done     int
		want     Tier
	}{
		{"root sentinel always platinum", rootMemberID, 0, TierPlatinum},
		{"over 25 is platinum", "m", 26, TierPlatinum},
		{"exactly 25 is gold", "m", 25, TierGold},
		{"over 10 is gold", "m", 11, TierGold},
		{"exactly 10 is silver", "m", 10, TierSilver},
		{"zero is silver", "m", 0, TierSilver},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, standingTier(tt.memberID, tt.done))
		})
	}
}

func TestMemberRoster(t *testing.T) {
	cards := []Card{{ID: "card-a", UserID: "member-a", DisplayName: "Ada"}}
	entries := []EngagementLogEntry{
		{ViewerID: "member-b", ViewerName: "Bob", CardID: "card-a", PostID: "p", Status: StatusPending},
		{ViewerID: "member-a", ViewerName: "stale-name", CardID: "card-b", Status: StatusDone},
	}

	roster := memberRoster(cards, entries)
	require.Len(t, roster, 2)
	assert.Equal(t, Member{ID: "member-a", Name: "Ada"}, roster[0]) // card name wins
	assert.Equal(t, Member{ID: "member-b", Name: "Bob"}, roster[1])
}

func TestWriteStandingsCSV(t *testing.T) {
	standings := []MemberStanding{
		{ID: "member-a", Name: "Ada", Posted: true, Score: "2/2", Points: 30, Tier: TierSilver},
		{ID: "member-b", Name: "Bob", Posted: false, Score: "1/2", Points: 10, Tier: TierSilver, Defaulter: true},
	}

	var buf bytes.Buffer
	require.NoError(t, writeStandingsCSV(&buf, standings))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Member,Posted,Engagement Score,Points,Tier,Status", lines[0])
	assert.Equal(t, "Ada,YES,2/2,30,Silver,COMPLIANT", lines[1])
	assert.Equal(t, "Bob,NO,1/2,10,Silver,DEFAULTER", lines[2])
}
