package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
)

// rootMemberID is the reserved root identity that always ranks PLATINUM on
// the scoreboard.
const rootMemberID = "dev-master-root"

// standingTier is the single place engagement counts map to a tier. Every
// display derivation goes through it; the tier stored on an Identity is a
// session privilege grant, not a standing.
func standingTier(memberID string, engagementsDone int) Tier {
	switch {
	case memberID == rootMemberID:
		return TierPlatinum
	case engagementsDone > 25:
		return TierPlatinum
	case engagementsDone > 10:
		return TierGold
	default:
		return TierSilver
	}
}

// computeStandings derives the scoreboard from a snapshot of cards and ledger
// entries. It is pure and order-insensitive over its inputs; output is sorted
// by member id so identical inputs always produce identical standings.
func computeStandings(cards []Card, entries []EngagementLogEntry, members []Member) []MemberStanding {
	ownedBy := make(map[string]int)
	for _, c := range cards {
		ownedBy[c.UserID]++
	}

	done := make(map[string]int)
	points := make(map[string]int)
	for _, e := range entries {
		if e.Status != StatusDone {
			continue
		}
		done[e.ViewerID]++
		points[e.ViewerID] += e.PointsEarned
	}

	standings := make([]MemberStanding, 0, len(members))
	for _, m := range members {
		targets := len(cards) - ownedBy[m.ID]
		engaged := done[m.ID]
		standings = append(standings, MemberStanding{
			ID:              m.ID,
			Name:            m.Name,
			Posted:          ownedBy[m.ID] > 0,
			EngagementsDone: engaged,
			TargetCount:     targets,
			Score:           fmt.Sprintf("%d/%d", engaged, targets),
			Points:          points[m.ID],
			Tier:            standingTier(m.ID, engaged),
			Defaulter:       targets > 0 && engaged < targets,
		})
	}

	sort.Slice(standings, func(i, j int) bool { return standings[i].ID < standings[j].ID })
	return standings
}

// memberRoster builds the member list from card owners and ledger viewers,
// deduplicated by id. Card display names win over names recorded on log
// entries.
func memberRoster(cards []Card, entries []EngagementLogEntry) []Member {
	names := make(map[string]string)
	for _, e := range entries {
		if names[e.ViewerID] == "" {
			names[e.ViewerID] = e.ViewerName
		}
	}
	for _, c := range cards {
		names[c.UserID] = c.DisplayName
	}

	members := make([]Member, 0, len(names))
	for id, name := range names {
		if name == "" {
			name = id
		}
		members = append(members, Member{ID: id, Name: name})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members
}

// writeStandingsCSV renders the scoreboard in the report layout admins
// export: Member, Posted, Engagement Score, Points, Tier, Status.
func writeStandingsCSV(w io.Writer, standings []MemberStanding) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Member", "Posted", "Engagement Score", "Points", "Tier", "Status"}); err != nil {
		return err
	}
	for _, s := range standings {
		posted := "NO"
		if s.Posted {
			posted = "YES"
		}
		status := "COMPLIANT"
		if s.Defaulter {
			status = "DEFAULTER"
		}
		row := []string{s.Name, posted, s.Score, fmt.Sprintf("%d", s.Points), string(s.Tier), status}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
