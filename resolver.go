package main

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrPartyNotFound     = errors.New("target sector not found")
	ErrPartyExists       = errors.New("a sector with this identifier already exists")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrNameRequired      = errors.New("display name required")
)

// Credential patterns are anchored and case-sensitive. A password either
// matches exactly one shape or falls through to the join-existing-party path.
var (
	devPattern   = regexp.MustCompile(`^Dev([1-8]{2})$`)
	adminPattern = regexp.MustCompile(`^Hamstar([1-9]{2})([1-9])$`)
	spaceRuns    = regexp.MustCompile(`\s+`)
)

// partyLookup is the slice of the party directory the resolver needs.
type partyLookup interface {
	getParty(id string) (*Party, error)
}

// normalizePartyID lowercases, trims and collapses whitespace runs to hyphens,
// producing the slug parties are keyed by.
func normalizePartyID(raw string) string {
	return spaceRuns.ReplaceAllString(strings.ToLower(strings.TrimSpace(raw)), "-")
}

func capabilitiesFor(role Role) Capabilities {
	switch role {
	case RoleDev:
		return Capabilities{
			CanCreateFolder:     true,
			CanBroadcastWarning: true,
			CanSeeAllParties:    true,
			CanTriggerPowerHour: true,
		}
	case RoleAdmin:
		return Capabilities{
			CanCreateFolder:     true,
			CanBroadcastWarning: true,
			CanTriggerPowerHour: true,
		}
	default:
		return Capabilities{}
	}
}

// resolveCredential maps a submitted password to an identity. Priority order:
// the DEV pattern wins regardless of the target party, then the Hamstar admin
// pattern, then the join-existing-party path against the party directory's
// stored admin secret.
func resolveCredential(password, name, targetPartyID string, dir partyLookup) (*Identity, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrNameRequired
	}

	if m := devPattern.FindStringSubmatch(password); m != nil {
		return &Identity{
			ID:           "dev-" + m[1],
			Name:         name,
			Role:         RoleDev,
			Tier:         TierPlatinum,
			PartyID:      SystemPartyID,
			Capabilities: capabilitiesFor(RoleDev),
		}, nil
	}

	if m := adminPattern.FindStringSubmatch(password); m != nil {
		return &Identity{
			ID:           fmt.Sprintf("admin-%s-%s", m[1], m[2]),
			Name:         name,
			Role:         RoleAdmin,
			Tier:         TierPlatinum,
			PartyID:      m[1],
			AdminRank:    m[2],
			Capabilities: capabilitiesFor(RoleAdmin),
		}, nil
	}

	partyID := normalizePartyID(targetPartyID)
	party, err := dir.getParty(partyID)
	if err != nil {
		return nil, fmt.Errorf("party lookup: %w", err)
	}
	if party == nil {
		return nil, ErrPartyNotFound
	}

	// Sector admin login uses the party's shared secret, compared
	// byte-for-byte. Anything else joins as a regular operative.
	if password != "" && password == party.AdminSecret {
		return &Identity{
			ID:           "admin-" + uuid.NewString(),
			Name:         name,
			Role:         RoleAdmin,
			Tier:         TierPlatinum,
			PartyID:      party.ID,
			Capabilities: capabilitiesFor(RoleAdmin),
		}, nil
	}

	return &Identity{
		ID:           "user-" + uuid.NewString(),
		Name:         name,
		Role:         RoleRegular,
		Tier:         TierSilver,
		PartyID:      party.ID,
		Capabilities: capabilitiesFor(RoleRegular),
	}, nil
}
