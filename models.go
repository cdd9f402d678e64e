package main

import (
	"time"
)

type Role string

const (
	RoleRegular Role = "REGULAR"
	RoleAdmin   Role = "ADMIN"
	RoleDev     Role = "DEV"
)

type Tier string

const (
	TierSilver   Tier = "Silver"
	TierGold     Tier = "Gold"
	TierPlatinum Tier = "Platinum"
)

type NotificationType string

const (
	NotifEngagementReceived NotificationType = "ENGAGEMENT_RECEIVED"
	NotifSystemWarning      NotificationType = "SYSTEM_WARNING"
	NotifPowerHourStart     NotificationType = "POWER_HOUR_START"
	NotifReciprocationDue   NotificationType = "RECIPROCATION_DUE"
)

// SystemPartyID is the reserved scope DEV identities are rooted in. It is not
// a real party record.
const SystemPartyID = "SYSTEM"

// BroadcastRecipient addresses a notification to every member of a party.
const BroadcastRecipient = "all"

// Capabilities is computed once at credential resolution and consumed
// uniformly instead of re-checking roles in every handler.
type Capabilities struct {
	CanCreateFolder     bool `json:"can_create_folder"`
	CanBroadcastWarning bool `json:"can_broadcast_warning"`
	CanSeeAllParties    bool `json:"can_see_all_parties"`
	CanTriggerPowerHour bool `json:"can_trigger_power_hour"`
}

// Identity is the resolved session user. It is immutable for the session and
// lives only in the session cookie; there is no server-side user record.
type Identity struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Role         Role         `json:"role"`
	Tier         Tier         `json:"tier"`
	PartyID      string       `json:"party_id"`
	AdminRank    string       `json:"admin_rank,omitempty"`
	Capabilities Capabilities `json:"capabilities"`
}

type Party struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	AdminSecret    string     `json:"-"`
	PowerHourUntil *time.Time `json:"power_hour_until,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type Folder struct {
	ID        string    `json:"id"`
	PartyID   string    `json:"party_id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type Post struct {
	ID             string `json:"id"`
	CardID         string `json:"card_id"`
	URL            string `json:"url"`
	SequenceNumber int    `json:"sn"`
}

type Card struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	PartyID     string    `json:"party_id"`
	FolderID    string    `json:"folder_id"`
	DisplayName string    `json:"display_name"`
	Tier        Tier      `json:"tier"`
	Posts       []Post    `json:"posts"`
	CreatedAt   time.Time `json:"created_at"`
}

type LogStatus string

const (
	StatusPending LogStatus = "PENDING"
	StatusDone    LogStatus = "DONE"
)

// EngagementLogEntry is an append-only fact: "viewer interacted with postId
// belonging to cardId". A DONE entry has an empty PostID and marks completion
// of the whole card by the viewer.
type EngagementLogEntry struct {
	ID           string    `json:"id"`
	ViewerID     string    `json:"viewer_id"`
	ViewerName   string    `json:"viewer_name"`
	CardID       string    `json:"card_id"`
	PostID       string    `json:"post_id"`
	Status       LogStatus `json:"status"`
	PointsEarned int       `json:"points_earned"`
	CreatedAt    time.Time `json:"created_at"`
}

type Notification struct {
	ID          string           `json:"id"`
	PartyID     string           `json:"party_id"`
	RecipientID string           `json:"recipient_id"`
	SenderID    string           `json:"sender_id"`
	SenderName  string           `json:"sender_name"`
	Type        NotificationType `json:"type"`
	Message     string           `json:"message"`
	Read        bool             `json:"read"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Member is a roster entry for the standing calculator, derived from card
// owners and ledger viewers since identities themselves are not persisted.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type MemberStanding struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Posted          bool   `json:"posted"`
	EngagementsDone int    `json:"engagements_done"`
	TargetCount     int    `json:"target_count"`
	Score           string `json:"score"`
	Points          int    `json:"points"`
	Tier            Tier   `json:"tier"`
	Defaulter       bool   `json:"defaulter"`
}

// PartyState is the full party-scoped snapshot handed to clients; they
// re-fetch it wholesale whenever the change signal fires.
type PartyState struct {
	Folders       []Folder             `json:"folders"`
	Cards         []Card               `json:"cards"`
	Logs          []EngagementLogEntry `json:"logs"`
	Notifications []Notification       `json:"notifications"`
}
