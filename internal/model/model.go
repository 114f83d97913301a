// Package model defines the tagged product types shared across the
// ingest, registry and notification pipelines. A single normaliser at each
// ingress boundary (internal/sse, internal/killmail) accepts the union of
// observed key spellings and emits these typed values; everything
// downstream consumes typed values only.
package model

import "time"

// EventCategory partitions SSE event types per spec.md §3.
type EventCategory string

const (
	CategorySystem     EventCategory = "system"
	CategoryCharacter  EventCategory = "character"
	CategoryRally      EventCategory = "rally"
	CategoryReserved   EventCategory = "reserved" // connection/signature/acl
	CategorySpecial    EventCategory = "special"
	CategoryUnknown    EventCategory = "unknown"
)

// Event is the typed form of the inbound SSE envelope.
type Event struct {
	ID        string         `json:"id" validate:"required"`
	Type      string         `json:"type" validate:"required"`
	MapID     string         `json:"map_id" validate:"required"`
	Timestamp time.Time      `json:"timestamp" validate:"required"`
	Payload   map[string]any `json:"payload" validate:"required"`
}

// knownTypes maps every event type named in spec.md §3 to its category.
var knownTypes = map[string]EventCategory{
	"add_system":               CategorySystem,
	"deleted_system":           CategorySystem,
	"system_metadata_changed":  CategorySystem,
	"character_added":          CategoryCharacter,
	"character_removed":        CategoryCharacter,
	"character_updated":        CategoryCharacter,
	"rally_point_added":        CategoryRally,
	"rally_point_removed":      CategoryRally,
	"connection":               CategoryReserved,
	"signature":                CategoryReserved,
	"acl":                      CategoryReserved,
	"connected":                CategorySpecial,
	"map_kill":                 CategorySpecial,
}

// Categorise is a pure function of an event's type string.
func Categorise(eventType string) EventCategory {
	if cat, ok := knownTypes[eventType]; ok {
		return cat
	}
	return CategoryUnknown
}

// TrackedSystem identifies a wormhole/solar system the operator tracks.
type TrackedSystem struct {
	SolarSystemID uint32            `json:"solar_system_id"`
	Name          string            `json:"name"`
	CustomName    string            `json:"custom_name,omitempty"`
	ClassTitle    string            `json:"class_title,omitempty"`
	Statics       []string          `json:"statics,omitempty"`
	RegionName    string            `json:"region_name,omitempty"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
}

// TrackedCharacter identifies an EVE character the operator tracks.
type TrackedCharacter struct {
	EveID         uint64 `json:"eve_id"`
	Name          string `json:"name"`
	CorporationID uint64 `json:"corporation_id,omitempty"`
	AllianceID    uint64 `json:"alliance_id,omitempty"`
	ShipTypeID    uint64 `json:"ship_type_id,omitempty"`
	Online        bool   `json:"online,omitempty"`
}

// ZkbSummary is the zkillboard-shaped portion of an inbound killmail envelope.
type ZkbSummary struct {
	Hash       string  `json:"hash"`
	TotalValue float64 `json:"totalValue"`
	Points     uint32  `json:"points"`
}

// KillmailFeedEnvelope is the raw inbound killmail feed shape (spec.md §6).
type KillmailFeedEnvelope struct {
	KillmailID uint64     `json:"killmail_id"`
	Zkb        ZkbSummary `json:"zkb"`
}

// Victim is the ESI-resolved victim of a killmail.
type Victim struct {
	CharacterID   uint64 `json:"character_id,omitempty"`
	CorporationID uint64 `json:"corporation_id,omitempty"`
	AllianceID    uint64 `json:"alliance_id,omitempty"`
	ShipTypeID    uint64 `json:"ship_type_id"`
}

// Attacker is one ESI-resolved attacker on a killmail.
type Attacker struct {
	CharacterID   uint64 `json:"character_id,omitempty"`
	CorporationID uint64 `json:"corporation_id,omitempty"`
	AllianceID    uint64 `json:"alliance_id,omitempty"`
	ShipTypeID    uint64 `json:"ship_type_id,omitempty"`
	FinalBlow     bool   `json:"final_blow"`
}

// Killmail is the fully typed, ESI-enriched killmail. Identity is
// (KillmailID, Hash); it is transient — only its dedup fingerprint persists.
type Killmail struct {
	KillmailID    uint64
	Hash          string
	Zkb           ZkbSummary
	SolarSystemID uint32
	KillmailTime  time.Time
	Victim        Victim
	Attackers     []Attacker
	ReceivedAt    time.Time
}

// NotificationKind selects the per-channel routing in C9.
type NotificationKind string

const (
	KindSystem    NotificationKind = "system"
	KindCharacter NotificationKind = "character"
	KindKill      NotificationKind = "kill"
	KindRally     NotificationKind = "rally"
	KindStatus    NotificationKind = "status"
)

// EmbedField is one {name, value, inline} row of a chat-webhook embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Embed is one Discord-style embed block.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

// Notification is a formatted, dispatch-ready chat message.
type Notification struct {
	Kind    NotificationKind `json:"-"`
	Content string           `json:"content"`
	Embeds  []Embed          `json:"embeds,omitempty"`
}
