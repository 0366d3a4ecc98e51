package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Ticket is one user's support interaction, bound 1:1 to the channel
// hosting it. Closed tickets are kept as an audit trail, only the
// hosting channel is deleted.
type Ticket struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	TicketID    string             `bson:"ticket_id"` // id of the hosting channel
	ChannelName string             `bson:"channel_name"`
	GuildID     string             `bson:"guild_id"`
	OwnerID     string             `bson:"owner_id"`

	ClaimedBy string     `bson:"claimed_by"` // empty when unclaimed
	ClaimedAt *time.Time `bson:"claimed_at"`

	AddedUsers []string `bson:"added_users"`

	// closed_at is stored as an explicit null while the ticket is open,
	// the open-ticket index depends on that.
	ClosedAt *time.Time `bson:"closed_at"`
	ClosedBy string     `bson:"closed_by"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (t *Ticket) IsClosed() bool {
	return t.ClosedAt != nil
}

func (t *Ticket) IsClaimed() bool {
	return t.ClaimedBy != ""
}

func (t *Ticket) HasParticipant(userID string) bool {
	for _, v := range t.AddedUsers {
		if v == userID {
			return true
		}
	}

	return false
}

// BlacklistEntry bars a user from creating new tickets. It does not
// affect tickets they already participate in.
type BlacklistEntry struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	UserID        string             `bson:"user_id"`
	Reason        string             `bson:"reason"`
	BlacklistedBy string             `bson:"blacklisted_by"`
	BlacklistedAt time.Time          `bson:"blacklisted_at"`
}

// GuildConfig holds the per guild ticket system setup, upserted by the
// setup command. A single version is active per guild.
type GuildConfig struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty"`
	GuildID             string             `bson:"guild_id"`
	TicketChannelID     string             `bson:"ticket_channel_id"` // where the panel lives
	TicketCategoryID    string             `bson:"ticket_category_id"`
	TranscriptChannelID string             `bson:"transcript_channel_id"`
	StaffRoles          []string           `bson:"staff_roles"`
	CreatedAt           time.Time          `bson:"created_at"`
}
