package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTicketIsClosed(t *testing.T) {
	ticket := &Ticket{}
	assert.False(t, ticket.IsClosed())

	now := time.Now().UTC()
	ticket.ClosedAt = &now
	assert.True(t, ticket.IsClosed())
}

func TestTicketIsClaimed(t *testing.T) {
	ticket := &Ticket{}
	assert.False(t, ticket.IsClaimed())

	ticket.ClaimedBy = "staff-1"
	assert.True(t, ticket.IsClaimed())
}

func TestTicketHasParticipant(t *testing.T) {
	ticket := &Ticket{
		OwnerID:    "owner-1",
		AddedUsers: []string{"friend-1", "friend-2"},
	}

	assert.True(t, ticket.HasParticipant("friend-1"))
	assert.True(t, ticket.HasParticipant("friend-2"))
	assert.False(t, ticket.HasParticipant("friend-3"))

	// the owner has access through channel overwrites, not the
	// participant list
	assert.False(t, ticket.HasParticipant("owner-1"))
}
