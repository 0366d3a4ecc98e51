package tickets

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ticketeer/ticketeer/common"
)

type Plugin struct{}

func (p *Plugin) PluginInfo() *common.PluginInfo {
	return &common.PluginInfo{
		Name:     "Tickets",
		SysName:  "tickets",
		Category: common.PluginCategoryCore,
	}
}

var logger = common.GetPluginLogger(&Plugin{})

func RegisterPlugin() {
	common.RegisterPlugin(&Plugin{})
}

// UserError is surfaced directly to the requester as an ephemeral
// message, it never bubbles up as an internal failure.
type UserError string

func (t UserError) Error() string {
	return string(t)
}

const (
	ErrBlacklisted     UserError = "You are blacklisted and cannot create tickets."
	ErrAlreadyOpen     UserError = "You already have an open ticket."
	ErrNotConfigured   UserError = "Ticket system is not configured. Please ask an admin to configure it."
	ErrCategoryMissing UserError = "Ticket category not found. Please ask an admin to reconfigure the system."

	ErrNoOpenTicket    UserError = "No open ticket found in this channel."
	ErrOnlyStaffAdd    UserError = "Only staff can add users to tickets."
	ErrOnlyStaffRemove UserError = "Only staff can remove users from tickets."
	ErrOnlyStaff       UserError = "Only staff can use this command."
	ErrBotTarget       UserError = "Cannot remove bots from the ticket."
	ErrBotBlacklist    UserError = "Cannot blacklist bots."
	ErrNotClaimant     UserError = "Only the staff member who claimed this ticket can release it."
	ErrOwnerTarget     UserError = "The ticket owner already has access to the ticket."

	ErrTicketChanged  UserError = "The ticket changed while processing, please try again."
	ErrAlreadyClosing UserError = "Already working on closing this ticket, please wait..."
)

func ErrAlreadyClaimedBy(staffID string) UserError {
	return UserError(fmt.Sprintf("This ticket is already claimed by <@%s>", staffID))
}

func ErrClaimedByOther(staffID string) UserError {
	return UserError(fmt.Sprintf("This ticket was claimed by <@%s>. Only they can close it.", staffID))
}

func ErrAlreadyParticipant(username string) UserError {
	return UserError(fmt.Sprintf("%s is already added to the ticket.", username))
}

func ErrNotParticipant(username string) UserError {
	return UserError(fmt.Sprintf("%s is not added to the ticket.", username))
}

func ErrAlreadyBlacklisted(username string) UserError {
	return UserError(fmt.Sprintf("%s is already blacklisted.", username))
}

func ErrNotBlacklisted(username string) UserError {
	return UserError(fmt.Sprintf("%s is not blacklisted.", username))
}

var metricsTicketsOpened = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ticketeer_tickets_opened_total",
	Help: "Total tickets opened",
})

var metricsTicketsClaimed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ticketeer_tickets_claimed_total",
	Help: "Total ticket claims",
})

var metricsTicketsClosed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ticketeer_tickets_closed_total",
	Help: "Total tickets closed",
})

var metricsTranscriptsFailed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ticketeer_transcripts_failed_total",
	Help: "Total transcript archives that failed",
})
