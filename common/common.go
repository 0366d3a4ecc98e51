package common

import (
	"net/http"
	"time"

	"emperror.dev/errors"
	"github.com/bwmarrin/discordgo"
	"github.com/ticketeer/ticketeer/common/config"
)

const VERSION = "1.2.0"

var (
	ConfBotToken = config.RegisterOption("ticketeer.bot_token", "Discord bot credential token", "")
	ConfMongoURL = config.RegisterOption("ticketeer.mongo_url", "MongoDB connection string", "mongodb://localhost:27017")
	ConfMongoDB  = config.RegisterOption("ticketeer.mongo_db", "MongoDB database name", "ticketeer")
)

// BotSession is the active gateway session, set during startup before
// any plugin runs.
var BotSession *discordgo.Session

// NewBotSession creates the discord session all components share.
func NewBotSession(token string) (*discordgo.Session, error) {
	if token == "" {
		return nil, errors.New("no bot token provided, set TICKETEER_BOT_TOKEN")
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, errors.WithStackIf(err)
	}

	session.MaxRestRetries = 3
	session.Client.Timeout = time.Minute
	session.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentGuildMessages | discordgo.IntentMessageContent

	BotSession = session
	return session, nil
}

// HTTPClient is used for fetching ticket attachments during archiving.
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}
