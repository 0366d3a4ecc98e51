package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ticketeer/ticketeer/bot"
	"github.com/ticketeer/ticketeer/common"
	"github.com/ticketeer/ticketeer/common/config"
	"github.com/ticketeer/ticketeer/common/prom"
	"github.com/ticketeer/ticketeer/models"
	"github.com/ticketeer/ticketeer/tickets"
)

var logger = logrus.WithField("p", "main")

func main() {
	config.AddSource(&config.EnvSource{})
	config.Load()

	common.SetupLogging()
	logger.Infof("starting ticketeer version %s", common.VERSION)

	token := common.ConfBotToken.GetString()
	if token == "" {
		logger.Fatal("no bot token configured, set TICKETEER_BOT_TOKEN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	store, err := models.Connect(ctx, common.ConfMongoURL.GetString(), common.ConfMongoDB.GetString())
	cancel()
	if err != nil {
		logger.WithError(err).Fatal("failed connecting to mongodb")
	}

	session, err := common.NewBotSession(token)
	if err != nil {
		logger.WithError(err).Fatal("failed creating bot session")
	}

	if err := session.Open(); err != nil {
		logger.WithError(err).Fatal("failed opening gateway connection")
	}

	manager := tickets.NewManager(store, session, session.State.User.ID)
	tickets.RegisterPlugin()

	registry := bot.NewCommandRegistry()
	tickets.RegisterCommands(registry, manager)

	b := bot.New(session, registry)
	b.Start()

	go prom.Run()

	logger.Info("ticketeer is running, ctrl-c to exit")

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	<-sc

	logger.Info("shutting down")
	if err := session.Close(); err != nil {
		logger.WithError(err).Error("failed closing gateway connection")
	}
	if err := store.Close(context.Background()); err != nil {
		logger.WithError(err).Error("failed disconnecting from mongodb")
	}
}
