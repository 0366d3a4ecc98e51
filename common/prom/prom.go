package prom

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/ticketeer/ticketeer/common/config"
)

var ConfPromListenAddr = config.RegisterOption("ticketeer.prom_listen_addr", "Prometheus listen address, empty disables the metrics server", "")

// Run starts the metrics endpoint if a listen address is configured.
func Run() {
	addr := ConfPromListenAddr.GetString()
	if addr == "" {
		logrus.Info("No prom listen address set, not launching prom server")
		return
	}

	go func() {
		logrus.Infof("Starting prom server on %s", addr)
		err := http.ListenAndServe(addr, promhttp.Handler())
		if err != nil {
			logrus.WithError(err).Error("failed starting prom server")
		}
	}()
}
