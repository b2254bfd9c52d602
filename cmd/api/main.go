package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kurihiro0119/repo-access-provisioner/internal/api"
	"github.com/kurihiro0119/repo-access-provisioner/internal/app"
	"github.com/kurihiro0119/repo-access-provisioner/internal/config"
	"github.com/kurihiro0119/repo-access-provisioner/internal/logging"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logging.Setup(cfg.LogLevel, cfg.LogFile)

	if err := cfg.ValidateServer(); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	application, err := app.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize")
	}
	defer application.Close()

	gin.SetMode(gin.ReleaseMode)
	handler := api.NewHandler(application.Service)
	router := api.SetupRoutes(handler, cfg.APIToken, log)

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	log.WithFields(logrus.Fields{
		"addr":    addr,
		"storage": cfg.StorageType,
	}).Info("Starting API server")

	if err := router.Run(addr); err != nil {
		log.WithError(err).Error("Failed to start server")
		application.Close()
		os.Exit(1)
	}
}
