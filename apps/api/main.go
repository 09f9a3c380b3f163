package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/trezcool/examreg/apps"
	echoapi "github.com/trezcool/examreg/apps/api/echo"
	"github.com/trezcool/examreg/core"
	logsvc "github.com/trezcool/examreg/services/logger"
)

func main() {
	if err := run(); err != nil {
		log.Println("error:", err)
		os.Exit(1)
	}
}

func run() error {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)
	defer logger.Close()

	ctx := context.Background()
	app, err := apps.New(ctx, conf, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("closing app", err)
		}
	}()

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build), map[string]interface{}{"app": app.String()})
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("dbEngine").Set(conf.Database.Engine)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	deps := &echoapi.Deps{
		Logger:          logger,
		Translator:      app.Translator,
		ResultSvc:       app.Results,
		RegistrationSvc: app.Registrations,
		Exporter:        app.Exporter,
	}
	if app.Metrics != nil {
		deps.Metrics = app.Metrics
		deps.MetricsHandler = app.Metrics.Handler()
	}
	server := echoapi.NewServer(
		&echoapi.Options{
			Address:        conf.Server.Address,
			Debug:          conf.Debug,
			TestMode:       conf.TestMode,
			DisableReqLogs: conf.Server.DisableReqLogs,
			SecretKey:      conf.SecretKey,
			MaxUploadSize:  conf.Ingest.MaxUploadSize,
			ReadTimeout:    conf.Server.ReadTimeout,
			WriteTimeout:   conf.Server.WriteTimeout,
		},
		shutdown,
		deps,
	)

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("API listening", map[string]interface{}{"address": conf.Server.Address})
		serverErrors <- server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case sig := <-shutdown:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(ctx, conf.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}
	return nil
}
