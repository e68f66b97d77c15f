package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers
	"os"

	"github.com/go-playground/validator/v10"

	echoapi "github.com/edecs/academy/apps/api/echo"
	"github.com/edecs/academy/core"
	"github.com/edecs/academy/core/course"
	"github.com/edecs/academy/core/identity"
	"github.com/edecs/academy/core/quiz"
	"github.com/edecs/academy/core/report"
	"github.com/edecs/academy/core/task"
	authsvc "github.com/edecs/academy/services/auth"
	blobsvc "github.com/edecs/academy/services/blob"
	logsvc "github.com/edecs/academy/services/logger"
	"github.com/edecs/academy/storage/database"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up the data store
	store, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening %s store: %v", conf.Store.Engine, err), err)
	}
	defer func() {
		if err = store.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// set up the blob store
	blobs, err := blobsvc.New(context.Background(), conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening %s blob store: %v", conf.Blob.Engine, err), err)
	}
	var mediaDir string
	if local, ok := blobs.(*blobsvc.LocalStore); ok {
		mediaDir = local.Dir()
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	identity.InitValidators(validate, translator)
	course.InitValidators(validate, translator)

	// set up services
	ids := identity.NewService(store, validate, logger)
	provider := authsvc.NewLocalProvider(ids)
	stopWatch := ids.Watch(provider)
	defer stopWatch()

	courses := course.NewService(store, ids, blobs, validate)
	engine := quiz.NewEngine(store, ids, courses)
	ledger := task.NewLedger(store, ids, blobs, validate, logger)
	reports := report.NewService(ids, courses, engine, ledger, conf.Report.Timeout)

	// recreate the notifications a crash may have left out
	if n, err := ledger.Reconcile(context.Background()); err != nil {
		logger.Error("reconciling notifications", err)
	} else if n > 0 {
		logger.Info(fmt.Sprintf("reconciled %d notifications", n))
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("store").Set(conf.Store.Engine)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			Identity:   ids,
			Provider:   provider,
			Courses:    courses,
			Quiz:       engine,
			Tasks:      ledger,
			Reports:    reports,
			Validate:   validate,
			Translator: translator,
			MediaDir:   mediaDir,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
