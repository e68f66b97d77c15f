package main

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/edecs/academy/core"
	"github.com/edecs/academy/core/course"
	"github.com/edecs/academy/core/identity"
	"github.com/edecs/academy/core/quiz"
	"github.com/edecs/academy/core/report"
	"github.com/edecs/academy/core/task"
	logsvc "github.com/edecs/academy/services/logger"
	"github.com/edecs/academy/storage/database"
	"github.com/edecs/academy/storage/database/pgdb"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()
	appLogger := logsvc.NewRollbarLogger(logger, conf)
	appLogger.Enable(!conf.Debug)

	// set up the data store
	store, err := database.Open(conf)
	errAndDie(err)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	identity.InitValidators(validate, translator)
	course.InitValidators(validate, translator)

	// start CLI; blobs are not needed by any command
	ids := identity.NewService(store, validate, appLogger)
	courses := course.NewService(store, ids, nil, validate)
	ledger := task.NewLedger(store, ids, nil, validate, appLogger)
	cli := commandLine{
		ids:     ids,
		ledger:  ledger,
		reports: report.NewService(ids, courses, quiz.NewEngine(store, ids, courses), ledger, conf.Report.Timeout),
	}
	if pg, ok := store.(*pgdb.Store); ok {
		cli.db = pg.DB().DB
	}

	err = cli.run(os.Args)
	if cerr := store.Close(); cerr != nil {
		logger.Printf("closing store: %v", cerr)
	}
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
