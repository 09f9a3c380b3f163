package main

import (
	"log"
	"os"

	"github.com/trezcool/examreg/core"
	logsvc "github.com/trezcool/examreg/services/logger"
	"github.com/trezcool/examreg/storage/database"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()

	appLogger := logsvc.NewRollbarLogger(logger, conf)
	defer appLogger.Close()

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)

	// start CLI
	cli := commandLine{
		conf:   conf,
		logger: appLogger,
		db:     db,
		out:    os.Stdout,
	}
	err = cli.run(os.Args)
	if cli.app != nil {
		_ = cli.app.Close()
	} else {
		_ = db.Close()
	}
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		appLogger.Close()
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
