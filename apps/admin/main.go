package main

import (
	"os"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/premium"
	"github.com/trezcool/examtrack/core/syllabus"
	"github.com/trezcool/examtrack/services/logger"
	"github.com/trezcool/examtrack/storage/database"
	"github.com/trezcool/examtrack/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	log := logsvc.NewLogrus(conf)
	logger := logsvc.NewRollbarLogger(log, conf)
	logger.Enable(!conf.Debug)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal("creating database", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}

	tx := database.NewTransactor(db)
	usrRepo := sqlxrepos.NewUserRepository(db)

	// start CLI
	cli := commandLine{
		db:          db,
		usrRepo:     usrRepo,
		syllabusSvc: syllabus.NewService(tx, sqlxrepos.NewSyllabusRepository(db), logger),
		premiumSvc:  premium.NewService(tx, sqlxrepos.NewPremiumRepository(db), usrRepo, nil, logger),
		logger:      logger,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		os.Exit(1)
	}
}
