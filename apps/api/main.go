package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/examtrack/apps/api/echo"
	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/contact"
	"github.com/trezcool/examtrack/core/goal"
	"github.com/trezcool/examtrack/core/group"
	"github.com/trezcool/examtrack/core/mistake"
	"github.com/trezcool/examtrack/core/premium"
	"github.com/trezcool/examtrack/core/progress"
	"github.com/trezcool/examtrack/core/revision"
	"github.com/trezcool/examtrack/core/spectate"
	"github.com/trezcool/examtrack/core/syllabus"
	"github.com/trezcool/examtrack/core/user"
	"github.com/trezcool/examtrack/services/ai"
	"github.com/trezcool/examtrack/services/email"
	"github.com/trezcool/examtrack/services/logger"
	"github.com/trezcool/examtrack/services/realtime"
	"github.com/trezcool/examtrack/storage/database"
	"github.com/trezcool/examtrack/storage/database/sqlx"
	mongostore "github.com/trezcool/examtrack/storage/mongo"
)

const messageStoreMongo = "mongo"

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(logsvc.NewLogrus(conf), conf)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("failed to close database", err)
		}
	}()
	tx := database.NewTransactor(db)

	// set up realtime broker
	broker, err := realtime.NewBroker(context.Background(), conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up realtime broker: %v", err), err)
	}
	defer func() { _ = broker.Close() }()
	pub := realtime.NewPublisher(broker)

	// set up group message store
	var msgStore group.MessageStore = sqlxrepos.NewMessageRepository(db)
	if conf.Messages.Store == messageStoreMongo {
		store, err := mongostore.Connect(context.Background(), conf.Messages.MongoURI, conf.Messages.MongoDatabase)
		if err != nil {
			logger.Fatal(fmt.Sprintf("connecting to mongo: %v", err), err)
		}
		defer func() { _ = store.Close(context.Background()) }()
		msgStore = store
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	generator, err := ai.NewOpenAI(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up timetable generator: %v", err), err)
	}

	usrRepo := sqlxrepos.NewUserRepository(db)
	usrSvc := user.NewService(tx, usrRepo, mailSvc, pub, logger, conf)
	syllabusSvc := syllabus.NewService(tx, sqlxrepos.NewSyllabusRepository(db), logger)
	progressSvc := progress.NewService(tx, sqlxrepos.NewProgressRepository(db), syllabusSvc, pub, logger)
	goalSvc := goal.NewService(tx, sqlxrepos.NewGoalRepository(db), usrRepo, syllabusSvc, progressSvc, pub, logger, conf)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	syllabus.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	user.LoadCommonPasswords(logger)

	if n, err := syllabusSvc.Seed(context.Background(), false); err != nil {
		logger.Fatal(fmt.Sprintf("seeding syllabus: %v", err), err)
	} else if n > 0 {
		logger.Info(fmt.Sprintf("syllabus seeded with %d subjects", n))
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("broker").Set(conf.Realtime.Broker)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:        conf,
			Logger:      logger,
			Validate:    validate,
			Translator:  translator,
			Broker:      broker,
			UserSvc:     usrSvc,
			SyllabusSvc: syllabusSvc,
			ProgressSvc: progressSvc,
			GoalSvc:     goalSvc,
			MistakeSvc:  mistake.NewService(sqlxrepos.NewMistakeRepository(db), syllabusSvc),
			GroupSvc:    group.NewService(tx, sqlxrepos.NewGroupRepository(db), msgStore, usrRepo, pub, logger),
			PremiumSvc:  premium.NewService(tx, sqlxrepos.NewPremiumRepository(db), usrRepo, pub, logger),
			SpectateSvc: spectate.NewService(tx, sqlxrepos.NewSpectateRepository(db), usrRepo, logger),
			ContactSvc:  contact.NewService(sqlxrepos.NewContactRepository(db), mailSvc, conf),
			RevisionSvc: revision.NewService(generator, syllabusSvc, progressSvc, logger),
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shut down and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config, logger core.Logger) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
