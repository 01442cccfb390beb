package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/civicvoice/config"
	"github.com/yoockh/civicvoice/internal/api/handlers"
	"github.com/yoockh/civicvoice/internal/api/middleware"
	"github.com/yoockh/civicvoice/internal/api/routes"
	"github.com/yoockh/civicvoice/internal/audio/device"
	"github.com/yoockh/civicvoice/internal/cache"
	"github.com/yoockh/civicvoice/internal/call"
	"github.com/yoockh/civicvoice/internal/logger"
	"github.com/yoockh/civicvoice/internal/models"
	"github.com/yoockh/civicvoice/internal/providers/live"
	mongorepo "github.com/yoockh/civicvoice/internal/repositories/mongo"
	pgrepo "github.com/yoockh/civicvoice/internal/repositories/postgres"
	"github.com/yoockh/civicvoice/internal/services"
	"github.com/yoockh/civicvoice/internal/sink"
	"github.com/yoockh/civicvoice/internal/storage"
	"github.com/yoockh/civicvoice/internal/workers"
)

func main() {
	_ = godotenv.Load()
	log := logger.New()

	app, err := config.LoadApp()
	if err != nil {
		log.WithError(err).Fatal("config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Init MongoDB
	if err := config.InitMongo(); err != nil {
		log.WithError(err).Fatal("MongoDB init error")
	}
	if err := config.EnsureMongoIndexes(); err != nil {
		log.WithError(err).Warn("MongoDB index setup failed")
	}
	log.Info("MongoDB connected")

	// Init PostgreSQL
	if err := config.InitPostgres(); err != nil {
		log.WithError(err).Fatal("PostgreSQL init error")
	}
	if err := config.MigratePostgres(); err != nil {
		log.WithError(err).Fatal("PostgreSQL migration error")
	}
	log.Info("PostgreSQL connected")

	// Init Redis
	if err := config.InitRedis(); err != nil {
		log.WithError(err).Fatal("Redis init error")
	}
	log.Info("Redis connected")

	db := config.MongoDatabase()
	rdb := config.RedisClient

	callSvc := services.NewCallService(mongorepo.NewCallRepo(db))
	convSvc := services.NewConversationService(pgrepo.NewConversationRepo(config.PostgresDB))
	redisCache := cache.NewRedisCache(rdb)
	complaintSvc := services.NewComplaintService(mongorepo.NewComplaintRepo(db), redisCache, log)

	var archiveSvc services.ArchiveService
	if app.GCSBucket != "" {
		gcs, err := storage.NewGCSUploader(ctx, app.GCSBucket)
		if err != nil {
			log.WithError(err).Fatal("GCS init error")
		}
		defer gcs.Close()
		archiveSvc = services.NewArchiveService(gcs, gcs)
	} else {
		log.Warn("GCS_BUCKET not set, transcripts will not be archived")
	}

	journal := &services.CallJournal{
		Calls:         callSvc,
		Conversations: convSvc,
		Archive:       archiveSvc,
		Logger:        log,
	}

	httpSink := sink.NewHTTP(app.SinkURL, app.SinkTimeout)
	var dispatcher sink.Dispatcher
	var drain func()
	switch app.SinkMode {
	case config.SinkModeStream:
		stream := sink.NewStream(rdb, complaintSvc, log)
		pool := &workers.SinkWorkerPool{
			Redis:      rdb,
			Sink:       httpSink,
			Complaints: complaintSvc,
			Dedupe:     redisCache,
			NumWorkers: app.SinkWorkers,
			Logger:     log,
		}
		if err := pool.Start(ctx); err != nil {
			log.WithError(err).Fatal("sink workers")
		}
		dispatcher, drain = stream, stream.Wait
	default:
		async := &sink.Async{
			Sink:    httpSink,
			Logger:  log,
			Timeout: app.SinkTimeout,
			OnResult: func(callID string, c models.Complaint, err error) {
				recordDelivery(complaintSvc, log, callID, c, err)
			},
		}
		dispatcher, drain = async, async.Wait
	}

	notifier := call.NewRedisNotifier(rdb, log)
	go notifier.Run(ctx)

	gemini, err := live.NewGemini(ctx, app.GeminiAPIKey)
	if err != nil {
		log.WithError(err).Fatal("Gemini init error")
	}
	instruction, err := live.Instruction(app.SystemInstructionFile, time.Now())
	if err != nil {
		log.WithError(err).Fatal("system instruction")
	}

	desk := device.New(log)
	defer desk.Close()

	ctl := call.New(call.Config{
		Setup:       app.Setup(instruction),
		GracePeriod: app.GracePeriod,
	}, call.Deps{
		Devices:    desk,
		Dialer:     gemini,
		Dispatcher: dispatcher,
		Journal:    journal,
		Notifier:   notifier,
		Logger:     log,
	})
	ctlDone := make(chan struct{})
	go func() {
		defer close(ctlDone)
		ctl.Run(ctx)
	}()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log, "/ping"))

	routes.RegisterRoutes(r, routes.Deps{
		JWT:          middleware.JWTConfigFromEnv(),
		Call:         handlers.NewCallHandler(ctl, log),
		Conversation: handlers.NewConversationHandler(convSvc, archiveSvc),
		Complaint:    handlers.NewComplaintHandler(complaintSvc),
		WS:           handlers.NewWSHandler(ctl, handlers.NewRedisEventSource(rdb), log),
	})

	srv := &http.Server{
		Addr:              ":" + app.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("port", app.Port).Info("call desk listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	// Run ends the live call on cancellation
	<-ctlDone
	drain()

	_ = rdb.Close()
	_ = config.CloseMongo(shutdownCtx)
}

// recordDelivery keeps the complaint ledger in step with direct deliveries.
func recordDelivery(svc services.ComplaintService, log *logrus.Logger, callID string, c models.Complaint, deliverErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entry := log.WithFields(logrus.Fields{"call_id": callID, "complaint_id": c.ID})
	if err := svc.Pending(ctx, callID, c); err != nil {
		entry.WithError(err).Warn("complaint ledger insert failed")
		return
	}
	var err error
	if deliverErr != nil {
		err = svc.MarkFailed(ctx, callID, c.ID, deliverErr)
	} else {
		err = svc.MarkDelivered(ctx, callID, c.ID)
	}
	if err != nil {
		entry.WithError(err).Warn("complaint ledger update failed")
	}
}
