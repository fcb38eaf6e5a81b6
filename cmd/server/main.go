// cmd/server/main.go
package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/b2stos/nexuszap-sub000/internal/config"
	"github.com/b2stos/nexuszap-sub000/internal/controller"
	"github.com/b2stos/nexuszap-sub000/internal/db"
	"github.com/b2stos/nexuszap-sub000/internal/handler"
	"github.com/b2stos/nexuszap-sub000/internal/provider"
	"github.com/b2stos/nexuszap-sub000/internal/queue"
	"github.com/b2stos/nexuszap-sub000/internal/quota"
	"github.com/b2stos/nexuszap-sub000/internal/repository"
	"github.com/b2stos/nexuszap-sub000/internal/service"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	if err := godotenv.Load(); err != nil {
		log.Info("no .env file, using OS environment")
	}
	cfg := config.Load()

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer database.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
	})
	defer redisClient.Close()

	var q queue.Queue
	singleProcess := false
	amqpQueue, err := queue.NewAMQPQueue(cfg.AMQPURL, log)
	if err != nil {
		// single-process mode: dispatch and reconciliation run in this
		// process, wired below once the services exist
		log.Warn("amqp unavailable, using in-process queue", zap.Error(err))
		q = queue.NewInMemoryQueue(log)
		singleProcess = true
	} else {
		defer amqpQueue.Close()
		q = amqpQueue
	}

	// Repositories
	campaignRepo := &repository.CampaignRepository{DB: database}
	recipientRepo := &repository.RecipientRepository{DB: database}
	channelRepo := &repository.ChannelRepository{DB: database}
	contactRepo := &repository.ContactRepository{DB: database}
	templateRepo := &repository.TemplateRepository{DB: database}
	webhookRepo := &repository.WebhookEventRepository{DB: database}

	// Provider + quota
	client := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderToken, cfg.SendTimeout)
	tracker := quota.NewTracker(quota.NewRedisCounter(redisClient))

	// Services
	templateService := &service.TemplateService{TemplateRepo: templateRepo, Validator: client}
	campaignService := &service.CampaignService{
		CampaignRepo:  campaignRepo,
		RecipientRepo: recipientRepo,
		ChannelRepo:   channelRepo,
		Templates:     templateService,
		Queue:         q,
		Log:           log,
	}
	messageService := &service.MessageService{
		ChannelRepo:  channelRepo,
		ContactRepo:  contactRepo,
		TemplateRepo: templateRepo,
		Sender:       client,
	}
	dispatcher := &service.Dispatcher{
		CampaignRepo:   campaignRepo,
		RecipientRepo:  recipientRepo,
		ChannelRepo:    channelRepo,
		ContactRepo:    contactRepo,
		TemplateRepo:   templateRepo,
		Sender:         client,
		Quota:          tracker,
		Queue:          q,
		Log:            log,
		BatchSize:      cfg.BatchSize,
		MaxAutoRetries: cfg.MaxAutoRetries,
		ClaimLease:     cfg.ClaimLease,
	}
	reconciler := &service.Reconciler{
		WebhookRepo:   webhookRepo,
		RecipientRepo: recipientRepo,
		CampaignRepo:  campaignRepo,
		ChannelRepo:   channelRepo,
		ContactRepo:   contactRepo,
		Log:           log,
	}
	stallDetector := &service.StallDetector{
		CampaignRepo:  campaignRepo,
		RecipientRepo: recipientRepo,
		StallAfter:    cfg.StallAfter,
		Log:           log,
	}
	health := &service.HealthReporter{
		CampaignRepo:        campaignRepo,
		RecipientRepo:       recipientRepo,
		WebhookRepo:         webhookRepo,
		WebhookHealthWindow: cfg.WebhookHealthWindow,
	}

	if singleProcess {
		if err := q.Subscribe(queue.TopicDispatch, func(campaignID int) error {
			_, err := dispatcher.RunBatch(context.Background(), campaignID, "")
			return err
		}); err != nil {
			log.Fatal("dispatch subscription failed", zap.Error(err))
		}
		if err := q.Subscribe(queue.TopicWebhookEvents, func(eventID int) error {
			return reconciler.ProcessEvent(eventID)
		}); err != nil {
			log.Fatal("webhook subscription failed", zap.Error(err))
		}
	}

	campaignController := &controller.CampaignController{
		CampaignService: campaignService,
		MessageService:  messageService,
		Dispatcher:      dispatcher,
		StallDetector:   stallDetector,
		Health:          health,
	}
	webhookHandler := &handler.WebhookHandler{
		Reconciler: reconciler,
		Queue:      q,
		Log:        log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Route("/campaigns", func(r chi.Router) {
		r.Post("/", campaignController.CreateCampaign)
		r.Get("/", campaignController.ListCampaigns)
		r.Get("/stalled", campaignController.StalledCampaigns)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", campaignController.GetCampaignDetails)
			r.Get("/recipients", campaignController.ListRecipients)
			r.Get("/health", campaignController.CampaignHealth)
			r.Post("/start", campaignController.StartCampaign)
			r.Post("/pause", campaignController.PauseCampaign)
			r.Post("/resume", campaignController.ResumeCampaign)
			r.Post("/cancel", campaignController.CancelCampaign)
			r.Post("/retry-failed", campaignController.RetryFailed)
			r.Post("/dispatch", campaignController.DispatchBatch)
			r.Post("/preview", campaignController.PersonalizedPreview)
		})
	})
	r.Post("/messages/freeform", campaignController.SendFreeform)
	r.Get("/contacts/{id}/window", campaignController.ContactWindow)
	r.Post("/webhooks/{channelID}", webhookHandler.Receive)

	log.Info("server listening", zap.String("addr", cfg.HTTPAddr))
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
