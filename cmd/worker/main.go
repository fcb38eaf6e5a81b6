// cmd/worker/main.go
package main

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/b2stos/nexuszap-sub000/internal/config"
	"github.com/b2stos/nexuszap-sub000/internal/db"
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

	q, err := queue.NewAMQPQueue(cfg.AMQPURL, log)
	if err != nil {
		log.Fatal("amqp connection failed", zap.Error(err))
	}
	defer q.Close()

	campaignRepo := &repository.CampaignRepository{DB: database}
	recipientRepo := &repository.RecipientRepository{DB: database}
	channelRepo := &repository.ChannelRepository{DB: database}
	contactRepo := &repository.ContactRepository{DB: database}
	templateRepo := &repository.TemplateRepository{DB: database}
	webhookRepo := &repository.WebhookEventRepository{DB: database}

	client := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderToken, cfg.SendTimeout)
	tracker := quota.NewTracker(quota.NewRedisCounter(redisClient))

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

	if err := q.Subscribe(queue.TopicDispatch, func(campaignID int) error {
		result, err := dispatcher.RunBatch(context.Background(), campaignID, "")
		if err != nil {
			return err
		}
		log.Info("batch processed",
			zap.Int("campaign", result.CampaignID),
			zap.Int("sent", result.Sent),
			zap.Int("failed", result.Failed),
			zap.Bool("finished", result.Finished))
		return nil
	}); err != nil {
		log.Fatal("dispatch subscription failed", zap.Error(err))
	}

	if err := q.Subscribe(queue.TopicWebhookEvents, func(eventID int) error {
		return reconciler.ProcessEvent(eventID)
	}); err != nil {
		log.Fatal("webhook subscription failed", zap.Error(err))
	}

	// The scheduled tick is the durable safety net: it re-enqueues every
	// running campaign so progress never depends on a chain of queue
	// messages staying unbroken.
	c := cron.New()
	if _, err := c.AddFunc(cfg.DispatchCron, func() {
		running, err := campaignRepo.ListRunning()
		if err != nil {
			log.Error("tick: listing running campaigns failed", zap.Error(err))
			return
		}
		for _, campaign := range running {
			if err := q.Publish(queue.TopicDispatch, campaign.ID); err != nil {
				log.Warn("tick: enqueue failed", zap.Int("campaign", campaign.ID), zap.Error(err))
			}
		}

		stalled, err := stallDetector.Detect()
		if err != nil {
			log.Error("tick: stall detection failed", zap.Error(err))
			return
		}
		for _, report := range stalled {
			log.Warn("stalled campaign",
				zap.Int("campaign", report.CampaignID),
				zap.Int("queued", report.Queued),
				zap.Int("stalled_for_seconds", report.StalledForSec))
		}
	}); err != nil {
		log.Fatal("invalid dispatch schedule", zap.Error(err))
	}
	c.Start()
	defer c.Stop()

	log.Info("worker running", zap.String("schedule", cfg.DispatchCron))
	select {}
}
