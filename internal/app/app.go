// Package app wires configuration, storage and services into the objects
// the binaries run.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/jadidihosein68/osaconnect/internal/channel"
	"github.com/jadidihosein68/osaconnect/internal/config"
	"github.com/jadidihosein68/osaconnect/internal/pkg/awsconfig"
	"github.com/jadidihosein68/osaconnect/internal/pkg/distlock"
	"github.com/jadidihosein68/osaconnect/internal/pkg/httpretry"
	"github.com/jadidihosein68/osaconnect/internal/pkg/logger"
	"github.com/jadidihosein68/osaconnect/internal/queue"
	"github.com/jadidihosein68/osaconnect/internal/render"
	"github.com/jadidihosein68/osaconnect/internal/repository/postgres"
	"github.com/jadidihosein68/osaconnect/internal/service/alerts"
	"github.com/jadidihosein68/osaconnect/internal/service/campaign"
	"github.com/jadidihosein68/osaconnect/internal/service/credentials"
	"github.com/jadidihosein68/osaconnect/internal/service/dispatch"
	"github.com/jadidihosein68/osaconnect/internal/service/emailjob"
	"github.com/jadidihosein68/osaconnect/internal/service/inbound"
	"github.com/jadidihosein68/osaconnect/internal/service/notify"
	"github.com/jadidihosein68/osaconnect/internal/service/reconcile"
	"github.com/jadidihosein68/osaconnect/internal/service/suppression"
	"github.com/jadidihosein68/osaconnect/internal/service/unsubscribe"
	"github.com/jadidihosein68/osaconnect/internal/storage"
)

// lockTTL bounds how long a crashed worker keeps an email job locked.
const lockTTL = 30 * time.Minute

// App holds the shared infrastructure and every service.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Redis  *redis.Client
	Broker queue.Broker
	Files  storage.Store
	Locks  *distlock.Locker

	Suppression *suppression.Service
	Alerts      *alerts.Service
	Notify      *notify.Service
	Credentials *credentials.Resolver
	Messages    *dispatch.Service
	Dispatcher  *dispatch.Worker
	EmailJobs   *emailjob.Service
	Campaigns   *campaign.Service
	Reconciler  *reconcile.Service
	Unsubscribe *unsubscribe.Service
	Inbound     *inbound.Service
}

// New opens the database, Redis and the task broker and builds the
// services on top of them.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.Redact())

	a := &App{Config: cfg}
	if err := a.openDB(ctx); err != nil {
		return nil, err
	}
	if cfg.Redis.Addr != "" {
		a.Redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		log.Printf("[App] connected to redis at %s", cfg.Redis.Addr)
	}

	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg != nil {
			return *awsCfg, nil
		}
		c, err := awsconfig.Load(ctx, cfg.AWS)
		if err != nil {
			return aws.Config{}, err
		}
		awsCfg = &c
		return c, nil
	}

	broker, err := a.openBroker(loadAWS)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Broker = broker

	files, err := storage.New(ctx, cfg.Media, cfg.AWS, cfg.Server.PublicBaseURL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("media storage: %w", err)
	}
	a.Files = files

	a.Locks = distlock.NewLocker(a.Redis, a.DB, lockTTL)

	var sesClient *sesv2.Client
	if cfg.AWS.Region != "" {
		c, err := loadAWS()
		if err != nil {
			a.Close()
			return nil, err
		}
		sesClient = sesv2.NewFromConfig(c)
	}

	if err := a.buildServices(sesClient); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openDB(ctx context.Context) error {
	cfg := a.Config.Database
	if cfg.URL == "" {
		return fmt.Errorf("database url is not configured")
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}
	a.DB = db
	log.Println("[App] connected to database")
	return nil
}

func (a *App) openBroker(loadAWS func() (aws.Config, error)) (queue.Broker, error) {
	q := a.Config.Queue
	switch q.Backend {
	case "redis":
		if a.Redis == nil {
			return nil, fmt.Errorf("queue backend redis requires redis.addr")
		}
		return queue.NewRedisBroker(a.Redis, q.Name), nil
	case "sqs":
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		return queue.NewSQSBroker(sqs.NewFromConfig(c), q.SQSQueueURL), nil
	case "amqp":
		return queue.DialAMQP(q.AMQPURL, q.Name, q.Concurrency)
	}
	return nil, fmt.Errorf("unknown queue backend %q", q.Backend)
}

func (a *App) buildServices(ses *sesv2.Client) error {
	cfg := a.Config

	suppressionRepo := postgres.NewSuppressionRepo(a.DB)
	contacts := postgres.NewContactRepo(a.DB)
	messages := postgres.NewMessageRepo(a.DB)
	jobs := postgres.NewEmailJobRepo(a.DB)

	var mailer alerts.Mailer
	if cfg.Alerts.EmailTo != "" && ses != nil {
		mailer = alerts.NewSESMailer(ses, cfg.Alerts.EmailFrom, cfg.Alerts.EmailTo)
	}
	a.Suppression = suppression.NewService(suppressionRepo)
	a.Alerts = alerts.NewService(postgres.NewAlertRepo(a.DB), mailer)
	a.Notify = notify.NewService(postgres.NewNotificationRepo(a.DB))

	cipher, err := credentials.NewCipher(cfg.Credentials.FernetKeys...)
	if err != nil {
		return fmt.Errorf("credential cipher: %w", err)
	}
	a.Credentials = credentials.NewResolver(postgres.NewIntegrationRepo(a.DB), cipher, credentials.Config{
		GoogleClientID:     cfg.Credentials.GoogleClientID,
		GoogleClientSecret: cfg.Credentials.GoogleClientSecret,
		RefreshTimeout:     cfg.Credentials.RefreshTimeout(),
	})

	httpClient := httpretry.NewRetryClient(&http.Client{Timeout: cfg.Dispatch.SendTimeout()}, 2)
	emailOpts := channel.EmailOptions{
		BaseURL:   cfg.Email.SendGridBaseURL,
		Client:    httpClient,
		FromEmail: cfg.Email.FromEmail,
		FromName:  cfg.Email.FromName,
	}
	if ses != nil {
		emailOpts.SES = ses
	}
	email := channel.NewEmailSender(emailOpts)
	senders := channel.NewRegistry(
		channel.NewWhatsAppSender(),
		email,
		channel.NewTelegramSender(cfg.Providers.TelegramAPIURL, cfg.Providers.TelegramRatePerSec),
		channel.NewInstagramSender(cfg.Providers.InstagramGraphURL, httpClient, cfg.Providers.InstagramRatePerSec),
	)

	a.Messages = dispatch.NewService(messages, contacts, a.Broker)
	a.Dispatcher = dispatch.NewWorker(dispatch.Deps{
		Messages:    messages,
		Contacts:    contacts,
		Suppression: a.Suppression,
		Credentials: a.Credentials,
		Alerts:      a.Alerts,
		Senders:     senders,
		Media:       a.Files,
	}, dispatch.Config{
		PerMinuteLimit: cfg.Dispatch.PerMinuteLimit,
		MaxRetries:     cfg.Dispatch.MaxRetries,
		RetryDelay:     cfg.Dispatch.RetryDelay(),
		SendTimeout:    cfg.Dispatch.SendTimeout(),
	})

	codec := unsubscribe.NewCodec(cfg.Unsubscribe.Secret, cfg.Unsubscribe.MaxAge())
	a.EmailJobs = emailjob.NewService(emailjob.Deps{
		Jobs:        jobs,
		Finalizer:   jobs,
		Contacts:    contacts,
		Suppression: a.Suppression,
		Credentials: a.Credentials,
		Sender:      email,
		Codec:       codec,
		Links:       render.LinkBuilder{BaseURL: cfg.Server.PublicBaseURL, Mailto: cfg.Email.UnsubscribeMailto},
		Locks:       a.Locks,
		Queue:       a.Broker,
		Alerts:      a.Alerts,
		Notifier:    a.Notify,
		Files:       a.Files,
	}, emailjob.Config{
		BatchSize:   cfg.Email.BatchSize,
		BatchDelay:  cfg.Email.BatchDelay(),
		MaxRetries:  cfg.Email.MaxRetries,
		RetryDelay:  cfg.Email.RetryDelay(),
		SendTimeout: cfg.Dispatch.SendTimeout(),
		FooterText:  cfg.Email.FooterText,
		LockTTL:     lockTTL,
	})

	a.Campaigns = campaign.NewService(postgres.NewCampaignRepo(a.DB), contacts, a.Messages, a.EmailJobs)
	a.Campaigns.SetNotifier(a.Notify)
	a.Reconciler = reconcile.NewService(postgres.NewReconcileStore(a.DB), a.Alerts, a.Notify)
	a.Unsubscribe = unsubscribe.NewService(codec, postgres.NewUnsubscribeRepo(a.DB), a.Suppression)
	a.Inbound = inbound.NewService(contacts, a.Suppression)
	return nil
}

// Close releases the broker, Redis and the database.
func (a *App) Close() {
	if a.Broker != nil {
		if err := a.Broker.Close(); err != nil {
			log.Printf("[App] broker close: %v", err)
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
