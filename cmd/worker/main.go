package main

import (
	"context"
	"log"
	"net/smtp"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zllovesuki/subtrack/auth"
	"github.com/zllovesuki/subtrack/broker"
	"github.com/zllovesuki/subtrack/db"
	"github.com/zllovesuki/subtrack/notification"
	"github.com/zllovesuki/subtrack/spec"
	"github.com/zllovesuki/subtrack/subscription"
	"github.com/zllovesuki/subtrack/user"
	"github.com/zllovesuki/subtrack/workflow"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
)

// Build-time injected variables
var (
	Version = ""
)

func main() {
	var logger *zap.Logger
	var authEnvironment auth.Environment
	var dotFile string
	var err error

	// Determine running environment and initialize structural logger
	env := os.Getenv("ENV")
	if "production" == env {
		dotFile = ".env.production"
		authEnvironment = auth.EnvProduction
		logger, err = zap.NewProduction()
	} else {
		dotFile = ".env.development"
		authEnvironment = auth.EnvDevelopment
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		log.Fatalf("Cannot initialize logger: %v\n", err)
	}
	logger = logger.With(zap.String("Version", Version))

	// Initialize sentry for error reporting
	if err := sentry.Init(sentry.ClientOptions{
		Environment: string(authEnvironment),
		Debug:       authEnvironment == auth.EnvDevelopment,
	}); err != nil {
		log.Fatalf("Cannot initialize sentry: %v\n", err)
	}
	defer sentry.Flush(time.Second * 2)

	// Attach sentry to zap so we can do automatic error capturing
	cfg := zapsentry.Configuration{
		Level: zapcore.ErrorLevel,
		Tags: map[string]string{
			"component": "worker",
		},
	}
	core, err := zapsentry.NewCore(cfg, zapsentry.NewSentryClientFromClient(sentry.CurrentHub().Client()))
	if err != nil {
		log.Fatalf("Cannot initialize zapsentry: %v\n", err)
	}
	logger = zapsentry.AttachCoreToLogger(core, logger)

	defer logger.Sync()

	// Load configurations from dotFile
	if err := godotenv.Load(dotFile); err != nil {
		logger.Fatal("Cannot load configurations from .env",
			zap.Error(err),
		)
	}

	// Initialize backend connections
	dbHandle, err := db.New(logger, postgres.Open(os.Getenv("POSTGRES_URI")))
	if err != nil {
		logger.Fatal("Cannot connect to Postgres",
			zap.Error(err),
		)
	}

	amqpBroker, err := broker.NewAMQPBroker(os.Getenv("AMQP_URI"))
	if err != nil {
		logger.Fatal("Cannot connect to Broker",
			zap.Error(err),
		)
	}
	defer amqpBroker.Close()

	subscriptionManager, err := subscription.NewManager(subscription.ManagerOptions{
		DB:     dbHandle,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize SubscriptionManager",
			zap.Error(err),
		)
	}

	userManager, err := user.NewManager(logger, dbHandle)
	if err != nil {
		logger.Fatal("Cannot initialize UserManager",
			zap.Error(err),
		)
	}

	// reminders are delivered over SMTP in production and to the log otherwise
	var sender notification.Sender
	if authEnvironment == auth.EnvProduction {
		smtpAuth := smtp.PlainAuth("", os.Getenv("SMTP_USERNAME"), os.Getenv("SMTP_PASSWORD"), os.Getenv("SMTP_HOST"))
		sender, err = notification.NewSMTPSender(notification.SMTPSenderOptions{
			Hostname: os.Getenv("SMTP_HOST") + ":" + os.Getenv("SMTP_PORT"),
			From:     os.Getenv("SMTP_FROM"),
			Auth:     smtpAuth,
			SiteName: os.Getenv("SITE_NAME"),
		})
		if err != nil {
			logger.Fatal("Cannot initialize SMTPSender",
				zap.Error(err),
			)
		}
	} else {
		sender = &notification.LogSender{Logger: logger}
	}

	engine, err := workflow.NewEngine(workflow.EngineOptions{
		DB:     dbHandle,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize workflow Engine",
			zap.Error(err),
		)
	}

	reminder, err := subscription.NewReminder(subscription.ReminderOptions{
		SubscriptionManager: subscriptionManager,
		UserManager:         userManager,
		Sender:              sender,
		Logger:              logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Reminder handler",
			zap.Error(err),
		)
	}
	engine.Register(spec.ReminderTask, reminder.Handle)

	reminderTask, err := subscription.NewTask(subscription.TaskOptions{
		Engine:   engine,
		Consumer: amqpBroker,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("Cannot get reminder task",
			zap.Error(err),
		)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())

	if err := reminderTask.HandleReminderStart(ctx); err != nil {
		logger.Fatal("Cannot handle reminder start requests",
			zap.Error(err),
		)
	}

	// resume suspended executions whose wake-up time has arrived
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("* * * * *", func() {
		if err := engine.RunDue(ctx); err != nil {
			logger.Error("Unable to run due executions",
				zap.Error(err),
			)
		}
	}); err != nil {
		logger.Fatal("Cannot schedule execution poller",
			zap.Error(err),
		)
	}
	scheduler.Start()
	defer scheduler.Stop()

	logger.Info("Reminder worker started")

	<-c
	cancel()
}
