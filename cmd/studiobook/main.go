package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jmcalloway/studiobook/internal/booking"
	"github.com/jmcalloway/studiobook/internal/calendar"
	"github.com/jmcalloway/studiobook/internal/handlers"
	"github.com/jmcalloway/studiobook/internal/notify"
	"github.com/jmcalloway/studiobook/internal/outbox"
	"github.com/jmcalloway/studiobook/internal/ratelimit"
	"github.com/jmcalloway/studiobook/internal/reminder"
	"github.com/jmcalloway/studiobook/internal/storage"
	"github.com/jmcalloway/studiobook/libs/config"
	"github.com/jmcalloway/studiobook/libs/db"
	"github.com/jmcalloway/studiobook/libs/httpx"
	"github.com/jmcalloway/studiobook/libs/kafkax"
	otelx "github.com/jmcalloway/studiobook/libs/otel"
	"github.com/jmcalloway/studiobook/libs/runtime"
)

const (
	bookingLimit  = 3
	bookingWindow = 15 * time.Minute

	reminderLimit  = 10
	reminderWindow = time.Minute
)

func buildLimiters(logger *slog.Logger) (bookL, remindL ratelimit.Limiter, rdb *redis.Client, sweep func()) {
	bookingPolicy := ratelimit.Policy{Limit: bookingLimit, Window: bookingWindow}
	reminderPolicy := ratelimit.Policy{Limit: reminderLimit, Window: reminderWindow}

	addr := config.String("REDIS_ADDR", "")
	if addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
		})
		// Handlers already key by "{action}:{ip}", so one prefix serves both.
		return ratelimit.NewRedis(rdb, bookingPolicy, "rl"),
			ratelimit.NewRedis(rdb, reminderPolicy, "rl"),
			rdb, nil
	}

	logger.Warn("redis not configured; using in-process rate limiting")
	bookMem := ratelimit.NewMemory(bookingPolicy)
	remindMem := ratelimit.NewMemory(reminderPolicy)
	sweep = func() {
		bookMem.Sweep()
		remindMem.Sweep()
	}
	return bookMem, remindMem, nil, sweep
}

func buildEmailChannel(logger *slog.Logger) notify.Channel {
	from := config.String("EMAIL_FROM", "bookings@studio.local")
	switch strings.ToLower(config.String("EMAIL_PROVIDER", "log")) {
	case "api":
		url := config.String("EMAIL_API_URL", "")
		key := config.String("EMAIL_API_KEY", "")
		if url != "" && key != "" {
			return notify.NewAPIEmail(url, key, from)
		}
		logger.Warn("email api credentials missing; using log-only email channel")
	case "smtp":
		host := config.String("SMTP_HOST", "")
		if host != "" {
			return notify.NewSMTPEmail(host, config.String("SMTP_PORT", "1025"), from)
		}
		logger.Warn("smtp host missing; using log-only email channel")
	}
	return notify.NewLogChannel("email", logger)
}

func buildSMSChannel(logger *slog.Logger) notify.Channel {
	sid := config.String("TWILIO_ACCOUNT_SID", "")
	token := config.String("TWILIO_AUTH_TOKEN", "")
	from := config.String("TWILIO_FROM_NUMBER", "")
	if sid != "" && token != "" && from != "" {
		return notify.NewTwilioSMS(sid, token, from)
	}
	logger.Warn("twilio credentials missing; using log-only sms channel")
	return notify.NewLogChannel("sms", logger)
}

func main() {
	service := config.String("SERVICE_NAME", "studiobook")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	tzName := config.String("BUSINESS_TIMEZONE", "America/Chicago")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		logger.Error("invalid business timezone", "tz", tzName, "err", err)
		panic(err)
	}

	bookingLimiter, reminderLimiter, rdb, sweep := buildLimiters(logger)
	if rdb != nil {
		defer rdb.Close()
	}

	outboxRepo := outbox.NewRepository(pool)
	apptRepo := storage.NewAppointmentRepository(pool, outboxRepo)
	leadRepo := storage.NewLeadRepository(pool)
	commRepo := storage.NewCommunicationRepository(pool)
	followRepo := storage.NewFollowUpRepository(pool, outboxRepo)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	dispatcher := notify.NewDispatcher(buildEmailChannel(logger), buildSMSChannel(logger), logger)
	cal := calendar.NewClient(ctx, calendar.Config{
		ClientID:     config.String("GOOGLE_CLIENT_ID", ""),
		ClientSecret: config.String("GOOGLE_CLIENT_SECRET", ""),
		RefreshToken: config.String("GOOGLE_REFRESH_TOKEN", ""),
		CalendarID:   config.String("GOOGLE_CALENDAR_ID", ""),
		TimeZone:     tzName,
	})
	if !cal.Enabled() {
		logger.Warn("calendar sync not configured; bookings will skip calendar events")
	}

	studioName := config.String("STUDIO_NAME", "The Studio")
	siteBaseURL := config.String("SITE_BASE_URL", "")

	svc := booking.NewService(apptRepo, leadRepo, commRepo, cal, dispatcher, logger, loc, booking.Config{
		Capacity:        config.Int("SLOT_CAPACITY", booking.ConsultationCapacity),
		ProviderTimeout: config.Duration("PROVIDER_TIMEOUT", 10*time.Second),
		StudioName:      studioName,
		SiteBaseURL:     siteBaseURL,
	})
	scheduler := reminder.NewScheduler(followRepo)
	worker := reminder.NewWorker(followRepo, leadRepo, commRepo, dispatcher, logger, reminder.WorkerConfig{
		BatchSize:   config.Int("REMINDER_BATCH_SIZE", 50),
		MaxAttempts: config.Int("REMINDER_MAX_ATTEMPTS", 1),
		Backoff:     config.Duration("REMINDER_RETRY_BACKOFF", 15*time.Minute),
		StudioName:  studioName,
		SiteBaseURL: siteBaseURL,
	})

	adminTokenHash := config.String("ADMIN_API_TOKEN_HASH", "")
	if adminTokenHash == "" {
		logger.Warn("ADMIN_API_TOKEN_HASH not set; admin endpoints will reject all requests")
	}

	bookingHandler := handlers.NewBookingHandler(svc, bookingLimiter, logger)
	reminderHandler := handlers.NewReminderHandler(worker, reminderLimiter, logger)
	adminHandler := handlers.NewAdminHandler(scheduler, worker, svc, []byte(adminTokenHash), logger)

	// Background cadence: drain due follow-ups, and sweep limiter buckets
	// when running without redis.
	sched := cron.New()
	interval := config.Duration("REMINDER_INTERVAL", 5*time.Minute)
	if _, err := sched.AddFunc("@every "+interval.String(), func() {
		if _, err := worker.ProcessDue(ctx); err != nil {
			logger.Error("follow-up batch failed", "err", err)
		}
	}); err != nil {
		logger.Error("reminder schedule setup failed", "err", err)
		panic(err)
	}
	if sweep != nil {
		if _, err := sched.AddFunc("@every 10m", sweep); err != nil {
			logger.Error("limiter sweep setup failed", "err", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if rdb != nil {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: ratelimit.ReadyCheck(rdb)})
	}
	if brokers := config.String("KAFKA_BROKERS", ""); brokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/consultation/book", bookingHandler)
	mux.Handle("/booking/send-reminder", reminderHandler)
	mux.HandleFunc("/leads/follow-up", adminHandler.FollowUps)
	mux.HandleFunc("/appointments/cancel", adminHandler.Cancel)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(config.String("CORS_ALLOWED_ORIGINS", ""), ","),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "studiobook")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	svc.Wait()
	logger.Info("http server stopped")
}
