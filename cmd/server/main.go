package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"log" // Logging library
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4" // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/event-ticketing/internal/clock"
	"github.com/iliyamo/event-ticketing/internal/config" // Internal config loader
	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/mpesa"
	"github.com/iliyamo/event-ticketing/internal/notify"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/repository/memory"
	"github.com/iliyamo/event-ticketing/internal/router" // Internal router setup
	"github.com/iliyamo/event-ticketing/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("env: %v", err)
	}
	cfg := config.Load() // Load environment config

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Storage ----
	var (
		store  repository.Store
		users  repository.UserStore
		tokens repository.TokenStore
		db     *sql.DB
	)
	switch cfg.StoreDriver {
	case "memory":
		mem := memory.New()
		store, users, tokens = mem, mem, mem
		log.Printf("store: using in-memory store; data is lost on exit")
	default:
		var err error
		db, err = database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer db.Close()
		mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = database.Migrate(mctx, db)
		cancel()
		if err != nil {
			log.Fatalf("db: migrate: %v", err)
		}
		store = repository.NewMySQLStore(db)
		users = repository.NewUserRepo(db)
		tokens = repository.NewTokenRepo(db)
	}

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}

	// ---- Notifications ----
	// With RabbitMQ enabled the dispatcher publishes and an in-process
	// consumer renders to the log; otherwise the dispatcher renders directly.
	var sink notify.Sink = notify.NewLogSender(cfg.Queue.LogPath)
	if cfg.Queue.Enabled {
		sink = queue.NewPublisher(cfg.Queue)
		go func() {
			if err := queue.StartNotificationConsumer(ctx, cfg.Queue, notify.NewLogSender(cfg.Queue.LogPath)); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("notify-consumer: stopped: %v", err)
			}
		}()
	}
	dispatcher := notify.NewDispatcher(sink, cfg.Queue.BufferSize, cfg.Queue.Workers)
	dispatcher.Start(context.Background())
	defer dispatcher.Close()

	// ---- Services ----
	clk := clock.Real()
	gateway := mpesa.NewClient(cfg.Mpesa, &http.Client{Timeout: cfg.Mpesa.Timeout}, clk)
	fulfiller := service.NewFulfiller(store, clk, notify.NewFileQR(cfg.QRDir), dispatcher)
	bookings := service.NewBookings(store, cfg.Booking, clk, fulfiller)
	payments := service.NewPayments(store, gateway, cfg.Booking, clk, fulfiller, dispatcher)
	reclaimer := service.NewReclaimer(store, clk, cfg.Booking.SweepBatch)
	go reclaimer.Run(ctx, cfg.Booking.SweepInterval)

	// ---- HTTP ----
	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	bookingH := handler.NewBookingHandler(bookings, reclaimer)
	paymentH := handler.NewPaymentHandler(payments, cfg.Booking.CallbackToken)
	authH := handler.NewAuthHandler(cfg, users, tokens)

	var pinger handler.Pinger
	if db != nil {
		pinger = db
	}
	router.RegisterRoutes(e, pinger)
	router.RegisterAuth(e, authH, cfg.JWTSecret)
	router.RegisterPublic(e, bookingH, paymentH, middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	router.RegisterAttendee(e, bookingH, paymentH, cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig("bookings"), rdb),
		middleware.NewTokenBucket(config.LoadRateLimitConfig("payments"), rdb),
	)
	router.RegisterPartner(e, paymentH, cfg.JWTSecret)
	router.RegisterAdmin(e, bookingH, cfg.JWTSecret)

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) { // Start HTTP server
			log.Fatal(err) // Log and exit if server fails
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
