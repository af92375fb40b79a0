package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"

	config "github.com/cassino-games/cassino-services/configs"
	"github.com/cassino-games/cassino-services/internal/gamesvc/archive"
	"github.com/cassino-games/cassino-services/internal/gamesvc/db"
	"github.com/cassino-games/cassino-services/internal/gamesvc/engine"
	"github.com/cassino-games/cassino-services/internal/gamesvc/handlers"
	"github.com/cassino-games/cassino-services/internal/gamesvc/hub"
	"github.com/cassino-games/cassino-services/internal/gamesvc/room"
	"github.com/cassino-games/cassino-services/internal/gamesvc/service"
	"github.com/cassino-games/cassino-services/internal/gamesvc/session"
	"github.com/cassino-games/cassino-services/internal/gamesvc/store"
	nats "github.com/cassino-games/cassino-services/internal/nats"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "game"

const (
	reapInterval     = 1 * time.Minute
	sweepInterval    = 10 * time.Minute
	sweepGrace       = 30 * time.Minute
	sessionRowSweep  = 1 * time.Hour
	archiveRetention = 30 * 24 * time.Hour
)

func init() {
	config.Logging(SERVICE_NAME + "_service")
	config.LoadEnv(SERVICE_NAME)
	config.CreateUniqueInstance(SERVICE_NAME)
}

func main() {
	ctx, stopTasks := context.WithCancel(context.Background())
	defer stopTasks()

	// pg connection; nil pool runs memory-only with a bounded-loss window
	dbpool, err := db.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.ClosePool()

	var persister *service.Persister
	var sessionService *service.SessionService
	if dbpool != nil {
		log.Printf("pg connection established successfully")

		roomStore := store.NewRoomStore(dbpool)
		roomService := service.NewRoomService(roomStore)

		actionStore := store.NewActionLogStore(dbpool)
		actionService := service.NewActionService(actionStore)

		sessionStore := store.NewSessionStore(dbpool)
		sessionService = service.NewSessionService(sessionStore)

		persister = service.NewPersister(roomService, actionService)
		go persister.Run(ctx)
	} else {
		log.Warn("POSTGRES_URL not set, running without durable persistence")
	}

	// Connect to NATS; a nil connection degrades to local-only broadcast
	n, err := nats.Connect()
	if err != nil {
		log.Errorf("Error: unable to connect to NATS server %v", err)
		os.Exit(0)
	}

	var transport hub.Transport
	if n != nil {
		defer n.Conn.Close()
		log.Printf("NATS connection established successfully %s", n.Url)
		transport = hub.NewNatsTransport(n.Conn, config.GetInstanceId())
	} else {
		log.Warn("NATS_URL not set, broadcast runs in local-only mode")
	}

	broadcast := hub.NewHub(transport)
	if n != nil {
		nt := transport.(*hub.NatsTransport)
		sub, err := nt.SubscribeRemote(broadcast)
		if err != nil {
			log.Errorf("Error: unable to subscribe to room events %v", err)
			os.Exit(0)
		}
		defer sub.Unsubscribe()
	}

	// session manager with periodic reaper
	sessions := session.NewManager(session.DefaultTTL, time.Now)
	go sessions.Run(ctx, reapInterval)
	if sessionService != nil {
		go sessionService.Run(ctx, sessionRowSweep)
	}

	var persistIface room.Persister
	if persister != nil {
		persistIface = persister
	}
	registry := room.NewRegistry(engine.DefaultRules(), broadcast, persistIface, sessions)

	// archive of finished rooms, optional
	archiver, cancelArchive, err := archive.Connect(archiveRetention)
	if err != nil {
		log.Errorf("Error: unable to connect to archive store %v", err)
		os.Exit(0)
	}
	var archIface room.Archiver
	if archiver != nil {
		defer cancelArchive()
		archIface = archiver
		log.Printf("archive store connected")
	}
	go registry.RunSweeper(ctx, archIface, sweepInterval, sweepGrace)

	// Setup router
	r := chi.NewRouter()
	c := config.CORS()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(c.Handler)

	// to protect the service api from any over requests
	rateLimitStr := os.Getenv("RATE_LIMIT")
	rateLimit, err := strconv.Atoi(rateLimitStr)
	if err != nil {
		log.Fatalf("Invalid RATE_LIMIT value: %v", err)
	}
	r.Use(httprate.LimitByIP(rateLimit, 1*time.Minute))

	// Init handlers and routes
	h := handlers.NewHandler(registry, sessions, broadcast, sessionService)
	handlers.InitAuth()
	handlers.SetRoutes(r, h)

	// Create server with timeout settings
	server := &http.Server{
		Addr:         ":" + os.Getenv("GAME_SERVICE_PORT"),
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	stopTasks()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
