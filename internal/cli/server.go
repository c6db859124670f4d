package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/config"
	"trivia-room-service/internal/infra/memory"
	natspub "trivia-room-service/internal/infra/nats"
	"trivia-room-service/internal/infra/postgres"
	redisinfra "trivia-room-service/internal/infra/redis"
	transport "trivia-room-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia room server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var opts []app.Option

	var bunDB *bun.DB
	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		bunDB = openBun(cfg.Postgres.URL)
		defer bunDB.Close()
		if err := migrateDB(ctx, bunDB); err != nil {
			return err
		}
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		opts = append(opts, app.WithResultArchiver(postgres.NewResultArchive(bunDB)))
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 6*time.Hour)

	var loader memory.PackLoader = memory.NewStaticPackLoader(memory.SamplePack())
	if pool != nil {
		loader = postgres.NewPackLoader(pool)
	}

	packTTL := config.TTLDuration(cfg.Packs.TTL, 10*time.Minute)
	var packs app.PackRepository
	var rooms app.RoomRepository
	if redisClient != nil {
		packs = redisinfra.NewPackRepository(redisClient, loader, packTTL)
		rooms = redisinfra.NewRoomStore(redisClient, uuid.NewString(), redisTTL)
		opts = append(opts, app.WithSnapshotStore(redisinfra.NewSnapshotStore(redisClient, redisTTL)))
	} else {
		packs = memory.NewPackRepository(loader, packTTL)
		rooms = memory.NewRoomStore()
	}

	if cfg.NATS.URL != "" {
		natsCfg := natspub.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		if cfg.NATS.SubjectPrefix != "" {
			natsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		}
		publisher, err := natspub.Connect(natsCfg)
		if err != nil {
			return err
		}
		defer publisher.Close()
		opts = append(opts, app.WithEventPublisher(publisher))
	} else {
		opts = append(opts, app.WithEventPublisher(memory.NewEventLog(0)))
	}

	engine := app.DefaultOptions()
	engine.Policy = app.ScoringPolicy{
		SpeedBonusFloor:     cfg.Scoring.SpeedBonusFloor,
		AllowNegativeScores: cfg.Scoring.NegativeScores,
	}
	engine.LeaderboardSize = cfg.Rooms.LeaderboardSize
	engine.AutoAdvanceGrace = config.TTLDuration(cfg.Rooms.AutoAdvanceGrace, engine.AutoAdvanceGrace)
	engine.EndedGrace = config.TTLDuration(cfg.Rooms.EndedGrace, engine.EndedGrace)
	engine.IdleTTL = config.TTLDuration(cfg.Rooms.IdleTTL, engine.IdleTTL)
	opts = append(opts, app.WithOptions(engine))

	service := app.NewRoomService(rooms, packs, opts...)

	connCfg := transport.DefaultConnectionConfig()
	connCfg.SendBuffer = cfg.Rooms.SendBuffer
	if len(cfg.Server.AllowedOrigins) > 0 {
		connCfg.CheckOrigin = originChecker(cfg.Server.AllowedOrigins)
	}
	handler := transport.NewHandler(service, connCfg)

	mux := http.NewServeMux()
	handler.Register(mux)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins(cfg.Server.AllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	}).Handler(mux)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           corsHandler,
		ReadHeaderTimeout: 15 * time.Second,
	}

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go service.RunJanitor(janitorCtx, config.TTLDuration(cfg.Rooms.SweepInterval, time.Minute))

	go func() {
		log.Info().Str("port", finalPort).Msg("starting trivia room service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stopJanitor()
	service.Shutdown(shutdownCtx)
	return server.Shutdown(shutdownCtx)
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed["*"] || allowed[origin]
	}
}
