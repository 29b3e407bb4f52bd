package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/Sabeehq11/CMI/config"
	"github.com/Sabeehq11/CMI/internal/api/handlers"
	"github.com/Sabeehq11/CMI/internal/api/middleware"
	"github.com/Sabeehq11/CMI/internal/api/routes"
	"github.com/Sabeehq11/CMI/internal/cache"
	"github.com/Sabeehq11/CMI/internal/logger"
	"github.com/Sabeehq11/CMI/internal/providers/llm"
	"github.com/Sabeehq11/CMI/internal/providers/stt"
	"github.com/Sabeehq11/CMI/internal/providers/tts"
	"github.com/Sabeehq11/CMI/internal/relay"
	mongorepo "github.com/Sabeehq11/CMI/internal/repositories/mongo"
	pgrepo "github.com/Sabeehq11/CMI/internal/repositories/postgres"
	"github.com/Sabeehq11/CMI/internal/services"
	"github.com/Sabeehq11/CMI/internal/storage"
)

func main() {
	_ = godotenv.Load()
	log := logger.New()

	cfg, err := config.LoadRelay()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// engines
	speech, err := newSTT(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("speech recognition init error")
	}
	defer speech.Close()

	gen, err := newLLM(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("question generator init error")
	}
	defer gen.Close()

	voice := newTTS(cfg, log)

	// backing services; each one is optional
	relayOpts := relay.Options{
		Logger:       log,
		InboundRate:  cfg.InboundRate,
		InboundBurst: cfg.InboundBurst,
		Registry: relay.RegistryConfig{
			SilenceWindow: cfg.SilenceWindow,
		},
		Pipeline: relay.PipelineConfig{
			STT:          speech,
			LLM:          gen,
			TTS:          voice,
			StageTimeout: cfg.StageTimeout,
		},
	}

	var sessionCache cache.Cache
	if os.Getenv("REDIS_ADDR") != "" || os.Getenv("REDIS_URI") != "" || os.Getenv("REDIS_URL") != "" {
		if err := config.InitRedis(); err != nil {
			log.WithError(err).Fatal("Redis init error")
		}
		defer config.RedisClient.Close()
		sessionCache = cache.NewRedisCache(config.RedisClient)
		relayOpts.Registry.Mirror = cache.NewRedisMirror(config.RedisClient)
		log.Info("Redis connected")
	}

	if cfg.Demo {
		log.Warn("POSTGRES_URI not set, running in demo mode: sessions are in-memory and never persisted")
	} else {
		if err := config.InitPostgres(); err != nil {
			log.WithError(err).Fatal("PostgreSQL init error")
		}
		store := services.NewSessionService(pgrepo.NewSessionRepo(config.PostgresDB), sessionCache, cfg.SessionCacheTTL, log)
		relayOpts.Registry.Source = store
		relayOpts.Pipeline.Store = store
		log.Info("PostgreSQL connected")
	}

	var turnLogs services.TurnLogService
	if os.Getenv("MONGO_URI") != "" {
		if err := config.InitMongo(); err != nil {
			log.WithError(err).Fatal("MongoDB init error")
		}
		defer config.MongoClient.Disconnect(context.Background())
		if err := config.EnsureMongoIndexes(); err != nil {
			log.WithError(err).Warn("MongoDB index setup failed")
		}
		turnLogs = services.NewTurnLogService(mongorepo.NewTurnRepo(config.MongoDatabase()), cfg.TurnLogTTL)
		relayOpts.Pipeline.Recorder = turnLogs
		log.Info("MongoDB connected")
	}

	if cfg.GCSAudioBucket != "" {
		up, err := storage.NewGCSUploader(ctx, cfg.GCSAudioBucket)
		if err != nil {
			log.WithError(err).Fatal("GCS init error")
		}
		defer up.Close()
		relayOpts.Pipeline.Archiver = services.NewAudioArchiveService(up)
		log.WithField("bucket", cfg.GCSAudioBucket).Info("utterance archive enabled")
	}

	rl := relay.New(relayOpts)

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))
	routes.RegisterRoutes(r, routes.Deps{
		WS:        handlers.NewWSHandler(rl, log, cfg.MaxMessageBytes),
		Interview: handlers.NewInterviewHandler(speech, gen, voice, cfg.HTTPTimeout, log),
		TurnLog:   handlers.NewTurnLogHandler(turnLogs),
		RelayPath: cfg.RelayPath,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{"port": cfg.Port, "relay_path": cfg.RelayPath, "demo": cfg.Demo}).Info("relay server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*cfg.StageTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}

	// let in-flight turns deliver and persist before the stores close
	done := make(chan struct{})
	go func() {
		rl.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		rl.Shutdown()
	}
}

func newSTT(ctx context.Context, cfg config.RelayConfig) (stt.Provider, error) {
	if cfg.STTProvider == "google" {
		return stt.NewGoogleSpeech(ctx)
	}
	if cfg.OpenAIAPIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is required for STT_PROVIDER=openai")
	}
	return stt.NewOpenAIWhisper(cfg.OpenAIAPIKey), nil
}

func newLLM(ctx context.Context, cfg config.RelayConfig) (llm.Provider, error) {
	if cfg.LLMProvider == "vertex" {
		return llm.NewVertexGemini(ctx, cfg.GCPProjectID, cfg.GCPLocation, cfg.VertexModel)
	}
	if cfg.OpenAIAPIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is required for LLM_PROVIDER=openai")
	}
	return llm.NewOpenAIChat(cfg.OpenAIAPIKey, cfg.OpenAIChatModel), nil
}

// newTTS chains ElevenLabs then OpenAI speech, skipping engines without a key.
func newTTS(cfg config.RelayConfig, log *logrus.Logger) tts.Provider {
	var engines []tts.Provider
	if cfg.ElevenLabsAPIKey != "" {
		engines = append(engines, tts.NewElevenLabs(cfg.ElevenLabsAPIKey))
	}
	if cfg.OpenAIAPIKey != "" {
		engines = append(engines, tts.NewOpenAISpeech(cfg.OpenAIAPIKey))
	}
	if len(engines) == 0 {
		log.Warn("no speech synthesis key configured, every turn will end with an error event")
	}
	return tts.NewFallback(cfg.StageTimeout, engines...)
}
