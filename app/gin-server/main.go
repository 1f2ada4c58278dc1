package main

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/starcoach/starcoach/config"
	"github.com/starcoach/starcoach/internal/answer"
	"github.com/starcoach/starcoach/internal/api/handlers"
	"github.com/starcoach/starcoach/internal/api/middleware"
	"github.com/starcoach/starcoach/internal/api/routes"
	"github.com/starcoach/starcoach/internal/audio"
	"github.com/starcoach/starcoach/internal/cache"
	"github.com/starcoach/starcoach/internal/logger"
	"github.com/starcoach/starcoach/internal/providers/llm"
	"github.com/starcoach/starcoach/internal/providers/stt"
	"github.com/starcoach/starcoach/internal/storage"
	"github.com/starcoach/starcoach/internal/transcript"
)

func main() {
	_ = godotenv.Load()
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()

	// STT provider
	var sttc stt.Provider
	switch cfg.STTProvider {
	case "whisper":
		sttc = stt.NewWhisper(stt.WhisperConfig{BaseURL: cfg.WhisperBaseURL, Token: cfg.WhisperToken})
	default:
		sttc, err = stt.NewGoogleSpeech(ctx, cfg.SampleRate)
		if err != nil {
			log.Fatalf("speech init error: %v", err)
		}
	}
	defer sttc.Close()
	log.Infof("STT provider: %s", sttc.Name())

	// LLM provider
	var llmc llm.Provider
	switch cfg.AIProvider {
	case "openai":
		llmc = llm.NewOpenAI(llm.OpenAIConfig{APIKey: cfg.OpenAIKey, Model: cfg.OpenAIModel, BaseURL: cfg.OpenAIBaseURL})
	default:
		llmc, err = llm.NewVertexGemini(ctx, cfg.GCPProject, cfg.GCPLocation, cfg.GeminiModel)
		if err != nil {
			log.Fatalf("vertex init error: %v", err)
		}
	}
	defer llmc.Close()
	log.Infof("AI provider: %s", llmc.Name())

	// Redis answer cache (optional)
	rdb, err := config.NewRedis(ctx, cfg)
	if err != nil {
		log.Fatalf("redis init error: %v", err)
	}
	var answerCache cache.Cache
	if rdb != nil {
		answerCache = cache.NewRedis(rdb)
		defer rdb.Close()
		log.Info("Redis connected, answer cache enabled")
	}

	// Recording storage: GCS when a bucket is configured, local disk otherwise
	var recordings storage.Uploader
	if cfg.GCSBucket != "" {
		gcsUp, err := storage.NewGCSUploader(ctx, cfg.GCSBucket)
		if err != nil {
			log.Fatalf("storage init error: %v", err)
		}
		defer gcsUp.Close()
		recordings = gcsUp
		log.Infof("recordings bucket: %s", cfg.GCSBucket)
	} else {
		recordings, err = storage.NewLocalUploader(cfg.RecordingsDir)
		if err != nil {
			log.Fatalf("storage init error: %v", err)
		}
		log.Infof("recordings dir: %s", cfg.RecordingsDir)
	}

	answers := answer.NewService(llmc, answerCache, cfg.CallTimeout, logger.Component(log, "answer"))

	transcripts, err := transcript.NewStore(cfg.TranscriptsDir)
	if err != nil {
		log.Fatalf("transcript store error: %v", err)
	}

	// Audio capture: a PCM16 stream path, typically a FIFO fed by
	// ffmpeg/arecord. Each session opens its own handle.
	audioInput := os.Getenv("AUDIO_INPUT")
	if audioInput == "" {
		audioInput = "/dev/stdin"
	}
	newSource := func() audio.Source {
		return audio.NewPathSource(audioInput, cfg.SampleRate, cfg.Channels)
	}

	// Start Gin server
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		Config: handlers.NewConfigHandler(cfg),
		Answer: handlers.NewAnswerHandler(answers, logger.Component(log, "api")),
		WS:     handlers.NewWSHandler(cfg, newSource, sttc, answers, recordings, transcripts, logger.Component(log, "ws")),
	})

	log.Infof("listening on :%s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
