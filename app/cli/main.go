// Command cli runs the offline workflows: transcribe a finished recording,
// or analyze a saved transcript without going through the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/starcoach/starcoach/config"
	"github.com/starcoach/starcoach/internal/assist"
	"github.com/starcoach/starcoach/internal/logger"
	"github.com/starcoach/starcoach/internal/providers/llm"
	"github.com/starcoach/starcoach/internal/providers/stt"
	"github.com/starcoach/starcoach/internal/transcript"
)

func main() {
	var (
		transcribeFile = flag.String("transcribe", "", "transcribe a WAV recording and save the transcript")
		summaryFile    = flag.String("summary", "", "generate a meeting summary from a transcript file")
		qaFile         = flag.String("extract-qa", "", "extract questions and answers from a transcript file")
		prepFile       = flag.String("interview-prep", "", "generate interview preparation notes from a transcript file")
		showConfig     = flag.Bool("show-config", false, "print the resolved configuration and exit")
	)
	flag.Parse()

	_ = godotenv.Load()
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	if *showConfig {
		fmt.Printf("ai_provider:    %s\n", cfg.AIProvider)
		fmt.Printf("stt_provider:   %s\n", cfg.STTProvider)
		fmt.Printf("language:       %s\n", cfg.Language)
		fmt.Printf("sample_rate:    %d\n", cfg.SampleRate)
		fmt.Printf("channels:       %d\n", cfg.Channels)
		fmt.Printf("chunk_interval: %s\n", cfg.ChunkInterval)
		fmt.Printf("chunk_overlap:  %s\n", cfg.Overlap)
		fmt.Printf("recordings:     %s\n", cfg.RecordingsDir)
		fmt.Printf("transcripts:    %s\n", cfg.TranscriptsDir)
		return
	}

	ctx := context.Background()

	if *transcribeFile != "" {
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

		wav, err := os.ReadFile(*transcribeFile)
		if err != nil {
			log.Fatalf("read recording: %v", err)
		}

		text, _, err := sttc.Transcribe(ctx, wav, cfg.Language)
		if err != nil {
			log.Fatalf("transcription failed: %v", err)
		}

		store, err := transcript.NewStore(cfg.TranscriptsDir)
		if err != nil {
			log.Fatalf("transcript store: %v", err)
		}
		path, err := store.Save(*transcribeFile, text)
		if err != nil {
			log.Fatalf("save transcript: %v", err)
		}
		fmt.Println(text)
		fmt.Fprintf(os.Stderr, "transcript saved to %s\n", path)
		return
	}

	// The remaining modes all analyze an existing transcript.
	var (
		inputPath string
		suffix    string
		analyze   func(*assist.Assistant, string) (string, error)
	)
	switch {
	case *summaryFile != "":
		inputPath, suffix = *summaryFile, "_summary.txt"
		analyze = func(a *assist.Assistant, t string) (string, error) { return a.Summary(ctx, t) }
	case *qaFile != "":
		inputPath, suffix = *qaFile, "_qa.txt"
		analyze = func(a *assist.Assistant, t string) (string, error) { return a.ExtractQA(ctx, t) }
	case *prepFile != "":
		inputPath, suffix = *prepFile, "_interview_prep.txt"
		analyze = func(a *assist.Assistant, t string) (string, error) { return a.InterviewPrep(ctx, t) }
	default:
		flag.Usage()
		os.Exit(2)
	}

	text, err := transcript.Load(inputPath)
	if err != nil {
		log.Fatalf("load transcript: %v", err)
	}

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

	assistant := assist.New(llmc, 2*cfg.CallTimeout, logger.Component(log, "assist"))
	out, err := analyze(assistant, text)
	if err != nil {
		log.Fatalf("analysis failed: %v", err)
	}

	outPath := strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + suffix
	if err := os.WriteFile(outPath, []byte(out+"\n"), 0o644); err != nil {
		log.Fatalf("write output: %v", err)
	}
	fmt.Println(out)
	fmt.Fprintf(os.Stderr, "saved to %s\n", outPath)
}
