// Command voicecall is a terminal demo for the voice call pipeline: real
// microphone in, real speaker out, and a canned reply handler standing in
// for a conversational backend.
//
// Usage:
//
//	go run ./cmd/voicecall
//
// Environment variables:
//
//	VOICECALL_CREDENTIALS_URL - credentials endpoint (preferred)
//	VOICECALL_API_KEY         - bearer key for the credentials endpoint
//	VOICECALL_SYNTHESIS_URL   - static synthesis websocket URL (fallback)
//	VOICECALL_STT_URL         - static transcription URL (fallback)
//	VOICECALL_TOKEN           - static service token (fallback)
//	VOICECALL_VOICE_ID        - synthesis voice
//
// Controls:
//
//	<enter>      - toggle the call (dial / hang up)
//	say <text>   - speak arbitrary text on the open stream
//	reset        - clear a sticky connection failure
//	q            - quit
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/callforge/voicecall/pkg/voice/session"
)

type demoConfig struct {
	CredentialsURL string
	APIKey         string
	Static         session.Credentials
	Welcome        string
	Model          string
	Language       string
	Verbose        bool
}

func parseConfig(args []string, getenv func(string) string) (demoConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := demoConfig{
		CredentialsURL: strings.TrimSpace(getenv("VOICECALL_CREDENTIALS_URL")),
		APIKey:         strings.TrimSpace(getenv("VOICECALL_API_KEY")),
		Static: session.Credentials{
			VoiceID:          strings.TrimSpace(getenv("VOICECALL_VOICE_ID")),
			SynthesisURL:     strings.TrimSpace(getenv("VOICECALL_SYNTHESIS_URL")),
			TranscriptionURL: strings.TrimSpace(getenv("VOICECALL_STT_URL")),
			Token:            strings.TrimSpace(getenv("VOICECALL_TOKEN")),
		},
	}

	fs := flag.NewFlagSet("voicecall", flag.ContinueOnError)
	fs.StringVar(&cfg.Welcome, "welcome", "Hi! I'm listening.", "welcome message (empty disables)")
	fs.StringVar(&cfg.Model, "model", "", "transcription model override")
	fs.StringVar(&cfg.Language, "language", "en", "transcription language")
	fs.BoolVar(&cfg.Verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return demoConfig{}, err
	}

	if cfg.CredentialsURL == "" && cfg.Static.SynthesisURL == "" {
		return demoConfig{}, errors.New("set VOICECALL_CREDENTIALS_URL or the VOICECALL_SYNTHESIS_URL/STT_URL/TOKEN trio")
	}
	return cfg, nil
}

func credentialsProvider(cfg demoConfig) session.CredentialsProvider {
	if cfg.CredentialsURL != "" {
		return session.NewHTTPCredentialsProvider(cfg.CredentialsURL, cfg.APIKey)
	}
	return &session.StaticCredentialsProvider{Credentials: cfg.Static}
}

// cannedReply is the stand-in conversational backend. Real deployments
// plug an LLM or dialog engine in here.
func cannedReply(_ context.Context, transcript string) (string, error) {
	t := strings.ToLower(transcript)
	switch {
	case strings.Contains(t, "hello"), strings.Contains(t, "hi "):
		return "Hello! Nice to hear your voice.", nil
	case strings.Contains(t, "bye"), strings.Contains(t, "goodbye"):
		return "Goodbye, talk to you soon.", nil
	case strings.HasSuffix(strings.TrimSpace(transcript), "?"):
		return "Good question. I'm just a demo, so I'll pretend to think about it.", nil
	default:
		return "I heard you say: " + transcript, nil
	}
}

func main() {
	_ = godotenv.Load()

	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "voicecall:", err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	sessCfg := session.Config{
		WelcomeMessage: cfg.Welcome,
		Model:          cfg.Model,
		Language:       cfg.Language,
	}

	hooks := session.Hooks{
		OnTranscript: func(text string) { fmt.Printf("\nyou:  %s\n", text) },
		OnReply:      func(text string) { fmt.Printf("bot:  %s\n", text) },
		OnError: func(err error) {
			fmt.Printf("\n[error] %v\n", err)
		},
		OnState: func(ui session.UIState) {
			fmt.Printf("\r[%s]%s", ui.Status, strings.Repeat(" ", 20))
		},
	}

	ctrl := session.NewController(
		sessCfg,
		credentialsProvider(cfg),
		session.DefaultFactories(sessCfg, logger),
		cannedReply,
		hooks,
		logger,
	)
	defer ctrl.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nhanging up...")
		ctrl.EndCall()
		cancel()
		os.Exit(0)
	}()

	fmt.Println("voicecall demo")
	fmt.Println("  <enter>     toggle call")
	fmt.Println("  say <text>  speak text on the open stream")
	fmt.Println("  reset       clear a connection failure")
	fmt.Println("  q           quit")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "q":
			ctrl.EndCall()
			return

		case input == "reset":
			ctrl.Reset()
			fmt.Println("[reset]")

		case strings.HasPrefix(input, "say "):
			if err := ctrl.SendReplyText(strings.TrimPrefix(input, "say ")); err != nil {
				fmt.Println("[no open call]")
			}

		case input == "":
			if err := ctrl.ToggleCall(ctx); err != nil {
				fmt.Printf("[%v]\n", err)
			}
		}
	}
}
