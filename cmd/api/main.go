package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/chatdesk/backend/internal/config"
	"github.com/zhouzirui/chatdesk/backend/internal/handler"
	"github.com/zhouzirui/chatdesk/backend/internal/handler/live"
	"github.com/zhouzirui/chatdesk/backend/internal/model/backend"
	chatservice "github.com/zhouzirui/chatdesk/backend/internal/service/chat"
	"github.com/zhouzirui/chatdesk/backend/internal/service/completion"
	"github.com/zhouzirui/chatdesk/backend/internal/service/conversation"
	"github.com/zhouzirui/chatdesk/backend/internal/service/speech"
	"github.com/zhouzirui/chatdesk/backend/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logFile, err := telemetry.InitLogging(cfg.Log)
	if err != nil {
		log.Fatalf("failed to initialize logging: %v", err)
	}
	defer logFile.Close()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Trace, cfg.Log)
	if err != nil {
		log.Printf("warning: tracing disabled: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	profiles, err := cfg.Completion.BackendProfiles()
	if err != nil {
		log.Fatalf("failed to load backend profiles: %v", err)
	}
	profileStore := backend.NewMemoryStore(profiles, cfg.Completion.DefaultBackend)
	if _, ok := profileStore.FindByID(cfg.Completion.DefaultBackend); !ok {
		log.Fatalf("default backend %q is not configured", cfg.Completion.DefaultBackend)
	}

	registry, err := completion.NewRegistry(profileStore, &http.Client{Timeout: cfg.Completion.HTTPTimeout})
	if err != nil {
		log.Fatalf("failed to build completion backends: %v", err)
	}
	for _, p := range profileStore.List() {
		if !p.HasCredential() {
			log.Printf("backend %s has no credential, turns will report the API error", p.ID)
		}
	}
	if cfg.Completion.Ark.Enabled() {
		log.Println("Ark chat backend configured")
	} else {
		log.Println("Ark 凭证未配置，ark 后端将返回配置错误")
	}

	speechService := speech.NewService(cfg.Speech.ServiceConfig())
	if cfg.Speech.Enabled {
		log.Printf("Speech service initialized with provider %s", speechService.Provider())
	} else {
		log.Println("语音服务凭证未配置，语音输入将返回识别错误")
	}

	manager := conversation.NewManager(chatservice.NewService(), registry, profileStore, speechService, cfg.Completion.SystemPrompt)
	hub := live.NewHub()
	manager.SetNotifier(hub)
	defer hub.CloseAll()

	router := handler.NewRouter(handler.Dependencies{
		Conversations:  manager,
		Profiles:       profileStore,
		Speech:         speechService,
		SpeechEnabled:  cfg.Speech.Enabled,
		Hub:            hub,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("chatdesk backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
