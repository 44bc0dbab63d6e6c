package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"DeFAI-Agent/internal/api"
	"DeFAI-Agent/internal/attestation"
	"DeFAI-Agent/internal/auth"
	"DeFAI-Agent/internal/chat"
	"DeFAI-Agent/internal/config"
	"DeFAI-Agent/internal/events"
	"DeFAI-Agent/internal/history"
	"DeFAI-Agent/internal/llm"
	"DeFAI-Agent/internal/llm/gemini"
	"DeFAI-Agent/internal/prompts"
	"DeFAI-Agent/internal/session"
	"DeFAI-Agent/internal/web3"
	"DeFAI-Agent/internal/web3/flare"
	"DeFAI-Agent/pkg/logger"
)

// main 是 defaid 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("defaid 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv(config.EnvConfigPath)
	if configPath == "" {
		configPath = filepath.Join("configs", "defai.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// 初始化提示词目录与文本生成客户端。覆盖文件可选，
	// 在构造任何消费方之前加载。
	promptService := prompts.NewService()
	if cfg.LLM.PromptOverrides != "" {
		if err := promptService.LoadOverrides(cfg.LLM.PromptOverrides); err != nil {
			return err
		}
	}
	logger.Named("main").Info("提示词目录已就绪",
		slog.String("categories", strings.Join(promptService.ListCategories(), ",")))

	aiClient, err := createAIClient(cfg, promptService)
	if err != nil {
		return err
	}

	// 初始化链客户端。链定义文件可选，用于补充说明信息。
	chainNotes := ""
	if cfg.Web3.ChainsFile != "" {
		defs, err := web3.LoadChainDefinitions(cfg.Web3.ChainsFile)
		if err != nil {
			return err
		}
		if def, ok := defs.Chains[cfg.Web3.ChainName]; ok {
			chainNotes = def.Description
			if cfg.Web3.RPCURL == "" {
				cfg.Web3.RPCURL = def.RPCURL
			}
			if cfg.Web3.ExplorerURL == "" {
				cfg.Web3.ExplorerURL = def.ExplorerURL
			}
		}
	}
	chainClient, err := flare.NewClient(ctx, flare.Config{
		Name:       cfg.Web3.ChainName,
		RPCURL:     cfg.Web3.RPCURL,
		AccountKey: cfg.Web3.AccountKey,
		Notes:      chainNotes,
	})
	if err != nil {
		return err
	}
	defer chainClient.Close()

	// 初始化会话存储。
	var sessionStore session.Store
	switch cfg.Session.Driver {
	case "", "memory":
		sessionStore = session.NewMemoryStore()
	case "redis":
		store, err := session.NewRedisStore(session.RedisConfig{
			Address:  cfg.Session.Address,
			Password: cfg.Session.Password,
			DB:       cfg.Session.DB,
			TTL:      time.Duration(cfg.Session.TTLSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
		sessionStore = store
	default:
		return fmt.Errorf("未知的会话存储驱动: %s", cfg.Session.Driver)
	}
	defer func() { _ = sessionStore.Close() }()

	// 初始化对话历史存储。
	var historyRepo history.Repository
	switch cfg.History.Driver {
	case "", "memory":
		historyRepo = history.NewMemoryRepository()
	case "mysql":
		repo, err := history.NewMySQLRepository(cfg.History.DSN)
		if err != nil {
			return err
		}
		historyRepo = repo
	default:
		return fmt.Errorf("未知的历史存储驱动: %s", cfg.History.Driver)
	}
	defer func() { _ = historyRepo.Close() }()

	// 初始化交易事件发布器。
	var publisher events.Publisher
	switch cfg.Events.Driver {
	case "", "noop":
		publisher = events.NoopPublisher{}
	case "rabbitmq":
		amqpPublisher, err := events.NewAMQPPublisher(events.AMQPConfig{
			URL:     cfg.Events.URL,
			Queue:   cfg.Events.Queue,
			Durable: true,
		})
		if err != nil {
			return err
		}
		publisher = amqpPublisher
	default:
		return fmt.Errorf("未知的事件发布驱动: %s", cfg.Events.Driver)
	}
	defer func() { _ = publisher.Close() }()

	authService, err := auth.NewService(auth.Config{
		Mode: auth.Mode(cfg.Auth.Mode),
		Keys: cfg.Auth.Keys,
	})
	if err != nil {
		return err
	}

	dispatcher := chat.NewDispatcher(chat.Config{
		AI:    aiClient,
		Chain: chainClient,
		Attestation: attestation.NewVtpm(attestation.Config{
			Simulate:   cfg.Attestation.Simulate,
			SocketPath: cfg.Attestation.SocketPath,
		}),
		Prompts:     promptService,
		Publisher:   publisher,
		ExplorerURL: cfg.Web3.ExplorerURL,
		GasLimit:    cfg.Web3.GasLimit,
	})

	server := api.NewServer(api.Config{
		Addr:       cfg.Server.Address,
		Auth:       authService,
		Dispatcher: dispatcher,
		Sessions:   session.NewManager(sessionStore),
		History:    historyRepo,
		Chain:      chainClient,
	})

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// createAIClient 按配置构造文本生成客户端，对话能力使用人设提示词。
func createAIClient(cfg *config.Config, promptService *prompts.Service) (llm.ChatClient, error) {
	switch cfg.LLM.Provider {
	case "", "gemini":
		persona, _, _, err := promptService.Format("conversational", nil)
		if err != nil {
			return nil, err
		}
		return gemini.NewClient(gemini.Config{
			APIKey:       cfg.LLM.Gemini.APIKey,
			BaseURL:      cfg.LLM.Gemini.BaseURL,
			Model:        cfg.LLM.Gemini.Model,
			SystemPrompt: persona,
			Timeout:      time.Duration(cfg.LLM.Gemini.TimeoutSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("未知的文本生成 provider: %s", cfg.LLM.Provider)
	}
}
