package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// EnvConfigPath 指定配置文件路径的环境变量，优先于命令行默认值。
const EnvConfigPath = "DEFAI_CONFIG"

// Config 描述服务在启动阶段需要加载的核心配置。
type Config struct {
	Server      ServerConfig      `json:"server"`
	LLM         LLMConfig         `json:"llm"`
	Web3        Web3Config        `json:"web3"`
	Attestation AttestationConfig `json:"attestation"`
	Session     SessionConfig     `json:"session"`
	History     HistoryConfig     `json:"history"`
	Events      EventsConfig      `json:"events"`
	Auth        AuthConfig        `json:"auth"`
	Logging     LoggingConfig     `json:"logging"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// LLMConfig 用于配置文本生成服务的调用方式。
type LLMConfig struct {
	Provider string       `json:"provider"`
	Gemini   GeminiConfig `json:"gemini"`
	// PromptOverrides 指向提示词模板覆盖文件（YAML），为空则使用内置模板。
	PromptOverrides string `json:"prompt_overrides"`
}

// GeminiConfig 描述 Gemini API 的访问参数。
type GeminiConfig struct {
	APIKey string `json:"api_key"`
	// APIKeyEnv 指定承载密钥的环境变量名，避免把密钥写进配置文件。
	// APIKey 为空时生效，默认读取 GEMINI_API_KEY。
	APIKeyEnv      string `json:"api_key_env"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Web3Config 包含访问区块链节点所需的参数。
type Web3Config struct {
	ChainName string `json:"chain_name"`
	RPCURL    string `json:"rpc_url"`
	// ExplorerURL 用于在交易确认文案中生成链接。
	ExplorerURL string `json:"explorer_url"`
	// AccountKey 可选，设置后在服务端签名交易；
	// 留空则交易数据移交客户端钱包扩展补签。
	AccountKey string `json:"account_key"`
	GasLimit   uint64 `json:"gas_limit"`
	// ChainsFile 指向链定义目录文件（YAML）。
	ChainsFile string `json:"chains_file"`
}

// AttestationConfig 描述远程证明客户端的行为。
type AttestationConfig struct {
	Simulate   bool   `json:"simulate"`
	SocketPath string `json:"socket_path"`
}

// SessionConfig 描述会话存储后端。
type SessionConfig struct {
	Driver     string `json:"driver"`
	Address    string `json:"address"`
	Password   string `json:"password"`
	DB         int    `json:"db"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// HistoryConfig 描述对话历史存储后端。
type HistoryConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// EventsConfig 描述交易事件发布后端。
type EventsConfig struct {
	Driver string `json:"driver"`
	URL    string `json:"url"`
	Queue  string `json:"queue"`
}

// AuthConfig 描述 API 认证方式。
type AuthConfig struct {
	Mode string            `json:"mode"`
	Keys map[string]string `json:"keys"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level       string      `json:"level"`
	Format      string      `json:"format"`
	OutputPaths []string    `json:"output_paths"`
	Audit       AuditConfig `json:"audit"`
}

// AuditConfig 控制审计日志输出。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "gemini"
	}
	if c.LLM.Gemini.Model == "" {
		c.LLM.Gemini.Model = "gemini-1.5-flash"
	}
	if c.LLM.Gemini.TimeoutSeconds <= 0 {
		c.LLM.Gemini.TimeoutSeconds = 60
	}
	if c.LLM.Gemini.APIKey == "" {
		keyEnv := c.LLM.Gemini.APIKeyEnv
		if keyEnv == "" {
			keyEnv = "GEMINI_API_KEY"
		}
		c.LLM.Gemini.APIKey = os.Getenv(keyEnv)
	}
	if c.LLM.PromptOverrides != "" && !filepath.IsAbs(c.LLM.PromptOverrides) {
		c.LLM.PromptOverrides = filepath.Join(baseDir, c.LLM.PromptOverrides)
	}

	if c.Web3.ChainName == "" {
		c.Web3.ChainName = "flare-coston2"
	}
	if c.Web3.RPCURL == "" {
		c.Web3.RPCURL = "https://coston2-api.flare.network/ext/C/rpc"
	}
	if c.Web3.ExplorerURL == "" {
		c.Web3.ExplorerURL = "https://coston2-explorer.flare.network"
	}
	if c.Web3.ChainsFile != "" && !filepath.IsAbs(c.Web3.ChainsFile) {
		c.Web3.ChainsFile = filepath.Join(baseDir, c.Web3.ChainsFile)
	}

	if c.Session.Driver == "" {
		c.Session.Driver = "memory"
	}
	if c.History.Driver == "" {
		c.History.Driver = "memory"
	}
	if c.Events.Driver == "" {
		c.Events.Driver = "noop"
	}
	if c.Auth.Mode == "" {
		c.Auth.Mode = "disabled"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path != "" && !filepath.IsAbs(c.Logging.Audit.Path) {
		c.Logging.Audit.Path = filepath.Join(baseDir, c.Logging.Audit.Path)
	}
}
