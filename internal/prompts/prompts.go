package prompts

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	xerrors "DeFAI-Agent/internal/errors"
	"DeFAI-Agent/pkg/logger"
)

// Prompt 描述一个具名的提示词模板及其输出约束。
type Prompt struct {
	Name             string
	Description      string
	Template         string
	RequiredInputs   []string
	ResponseMIMEType string
	ResponseSchema   map[string]any
	Category         string
}

// Service 维护提示词目录，负责渲染与输出约束的查询。
type Service struct {
	mu      sync.RWMutex
	prompts map[string]Prompt
	log     *slog.Logger
}

// MIME 类型约定，与文本生成服务的约束格式一致。
const (
	MIMETypeJSON = "application/json"
	MIMETypeEnum = "text/x.enum"
	MIMETypeText = "text/plain"
)

// NewService 创建带默认提示词目录的服务。
func NewService() *Service {
	s := &Service{
		prompts: make(map[string]Prompt),
		log:     logger.Named("prompts"),
	}
	for _, p := range defaultPrompts() {
		s.prompts[p.Name] = p
	}
	return s
}

// Get 按名称返回提示词。
func (s *Service) Get(name string) (Prompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prompts[name]
	if !ok {
		return Prompt{}, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("提示词 %q 不存在", name))
	}
	return p, nil
}

// Add 注册或覆盖一个提示词。
func (s *Service) Add(p Prompt) {
	s.mu.Lock()
	s.prompts[p.Name] = p
	s.mu.Unlock()
	s.log.Debug("提示词已注册", slog.String("name", p.Name), slog.String("category", p.Category))
}

// Format 渲染指定提示词并返回其输出约束。缺少必填输入时报错。
func (s *Service) Format(name string, inputs map[string]any) (string, string, map[string]any, error) {
	p, err := s.Get(name)
	if err != nil {
		return "", "", nil, err
	}

	for _, required := range p.RequiredInputs {
		if _, ok := inputs[required]; !ok {
			return "", "", nil, xerrors.New(xerrors.CodeInvalidArgument,
				fmt.Sprintf("提示词 %q 缺少输入 %q", name, required))
		}
	}

	tmpl, err := template.New(p.Name).Option("missingkey=error").Parse(p.Template)
	if err != nil {
		return "", "", nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err,
			fmt.Sprintf("解析提示词 %q 失败", name))
	}

	var rendered strings.Builder
	if err := tmpl.Execute(&rendered, inputs); err != nil {
		return "", "", nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err,
			fmt.Sprintf("渲染提示词 %q 失败", name))
	}

	return strings.TrimSpace(rendered.String()), p.ResponseMIMEType, p.ResponseSchema, nil
}

// overridesFile 描述 YAML 覆盖文件的结构：按名称替换模板正文。
type overridesFile struct {
	Templates map[string]string `yaml:"templates"`
}

// LoadOverrides 从 YAML 文件加载模板覆盖，仅替换已存在条目的正文。
func (s *Service) LoadOverrides(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取提示词覆盖文件失败: %w", err)
	}

	var overrides overridesFile
	if err := yaml.Unmarshal(content, &overrides); err != nil {
		return fmt.Errorf("解析提示词覆盖文件失败: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, body := range overrides.Templates {
		p, ok := s.prompts[name]
		if !ok {
			return xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("覆盖的提示词 %q 不存在", name))
		}
		p.Template = body
		s.prompts[name] = p
		s.log.Info("提示词模板已覆盖", slog.String("name", name))
	}
	return nil
}

// ListCategories 返回目录中出现过的所有分类。
func (s *Service) ListCategories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	categories := make([]string, 0, len(s.prompts))
	for _, p := range s.prompts {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		categories = append(categories, p.Category)
	}
	sort.Strings(categories)
	return categories
}

func defaultPrompts() []Prompt {
	intentSchema := map[string]any{
		"type": "STRING",
		"enum": []string{
			"CONNECT_WALLET",
			"SEND_TOKEN",
			"SWAP_TOKEN",
			"REQUEST_ATTESTATION",
			"CONVERSATIONAL",
		},
	}
	tokenSendSchema := map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"to_address": map[string]any{"type": "STRING"},
			"amount":     map[string]any{"type": "NUMBER"},
		},
		"required": []string{"to_address", "amount"},
	}
	tokenSwapSchema := map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"from_token": map[string]any{"type": "STRING"},
			"to_token":   map[string]any{"type": "STRING"},
			"amount":     map[string]any{"type": "NUMBER"},
		},
		"required": []string{"from_token", "to_token", "amount"},
	}
	walletSchema := map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"wallet_address": map[string]any{"type": "STRING"},
		},
	}

	return []Prompt{
		{
			Name:             "semantic_router",
			Description:      "Route user query based on user input",
			Template:         semanticRouterTemplate,
			RequiredInputs:   []string{"user_input"},
			ResponseMIMEType: MIMETypeEnum,
			ResponseSchema:   intentSchema,
			Category:         "router",
		},
		{
			Name:             "token_send",
			Description:      "Extract token send parameters from user input",
			Template:         tokenSendTemplate,
			RequiredInputs:   []string{"user_input"},
			ResponseMIMEType: MIMETypeJSON,
			ResponseSchema:   tokenSendSchema,
			Category:         "defai",
		},
		{
			Name:             "token_swap",
			Description:      "Extract token swap parameters from user input",
			Template:         tokenSwapTemplate,
			RequiredInputs:   []string{"user_input"},
			ResponseMIMEType: MIMETypeJSON,
			ResponseSchema:   tokenSwapSchema,
			Category:         "defai",
		},
		{
			Name:             "connect_wallet",
			Description:      "Extract wallet address from user input",
			Template:         connectWalletTemplate,
			RequiredInputs:   []string{"user_input"},
			ResponseMIMEType: MIMETypeJSON,
			ResponseSchema:   walletSchema,
			Category:         "wallet",
		},
		{
			Name:             "wallet_connected",
			Description:      "Generate response for successful wallet connection",
			Template:         walletConnectedTemplate,
			RequiredInputs:   []string{"address"},
			ResponseMIMEType: MIMETypeText,
			Category:         "wallet",
		},
		{
			Name:             "wallet_connection_instructions",
			Description:      "Generate instructions for connecting a wallet",
			Template:         walletConnectionInstructionsTemplate,
			ResponseMIMEType: MIMETypeText,
			Category:         "wallet",
		},
		{
			Name:             "wallet_required",
			Description:      "Generate message explaining wallet requirement",
			Template:         walletRequiredTemplate,
			ResponseMIMEType: MIMETypeText,
			Category:         "wallet",
		},
		{
			Name:             "generate_account",
			Description:      "Generate response for account creation",
			Template:         generateAccountTemplate,
			RequiredInputs:   []string{"address"},
			ResponseMIMEType: MIMETypeText,
			Category:         "account",
		},
		{
			Name:             "request_attestation",
			Description:      "Generate attestation request",
			Template:         remoteAttestationTemplate,
			ResponseMIMEType: MIMETypeText,
			Category:         "attestation",
		},
		{
			Name:             "tx_confirmation",
			Description:      "Generate transaction confirmation",
			Template:         txConfirmationTemplate,
			RequiredInputs:   []string{"tx_hash", "block_explorer"},
			ResponseMIMEType: MIMETypeText,
			Category:         "defai",
		},
		{
			Name:             "follow_up_token_send",
			Description:      "Generate follow-up for token send",
			Template:         followUpTokenSendTemplate,
			ResponseMIMEType: MIMETypeText,
			Category:         "defai",
		},
		{
			Name:             "conversational",
			Description:      "System persona for open-ended conversation",
			Template:         conversationalTemplate,
			ResponseMIMEType: MIMETypeText,
			Category:         "conversation",
		},
	}
}
