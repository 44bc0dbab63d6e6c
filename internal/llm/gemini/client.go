package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"DeFAI-Agent/internal/llm"
)

const (
	defaultBaseURL   = "https://generativelanguage.googleapis.com/v1beta"
	defaultModelName = "gemini-1.5-flash"
	defaultTimeout   = 60 * time.Second
)

// Config 描述了调用 Gemini generateContent API 所需的信息。
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	Timeout      time.Duration
}

// Client 通过 HTTP 调用 Gemini 的文本生成能力，并持有自由对话的历史记忆。
type Client struct {
	apiKey       string
	baseURL      string
	model        string
	systemPrompt string
	httpClient   *http.Client

	mu      sync.Mutex
	history []content
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// NewClient 根据配置创建 Gemini 客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 Gemini API Key")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	systemPrompt := strings.TrimSpace(cfg.SystemPrompt)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		apiKey:       apiKey,
		baseURL:      baseURL,
		model:        model,
		systemPrompt: systemPrompt,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Generate 执行一次无记忆的受约束生成。
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	contents := []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}}
	text, err := c.generateContent(ctx, contents, req.ResponseMIMEType, req.ResponseSchema, "")
	if err != nil {
		return nil, err
	}
	return &llm.Response{Text: text}, nil
}

// SendMessage 发送一条对话消息，历史上下文由客户端持有。
func (c *Client) SendMessage(ctx context.Context, message string) (*llm.Response, error) {
	c.mu.Lock()
	contents := make([]content, len(c.history), len(c.history)+1)
	copy(contents, c.history)
	c.mu.Unlock()

	userTurn := content{Role: "user", Parts: []part{{Text: message}}}
	contents = append(contents, userTurn)

	text, err := c.generateContent(ctx, contents, "", nil, c.systemPrompt)
	if err != nil {
		return nil, err
	}

	// 仅在生成成功后提交本轮历史，失败的轮次不会污染记忆。
	c.mu.Lock()
	c.history = append(c.history, userTurn, content{Role: "model", Parts: []part{{Text: text}}})
	c.mu.Unlock()

	return &llm.Response{Text: text}, nil
}

// Reset 清空对话记忆。
func (c *Client) Reset() {
	c.mu.Lock()
	c.history = nil
	c.mu.Unlock()
}

func (c *Client) generateContent(ctx context.Context, contents []content, mimeType string, schema map[string]any, systemPrompt string) (string, error) {
	payload, err := buildPayload(contents, mimeType, schema, systemPrompt)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("构建 Gemini 请求失败: %w", err)
	}

	httpReq.Header.Set("x-goog-api-key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("请求 Gemini 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("Gemini 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("解析 Gemini 响应失败: %w", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("Gemini 响应中没有有效的 candidates")
	}

	text := strings.TrimSpace(decoded.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", errors.New("Gemini 响应内容为空")
	}
	return text, nil
}

func buildPayload(contents []content, mimeType string, schema map[string]any, systemPrompt string) ([]byte, error) {
	body := map[string]any{
		"contents": contents,
	}

	generationConfig := map[string]any{}
	if mimeType != "" {
		generationConfig["responseMimeType"] = mimeType
	}
	if schema != nil {
		generationConfig["responseSchema"] = schema
	}
	if len(generationConfig) > 0 {
		body["generationConfig"] = generationConfig
	}

	if systemPrompt != "" {
		body["systemInstruction"] = content{Parts: []part{{Text: systemPrompt}}}
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("序列化 Gemini 请求失败: %w", err)
	}
	return encoded, nil
}
