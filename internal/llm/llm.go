package llm

import "context"

// Request 描述一次受约束的文本生成调用。
type Request struct {
	// Prompt 是完整的提示词文本。
	Prompt string
	// ResponseMIMEType 约束返回格式，例如 "application/json" 或 "text/x.enum"。
	// 为空时由提供方返回自由文本。
	ResponseMIMEType string
	// ResponseSchema 在 ResponseMIMEType 需要时进一步约束输出结构。
	ResponseSchema map[string]any
}

// Response 是文本生成得到的输出。
type Response struct {
	Text string
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// ChatClient 在 Client 之上提供由提供方持有记忆的多轮对话能力。
type ChatClient interface {
	Client
	// SendMessage 发送一条对话消息，历史上下文由提供方维护。
	SendMessage(ctx context.Context, message string) (*Response, error)
	// Reset 清空提供方持有的对话记忆。
	Reset()
}
