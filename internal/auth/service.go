package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
)

// Mode 表示身份认证服务的工作模式。
type Mode string

const (
	// ModeDisabled 关闭认证，所有请求直接放行。
	ModeDisabled Mode = "disabled"
	// ModeAPIKey 使用静态 API Key 的 Bearer 认证。
	ModeAPIKey Mode = "apikey"
)

var (
	// ErrDisabled 表示认证服务未启用。
	ErrDisabled = errors.New("authentication disabled")
	// ErrMissingToken 表示请求未携带令牌。
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken 表示令牌无法匹配任何已配置的 API Key。
	ErrInvalidToken = errors.New("invalid token")
)

// Config 描述认证服务的配置。
type Config struct {
	Mode Mode
	// Keys 将调用方名称映射到其 API Key。
	Keys map[string]string
}

// Service 负责 HTTP 端点的身份验证。
type Service struct {
	mode Mode
	keys map[string]string
}

// NewService 构造身份认证服务实例。
func NewService(cfg Config) (*Service, error) {
	mode := Mode(strings.ToLower(string(cfg.Mode)))
	if mode == "" {
		mode = ModeDisabled
	}
	switch mode {
	case ModeDisabled:
		return &Service{mode: mode}, nil
	case ModeAPIKey:
		if len(cfg.Keys) == 0 {
			return nil, errors.New("apikey mode requires at least one key")
		}
		keys := make(map[string]string, len(cfg.Keys))
		for name, key := range cfg.Keys {
			if strings.TrimSpace(key) == "" {
				return nil, errors.New("api key cannot be empty")
			}
			keys[name] = key
		}
		return &Service{mode: mode, keys: keys}, nil
	default:
		return nil, errors.New("unsupported auth mode: " + string(cfg.Mode))
	}
}

// Mode 返回当前身份认证服务的工作模式。
func (s *Service) Mode() Mode {
	if s == nil {
		return ModeDisabled
	}
	return s.mode
}

// AuthenticateRequest 验证授权头并返回调用方名称。
func (s *Service) AuthenticateRequest(authorization string) (string, error) {
	if s == nil || s.mode == ModeDisabled {
		return "", ErrDisabled
	}
	parts := strings.SplitN(strings.TrimSpace(authorization), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrMissingToken
	}
	for name, key := range s.keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1 {
			return name, nil
		}
	}
	return "", ErrInvalidToken
}
