package auth

import "context"

// callerKey 是上下文中存储调用方名称的键类型。
type callerKey struct{}

// WithCaller 将经过身份验证的调用方名称存储到上下文中。
func WithCaller(ctx context.Context, caller string) context.Context {
	if caller == "" {
		return ctx
	}
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext 从上下文中提取调用方名称。
func CallerFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if caller, ok := ctx.Value(callerKey{}).(string); ok {
		return caller
	}
	return ""
}
