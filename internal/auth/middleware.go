package auth

import (
	"net/http"
	"time"

	loggerpkg "DeFAI-Agent/pkg/logger"
)

// Middleware 返回一个 HTTP 中间件，完成 Bearer 认证并记录审计日志。
// 认证关闭时直接放行。
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s == nil || s.mode == ModeDisabled {
			next.ServeHTTP(w, r)
			return
		}

		caller, err := s.AuthenticateRequest(r.Header.Get("Authorization"))
		if err != nil {
			status := http.StatusUnauthorized
			http.Error(w, http.StatusText(status), status)
			loggerpkg.Audit().Warn("access_denied",
				"path", r.URL.Path,
				"method", r.Method,
				"status", status,
				"error", err.Error(),
			)
			return
		}

		start := time.Now()
		aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
		ctx := WithCaller(r.Context(), caller)
		next.ServeHTTP(aw, r.WithContext(ctx))
		loggerpkg.Audit().Info("api_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", aw.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"caller", caller,
		)
	})
}

// auditWriter 包装 http.ResponseWriter 以捕获响应状态码。
type auditWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader 捕获响应状态码并调用底层的 WriteHeader 方法。
func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
