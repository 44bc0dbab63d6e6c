package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"DeFAI-Agent/internal/auth"
	"DeFAI-Agent/internal/chat"
	"DeFAI-Agent/internal/history"
	"DeFAI-Agent/internal/observability/metrics"
	"DeFAI-Agent/internal/session"
	"DeFAI-Agent/internal/web3"
	"DeFAI-Agent/pkg/logger"
)

// MessageHandler 定义服务层对消息调度核心的依赖。
type MessageHandler interface {
	HandleMessage(ctx context.Context, sess *chat.Session, message, walletAddress string) (string, error)
}

// Server 负责暴露 REST 接口，驱动对话调度核心。
type Server struct {
	addr       string
	auth       *auth.Service
	dispatcher MessageHandler
	sessions   *session.Manager
	history    history.Repository
	chain      web3.Client
	log        *slog.Logger
}

// Config 汇集 API 服务的依赖。
type Config struct {
	Addr       string
	Auth       *auth.Service
	Dispatcher MessageHandler
	Sessions   *session.Manager
	History    history.Repository
	Chain      web3.Client
}

// NewServer 构造 API 服务实例。
func NewServer(cfg Config) *Server {
	return &Server{
		addr:       cfg.Addr,
		auth:       cfg.Auth,
		dispatcher: cfg.Dispatcher,
		sessions:   cfg.Sessions,
		history:    cfg.History,
		chain:      cfg.Chain,
		log:        logger.Named("api"),
	}
}

// Handler 构建完整的路由。业务端点经过认证中间件，
// 健康检查与指标端点保持开放。
func (s *Server) Handler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/v1/chat", s.instrument("chat", s.handleChat))
	apiMux.HandleFunc("/api/v1/history", s.instrument("history", s.handleHistory))
	apiMux.HandleFunc("/api/v1/balance", s.instrument("balance", s.handleBalance))
	apiMux.HandleFunc("/api/v1/session", s.instrument("session", s.handleSessionDelete))

	mux := http.NewServeMux()
	mux.Handle("/api/", s.auth.Middleware(apiMux))
	mux.HandleFunc("/healthz", s.instrument("healthz", s.handleHealth))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.Info("API 服务已启动", slog.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

type chatRequest struct {
	Message       string `json:"message"`
	WalletAddress string `json:"wallet_address,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
}

// handleChat 处理一条对话消息：加载会话、调度、保存、记录历史。
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message 不能为空", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	var reply string
	sessionID, err := s.sessions.WithSession(ctx, req.SessionID, func(sess *chat.Session) error {
		var handleErr error
		reply, handleErr = s.dispatcher.HandleMessage(ctx, sess, req.Message, req.WalletAddress)
		return handleErr
	})
	if err != nil {
		s.log.Error("处理消息失败",
			slog.String("session_id", sessionID), slog.Any("error", err))
		http.Error(w, "服务内部错误", http.StatusInternalServerError)
		return
	}

	// 历史是旁路审计数据，写入失败不影响响应。
	if s.history != nil {
		if err := s.history.Append(ctx, history.ChatRecord{
			SessionID: sessionID,
			Message:   req.Message,
			Response:  reply,
		}); err != nil {
			s.log.Warn("写入对话历史失败",
				slog.String("session_id", sessionID), slog.Any("error", err))
		}
	}

	writeJSON(w, http.StatusOK, chatResponse{SessionID: sessionID, Response: reply})
}

// handleHistory 返回指定会话的最近对话记录。
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.history == nil {
		http.Error(w, "历史存储未启用", http.StatusServiceUnavailable)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id 不能为空", http.StatusBadRequest)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := s.history.ListBySession(r.Context(), sessionID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleSessionDelete 删除指定会话的持久化状态。与对话内的 /reset
// 命令不同，这里整个会话（含 ID）被丢弃。
func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "仅支持 DELETE", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id 不能为空", http.StatusBadRequest)
		return
	}

	if err := s.sessions.Reset(r.Context(), sessionID); err != nil {
		s.log.Error("删除会话失败",
			slog.String("session_id", sessionID), slog.Any("error", err))
		http.Error(w, "服务内部错误", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": sessionID,
		"status":     "deleted",
	})
}

type balanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// handleBalance 查询地址的原生代币余额。
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}

	raw := r.URL.Query().Get("address")
	address, err := s.chain.ChecksumAddress(raw)
	if err != nil {
		http.Error(w, "address 无效", http.StatusBadRequest)
		return
	}

	balance, err := s.chain.BalanceAt(r.Context(), address)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Address: address, Balance: web3.FromWei(balance)})
}

type healthResponse struct {
	Status      string `json:"status"`
	ChainID     string `json:"chain_id,omitempty"`
	BlockNumber string `json:"block_number,omitempty"`
}

// handleHealth 返回服务与链连接的健康状态。
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.chain.FetchChainSnapshot(r.Context())
	if err != nil {
		s.log.Warn("链健康检查失败", slog.Any("error", err))
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		ChainID:     snapshot.ChainID,
		BlockNumber: snapshot.BlockNumber,
	})
}

// instrument 记录端点的请求指标。
func (s *Server) instrument(name string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
