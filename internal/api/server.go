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

	"BasicAgent-Console/internal/agent"
	xerrors "BasicAgent-Console/internal/errors"
	"BasicAgent-Console/internal/observability/metrics"
	"BasicAgent-Console/internal/wallet"
	"BasicAgent-Console/internal/web3"
	"BasicAgent-Console/pkg/logger"
)

const (
	defaultShutdownTimeout = 5 * time.Second
	maxBodyBytes           = 64 << 10

	triggerMessage = "交易需由已连接的钱包签名并广播"
	triggerNote    = "服务端不持有私钥，请在客户端通过钱包调用 triggerAgentAction"
)

// Server 暴露智能体控制台的只读查询与辅助接口。
type Server struct {
	addr            string
	chain           web3.ChainDefinition
	reader          *agent.Reader
	paginator       *agent.Paginator
	verifySignature bool
	maxPayload      int
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// Option 定义 Server 的可选配置。
type Option func(*Server)

// WithSignatureVerification 开启 trigger 接口的 personal_sign 校验。
func WithSignatureVerification(enabled bool) Option {
	return func(s *Server) {
		s.verifySignature = enabled
	}
}

// WithMaxPayloadLength 设置 trigger 接口允许的载荷字符数，0 表示不限制。
func WithMaxPayloadLength(n int) Option {
	return func(s *Server) {
		if n >= 0 {
			s.maxPayload = n
		}
	}
}

// WithShutdownTimeout 设置优雅关闭的等待时间。
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// NewServer 构造 API 服务实例。endpoint 为空时所有链上查询返回 503。
func NewServer(addr string, endpoint web3.Endpoint, chain web3.ChainDefinition, opts ...Option) *Server {
	s := &Server{
		addr:            addr,
		chain:           chain,
		reader:          agent.NewReader(endpoint),
		paginator:       agent.NewPaginator(endpoint, agent.WithTxExplorer(chain)),
		maxPayload:      agent.DefaultMaxPayloadLength,
		shutdownTimeout: defaultShutdownTimeout,
		logger:          logger.Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler 返回挂载全部路由的 http.Handler。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.handle(mux, "GET /api/agent/status", s.handleStatus)
	s.handle(mux, "GET /api/agent", s.handleStatus)
	s.handle(mux, "POST /api/agent/check-owner", s.handleCheckOwner)
	s.handle(mux, "GET /api/agent/events", s.handleEvents)
	s.handle(mux, "POST /api/agent/trigger", s.handleTrigger)
	s.handle(mux, "GET /api/network", s.handleNetwork)
	s.handle(mux, "GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	mux.Handle("GET /metrics", metrics.Handler())
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
	s.logger.Info("api server listening", slog.String("addr", s.addr), slog.String("chain", s.chain.Name))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	route := pattern[strings.IndexByte(pattern, ' ')+1:]
	mux.Handle(pattern, instrument(route, fn))
}

type statusResponse struct {
	Success             bool   `json:"success"`
	Owner               string `json:"owner"`
	LastActionTimestamp uint64 `json:"lastActionTimestamp"`
	LastActionData      string `json:"lastActionData"`
	ContractAddress     string `json:"contractAddress"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	status, err := s.reader.ReadStatus(r.Context(), address)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Success:             true,
		Owner:               status.Owner,
		LastActionTimestamp: status.LastActionTimestamp,
		LastActionData:      status.LastActionData,
		ContractAddress:     address,
	})
}

type checkOwnerRequest struct {
	ContractAddress string `json:"contractAddress"`
	WalletAddress   string `json:"walletAddress"`
}

type checkOwnerResponse struct {
	Success       bool   `json:"success"`
	IsOwner       bool   `json:"isOwner"`
	Owner         string `json:"owner"`
	WalletAddress string `json:"walletAddress"`
}

func (s *Server) handleCheckOwner(w http.ResponseWriter, r *http.Request) {
	var req checkOwnerRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := web3.ParseAddress("合约", req.ContractAddress); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := web3.ParseAddress("钱包", req.WalletAddress); err != nil {
		s.writeError(w, r, err)
		return
	}

	owner, err := s.reader.Owner(r.Context(), req.ContractAddress)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	isOwner, err := agent.IsAuthorized(req.WalletAddress, owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkOwnerResponse{
		Success:       true,
		IsOwner:       isOwner,
		Owner:         owner,
		WalletAddress: req.WalletAddress,
	})
}

type eventsResponse struct {
	Success      bool                `json:"success"`
	Events       []agent.ActionEvent `json:"events"`
	TotalScanned int                 `json:"totalScanned"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := intParam(query.Get("limit"), "limit", agent.DefaultPageLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	offset, err := intParam(query.Get("offset"), "offset", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	page, err := s.paginator.ListEvents(r.Context(), query.Get("address"), agent.PageRequest{Limit: limit, Offset: offset})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{
		Success:      true,
		Events:       page.Events,
		TotalScanned: page.TotalScanned,
	})
}

type triggerRequest struct {
	ContractAddress string `json:"contractAddress"`
	ActionData      string `json:"actionData"`
	WalletAddress   string `json:"walletAddress"`
	Signature       string `json:"signature"`
}

type triggerResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Note    string `json:"note"`
}

// handleTrigger 只做输入校验，从不代替钱包提交交易。
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := web3.ParseAddress("合约", req.ContractAddress); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := agent.ValidatePayload(req.ActionData, s.maxPayload); err != nil {
		s.writeError(w, r, err)
		return
	}
	signer, err := web3.ParseAddress("钱包", req.WalletAddress)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Signature) == "" {
		s.writeError(w, r, xerrors.Validation("缺少签名", xerrors.WithMetadata("field", "signature")))
		return
	}
	if s.verifySignature {
		if err := wallet.VerifyPersonalSign(req.ActionData, req.Signature, signer); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, triggerResponse{
		Success: true,
		Message: triggerMessage,
		Note:    triggerNote,
	})
}

type networkResponse struct {
	Success bool                `json:"success"`
	ChainID uint64              `json:"chainId"`
	Params  web3.AddChainParams `json:"params"`
}

func (s *Server) handleNetwork(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, networkResponse{
		Success: true,
		ChainID: s.chain.ChainID,
		Params:  s.chain.AddChainParams(),
	})
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := xerrors.CodeOf(err)
	status := xerrors.HTTPStatusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("code", string(code)),
			slog.String("error", err.Error()))
	}
	writeJSON(w, status, errorResponse{
		Success: false,
		Error:   errorMessage(err),
		Code:    string(code),
	})
}

// errorMessage 返回面向调用方的错误描述，保留底层原因原文。
func errorMessage(err error) string {
	e, ok := xerrors.From(err)
	if !ok {
		return err.Error()
	}
	if cause := e.Unwrap(); cause != nil {
		return e.Message() + ": " + cause.Error()
	}
	return e.Message()
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return xerrors.Validation("请求体解析失败", xerrors.WithMetadata("cause", err.Error()))
	}
	return nil
}

func intParam(raw, field string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, xerrors.Validation(field+" 必须是整数", xerrors.WithMetadata("field", field))
	}
	return value, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.ObserveHTTPRequest(route, r.Method, rec.status, time.Since(start))
	})
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
