// Package remote HTTP client for the sync server API
// Package remote 同步服务端 API 的 HTTP 客户端
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/internal/dto"
	"github.com/haierkeys/schedule-note-sync/internal/middleware"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"go.uber.org/zap"
)

// 服务端业务码，与 pkg/code 保持一致
const (
	codeInvalidParams    = 400
	codeVersionConflict  = 4091
	codeEventRescheduled = 4092
	codeRecordInUse      = 4093
	codeLeaseHeld        = 4231
	codeRecordNotFound   = 4041
	codeEventNotFound    = 4042
	codeNoteNotFound     = 4043
	codeDrawingNotFound  = 4044
)

// Config 客户端配置
type Config struct {
	ServerURL string
	DeviceID  string
	Token     string
	// Timeout per request, 0 keeps resty's default (none)
	// Timeout 单次请求超时，0 表示不限制
	Timeout time.Duration
}

// Client talks to the server on behalf of one device; a single attempt per call
// Client 代表一台设备访问服务端，每次调用只尝试一次
type Client struct {
	http   *resty.Client
	tracer opentracing.Tracer
	logger *zap.Logger
}

// envelope 服务端统一响应结构
type envelope struct {
	Code    int             `json:"code"`
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Details string          `json:"details"`
}

type listEnvelope[T any] struct {
	List  []T `json:"list"`
	Total int `json:"total"`
}

// New 创建远端客户端，tracer 为空时使用全局 tracer
func New(cfg Config, tracer opentracing.Tracer, logger *zap.Logger) *Client {
	if tracer == nil {
		tracer = opentracing.GlobalTracer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := resty.New().
		SetBaseURL(cfg.ServerURL).
		SetHeader(middleware.HeaderDeviceID, cfg.DeviceID).
		SetHeader(middleware.HeaderDeviceToken, cfg.Token).
		SetHeader("Accept", "application/json").
		SetRetryCount(0)
	if cfg.Timeout > 0 {
		hc.SetTimeout(cfg.Timeout)
	}
	return &Client{http: hc, tracer: tracer, logger: logger}
}

// call performs one request and decodes data into out (may be nil)
// call 执行一次请求，并将 data 解码到 out（可为空）
func (c *Client) call(ctx context.Context, op, method, path string, query map[string]string, body any, out any) error {
	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, c.tracer, "remote."+op)
	defer span.Finish()
	ext.SpanKindRPCClient.Set(span)
	ext.HTTPMethod.Set(span, method)
	ext.HTTPUrl.Set(span, path)

	req := c.http.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if body != nil {
		b, err := sonic.Marshal(body)
		if err != nil {
			return domain.NewValidationError("", "encode request: "+err.Error())
		}
		req.SetHeader("Content-Type", "application/json").SetBody(b)
	}
	_ = c.tracer.Inject(span.Context(), opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(req.Header))

	resp, err := req.Execute(method, path)
	if err != nil {
		ext.Error.Set(span, true)
		return &domain.NetworkError{Op: op, Err: err}
	}
	ext.HTTPStatusCode.Set(span, uint16(resp.StatusCode()))

	var env envelope
	if err := sonic.Unmarshal(resp.Body(), &env); err != nil {
		ext.Error.Set(span, true)
		return &domain.NetworkError{Op: op, StatusCode: resp.StatusCode(), Err: fmt.Errorf("decode response: %w", err)}
	}
	if !env.Status || resp.StatusCode() >= http.StatusBadRequest {
		ext.Error.Set(span, true)
		// 租约被占用时响应仍携带当前笔记
		if env.Code == codeLeaseHeld && out != nil && len(env.Data) > 0 {
			_ = sonic.Unmarshal(env.Data, out)
		}
		return c.mapError(op, resp.StatusCode(), &env)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(env.Data, out); err != nil {
		return &domain.NetworkError{Op: op, StatusCode: resp.StatusCode(), Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}

// mapError turns a failed envelope into the domain error taxonomy
// mapError 将失败响应映射为领域错误
func (c *Client) mapError(op string, status int, env *envelope) error {
	switch env.Code {
	case codeVersionConflict:
		ce := &domain.ConflictError{}
		var data dto.ConflictDTO
		if len(env.Data) > 0 && sonic.Unmarshal(env.Data, &data) == nil {
			ce.Kind, ce.Key = data.Kind, data.Key
			ce.ExpectedVersion, ce.ServerVersion = data.ExpectedVersion, data.ServerVersion
		}
		return ce
	case codeRecordNotFound, codeEventNotFound, codeNoteNotFound, codeDrawingNotFound:
		return domain.ErrNotFound
	case codeInvalidParams:
		return domain.NewValidationError("", firstNonEmpty(env.Details, env.Message))
	case codeLeaseHeld:
		return domain.ErrLeaseHeld
	case codeEventRescheduled:
		return domain.ErrAlreadyRescheduled
	case codeRecordInUse:
		return domain.ErrRecordInUse
	}
	c.logger.Debug("remote call failed",
		zap.String("op", op),
		zap.Int("status", status),
		zap.Int("code", env.Code),
		zap.String("message", env.Message))
	return &domain.NetworkError{Op: op, StatusCode: status, Err: fmt.Errorf("server code %d: %s", env.Code, env.Message)}
}

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if s != "" {
			return s
		}
	}
	return ""
}
