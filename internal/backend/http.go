package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	cfg "Habitude/config"
	"Habitude/internal/model"
)

// schema 未就绪的结构化错误码：PostgREST 的 schema 缓存未命中，
// 以及 PostgreSQL 的 undefined_table。只匹配 code 字段，不匹配文案。
var schemaAbsentCodes = map[string]bool{
	"PGRST205": true,
	"PGRST002": true,
	"42P01":    true,
}

// HTTPClient 基于 hertz client 的后端实现
type HTTPClient struct {
	baseURL        string
	apiKey         string
	attemptTimeout time.Duration
	cli            *client.Client
}

// NewHTTPClient 构建后端 HTTP 客户端，单次尝试的超时有界，
// 挂死的连接不能拖住重试循环或 drain。
func NewHTTPClient(baseURL, apiKey string, attemptTimeout time.Duration) (*HTTPClient, error) {
	if attemptTimeout <= 0 {
		attemptTimeout = 4 * time.Second
	}

	cli, err := client.NewClient(
		client.WithDialTimeout(attemptTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build hertz client: %w", err)
	}

	return &HTTPClient{
		baseURL:        baseURL,
		apiKey:         apiKey,
		attemptTimeout: attemptTimeout,
		cli:            cli,
	}, nil
}

// NewHTTPClientFromConfig 按全局配置构建
func NewHTTPClientFromConfig() (*HTTPClient, error) {
	return NewHTTPClient(
		cfg.Cfg.BackendBaseURL,
		cfg.Cfg.BackendAPIKey,
		time.Duration(cfg.Cfg.BackendTimeoutMS)*time.Millisecond,
	)
}

type submitPayload struct {
	model.CheckInSubmission
	DedupKey string `json:"dedup_key"`
}

type listEnvelope struct {
	Events []model.CheckInEvent `json:"events"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *HTTPClient) SubmitEvent(ctx context.Context, sub model.CheckInSubmission) (*model.CheckInEvent, error) {
	body, err := json.Marshal(submitPayload{CheckInSubmission: sub, DedupKey: sub.DedupKey()})
	if err != nil {
		return nil, NewError(KindRejected, 0, "MARSHAL_FAILED", "cannot encode submission", err)
	}

	req := protocol.AcquireRequest()
	res := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(res)

	req.SetMethod(consts.MethodPost)
	req.SetRequestURI(h.baseURL + "/v1/check-in-events")
	req.SetBody(body)
	req.Header.SetContentTypeBytes([]byte("application/json"))
	req.Header.Set("Idempotency-Key", sub.DedupKey())
	h.applyAuth(req)
	req.SetOptions(config.WithRequestTimeout(h.attemptTimeout))

	if err := h.cli.Do(ctx, req, res); err != nil {
		return nil, NewError(KindTransient, 0, "", "network attempt failed", err)
	}

	status := res.StatusCode()
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, classify(status, res.Body())
	}

	var event model.CheckInEvent
	if err := json.Unmarshal(res.Body(), &event); err != nil {
		return nil, NewError(KindTransient, status, "", "cannot decode event response", err)
	}

	return &event, nil
}

func (h *HTTPClient) ListEvents(ctx context.Context, userID string, limit int, before *time.Time) ([]model.CheckInEvent, error) {
	params := url.Values{}
	params.Set("user_id", userID)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("order", "server_timestamp.desc")
	if before != nil {
		params.Set("before", before.UTC().Format(time.RFC3339Nano))
	}

	req := protocol.AcquireRequest()
	res := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(res)

	req.SetMethod(consts.MethodGet)
	req.SetRequestURI(h.baseURL + "/v1/check-in-events?" + params.Encode())
	h.applyAuth(req)
	req.SetOptions(config.WithRequestTimeout(h.attemptTimeout))

	if err := h.cli.Do(ctx, req, res); err != nil {
		return nil, NewError(KindTransient, 0, "", "network attempt failed", err)
	}

	if res.StatusCode() != http.StatusOK {
		return nil, classify(res.StatusCode(), res.Body())
	}

	var envelope listEnvelope
	if err := json.Unmarshal(res.Body(), &envelope); err != nil {
		return nil, NewError(KindTransient, res.StatusCode(), "", "cannot decode events response", err)
	}

	return envelope.Events, nil
}

func (h *HTTPClient) applyAuth(req *protocol.Request) {
	if h.apiKey != "" {
		req.Header.Set("apikey", h.apiKey)
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}
}

// classify 把非 2xx 响应折算成类型化错误，分类只看状态码和结构化 code
func classify(status int, body []byte) *Error {
	var envelope errorEnvelope
	_ = json.Unmarshal(body, &envelope)

	code := envelope.Error.Code
	message := envelope.Error.Message
	if code == "" {
		code = envelope.Code
	}
	if message == "" {
		message = envelope.Message
	}
	if message == "" {
		message = http.StatusText(status)
	}

	if schemaAbsentCodes[code] {
		return NewError(KindSchemaAbsent, status, code, message, nil)
	}

	switch {
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return NewError(KindTransient, status, code, message, nil)
	case status >= http.StatusInternalServerError:
		return NewError(KindTransient, status, code, message, nil)
	default:
		return NewError(KindRejected, status, code, message, nil)
	}
}

// HTTPProbe 通过后端健康检查端点判断连通性
type HTTPProbe struct {
	baseURL string
	cli     *client.Client
	timeout time.Duration
}

// NewHTTPProbe 构建连通性探测器，baseURL 为空时视为永远离线
func NewHTTPProbe(baseURL string) (*HTTPProbe, error) {
	cli, err := client.NewClient(client.WithDialTimeout(1500 * time.Millisecond))
	if err != nil {
		return nil, fmt.Errorf("failed to build probe client: %w", err)
	}

	return &HTTPProbe{
		baseURL: baseURL,
		cli:     cli,
		timeout: 1500 * time.Millisecond,
	}, nil
}

func (p *HTTPProbe) Online(ctx context.Context) bool {
	if p.baseURL == "" {
		return false
	}

	req := protocol.AcquireRequest()
	res := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(res)

	req.SetMethod(consts.MethodGet)
	req.SetRequestURI(p.baseURL + "/health")
	req.SetOptions(config.WithRequestTimeout(p.timeout))

	if err := p.cli.Do(ctx, req, res); err != nil {
		return false
	}

	return res.StatusCode() < http.StatusInternalServerError
}
