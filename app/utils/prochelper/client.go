package prochelper

import (
	"context"
	"fmt"
	"media-flow/app/config"
	"media-flow/app/model"

	"resty.dev/v3"
)

// 外部处理器返回的处理状态
const (
	StateProcessing = "processing"
	StateDone       = "done"
	StateFailed     = "failed"
)

// SubmitRequest 提交到外部处理器的内容描述
type SubmitRequest struct {
	FilePath   string // 本地文件路径（文件提交时使用）
	FileName   string
	SourceType string // local_file, url, blob
	SourceLang string
}

// StatusResponse 外部处理器的处理状态
type StatusResponse struct {
	ExternalID string `json:"external_id"`
	State      string `json:"state"`
	Error      string `json:"error"`
}

type submitResponse struct {
	ExternalID string `json:"external_id"`
}

// ProcessorClient 外部内容处理器客户端
// 提交接口受速率限制，轮询和结果获取不受限制
type ProcessorClient struct {
	config  *config.Config
	client  *resty.Client
	limiter *RateLimiter
}

// New 创建外部处理器客户端
func New(cfg *config.Config) *ProcessorClient {
	client := resty.New()
	client.SetBaseURL(cfg.Processor.BaseURL)
	client.SetTimeout(cfg.Processor.RequestTimeout)
	client.SetHeader("Authorization", "Bearer "+cfg.Processor.APIKey)

	return &ProcessorClient{
		config:  cfg,
		client:  client,
		limiter: NewRateLimiter(cfg.Processor.RateWindow, cfg.Processor.RateLimit),
	}
}

// Submit 提交内容到外部处理器，返回远端资源ID
// 提交前先通过速率限制器获取配额
func (p *ProcessorClient) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if err := p.limiter.Acquire(ctx); err != nil {
		return "", fmt.Errorf("等待提交配额失败: %w", err)
	}

	var result submitResponse

	resp, err := p.client.R().
		SetContext(ctx).
		SetFile("file", req.FilePath).
		SetFormData(map[string]string{
			"file_name":   req.FileName,
			"source_type": req.SourceType,
			"language":    req.SourceLang,
		}).
		SetResult(&result).
		Post("/api/v1/contents")

	if err != nil {
		return "", fmt.Errorf("提交内容失败: %w", err)
	}

	if resp.StatusCode() != 200 && resp.StatusCode() != 201 {
		return "", fmt.Errorf("提交内容被拒绝，状态码: %d, 响应: %s", resp.StatusCode(), resp.String())
	}

	if result.ExternalID == "" {
		return "", fmt.Errorf("提交响应中缺少 external_id")
	}

	return result.ExternalID, nil
}

// PollStatus 查询远端处理状态
func (p *ProcessorClient) PollStatus(ctx context.Context, externalID string) (*StatusResponse, error) {
	var result StatusResponse

	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(&result).
		Get(fmt.Sprintf("/api/v1/contents/%s/status", externalID))

	if err != nil {
		return nil, fmt.Errorf("查询处理状态失败: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("查询处理状态失败，状态码: %d, 响应: %s", resp.StatusCode(), resp.String())
	}

	return &result, nil
}

// FetchResult 获取远端的结构化处理结果
func (p *ProcessorClient) FetchResult(ctx context.Context, externalID string) (*model.StructuredContent, error) {
	var result model.StructuredContent

	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(&result).
		Get(fmt.Sprintf("/api/v1/contents/%s/result", externalID))

	if err != nil {
		return nil, fmt.Errorf("获取处理结果失败: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("获取处理结果失败，状态码: %d, 响应: %s", resp.StatusCode(), resp.String())
	}

	if result.ExternalID == "" {
		result.ExternalID = externalID
	}

	return &result, nil
}
