package lmstudio

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pantry-chef/internal/core/ai/cache"
	"pantry-chef/internal/infrastructure/config"
	"pantry-chef/internal/pkg/common"
	"pantry-chef/internal/pkg/metrics"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Message 消息結構
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request chat completion 請求
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

// Response chat completion 響應
type Response struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
}

// Choice 選擇結構
type Choice struct {
	Message Message `json:"message"`
}

// UpstreamError 上游傳輸、逾時或非 2xx 錯誤
type UpstreamError struct {
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream model returned status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream model request failed: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ParseError 模型輸出無法解析為預期結構
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse model output: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Client LM Studio (OpenAI 相容) 客戶端
type Client struct {
	cfg    config.LMStudioConfig
	client *resty.Client
}

// NewClient 創建客戶端，設定於建構時注入
func NewClient(cfg config.LMStudioConfig) *Client {
	client := resty.New().
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		cfg:    cfg,
		client: client,
	}
}

// Model 目前使用的模型名稱
func (c *Client) Model() string {
	return c.cfg.Model
}

// complete 發送一次 chat completion 並回傳第一個 choice 的內容
func (c *Client) complete(ctx context.Context, kind, prompt string, timeout time.Duration) (content string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveUpstream(kind, start, err) }()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := Request{
		Model:       c.cfg.Model,
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: c.cfg.Temperature,
	}

	common.LogInfo("Sending request to LM Studio",
		zap.String("kind", kind),
		zap.String("model", req.Model),
		zap.Duration("timeout", timeout),
	)

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		Post(c.cfg.URL)
	if err != nil {
		return "", &UpstreamError{Err: err}
	}

	if !resp.IsSuccess() {
		body := resp.String()
		if len(body) > 512 {
			body = body[:512]
		}
		common.LogError("AI service returned error status",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("model", req.Model),
			zap.String("response", body),
		)
		return "", &UpstreamError{StatusCode: resp.StatusCode(), Err: fmt.Errorf("%s", body)}
	}

	var result Response
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return "", &UpstreamError{StatusCode: resp.StatusCode(), Err: fmt.Errorf("decode completion envelope: %w", err)}
	}
	if len(result.Choices) == 0 {
		common.LogWarn("Empty choices in AI service response", zap.String("model", req.Model))
		return "", nil
	}

	content = strings.TrimSpace(result.Choices[0].Message.Content)
	common.LogInfo("Successfully generated response from AI service",
		zap.String("kind", kind),
		zap.String("model", req.Model),
		zap.Int("content_length", len(content)),
	)
	return content, nil
}

// Generate 依食材生成菜色建議；只有傳輸層失敗會回傳錯誤，解析不到菜色時回傳空列表
func (c *Client) Generate(ctx context.Context, ingredients []string) ([]cache.Dish, error) {
	content, err := c.complete(ctx, "suggest", buildSuggestionPrompt(ingredients), c.cfg.SuggestTimeout)
	if err != nil {
		return nil, err
	}

	dishes := ParseDishes(content)
	common.LogDebug("解析菜色建議",
		zap.Int("content_length", len(content)),
		zap.Int("dishes", len(dishes)),
	)
	return dishes, nil
}

// Detail 取得單一菜色的詳細作法
func (c *Client) Detail(ctx context.Context, name string) (map[string]any, error) {
	content, err := c.complete(ctx, "detail", buildDetailPrompt(name), c.cfg.DetailTimeout)
	if err != nil {
		return nil, err
	}
	return ParseDetail(content)
}

// Close 關閉客戶端
func (c *Client) Close() error {
	c.client.GetClient().CloseIdleConnections()
	return nil
}
