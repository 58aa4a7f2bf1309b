package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrClientUnavailable = errors.New("llm client unavailable")

type ClientConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

// Client calls an OpenAI-compatible chat completions endpoint and
// parses the structured summary JSON out of the model reply. Any
// failure degrades to the static default result so lead intake never
// blocks on the model.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	timeout    time.Duration
	maxRetries int
	httpClient *http.Client
	logger     interface{ Printf(string, ...any) }
}

func NewClient(config ClientConfig, logger interface{ Printf(string, ...any) }) *Client {
	if strings.TrimSpace(config.BaseURL) == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if strings.TrimSpace(config.Model) == "" {
		config.Model = "gpt-4.1-mini"
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 2
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}

	return &Client{
		apiKey:     strings.TrimSpace(config.APIKey),
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		model:      config.Model,
		timeout:    config.Timeout,
		maxRetries: config.MaxRetries,
		httpClient: config.HTTPClient,
		logger:     logger,
	}
}

func (c *Client) Available() bool {
	return c.apiKey != ""
}

func (c *Client) GenerateSummaries(ctx context.Context, input SummaryInput) (SummaryResult, error) {
	if !c.Available() {
		return DefaultResult(input.Intent), nil
	}

	prompt := buildPrompt(input)
	payload := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": "你是一个专业的售前助理，擅长分析客户需求并生成精准的摘要。"},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.7,
		"max_tokens":  2000,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return DefaultResult(input.Intent), fmt.Errorf("marshal llm payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		text, callErr := c.callChatCompletions(ctx, encoded)
		if callErr == nil {
			return ParseResult(text, input.Intent), nil
		}
		lastErr = callErr

		if !isRetryableError(callErr) || attempt == c.maxRetries {
			break
		}

		backoff := time.Duration(350*(attempt+1)) * time.Millisecond
		select {
		case <-ctx.Done():
			return DefaultResult(input.Intent), ctx.Err()
		case <-time.After(backoff):
		}
	}

	if c.logger != nil {
		c.logger.Printf("llm generation failed, using default summaries: %v", lastErr)
	}
	return DefaultResult(input.Intent), nil
}

func (c *Client) callChatCompletions(ctx context.Context, payload []byte) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpRequest, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create llm request: %w", err)
	}
	httpRequest.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpRequest.Header.Set("Content-Type", "application/json")

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("llm timeout: %w", err)
		}
		return "", fmt.Errorf("llm transport error: %w", err)
	}
	defer httpResponse.Body.Close()

	body, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return "", fmt.Errorf("read llm body: %w", err)
	}

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode > 299 {
		message := strings.TrimSpace(string(body))
		if len(message) > 700 {
			message = message[:700]
		}
		return "", &llmHTTPError{StatusCode: httpResponse.StatusCode, Message: message}
	}

	var raw chatCompletionsResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	if len(raw.Choices) == 0 || strings.TrimSpace(raw.Choices[0].Message.Content) == "" {
		return "", errors.New("llm response without text output")
	}
	return raw.Choices[0].Message.Content, nil
}

func buildPrompt(input SummaryInput) string {
	modulesContext := make([]string, 0, len(input.Modules))
	for _, module := range input.Modules {
		description := module.Description
		if description == "" {
			description = "暂无描述"
		}
		modulesContext = append(modulesContext, fmt.Sprintf("[模块：%s]\n%s", module.Title, description))
	}
	modulesBlock := strings.Join(modulesContext, "\n\n")
	if modulesBlock == "" {
		modulesBlock = "暂无模块信息"
	}

	return fmt.Sprintf(`你是一个专业的AI助理，负责为讲师生成售前摘要。请严格遵守以下规则：

【硬性约束 - 必须遵守】
1. 请仅基于以下讲师能力模块 [Modules] 与用户需求 [Intent/Input] 生成内容
2. 禁止虚构讲师不具备的能力或模块
3. 若模块覆盖不足，请输出缺口提醒与下一步澄清问题，不要强行编造方案

【讲师能力模块 Modules】
%s

【用户需求 Intent/Input】
意图类型: %s
用户输入: %s

【输出要求】
请以JSON格式输出以下内容：
{
  "leader_summary": "给决策者的摘要，简洁明了，不超过220个中文字符",
  "teacher_summary": "给执行者的详细摘要，包含方案建议，不超过800个中文字符",
  "clarifying_questions": ["问题1", "问题2", "问题3", "问题4", "问题5"],
  "coverage_score": 0.0到1.0之间的数字，表示需求与模块的覆盖度
}

请直接输出JSON，不要包含其他文字。`, modulesBlock, input.Intent, string(input.Input))
}

// ParseResult extracts and validates the summary JSON embedded in a
// model reply. Malformed replies fall back to the default result.
func ParseResult(text, intent string) SummaryResult {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return DefaultResult(intent)
	}

	var parsed struct {
		LeaderSummary       string   `json:"leader_summary"`
		TeacherSummary      string   `json:"teacher_summary"`
		ClarifyingQuestions []string `json:"clarifying_questions"`
		CoverageScore       float64  `json:"coverage_score"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return DefaultResult(intent)
	}
	if strings.TrimSpace(parsed.LeaderSummary) == "" || strings.TrimSpace(parsed.TeacherSummary) == "" {
		return DefaultResult(intent)
	}

	if parsed.CoverageScore < 0 {
		parsed.CoverageScore = 0
	}
	if parsed.CoverageScore > 1 {
		parsed.CoverageScore = 1
	}
	if len(parsed.ClarifyingQuestions) > 5 {
		parsed.ClarifyingQuestions = parsed.ClarifyingQuestions[:5]
	}

	return SummaryResult{
		LeaderSummary:       strings.TrimSpace(parsed.LeaderSummary),
		TeacherSummary:      strings.TrimSpace(parsed.TeacherSummary),
		ClarifyingQuestions: parsed.ClarifyingQuestions,
		CoverageScore:       parsed.CoverageScore,
	}
}

type chatCompletionsResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type llmHTTPError struct {
	StatusCode int
	Message    string
}

func (e *llmHTTPError) Error() string {
	return fmt.Sprintf("llm status %d: %s", e.StatusCode, e.Message)
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *llmHTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}
