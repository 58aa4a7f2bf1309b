// Package wechat sends subscribe-message notifications through the
// WeChat mini-program API. Sends are best effort: failures are logged
// and never propagated to the flows that trigger them.
package wechat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
	"github.com/Vinsen2024/lead-funnel-back/internal/repository"
)

type NotifierConfig struct {
	BaseURL           string
	NewLeadTemplateID string
	MiniProgramState  string
}

type Notifier struct {
	tokens     *TokenSource
	catalog    repository.CatalogRepository
	config     NotifierConfig
	httpClient *http.Client
	logger     *log.Logger
}

func NewNotifier(
	tokens *TokenSource,
	catalog repository.CatalogRepository,
	config NotifierConfig,
	logger *log.Logger,
) *Notifier {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.weixin.qq.com"
	}
	if config.MiniProgramState == "" {
		config.MiniProgramState = "trial"
	}
	return &Notifier{
		tokens:     tokens,
		catalog:    catalog,
		config:     config,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// NotifyNewLead informs the attributed broker (when present) and
// always the teacher about a fresh lead. The teacher copy exists so
// attribution disputes can be settled later.
func (n *Notifier) NotifyNewLead(ctx context.Context, lead *domain.Lead) {
	if lead.BrokerID != "" {
		broker, err := n.catalog.GetBroker(ctx, lead.BrokerID)
		if err == nil && broker.WxOpenID != "" {
			n.send(ctx, broker.WxOpenID, lead)
		} else if err != nil && n.logger != nil {
			n.logger.Printf("notify broker skipped lead_id=%s: %v", lead.ID, err)
		}
	}

	teacher, err := n.catalog.GetTeacher(ctx, lead.TeacherID)
	if err != nil {
		if n.logger != nil {
			n.logger.Printf("notify teacher skipped lead_id=%s: %v", lead.ID, err)
		}
		return
	}
	if teacher.WxOpenID != "" {
		n.send(ctx, teacher.WxOpenID, lead)
	}
}

func (n *Notifier) send(ctx context.Context, toOpenID string, lead *domain.Lead) {
	token, err := n.tokens.Token(ctx)
	if err != nil {
		if n.logger != nil {
			n.logger.Printf("notification skipped, no access token: %v", err)
		}
		return
	}

	payload := map[string]any{
		"touser":      toOpenID,
		"template_id": n.config.NewLeadTemplateID,
		"page":        "pages/lead/result?id=" + lead.ID,
		"data": map[string]any{
			"thing1": map[string]string{"value": truncate(lead.Intent, 20)},
			"thing2": map[string]string{"value": truncate(lead.LeaderSummary, 20)},
			"date3":  map[string]string{"value": lead.CreatedAt.Format("2006-01-02 15:04")},
		},
		"miniprogram_state": n.config.MiniProgramState,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return
	}

	url := fmt.Sprintf("%s/cgi-bin/message/subscribe/send?access_token=%s", n.config.BaseURL, token)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := n.httpClient.Do(request)
	if err != nil {
		if n.logger != nil {
			n.logger.Printf("notification send failed to=%s: %v", toOpenID, err)
		}
		return
	}
	defer response.Body.Close()

	body, _ := io.ReadAll(response.Body)
	var parsed struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.ErrCode != 0 && n.logger != nil {
		n.logger.Printf("notification rejected to=%s code=%d msg=%s", toOpenID, parsed.ErrCode, parsed.ErrMsg)
	}
}

func truncate(value string, maxRunes int) string {
	runes := []rune(value)
	if len(runes) <= maxRunes {
		return value
	}
	return string(runes[:maxRunes-1]) + "…"
}
