package wechat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
	"github.com/Vinsen2024/lead-funnel-back/internal/repository"
)

type sentMessage struct {
	ToUser     string            `json:"touser"`
	TemplateID string            `json:"template_id"`
	Page       string            `json:"page"`
	Data       map[string]anyVal `json:"data"`
}

type anyVal struct {
	Value string `json:"value"`
}

type wxPlatform struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (p *wxPlatform) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/cgi-bin/token":
			_, _ = w.Write([]byte(`{"access_token":"testing-token","expires_in":7200}`))
		case "/cgi-bin/message/subscribe/send":
			if r.URL.Query().Get("access_token") != "testing-token" {
				_, _ = w.Write([]byte(`{"errcode":40001,"errmsg":"invalid credential"}`))
				return
			}
			var message sentMessage
			if err := json.NewDecoder(r.Body).Decode(&message); err != nil {
				_, _ = w.Write([]byte(`{"errcode":47001,"errmsg":"data format error"}`))
				return
			}
			p.mu.Lock()
			p.sent = append(p.sent, message)
			p.mu.Unlock()
			_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (p *wxPlatform) messages() []sentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]sentMessage, len(p.sent))
	copy(out, p.sent)
	return out
}

func newNotifierFixture(t *testing.T) (*Notifier, *repository.MemoryCatalogRepository, *wxPlatform) {
	t.Helper()
	platform := &wxPlatform{}
	server := httptest.NewServer(platform.handler())
	t.Cleanup(server.Close)

	catalog := repository.NewMemoryCatalogRepository()
	tokens := NewTokenSource("app-1", "secret-1", server.URL, server.Client())
	notifier := NewNotifier(tokens, catalog, NotifierConfig{
		BaseURL:           server.URL,
		NewLeadTemplateID: "tmpl-new-lead",
		MiniProgramState:  "trial",
	}, nil)
	notifier.httpClient = server.Client()
	return notifier, catalog, platform
}

func newLeadForNotify(brokerID string) *domain.Lead {
	return &domain.Lead{
		ID:            "lead-1",
		TeacherID:     "teacher-1",
		BrokerID:      brokerID,
		Intent:        "团队沟通培训",
		LeaderSummary: "客户希望提升团队沟通效率",
		CreatedAt:     time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestNotifyNewLeadReachesBrokerAndTeacher(t *testing.T) {
	notifier, catalog, platform := newNotifierFixture(t)
	catalog.PutTeacher(&domain.Teacher{ID: "teacher-1", WxOpenID: "open-teacher", Name: "王老师", IsActive: true})
	catalog.PutBroker(&domain.Broker{ID: "broker-1", WxOpenID: "open-broker", Name: "李经纪", IsActive: true})

	notifier.NotifyNewLead(context.Background(), newLeadForNotify("broker-1"))

	messages := platform.messages()
	if len(messages) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(messages))
	}
	if messages[0].ToUser != "open-broker" || messages[1].ToUser != "open-teacher" {
		t.Fatalf("unexpected recipients: %q then %q", messages[0].ToUser, messages[1].ToUser)
	}
	for _, message := range messages {
		if message.TemplateID != "tmpl-new-lead" {
			t.Fatalf("unexpected template id: %q", message.TemplateID)
		}
		if message.Page != "pages/lead/result?id=lead-1" {
			t.Fatalf("unexpected page: %q", message.Page)
		}
		if got := message.Data["thing1"].Value; got != "团队沟通培训" {
			t.Fatalf("unexpected intent value: %q", got)
		}
	}
}

func TestNotifyNewLeadWithoutBrokerOnlyTeacher(t *testing.T) {
	notifier, catalog, platform := newNotifierFixture(t)
	catalog.PutTeacher(&domain.Teacher{ID: "teacher-1", WxOpenID: "open-teacher", Name: "王老师", IsActive: true})

	notifier.NotifyNewLead(context.Background(), newLeadForNotify(""))

	messages := platform.messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(messages))
	}
	if messages[0].ToUser != "open-teacher" {
		t.Fatalf("unexpected recipient: %q", messages[0].ToUser)
	}
}

func TestNotifyNewLeadSkipsRecipientsWithoutOpenID(t *testing.T) {
	notifier, catalog, platform := newNotifierFixture(t)
	catalog.PutTeacher(&domain.Teacher{ID: "teacher-1", Name: "王老师", IsActive: true})
	catalog.PutBroker(&domain.Broker{ID: "broker-1", Name: "李经纪", IsActive: true})

	notifier.NotifyNewLead(context.Background(), newLeadForNotify("broker-1"))

	if got := len(platform.messages()); got != 0 {
		t.Fatalf("expected no notifications, got %d", got)
	}
}

func TestNotifyNewLeadSurvivesMissingTeacher(t *testing.T) {
	notifier, _, platform := newNotifierFixture(t)

	// Unknown teacher and broker must not panic or send anything.
	notifier.NotifyNewLead(context.Background(), newLeadForNotify("broker-1"))

	if got := len(platform.messages()); got != 0 {
		t.Fatalf("expected no notifications, got %d", got)
	}
}
