package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestClientGenerateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not_found"}`))
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices":[{"message":{"role":"assistant","content":"{\"leader_summary\":\"决策者摘要\",\"teacher_summary\":\"讲师摘要\",\"clarifying_questions\":[\"问题1\"],\"coverage_score\":0.82}"}}]
		}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Timeout:    2 * time.Second,
		MaxRetries: 1,
	}, nil)

	result, err := client.GenerateSummaries(context.Background(), SummaryInput{Intent: "课程咨询"})
	if err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if result.LeaderSummary != "决策者摘要" {
		t.Fatalf("unexpected leader summary: %q", result.LeaderSummary)
	}
	if result.CoverageScore != 0.82 {
		t.Fatalf("expected coverage 0.82, got %v", result.CoverageScore)
	}
}

func TestClientRetriesOnRateLimit(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		current := atomic.AddInt32(&calls, 1)
		if current == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limited"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices":[{"message":{"role":"assistant","content":"{\"leader_summary\":\"摘要A\",\"teacher_summary\":\"摘要B\",\"clarifying_questions\":[],\"coverage_score\":0.7}"}}]
		}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Timeout:    2 * time.Second,
		MaxRetries: 2,
	}, nil)

	result, err := client.GenerateSummaries(context.Background(), SummaryInput{Intent: "课程咨询"})
	if err != nil {
		t.Fatalf("expected success after retry, got err=%v", err)
	}
	if result.LeaderSummary != "摘要A" {
		t.Fatalf("unexpected summary after retry: %q", result.LeaderSummary)
	}
	if atomic.LoadInt32(&calls) < 2 {
		t.Fatalf("expected at least 2 calls, got %d", calls)
	}
}

func TestClientServerErrorFallsBackToDefault(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Timeout:    2 * time.Second,
		MaxRetries: 2,
	}, nil)

	result, err := client.GenerateSummaries(context.Background(), SummaryInput{Intent: "团队培训"})
	if err != nil {
		t.Fatalf("expected graceful fallback, got err=%v", err)
	}
	if result.CoverageScore != 0.5 {
		t.Fatalf("expected default coverage 0.5, got %v", result.CoverageScore)
	}
	if !strings.Contains(result.LeaderSummary, "团队培训") {
		t.Fatalf("expected default summary to mention intent, got %q", result.LeaderSummary)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestClientBadRequestDoesNotRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad_request"}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Timeout:    2 * time.Second,
		MaxRetries: 2,
	}, nil)

	if _, err := client.GenerateSummaries(context.Background(), SummaryInput{Intent: "课程咨询"}); err != nil {
		t.Fatalf("expected graceful fallback, got err=%v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestClientWithoutKeyUsesDefault(t *testing.T) {
	client := NewClient(ClientConfig{APIKey: ""}, nil)
	if client.Available() {
		t.Fatalf("client without key should not be available")
	}

	result, err := client.GenerateSummaries(context.Background(), SummaryInput{Intent: "课程咨询"})
	if err != nil {
		t.Fatalf("expected default result, got err=%v", err)
	}
	if len(result.ClarifyingQuestions) != 5 {
		t.Fatalf("expected 5 default questions, got %d", len(result.ClarifyingQuestions))
	}
}

func TestParseResult(t *testing.T) {
	cases := []struct {
		name          string
		text          string
		wantDefault   bool
		wantCoverage  float64
		wantQuestions int
	}{
		{
			name:          "json wrapped in prose",
			text:          "以下是分析结果：\n{\"leader_summary\":\"A\",\"teacher_summary\":\"B\",\"clarifying_questions\":[\"q1\",\"q2\"],\"coverage_score\":0.75}\n希望有帮助。",
			wantCoverage:  0.75,
			wantQuestions: 2,
		},
		{
			name:          "coverage clamped above one",
			text:          `{"leader_summary":"A","teacher_summary":"B","clarifying_questions":[],"coverage_score":1.8}`,
			wantCoverage:  1,
			wantQuestions: 0,
		},
		{
			name:          "coverage clamped below zero",
			text:          `{"leader_summary":"A","teacher_summary":"B","clarifying_questions":[],"coverage_score":-0.3}`,
			wantCoverage:  0,
			wantQuestions: 0,
		},
		{
			name:          "questions capped at five",
			text:          `{"leader_summary":"A","teacher_summary":"B","clarifying_questions":["1","2","3","4","5","6","7"],"coverage_score":0.6}`,
			wantCoverage:  0.6,
			wantQuestions: 5,
		},
		{
			name:        "no json at all",
			text:        "抱歉，我无法生成摘要。",
			wantDefault: true,
		},
		{
			name:        "malformed json",
			text:        `{"leader_summary":"A","teacher_summary":`,
			wantDefault: true,
		},
		{
			name:        "empty summaries rejected",
			text:        `{"leader_summary":"  ","teacher_summary":"B","clarifying_questions":[],"coverage_score":0.9}`,
			wantDefault: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := ParseResult(tc.text, "课程咨询")
			if tc.wantDefault {
				want := DefaultResult("课程咨询")
				if result.LeaderSummary != want.LeaderSummary || result.CoverageScore != 0.5 {
					t.Fatalf("expected default result, got %+v", result)
				}
				return
			}
			if result.CoverageScore != tc.wantCoverage {
				t.Fatalf("expected coverage %v, got %v", tc.wantCoverage, result.CoverageScore)
			}
			if len(result.ClarifyingQuestions) != tc.wantQuestions {
				t.Fatalf("expected %d questions, got %d", tc.wantQuestions, len(result.ClarifyingQuestions))
			}
		})
	}
}
