// Package llm generates the dual lead summaries, clarifying questions
// and coverage score from a visitor's stated need and the teacher's
// declared capability modules.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
)

type SummaryInput struct {
	Intent  string
	Input   json.RawMessage
	Modules []domain.TeacherModule
}

type SummaryResult struct {
	LeaderSummary       string
	TeacherSummary      string
	ClarifyingQuestions []string
	CoverageScore       float64
}

// Generator is the black-box summarization contract. Implementations
// must not block lead intake: when generation fails they should return
// a usable default rather than an error where possible.
type Generator interface {
	GenerateSummaries(ctx context.Context, input SummaryInput) (SummaryResult, error)
}

// StaticGenerator produces deterministic fallback summaries when no
// model endpoint is configured or a call fails.
type StaticGenerator struct{}

func (StaticGenerator) GenerateSummaries(_ context.Context, input SummaryInput) (SummaryResult, error) {
	return DefaultResult(input.Intent), nil
}

func DefaultResult(intent string) SummaryResult {
	if intent == "" {
		intent = "培训合作"
	}
	return SummaryResult{
		LeaderSummary:  fmt.Sprintf("客户表达了%s相关的需求，建议进一步沟通了解详情。", intent),
		TeacherSummary: fmt.Sprintf("客户需求概述：%s。由于信息有限，建议通过以下问题进一步了解客户的具体需求和期望。", intent),
		ClarifyingQuestions: []string{
			"您希望通过这次培训达成什么具体目标？",
			"您的团队目前面临的最大挑战是什么？",
			"您期望的培训形式是什么（线上/线下/混合）？",
			"您的预算范围大概是多少？",
			"您希望在什么时间段内完成培训？",
		},
		CoverageScore: 0.5,
	}
}
