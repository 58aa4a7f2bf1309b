// Package report composes the match-analysis report rendered by the
// export pipeline. The output is self-contained HTML suitable for a
// downstream PDF conversion step.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"math"
	"time"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
)

// CoverageGapThreshold is the boundary below which the risk section
// carries the gap warning. Exactly at the threshold the report states
// a good match.
const CoverageGapThreshold = 0.6

// GapWarningText appears verbatim in the risk section when coverage is
// insufficient; tests and downstream checks match on it.
const GapWarningText = "缺口提醒"

const maxMatchedModules = 3

// ObjectKey returns the storage key for a rendered artifact,
// namespaced by teacher, lead and job.
func ObjectKey(teacherID, leadID, jobID string) string {
	return fmt.Sprintf("teachers/%s/leads/%s/exports/%s.pdf", teacherID, leadID, jobID)
}

type Renderer struct {
	tmpl *template.Template
}

func NewRenderer() *Renderer {
	return &Renderer{tmpl: template.Must(template.New("match-report").Parse(reportTemplate))}
}

type reportData struct {
	TeacherName         string
	LeaderSummary       string
	TeacherSummary      string
	MatchedModules      []domain.TeacherModule
	AllModules          []domain.TeacherModule
	CoverageScore       float64
	CoveragePercent     int
	HasGap              bool
	ClarifyingQuestions []string
	GeneratedAt         string
}

// Render builds the report for one lead. Matched modules are the first
// active modules in stored order, capped at three; this is a display
// convention, not a ranked match.
func (r *Renderer) Render(lead *domain.Lead, teacher *domain.Teacher, modules []domain.TeacherModule) ([]byte, error) {
	matched := modules
	if len(matched) > maxMatchedModules {
		matched = matched[:maxMatchedModules]
	}

	teacherName := ""
	if teacher != nil {
		teacherName = teacher.Name
	}

	data := reportData{
		TeacherName:         teacherName,
		LeaderSummary:       lead.LeaderSummary,
		TeacherSummary:      lead.TeacherSummary,
		MatchedModules:      matched,
		AllModules:          modules,
		CoverageScore:       lead.CoverageScore,
		CoveragePercent:     int(math.Round(lead.CoverageScore * 100)),
		HasGap:              lead.CoverageScore < CoverageGapThreshold,
		ClarifyingQuestions: lead.ClarifyingQuestions,
		GeneratedAt:         time.Now().UTC().Format("2006-01-02 15:04:05"),
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

const reportTemplate = `<!DOCTYPE html>
<html lang="zh-CN">
<head>
  <meta charset="UTF-8">
  <title>匹配分析报告</title>
  <style>
    * { margin: 0; padding: 0; box-sizing: border-box; }
    body { font-family: 'Noto Sans CJK SC', 'Microsoft YaHei', sans-serif; padding: 40px; line-height: 1.6; }
    h1 { font-size: 24px; color: #333; margin-bottom: 20px; text-align: center; }
    h2 { font-size: 18px; color: #444; margin: 20px 0 10px; border-bottom: 2px solid #eee; padding-bottom: 5px; }
    p { margin: 10px 0; color: #666; }
    .section { margin-bottom: 30px; }
    .module-item { background: #f9f9f9; padding: 15px; margin: 10px 0; border-radius: 8px; }
    .module-title { font-weight: bold; color: #333; }
    .question-item { padding: 8px 0; border-bottom: 1px dashed #eee; }
    .warning { background: #fff3cd; padding: 15px; border-radius: 8px; color: #856404; }
    .footer { margin-top: 40px; text-align: center; color: #999; font-size: 12px; }
  </style>
</head>
<body>
  <h1>匹配分析报告</h1>

  <div class="section">
    <h2>一、客户需求摘要</h2>
    <p>{{.LeaderSummary}}</p>
  </div>

  <div class="section">
    <h2>二、适配结论</h2>
    {{range $index, $module := .MatchedModules}}
    <div class="module-item">
      <div class="module-title">{{$module.Title}}</div>
      <p>{{if $module.Description}}{{$module.Description}}{{else}}暂无描述{{end}}</p>
    </div>
    {{end}}
  </div>

  <div class="section">
    <h2>三、推荐模块组合</h2>
    <ul>
      {{range .AllModules}}<li>{{.Title}}</li>{{end}}
    </ul>
  </div>

  <div class="section">
    <h2>四、交付建议</h2>
    <p>{{.TeacherSummary}}</p>
  </div>

  <div class="section">
    <h2>五、风险与边界</h2>
    {{if .HasGap}}
    <div class="warning">
      <strong>缺口提醒：</strong>当前需求与讲师能力覆盖度较低（{{.CoveragePercent}}%），建议深入沟通以明确细节。
    </div>
    {{else}}
    <p>当前需求与讲师能力匹配度良好。</p>
    {{end}}
  </div>

  <div class="section">
    <h2>六、澄清问题</h2>
    {{range .ClarifyingQuestions}}
    <div class="question-item">{{.}}</div>
    {{end}}
  </div>

  <div class="footer">
    <p>本报告由 AI讲师成交中枢 自动生成</p>
    <p>生成时间：{{.GeneratedAt}}</p>
  </div>
</body>
</html>
`
