package ai

import (
	"strings"

	"github.com/zhouzirui/roboadvisor/client/internal/analysis/topic"
)

// advisorSystemPrompt frames the model as the stock-investment assistant.
const advisorSystemPrompt = `당신은 개인 투자자를 돕는 주식 투자 상담 AI "전봉준"입니다.
- 종목, 지표, 투자 전략에 대한 질문에 한국어로 간결하고 정확하게 답하십시오.
- 확실하지 않은 수치는 추정임을 밝히고, 특정 종목의 매수·매도를 단정적으로 권유하지 마십시오.
- 답변 끝에는 투자 판단의 책임이 사용자에게 있음을 한 문장으로 덧붙이십시오.`

// FallbackAnswer is stored instead of an answer when the model fails.
const FallbackAnswer = "죄송합니다. 현재 질문에 대한 답변을 생성할 수 없습니다.\n\n" +
	"다음과 같이 질문을 바꿔보시겠어요?\n" +
	"• 더 구체적인 기업명이나 지표를 명시해주세요\n" +
	"• 다른 방식으로 질문을 재구성해주세요\n\n" +
	"예시:\n" +
	"❌ \"투자 어떻게 해?\"\n" +
	"✅ \"초보자를 위한 ETF 투자 전략을 알려주세요\"\n\n" +
	"❌ \"시장 상황\"\n" +
	"✅ \"현재 기준금리와 환율이 주식 시장에 미치는 영향은?\""

// buildSystemPrompt appends optional operator notes to the base prompt.
func buildSystemPrompt(notes string) string {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return advisorSystemPrompt
	}

	var builder strings.Builder
	builder.WriteString(advisorSystemPrompt)
	builder.WriteString("\n\n추가 지침: ")
	builder.WriteString(notes)
	return builder.String()
}

// topicHint tells the model how the question was routed.
func topicHint(d topic.Decision) string {
	var b strings.Builder
	b.WriteString("\n\n질문 분류: ")
	b.WriteString(string(d.Category))
	if d.Stock != "" {
		b.WriteString(" (종목: ")
		b.WriteString(d.Stock)
		b.WriteString(")")
	}
	if source := d.Source(); source != "" {
		b.WriteString("\n참고 데이터: ")
		b.WriteString(source)
	}
	return b.String()
}
