package chat

import (
	"math/rand/v2"
	"strings"
)

// suggestionPool holds the starter questions offered in an empty chat.
// Bold markers are part of the display text.
var suggestionPool = []string{
	"**삼성전자**의 최근 5년 주가 흐름 분석해 줘.",
	"**가치 투자**와 **성장 투자**의 차이점을 설명해 줘.",
	"금리 인상 시기에 유망한 **섹터**는 어디야?",
	"**기술적 분석**에서 **MACD** 지표를 어떻게 활용해야 해?",
	"지금 **원/달러 환율**이 주식 시장에 미치는 영향은?",
	"내 포트폴리오의 **베타** 값을 계산해 줘.",
	"**ROE**와 **PBR** 지표를 활용한 종목 추천 기준은?",
	"**공매도**가 주가에 미치는 단기적, 장기적 영향은?",
	"다가오는 실적 시즌에 주목해야 할 **종목 3가지** 알려줘.",
}

// Suggestion is one starter question.
type Suggestion struct {
	Display  string `json:"display"`
	Question string `json:"question"`
}

// Suggestions picks n distinct starter questions at random.
func Suggestions(n int) []Suggestion {
	if n <= 0 {
		return nil
	}
	if n > len(suggestionPool) {
		n = len(suggestionPool)
	}

	picked := make([]Suggestion, 0, n)
	for _, idx := range rand.Perm(len(suggestionPool))[:n] {
		display := suggestionPool[idx]
		picked = append(picked, Suggestion{
			Display:  display,
			Question: strings.ReplaceAll(display, "**", ""),
		})
	}
	return picked
}
