package topic

import (
	"cmp"
	"slices"
	"strings"
)

// Category 表示投资问题的类别。
type Category string

const (
	EconomicIndicator Category = "economic_indicator"
	StockPrice        Category = "stock_price"
	AnalystReport     Category = "analyst_report"
	General           Category = "general"
)

// Decision 给出分类结果、识别到的公司名以及命中的关键词。
type Decision struct {
	Category Category
	Stock    string
	Keywords []string
}

// 宏观经济关键词
var macroKeywords = []string{
	"기준금리", "금리", "환율", "원/달러", "달러", "gdp", "m2", "통화량", "물가", "cpi", "인플레이션",
	"경기", "경제 전망", "시장 상황", "시장 전망", "경제 상황", "고용", "실업률", "수출", "무역수지",
}

// 公司相关但偏向研报的关键词
var reportKeywords = []string{
	"리포트", "보고서", "애널리스트", "목표주가", "목표 주가", "투자의견", "투자 의견", "증권사", "컨센서스",
}

var priceKeywords = []string{
	"주가", "시가총액", "시총", "거래량", "재무제표", "per", "pbr", "roe", "실적", "배당", "차트",
}

// knownStocks 常见上市公司名称，长名优先匹配
var knownStocks = byLengthDesc([]string{
	"lg에너지솔루션", "삼성바이오로직스", "sk하이닉스", "삼성전자", "현대차", "기아", "네이버", "naver",
	"카카오", "셀트리온", "포스코홀딩스", "lg화학", "삼성sdi", "kb금융", "신한지주", "현대모비스",
})

// Classify 根据关键词规则对问题分类：提到具体公司时区分股价与研报，
// 否则区分宏观经济与一般投资咨询。
func Classify(question string) Decision {
	normalized := strings.TrimSpace(strings.ToLower(question))
	if normalized == "" {
		return Decision{Category: General}
	}

	stock := matchStock(normalized)
	macro := matchAll(normalized, macroKeywords)
	report := matchAll(normalized, reportKeywords)
	price := matchAll(normalized, priceKeywords)

	if stock != "" {
		if len(report) > 0 {
			return Decision{Category: AnalystReport, Stock: stock, Keywords: report}
		}
		return Decision{Category: StockPrice, Stock: stock, Keywords: price}
	}

	if len(macro) > 0 {
		return Decision{Category: EconomicIndicator, Keywords: macro}
	}
	return Decision{Category: General}
}

// Source 描述回答所依据的数据来源。
func (d Decision) Source() string {
	switch d.Category {
	case EconomicIndicator:
		return "한국은행 경제통계"
	case StockPrice:
		return "실시간 주가 (" + d.Stock + ")"
	case AnalystReport:
		return "증권사 리포트 (" + d.Stock + ")"
	default:
		return ""
	}
}

func matchStock(normalized string) string {
	for _, name := range knownStocks {
		if containsKeyword(normalized, name) {
			return name
		}
	}
	return ""
}

func matchAll(normalized string, keywords []string) []string {
	var hits []string
	for _, word := range keywords {
		if containsKeyword(normalized, word) {
			hits = append(hits, word)
		}
	}
	return hits
}

func byLengthDesc(names []string) []string {
	slices.SortStableFunc(names, func(a, b string) int {
		return cmp.Compare(len(b), len(a))
	})
	return names
}

// containsKeyword 对纯拉丁字母/数字的关键词按词边界匹配，避免 "per" 命中 "super"。
// 含韩文的关键词直接子串匹配，因为韩文助词紧跟在词后。
func containsKeyword(text, word string) bool {
	if !isASCIIWord(word) {
		return strings.Contains(text, word)
	}
	for offset := 0; ; {
		i := strings.Index(text[offset:], word)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(word)
		if (start == 0 || !isASCIIAlnum(text[start-1])) && (end == len(text) || !isASCIIAlnum(text[end])) {
			return true
		}
		offset = start + 1
	}
}

func isASCIIWord(word string) bool {
	for i := 0; i < len(word); i++ {
		if !isASCIIAlnum(word[i]) {
			return false
		}
	}
	return word != ""
}

func isASCIIAlnum(b byte) bool {
	return ('a' <= b && b <= 'z') || ('0' <= b && b <= '9')
}
