package news

import (
	"regexp"
	"strings"
)

// Sentiment 新闻的粗粒度情绪分级。
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Item 一条解析后的新闻。
type Item struct {
	Title     string
	Text      string
	Ticker    string
	Sentiment Sentiment
}

var (
	titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	tagRe   = regexp.MustCompile(`<[^>]+>`)
	spaceRe = regexp.MustCompile(`\s+`)
	// 2~10 位大写字母视为候选 ticker
	tickerRe = regexp.MustCompile(`\b([A-Z]{2,10})\b`)

	positiveWords = []string{"listing", "lists", "listed", "partnership", "launch"}
	negativeWords = []string{"delist", "hack", "suspend"}
)

// StripHTML 去掉标签并压缩空白，保留前 500 字符。
func StripHTML(html string) string {
	text := tagRe.ReplaceAllString(html, " ")
	text = spaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	if len(text) > 500 {
		text = text[:500]
	}
	return text
}

// ExtractTicker 返回文本中第一个候选 ticker，没有则返回空串。
func ExtractTicker(text string) string {
	m := tickerRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// QuickSentiment 基于关键词的情绪判断，negative 优先级低于 positive
// 这里保持与历史行为一致：先查 positive 词表。
func QuickSentiment(text string) Sentiment {
	t := strings.ToLower(text)
	for _, w := range positiveWords {
		if strings.Contains(t, w) {
			return SentimentPositive
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(t, w) {
			return SentimentNegative
		}
	}
	return SentimentNeutral
}

// Parse 从原始 HTML 提取一条新闻；找不到 ticker 返回 nil。
func Parse(html string) *Item {
	title := ""
	if m := titleRe.FindStringSubmatch(html); m != nil {
		title = strings.TrimSpace(StripHTML(m[1]))
	}
	text := title
	if text == "" {
		text = StripHTML(html)
	}

	ticker := ExtractTicker(text)
	if ticker == "" {
		return nil
	}
	return &Item{
		Title:     title,
		Text:      text,
		Ticker:    ticker,
		Sentiment: QuickSentiment(text),
	}
}

// Signal 交易信号。
type Signal struct {
	Ticker   string
	Strength float64
}

// Decide 只对白名单内的正面新闻给出信号；白名单为空表示不过滤。
func Decide(item *Item, whitelist []string) *Signal {
	if item == nil {
		return nil
	}
	ticker := strings.ToUpper(item.Ticker)
	if len(whitelist) > 0 {
		found := false
		for _, w := range whitelist {
			if strings.EqualFold(w, ticker) {
				found = true
				break
			}
		}
		if !found {
			return nil
		}
	}
	if item.Sentiment != SentimentPositive {
		return nil
	}
	return &Signal{Ticker: ticker, Strength: 1.0}
}
