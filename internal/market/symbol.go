package market

import "strings"

const defaultQuote = "USDT"

// NormalizeSymbol 把用户输入统一为内部形式：大写、去空白、去掉分隔符前的计价币。
// "btc"、"BTC/USDT"、"BTCUSDT" 都归一为 "BTC"。
func NormalizeSymbol(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if i := strings.IndexAny(s, "/_:"); i > 0 {
		s = s[:i]
	}
	s = strings.TrimSuffix(s, defaultQuote)
	if s == "" {
		return defaultQuote
	}
	return s
}

// BinancePair 把内部 symbol 转成币安交易对（BTC → BTCUSDT）。
func BinancePair(internal string) string {
	base := NormalizeSymbol(internal)
	if base == "" {
		return ""
	}
	return base + defaultQuote
}
