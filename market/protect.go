package market

// EnoughDepth 检查到保护价为止的累计深度是否覆盖目标数量。
// side="buy" 沿 asks 走到 <= limitPx；side="sell" 沿 bids 走到 >= limitPx。
func EnoughDepth(ob OrderBook, side string, amount, limitPx float64) bool {
	var total float64
	if side == "buy" {
		for _, lv := range ob.Asks {
			if lv.Price > limitPx {
				break
			}
			total += lv.Qty
			if total >= amount {
				return true
			}
		}
		return false
	}
	for _, lv := range ob.Bids {
		if lv.Price < limitPx {
			break
		}
		total += lv.Qty
		if total >= amount {
			return true
		}
	}
	return false
}

// BandedLimit 以 bps 为带宽构造保护性限价：
// buy: best_ask * (1 + bps/10000)；sell: best_bid / (1 + bps/10000)。
func BandedLimit(bestPx float64, bpsBand float64, side string) float64 {
	k := 1.0 + bpsBand/10000.0
	if side == "buy" {
		return bestPx * k
	}
	return bestPx / k
}
