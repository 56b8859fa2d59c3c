package spread

// Direction 表示跨所套利方向。
type Direction string

const (
	// BuyASellB 在 A 所买入、B 所卖出
	BuyASellB Direction = "buy_a_sell_b"
	// BuyBSellA 在 B 所买入、A 所卖出
	BuyBSellA Direction = "buy_b_sell_a"
)

// Input 两个交易所的最优买卖价及费用假设。
type Input struct {
	BidA float64
	AskA float64
	BidB float64
	AskB float64

	TakerFeeBps float64 // 卖出侧 taker 手续费（bps）
	SlippageBps float64 // 买入侧滑点保护（bps）
}

// Opportunity 单方向的套利机会，由一对报价纯函数推导，计算后不再修改。
type Opportunity struct {
	Direction Direction
	SpreadBps float64
}

// Qualifies 判断价差是否达到配置的最小阈值。
func (o Opportunity) Qualifies(minBps float64) bool {
	return o.SpreadBps >= minBps
}

func bps(x float64) float64 { return x * 10000.0 }

// Compute 计算两个方向的价差（bps）。
// 有效买价 = ask * (1 + slippage)，有效卖价 = bid * (1 - takerFee)，
// spread = (sell - buy) / buy。纯函数，无 I/O，两个方向都返回，由调用方筛选。
func Compute(in Input) (Opportunity, Opportunity) {
	buyA := in.AskA * (1 + in.SlippageBps/10000.0)
	sellB := in.BidB * (1 - in.TakerFeeBps/10000.0)
	s1 := bps((sellB - buyA) / buyA)

	buyB := in.AskB * (1 + in.SlippageBps/10000.0)
	sellA := in.BidA * (1 - in.TakerFeeBps/10000.0)
	s2 := bps((sellA - buyB) / buyB)

	return Opportunity{Direction: BuyASellB, SpreadBps: s1},
		Opportunity{Direction: BuyBSellA, SpreadBps: s2}
}
