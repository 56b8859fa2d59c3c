package market

// Level 一个盘口档位。
type Level struct {
	Price float64
	Qty   float64
}

// OrderBook 某一时刻的盘口快照，买卖两侧均按最优价在前排序。
// 每个 tick 由行情源新建，核心流程不持久化。
type OrderBook struct {
	Bids []Level
	Asks []Level
}

// BestBid 返回最优买价，空侧返回 0。
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk 返回最优卖价，空侧返回 0。
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// Mid 返回中间价；若缺失任一侧返回 0。
func (ob OrderBook) Mid() float64 {
	bid, ask := ob.BestBid(), ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}
