package service

// Outbox event payloads. Versioned JSON, same shape discipline as
// the trade ticks: consumers key on "type".

type OrderCreatedEvent struct {
	V     int    `json:"v"`
	Type  string `json:"type"` // "sell_created" | "bid_created"
	ID    uint64 `json:"id"`
	Owner string `json:"owner"`
}

type TradeSettledEvent struct {
	V      int    `json:"v"`
	Type   string `json:"type"` // "trade_settled"
	BuyID  uint64 `json:"buy_id"`
	SellID uint64 `json:"sell_id"`
	Buyer  string `json:"buyer"`
	Seller string `json:"seller"`
	Token  string `json:"token"`
	Price  uint64 `json:"price"`
	Amount uint64 `json:"amount"`
}
