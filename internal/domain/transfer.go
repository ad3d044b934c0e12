package domain

// Transfer priorities.
const (
	PriorityHigh   = "HIGH"
	PriorityMedium = "MEDIUM"
)

// StockLocation is the stock of one SKU held at one location
type StockLocation struct {
	SKU         string  `json:"sku" db:"sku"`
	Location    string  `json:"location" db:"location"`
	OnHand      float64 `json:"on_hand" db:"on_hand"`
	DailyDemand float64 `json:"daily_demand" db:"daily_demand"`
}

// TransferRecommendation moves stock of a SKU between two locations
type TransferRecommendation struct {
	SKU      string  `json:"sku"`
	From     string  `json:"from_location"`
	To       string  `json:"to_location"`
	Quantity float64 `json:"quantity"`
	Reason   string  `json:"reason"`
	Priority string  `json:"priority"`
}
