package model

// CompetitivePosition places the user price among current competitor prices.
type CompetitivePosition struct {
	ProductID       string  `json:"product_id"`
	UserPrice       float64 `json:"user_price"`
	Rank            int     `json:"rank"`
	Count           int     `json:"count"`
	Percentile      float64 `json:"percentile"`
	Min             float64 `json:"min"`
	Max             float64 `json:"max"`
	Median          float64 `json:"median"`
	Q1              float64 `json:"q1"`
	Q3              float64 `json:"q3"`
	Mean            float64 `json:"mean"`
	GapPct          float64 `json:"gap_pct"`
	GapFlagged      bool    `json:"gap_flagged"`
	CompetitorCount int     `json:"competitor_count"`
}
