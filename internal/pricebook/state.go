package pricebook

import (
	"encoding/json"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

// Entry is the owned, versioned current price of one product.
type Entry struct {
	ProductID string          `json:"product_id"`
	Price     decimal.Decimal `json:"price"`
	Version   int64           `json:"version"`
	UpdatedBy string          `json:"updated_by"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PriceFloat returns the price as a float for analysis code.
func (e Entry) PriceFloat() float64 {
	return e.Price.InexactFloat64()
}

// State is the on-disk form of the price book.
type State struct {
	Entries   map[string]Entry `json:"entries"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// LoadState reads the price book from a JSON file. Returns an empty state if the file doesn't exist.
func LoadState(filePath string) (*State, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{Entries: map[string]Entry{}}, nil
		}
		return nil, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if state.Entries == nil {
		state.Entries = map[string]Entry{}
	}
	return &state, nil
}

// SaveState writes the price book to a JSON file.
func SaveState(filePath string, state *State) error {
	state.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0644)
}
