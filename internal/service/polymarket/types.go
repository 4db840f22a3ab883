package polymarket

import (
	"bytes"
	"context"
	"strconv"
)

// Service is the slice of the Polymarket public APIs the monitors consume.
type Service interface {
	// GetPositions returns the wallet's open positions.
	GetPositions(ctx context.Context, wallet string) ([]Position, error)
	// GetMidpoint returns the current mid-market price of a token.
	GetMidpoint(ctx context.Context, tokenID string) (float64, error)
	// GetActivity returns the wallet's on-chain activity, newest first.
	// since is a unix-seconds timestamp; empty means no lower bound.
	GetActivity(ctx context.Context, wallet string, since string, limit int) ([]Activity, error)
}

// Position is one held outcome token as reported by the data API.
type Position struct {
	TokenID      string  `json:"asset"`
	ConditionID  string  `json:"conditionId"`
	Title        string  `json:"title"`
	Outcome      string  `json:"outcome"`
	Size         float64 `json:"size"`
	CurrentValue float64 `json:"currentValue"`
	InitialValue float64 `json:"initialValue"`
	CurPrice     float64 `json:"curPrice"`
	EventSlug    string  `json:"eventSlug"`
	EventTitle   string  `json:"eventTitle"`
}

// Activity is one on-chain action of a wallet.
type Activity struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	Side            string    `json:"side"`
	Title           string    `json:"title"`
	Outcome         string    `json:"outcome"`
	EventSlug       string    `json:"eventSlug"`
	EventTitle      string    `json:"eventTitle"`
	Tokens          float64   `json:"size"`
	Cash            float64   `json:"usdcSize"`
	Price           float64   `json:"price"`
	Timestamp       Timestamp `json:"timestamp"`
	TransactionHash string    `json:"transactionHash"`
	ConditionID     string    `json:"conditionId"`
}

// Timestamp is a unix-seconds timestamp that the data API returns either as a
// JSON number or as a string.
type Timestamp string

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if string(b) == "null" {
		*t = ""
		return nil
	}
	*t = Timestamp(b)
	return nil
}

// Int returns the timestamp as an integer; malformed values compare as 0.
func (t Timestamp) Int() int64 {
	n, err := strconv.ParseInt(string(t), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
