package domain

import "time"

// ChatMessage is a message posted in a market's discussion thread.
type ChatMessage struct {
	ID          int64     `json:"id"`
	MarketID    int64     `json:"market_id"`
	UserAddress string    `json:"user_address"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}

// InfoNote is a curated note with an optional source link.
type InfoNote struct {
	ID          int64     `json:"id"`
	MarketID    int64     `json:"market_id"`
	UserAddress string    `json:"user_address"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	LinkURL     string    `json:"link_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
