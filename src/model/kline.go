package model

// Kline is one OHLCV candle as stored in the local tick cache. OpenTime
// and CloseTime are unix seconds.
type Kline struct {
	ID          uint    `gorm:"primaryKey"`
	Source      string  `json:"source"    gorm:"type:varchar(30);not null;uniqueIndex:ux_klines_source_symbol_open,priority:1"`
	Symbol      string  `json:"symbol"    gorm:"type:varchar(50);not null;uniqueIndex:ux_klines_source_symbol_open,priority:2;index:idx_klines_symbol_open,priority:1"`
	OpenTime    int64   `json:"open_time" gorm:"not null;uniqueIndex:ux_klines_source_symbol_open,priority:3;index:idx_klines_symbol_open,priority:2"`
	CloseTime   int64   `json:"close_time" gorm:"not null"`
	Open        float64 `json:"open"   gorm:"type:double precision;not null"`
	High        float64 `json:"high"   gorm:"type:double precision;not null"`
	Low         float64 `json:"low"    gorm:"type:double precision;not null"`
	Close       float64 `json:"close"  gorm:"type:double precision;not null"`
	Volume      float64 `json:"volume" gorm:"type:double precision;not null"`
	QuoteVolume float64 `json:"quote_volume" gorm:"type:double precision"`
	Trades      int64   `json:"trades"`
}

func (Kline) TableName() string {
	return "klines"
}
