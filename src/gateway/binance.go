package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"algoengine/src/model"
)

// -----------------------------
// CONFIG
// -----------------------------
const (
	binanceFuturesBaseURL        = "https://fapi.binance.com"
	binanceFuturesSandboxBaseURL = "https://testnet.binancefuture.com"
	binanceStreamBaseURL         = "wss://fstream.binance.com"
	binanceStreamSandboxBaseURL  = "wss://stream.binancefuture.com"
)

func init() {
	Register("binance", func() (Gateway, error) {
		return NewBinance(GetConfig()), nil
	})
}

// -----------------------------
// CLIENT
// -----------------------------

// Binance trades USDT-M futures through the fapi REST surface and the
// fstream websocket.
type Binance struct {
	config    Config
	http      *resty.Client
	log       *logrus.Entry
	streamURL string
	now       func() time.Time

	symbolInfo *SymbolInfo
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	return code == 408 || code == 429 || (code >= 500 && code <= 599)
}

func NewBinance(config Config) *Binance {
	baseURL := binanceFuturesBaseURL
	streamURL := binanceStreamBaseURL

	if config.BinanceSandbox {
		baseURL = binanceFuturesSandboxBaseURL
		streamURL = binanceStreamSandboxBaseURL
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(time.Duration(config.HTTPTimeoutSeconds) * time.Second).
		SetRetryCount(config.RetryCount).
		SetRetryWaitTime(time.Duration(config.RetryWaitMillis) * time.Millisecond).
		AddRetryCondition(isRetryableResp)

	return &Binance{
		config:    config,
		http:      httpClient,
		log:       logrus.WithField("component", "binance_gateway"),
		streamURL: streamURL,
		now:       time.Now,
	}
}

func (b *Binance) Name() string { return "binance" }

// SetBaseURL points the client at a different REST endpoint. Used by
// tests to aim at a local server.
func (b *Binance) SetBaseURL(baseURL string) { b.http.SetBaseURL(baseURL) }

// SetStreamURL overrides the websocket endpoint.
func (b *Binance) SetStreamURL(streamURL string) { b.streamURL = streamURL }

func (b *Binance) Setup(ctx context.Context, symbol string) error {
	info, err := b.SymbolInfo(ctx, symbol)
	if err != nil {
		return fmt.Errorf("binance setup: %w", err)
	}

	b.symbolInfo = info

	return nil
}

// -----------------------------
// SIGNING
// -----------------------------

func (b *Binance) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(b.config.BinanceAPISecret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

func (b *Binance) signedQuery(params url.Values) string {
	params.Set("timestamp", strconv.FormatInt(b.now().UnixMilli(), 10))
	query := params.Encode()
	return query + "&signature=" + b.sign(query)
}

func (b *Binance) request(ctx context.Context, method, path, query string, out any) error {
	req := b.http.R().
		SetContext(ctx).
		SetHeader("X-MBX-APIKEY", b.config.BinanceAPIKey)

	requestURL := path
	if query != "" {
		requestURL = path + "?" + query
	}

	resp, err := req.Execute(method, requestURL)
	if err != nil {
		return fmt.Errorf("binance %s %s: %w", method, path, err)
	}

	if resp.StatusCode() >= 400 {
		var payload any
		if jsonErr := json.Unmarshal(resp.Body(), &payload); jsonErr == nil {
			if failed, message, code := HasAPIError(payload); failed {
				return fmt.Errorf("binance %s %s: api error %d: %s", method, path, code, message)
			}
		}
		return fmt.Errorf("binance %s %s: status %d", method, path, resp.StatusCode())
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("binance %s %s: decode response: %w", method, path, err)
	}

	return nil
}

// -----------------------------
// KLINES
// -----------------------------

// Klines pages through /fapi/v1/klines in chronological order. The
// cursor advances past the last candle's close time; an empty page ends
// the walk. A short pause between pages keeps request weight low.
func (b *Binance) Klines(ctx context.Context, symbol string, timeframe model.Timeframe, from, to time.Time, fn KlinesFunc) error {
	cursor := from.UnixMilli()
	end := to.UnixMilli()
	pause := time.Duration(b.config.KlinePagePauseMills) * time.Millisecond

	for cursor < end {
		params := url.Values{}
		params.Set("symbol", symbol)
		params.Set("interval", string(timeframe))
		params.Set("startTime", strconv.FormatInt(cursor, 10))
		params.Set("endTime", strconv.FormatInt(end, 10))
		params.Set("limit", strconv.Itoa(b.config.KlinePageLimit))

		var rows [][]any
		if err := b.request(ctx, resty.MethodGet, "/fapi/v1/klines", params.Encode(), &rows); err != nil {
			return err
		}

		if len(rows) == 0 {
			return nil
		}

		klines := b.adaptKlines(rows, symbol)
		if len(klines) == 0 {
			// Every row on the page was malformed. Nothing to advance on.
			return nil
		}

		if err := fn(klines); err != nil {
			return err
		}

		lastClose := klines[len(klines)-1].CloseTime * 1000
		if lastClose <= cursor {
			return nil
		}
		cursor = lastClose + 1

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
	}

	return nil
}

func (b *Binance) adaptKlines(rows [][]any, symbol string) []Kline {
	klines := make([]Kline, 0, len(rows))

	for _, row := range rows {
		if len(row) < 11 {
			continue
		}

		klines = append(klines, Kline{
			Source:      b.Name(),
			Symbol:      symbol,
			OpenTime:    ParseInt(row[0]) / 1000,
			Open:        ParseFloat(row[1]),
			High:        ParseFloat(row[2]),
			Low:         ParseFloat(row[3]),
			Close:       ParseFloat(row[4]),
			Volume:      ParseFloat(row[5]),
			CloseTime:   ParseInt(row[6]) / 1000,
			QuoteVolume: ParseFloat(row[7]),
			Trades:      ParseInt(row[8]),
		})
	}

	return klines
}

// -----------------------------
// ORDERS
// -----------------------------

type binanceOrderResponse struct {
	OrderID     int64  `json:"orderId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Price       string `json:"price"`
	AvgPrice    string `json:"avgPrice"`
	OrigQty     string `json:"origQty"`
	ExecutedQty string `json:"executedQty"`
}

// roundQuantity conforms a quantity to the LOT_SIZE step, falling back
// to the symbol's quantity precision when the filter carries no step.
func (b *Binance) roundQuantity(volume float64) float64 {
	if b.symbolInfo == nil {
		return volume
	}

	if b.symbolInfo.StepSize > 0 {
		return RoundToStep(volume, b.symbolInfo.StepSize)
	}

	return RoundToPrecision(volume, b.symbolInfo.QuantityPrecision)
}

// roundPrice conforms a price to the PRICE_FILTER tick, falling back to
// the symbol's price precision.
func (b *Binance) roundPrice(price float64) float64 {
	if b.symbolInfo == nil {
		return price
	}

	if b.symbolInfo.TickSize > 0 {
		return RoundToStep(price, b.symbolInfo.TickSize)
	}

	return RoundToPrecision(price, b.symbolInfo.PricePrecision)
}

func (b *Binance) OpenOrder(ctx context.Context, order *model.Order) (*Order, error) {
	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", string(order.Side))
	params.Set("newOrderRespType", "RESULT")

	volume := b.roundQuantity(order.Volume)
	price := b.roundPrice(order.Price)

	if order.Type == model.OrderTypeLimit {
		params.Set("type", "LIMIT")
		params.Set("timeInForce", "GTC")
		params.Set("price", strconv.FormatFloat(price, 'f', -1, 64))
	} else {
		params.Set("type", "MARKET")
	}

	params.Set("quantity", strconv.FormatFloat(volume, 'f', -1, 64))

	var response binanceOrderResponse
	if err := b.request(ctx, resty.MethodPost, "/fapi/v1/order", b.signedQuery(params), &response); err != nil {
		return nil, err
	}

	return b.adaptOrder(response), nil
}

// CloseOrder flattens the position held by order with an opposing
// reduce-only MARKET order.
func (b *Binance) CloseOrder(ctx context.Context, order *model.Order) (*Order, error) {
	volume := order.ExecutedVolume
	if volume == 0 {
		volume = order.Volume
	}
	volume = b.roundQuantity(volume)

	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", string(order.Side.Opposite()))
	params.Set("type", "MARKET")
	params.Set("reduceOnly", "true")
	params.Set("newOrderRespType", "RESULT")
	params.Set("quantity", strconv.FormatFloat(volume, 'f', -1, 64))

	var response binanceOrderResponse
	if err := b.request(ctx, resty.MethodPost, "/fapi/v1/order", b.signedQuery(params), &response); err != nil {
		return nil, err
	}

	return b.adaptOrder(response), nil
}

func (b *Binance) CancelOrder(ctx context.Context, order *model.Order) error {
	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("orderId", order.GatewayID)

	return b.request(ctx, resty.MethodDelete, "/fapi/v1/order", b.signedQuery(params), nil)
}

func (b *Binance) GetOrder(ctx context.Context, symbol, gatewayID string) (*Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", gatewayID)

	var response binanceOrderResponse
	if err := b.request(ctx, resty.MethodGet, "/fapi/v1/order", b.signedQuery(params), &response); err != nil {
		if strings.Contains(err.Error(), "-2013") {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	return b.adaptOrder(response), nil
}

func (b *Binance) GetOrders(ctx context.Context, symbol string) ([]Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var responses []binanceOrderResponse
	if err := b.request(ctx, resty.MethodGet, "/fapi/v1/openOrders", b.signedQuery(params), &responses); err != nil {
		return nil, err
	}

	orders := make([]Order, 0, len(responses))
	for _, response := range responses {
		orders = append(orders, *b.adaptOrder(response))
	}

	return orders, nil
}

func (b *Binance) adaptOrder(response binanceOrderResponse) *Order {
	side := model.OrderSideBuy
	if strings.EqualFold(response.Side, "SELL") {
		side = model.OrderSideSell
	}

	return &Order{
		ID:             strconv.FormatInt(response.OrderID, 10),
		Symbol:         response.Symbol,
		Side:           side,
		Type:           mapOrderType(response.Type),
		Status:         MapOrderStatus(response.Status),
		Price:          ParseFloat(response.Price),
		AveragePrice:   ParseFloat(response.AvgPrice),
		Volume:         ParseFloat(response.OrigQty),
		ExecutedVolume: ParseFloat(response.ExecutedQty),
	}
}

func mapOrderType(value string) model.OrderType {
	switch strings.ToUpper(value) {
	case "LIMIT":
		return model.OrderTypeLimit
	case "STOP", "STOP_MARKET":
		return model.OrderTypeStopLoss
	case "TAKE_PROFIT", "TAKE_PROFIT_MARKET":
		return model.OrderTypeTakeProfit
	default:
		return model.OrderTypeMarket
	}
}

// MapOrderStatus maps exchange order states onto the engine's machine.
// Unknown states are treated as still in flight.
func MapOrderStatus(value string) model.OrderStatus {
	switch strings.ToUpper(value) {
	case "NEW", "PARTIALLY_FILLED":
		return model.OrderStatusOpening
	case "FILLED":
		return model.OrderStatusOpen
	case "CANCELED", "PENDING_CANCEL", "REJECTED", "EXPIRED":
		return model.OrderStatusCancelled
	default:
		return model.OrderStatusOpening
	}
}

// -----------------------------
// ACCOUNT AND METADATA
// -----------------------------

func (b *Binance) Account(ctx context.Context) (*Account, error) {
	var response struct {
		TotalWalletBalance          string `json:"totalWalletBalance"`
		TotalMarginBalance          string `json:"totalMarginBalance"`
		TotalUnrealizedProfit       string `json:"totalUnrealizedProfit"`
		TotalPositionInitialMargin  string `json:"totalPositionInitialMargin"`
		TotalOpenOrderInitialMargin string `json:"totalOpenOrderInitialMargin"`
		Assets                      []struct {
			Asset         string `json:"asset"`
			WalletBalance string `json:"walletBalance"`
			Locked        string `json:"locked"`
		} `json:"assets"`
	}

	if err := b.request(ctx, resty.MethodGet, "/fapi/v2/account", b.signedQuery(url.Values{}), &response); err != nil {
		return nil, err
	}

	account := &Account{
		Balance:  ParseFloat(response.TotalWalletBalance),
		NAV:      ParseFloat(response.TotalMarginBalance),
		PNL:      ParseFloat(response.TotalUnrealizedProfit),
		Margin:   ParseFloat(response.TotalPositionInitialMargin),
		Exposure: ParseFloat(response.TotalPositionInitialMargin),
		Locked:   ParseFloat(response.TotalOpenOrderInitialMargin),
	}

	for _, asset := range response.Assets {
		account.Balances = append(account.Balances, AccountBalance{
			Asset:   asset.Asset,
			Balance: ParseFloat(asset.WalletBalance),
			Locked:  ParseFloat(asset.Locked),
		})
	}

	return account, nil
}

func (b *Binance) SymbolInfo(ctx context.Context, symbol string) (*SymbolInfo, error) {
	var response struct {
		Symbols []struct {
			Symbol                string `json:"symbol"`
			BaseAsset             string `json:"baseAsset"`
			QuoteAsset            string `json:"quoteAsset"`
			PricePrecision        int    `json:"pricePrecision"`
			QuantityPrecision     int    `json:"quantityPrecision"`
			Status                string `json:"status"`
			RequiredMarginPercent string `json:"requiredMarginPercent"`
			Filters               []map[string]any `json:"filters"`
		} `json:"symbols"`
	}

	params := url.Values{}
	params.Set("symbol", symbol)

	if err := b.request(ctx, resty.MethodGet, "/fapi/v1/exchangeInfo", params.Encode(), &response); err != nil {
		return nil, err
	}

	for _, s := range response.Symbols {
		if !strings.EqualFold(s.Symbol, symbol) {
			continue
		}

		info := &SymbolInfo{
			Symbol:            s.Symbol,
			BaseAsset:         s.BaseAsset,
			QuoteAsset:        s.QuoteAsset,
			PricePrecision:    s.PricePrecision,
			QuantityPrecision: s.QuantityPrecision,
			MarginPercent:     ParsePercentage(s.RequiredMarginPercent),
			Status:            s.Status,
		}

		for _, filter := range s.Filters {
			switch filter["filterType"] {
			case "PRICE_FILTER":
				info.MinPrice = ParseOptionalFloat(filter["minPrice"])
				info.MaxPrice = ParseOptionalFloat(filter["maxPrice"])
				info.TickSize = ParseOptionalFloat(filter["tickSize"])
			case "LOT_SIZE":
				info.MinQuantity = ParseOptionalFloat(filter["minQty"])
				info.MaxQuantity = ParseOptionalFloat(filter["maxQty"])
				info.StepSize = ParseOptionalFloat(filter["stepSize"])
			case "MIN_NOTIONAL":
				info.MinNotional = ParseOptionalFloat(filter["notional"])
			}
		}

		return info, nil
	}

	return nil, ErrSymbolNotFound
}

func (b *Binance) TradingFees(ctx context.Context, symbol string) (*TradingFees, error) {
	var response struct {
		Symbol              string `json:"symbol"`
		MakerCommissionRate string `json:"makerCommissionRate"`
		TakerCommissionRate string `json:"takerCommissionRate"`
	}

	params := url.Values{}
	params.Set("symbol", symbol)

	if err := b.request(ctx, resty.MethodGet, "/fapi/v1/commissionRate", b.signedQuery(params), &response); err != nil {
		return nil, err
	}

	return &TradingFees{
		Symbol:          response.Symbol,
		MakerCommission: ParseFloat(response.MakerCommissionRate),
		TakerCommission: ParseFloat(response.TakerCommissionRate),
	}, nil
}

func (b *Binance) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))

	return b.request(ctx, resty.MethodPost, "/fapi/v1/leverage", b.signedQuery(params), nil)
}

// Verify is the production preflight: the account must answer and the
// symbol must be tradable.
func (b *Binance) Verify(ctx context.Context, symbol string) error {
	if b.config.BinanceAPIKey == "" || b.config.BinanceAPISecret == "" {
		return fmt.Errorf("binance verify: missing api credentials")
	}

	info, err := b.SymbolInfo(ctx, symbol)
	if err != nil {
		return fmt.Errorf("binance verify: %w", err)
	}

	if !info.Tradable() {
		return fmt.Errorf("binance verify: symbol %s is not tradable (status %s)", symbol, info.Status)
	}

	if _, err := b.Account(ctx); err != nil {
		return fmt.Errorf("binance verify: %w", err)
	}

	return nil
}
