package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"algoengine/src/asset"
	"algoengine/src/model"
)

func TestHealthcheck(t *testing.T) {
	s := New("0", "", nil)

	recorder := httptest.NewRecorder()
	s.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))

	if recorder.Code != http.StatusOK || recorder.Body.String() != "OK" {
		t.Fatalf("unexpected healthcheck response: %d %q", recorder.Code, recorder.Body.String())
	}
}

func TestStatusReportsAssets(t *testing.T) {
	a := asset.New("btc", "BTCUSDT", "binance")
	a.StartHistoricalFilling()
	a.OnTick(model.Tick{Price: 100, Date: time.Now()})

	s := New("0", "", []*asset.Asset{a})

	recorder := httptest.NewRecorder()
	s.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/status", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status code %d", recorder.Code)
	}

	var payload struct {
		Assets []struct {
			Name              string  `json:"name"`
			Symbol            string  `json:"symbol"`
			HistoricalFilling bool    `json:"historical_filling"`
			LastTickAgeSecs   float64 `json:"last_tick_age_seconds"`
			HasTicked         bool    `json:"has_ticked"`
		} `json:"assets"`
	}
	if err := json.NewDecoder(recorder.Body).Decode(&payload); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(payload.Assets) != 1 {
		t.Fatalf("expected one asset, got %d", len(payload.Assets))
	}

	status := payload.Assets[0]
	if status.Name != "btc" || status.Symbol != "BTCUSDT" {
		t.Fatalf("unexpected asset status: %+v", status)
	}
	if !status.HistoricalFilling || !status.HasTicked {
		t.Fatalf("expected historical filling and ticked flags, got %+v", status)
	}
	if status.LastTickAgeSecs < 0 || status.LastTickAgeSecs > 10 {
		t.Fatalf("unexpected last tick age: %v", status.LastTickAgeSecs)
	}
}

func TestStatusRequiresToken(t *testing.T) {
	s := New("0", "secret", nil)

	recorder := httptest.NewRecorder()
	s.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/status", nil))

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/status", nil)
	request.Header.Set("Authorization", "Bearer wrong")
	s.Handler().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with the wrong token, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	request = httptest.NewRequest(http.MethodGet, "/status", nil)
	request.Header.Set("Authorization", "Bearer secret")
	s.Handler().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 with the right token, got %d", recorder.Code)
	}

	// The healthcheck stays open for load balancers.
	recorder = httptest.NewRecorder()
	s.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected an open healthcheck, got %d", recorder.Code)
	}
}
