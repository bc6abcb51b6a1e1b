package fetcher

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"shipping-bot/internal/rating"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

var testAccounts = UPSOptions{
	Standard:  UPSAccount{ClientID: "std-id", ClientSecret: "std-secret", AccountNumber: "STD001"},
	Worldwide: UPSAccount{ClientID: "wwe-id", ClientSecret: "wwe-secret", AccountNumber: "WWE001"},
	Origin:    Address{City: "PARIS", PostalCode: "75018", CountryCode: "FR"},
	Timeout:   time.Second,
}

type upsStub struct {
	server     *httptest.Server
	tokenCalls atomic.Int32
	rateCalls  atomic.Int32
	lastShip   atomic.Value
	rateBody   string
	rateStatus int
}

func newUPSStub(t *testing.T, rateBody string) *upsStub {
	t.Helper()
	stub := &upsStub{rateBody: rateBody, rateStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth", func(w http.ResponseWriter, r *http.Request) {
		stub.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || pass == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"access_token": "token-" + user,
			"expires_in":   "3600",
		})
	})
	mux.HandleFunc(upsRatePath, func(w http.ResponseWriter, r *http.Request) {
		stub.rateCalls.Add(1)
		body, _ := io.ReadAll(r.Body)
		var env rateRequestEnvelope
		if err := json.Unmarshal(body, &env); err == nil {
			stub.lastShip.Store(env.RateRequest.Shipment.Shipper.ShipperNumber + "|" + r.Header.Get("Authorization"))
		}
		w.WriteHeader(stub.rateStatus)
		_, _ = io.WriteString(w, stub.rateBody)
	})
	stub.server = httptest.NewServer(mux)
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *upsStub) client() *UPS {
	opts := testAccounts
	opts.BaseURL = s.server.URL
	opts.AuthURL = s.server.URL + "/oauth"
	return NewUPS(opts, noopLogger())
}

const shopResponseList = `{"RateResponse":{"RatedShipment":[
  {"Service":{"Code":"11"},"TotalCharges":{"CurrencyCode":"EUR","MonetaryValue":"18.40"}},
  {"Service":{"Code":"07"},"TotalCharges":{"CurrencyCode":"EUR","MonetaryValue":"42.10"}},
  {"Service":{"Code":"99"},"TotalCharges":{"CurrencyCode":"EUR","MonetaryValue":"n/a"}}
]}}`

const shopResponseSingle = `{"RateResponse":{"RatedShipment":
  {"Service":{"Code":"96"},"TotalCharges":{"CurrencyCode":"USD","MonetaryValue":"55.00"}}
}}`

func TestUPSFetchRatesEurope(t *testing.T) {
	stub := newUPSStub(t, shopResponseList)
	ups := stub.client()

	offers, err := ups.FetchRates(context.Background(), "de", decimal.RequireFromString("2"))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(offers) != 2 {
		t.Fatalf("expected 2 parsable offers, got %d", len(offers))
	}

	std := offers[0]
	if std.ServiceCode != "UPS_11" || std.ServiceLabel != "UPS Standard" {
		t.Fatalf("unexpected service %s %s", std.ServiceCode, std.ServiceLabel)
	}
	if !std.Total.Equal(decimal.RequireFromString("18.40")) || !std.Freight.Equal(std.Total) {
		t.Fatalf("unexpected amounts %+v", std)
	}
	if std.Source != rating.SourceRealtime || std.DeliveryDays != "1-3" || std.ScopeCode != string(AccountStandard) {
		t.Fatalf("unexpected metadata %+v", std)
	}
	if got := stub.lastShip.Load(); got != "STD001|Bearer token-std-id" {
		t.Fatalf("europe must use the STANDARD account, got %v", got)
	}
}

func TestUPSFetchRatesWorldwideSingleObject(t *testing.T) {
	stub := newUPSStub(t, shopResponseSingle)
	ups := stub.client()

	offers, err := ups.FetchRates(context.Background(), "JP", decimal.RequireFromString("1.5"))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("expected 1 offer, got %d", len(offers))
	}
	if offers[0].Currency != "USD" || offers[0].DeliveryDays != "7-14" {
		t.Fatalf("unexpected offer %+v", offers[0])
	}
	if got := stub.lastShip.Load(); got != "WWE001|Bearer token-wwe-id" {
		t.Fatalf("non-europe must use the WWE account, got %v", got)
	}
}

func TestUPSTokenCached(t *testing.T) {
	stub := newUPSStub(t, shopResponseList)
	ups := stub.client()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	ups.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if _, err := ups.FetchRates(context.Background(), "FR", decimal.NewFromInt(1)); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if got := stub.tokenCalls.Load(); got != 1 {
		t.Fatalf("token should be cached, got %d exchanges", got)
	}

	// Within five minutes of expiry the token is refreshed.
	now = now.Add(56 * time.Minute)
	if _, err := ups.FetchRates(context.Background(), "FR", decimal.NewFromInt(1)); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := stub.tokenCalls.Load(); got != 2 {
		t.Fatalf("token should be refreshed near expiry, got %d exchanges", got)
	}
}

func TestUPSFetchRatesHTTPError(t *testing.T) {
	stub := newUPSStub(t, `{"response":{"errors":[{"code":"111210","message":"The requested service is unavailable"}]}}`)
	stub.rateStatus = http.StatusBadRequest
	ups := stub.client()

	_, err := ups.FetchRates(context.Background(), "US", decimal.NewFromInt(1))
	if err == nil {
		t.Fatal("HTTP 400 should return an error")
	}
	if want := "ups api error (400): 111210 The requested service is unavailable"; err.Error() != want {
		t.Fatalf("error = %q, want %q", err.Error(), want)
	}
}

func TestUPSFetchRatesRequiresAccount(t *testing.T) {
	stub := newUPSStub(t, shopResponseList)
	opts := testAccounts
	opts.Worldwide = UPSAccount{}
	opts.BaseURL = stub.server.URL
	opts.AuthURL = stub.server.URL + "/oauth"
	ups := NewUPS(opts, noopLogger())

	if _, err := ups.FetchRates(context.Background(), "US", decimal.NewFromInt(1)); err == nil {
		t.Fatal("missing WWE credentials should fail")
	}
	if stub.tokenCalls.Load() != 0 {
		t.Fatal("no oauth exchange expected without credentials")
	}
	if _, err := ups.FetchRates(context.Background(), "FR", decimal.Zero); err == nil {
		t.Fatal("zero weight should fail")
	}
}

func TestDeliveryDaysAndNames(t *testing.T) {
	cases := []struct {
		service, country, want string
	}{
		{"11", "FR", "1-3"},
		{"11", "US", "5-8"},
		{"07", "IT", "1-2"},
		{"54", "JP", "1-3"},
		{"96", "AU", "7-14"},
		{"03", "US", "5-10"},
	}
	for _, tc := range cases {
		if got := DeliveryDays(tc.service, tc.country); got != tc.want {
			t.Errorf("DeliveryDays(%s, %s) = %s, want %s", tc.service, tc.country, got, tc.want)
		}
	}
	if ServiceName("65") != "UPS Express Saver" || ServiceName("42") != "UPS Service 42" {
		t.Fatal("unexpected service names")
	}
	if AccountFor("ch") != AccountStandard || AccountFor("GB") != AccountWorldwide {
		t.Fatal("unexpected account routing")
	}
}

func TestUPSRateLimitHonoursContext(t *testing.T) {
	stub := newUPSStub(t, shopResponseList)
	opts := testAccounts
	opts.BaseURL = stub.server.URL
	opts.AuthURL = stub.server.URL + "/oauth"
	opts.RequestsPerSecond = 0.001
	ups := NewUPS(opts, noopLogger())

	if _, err := ups.FetchRates(context.Background(), "DE", decimal.RequireFromString("1")); err != nil {
		t.Fatalf("first call should pass the limiter: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := ups.FetchRates(ctx, "DE", decimal.RequireFromString("1")); err == nil {
		t.Fatal("second call should be held by the limiter until the deadline")
	}
	if got := stub.rateCalls.Load(); got != 1 {
		t.Fatalf("expected 1 rate call, got %d", got)
	}
}
