package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"shipping-bot/internal/rating"
)

const (
	upsRatePath    = "/rating/v1/Shop"
	upsCarrierCode = "UPS"
	upsCarrierName = "UPS"
	tokenLeeway    = 5 * time.Minute
)

// AccountType selects which UPS contract rates a destination.
type AccountType string

const (
	AccountStandard  AccountType = "STANDARD"
	AccountWorldwide AccountType = "WWE"
)

var europeCountries = map[string]struct{}{
	"FR": {}, "DE": {}, "ES": {}, "IT": {}, "PL": {}, "NL": {}, "BE": {}, "AT": {}, "CH": {},
	"SE": {}, "NO": {}, "DK": {}, "FI": {}, "PT": {}, "GR": {}, "IE": {}, "CZ": {}, "HU": {},
	"RO": {}, "BG": {}, "SK": {}, "SI": {}, "HR": {}, "EE": {}, "LV": {}, "LT": {}, "LU": {},
	"CY": {}, "MT": {},
}

var upsServiceNames = map[string]string{
	"01": "UPS Next Day Air",
	"02": "UPS Second Day Air",
	"03": "UPS Ground",
	"07": "UPS Worldwide Express",
	"08": "UPS Worldwide Expedited",
	"11": "UPS Standard",
	"13": "UPS Next Day Air Saver",
	"14": "UPS Next Day Air Early AM",
	"54": "UPS Worldwide Express Plus",
	"65": "UPS Express Saver",
	"92": "UPS SurePost",
	"96": "UPS Worldwide Economy DDU",
}

var (
	europeTransit = map[string]string{"11": "1-3", "07": "1-2", "08": "2-3", "65": "1-2", "01": "1", "02": "2"}
	worldTransit  = map[string]string{"96": "7-14", "07": "3-5", "08": "4-6", "54": "1-3", "11": "5-8"}
)

const defaultTransit = "5-10"

// IsEurope reports whether code is rated through the STANDARD account.
func IsEurope(code string) bool {
	_, ok := europeCountries[strings.ToUpper(code)]
	return ok
}

// AccountFor picks the UPS account used for a destination.
func AccountFor(code string) AccountType {
	if IsEurope(code) {
		return AccountStandard
	}
	return AccountWorldwide
}

// ServiceName returns the display name of a UPS service code.
func ServiceName(code string) string {
	if name, ok := upsServiceNames[code]; ok {
		return name
	}
	return "UPS Service " + code
}

// DeliveryDays estimates transit days for a service code and destination.
func DeliveryDays(serviceCode, country string) string {
	table := worldTransit
	if IsEurope(country) {
		table = europeTransit
	}
	if days, ok := table[serviceCode]; ok {
		return days
	}
	return defaultTransit
}

// UPSAccount holds one set of OAuth client credentials and the shipper number.
type UPSAccount struct {
	ClientID      string
	ClientSecret  string
	AccountNumber string
}

func (a UPSAccount) configured() bool {
	return a.ClientID != "" && a.ClientSecret != "" && a.AccountNumber != ""
}

// Address is a postal address in UPS request form.
type Address struct {
	Lines       []string
	City        string
	PostalCode  string
	CountryCode string
}

// UPSOptions parameterise the UPS Rating API client.
type UPSOptions struct {
	BaseURL     string
	AuthURL     string
	Standard    UPSAccount
	Worldwide   UPSAccount
	ShipperName string
	Origin      Address
	Timeout     time.Duration
	UserAgent   string

	// RequestsPerSecond caps rating calls; zero disables the limit.
	RequestsPerSecond float64
}

type cachedToken struct {
	value     string
	expiresAt time.Time
}

// UPS fetches live rates from the UPS Rating API.
type UPS struct {
	opts    UPSOptions
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
	authURL string
	now     func() time.Time

	mu     sync.Mutex
	tokens map[AccountType]cachedToken
}

// NewUPS constructs a UPS rate source.
func NewUPS(opts UPSOptions, logger zerolog.Logger) *UPS {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://onlinetools.ups.com/api"
	}
	authURL := strings.TrimSpace(opts.AuthURL)
	if authURL == "" {
		authURL = "https://onlinetools.ups.com/security/v1/oauth/token"
	}
	if opts.ShipperName == "" {
		opts.ShipperName = "Shipper"
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &UPS{
		opts:    opts,
		logger:  logger.With().Str("component", "ups_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		baseURL: baseURL,
		authURL: authURL,
		now:     time.Now,
		tokens:  make(map[AccountType]cachedToken),
	}
}

// Name identifies the source in logs.
func (u *UPS) Name() string { return "ups" }

func (u *UPS) account(kind AccountType) UPSAccount {
	if kind == AccountStandard {
		return u.opts.Standard
	}
	return u.opts.Worldwide
}

// FetchRates shops all UPS services for one package to countryCode.
func (u *UPS) FetchRates(ctx context.Context, countryCode string, weightKg decimal.Decimal) ([]rating.Offer, error) {
	if !weightKg.IsPositive() {
		return nil, errors.New("weight must be greater than zero")
	}
	countryCode = strings.ToUpper(strings.TrimSpace(countryCode))
	kind := AccountFor(countryCode)
	acct := u.account(kind)
	if !acct.configured() {
		return nil, fmt.Errorf("ups %s account not configured", kind)
	}

	if err := u.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for ups rate limit: %w", err)
	}

	token, err := u.accessToken(ctx, kind, acct)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(u.rateRequest(acct, countryCode, weightKg))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+upsRatePath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("transId", uuid.NewString())
	req.Header.Set("transactionSrc", "shipquote")
	u.setUserAgent(req)

	u.logger.Debug().Str("account", string(kind)).Str("country", countryCode).Str("weight_kg", weightKg.String()).Msg("requesting ups rates")

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseUPSError(resp.StatusCode, payload)
	}

	var decoded rateResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode ups rate response: %w", err)
	}

	offers := make([]rating.Offer, 0, len(decoded.RateResponse.RatedShipment))
	for _, shipment := range decoded.RateResponse.RatedShipment {
		price, err := decimal.NewFromString(strings.TrimSpace(shipment.TotalCharges.MonetaryValue))
		if err != nil {
			u.logger.Warn().Str("service", shipment.Service.Code).Str("value", shipment.TotalCharges.MonetaryValue).Msg("skipping ups rate with unparsable amount")
			continue
		}
		currency := shipment.TotalCharges.CurrencyCode
		if currency == "" {
			currency = "EUR"
		}
		code := shipment.Service.Code
		offers = append(offers, rating.Offer{
			CarrierCode:  upsCarrierCode,
			CarrierName:  upsCarrierName,
			ServiceCode:  "UPS_" + code,
			ServiceLabel: ServiceName(code),
			Freight:      price,
			Surcharges:   decimal.Zero,
			Total:        price,
			Currency:     currency,
			ScopeCode:    string(kind),
			Source:       rating.SourceRealtime,
			DeliveryDays: DeliveryDays(code, countryCode),
		})
	}

	u.logger.Info().Str("account", string(kind)).Str("country", countryCode).Int("rates", len(offers)).Msg("ups rates fetched")
	return offers, nil
}

func (u *UPS) setUserAgent(req *http.Request) {
	if ua := strings.TrimSpace(u.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "shipquote")
	}
}

// accessToken returns a cached token while it is valid for more than
// tokenLeeway, otherwise performs a client-credentials exchange.
func (u *UPS) accessToken(ctx context.Context, kind AccountType, acct UPSAccount) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if tok, ok := u.tokens[kind]; ok && tok.expiresAt.After(u.now().Add(tokenLeeway)) {
		return tok.value, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(acct.ClientID, acct.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	u.setUserAgent(req)

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ups %s oauth: %w", kind, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ups %s oauth: %w", kind, parseUPSError(resp.StatusCode, payload))
	}

	var tr tokenResponse
	if err := json.Unmarshal(payload, &tr); err != nil {
		return "", fmt.Errorf("decode ups token: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("ups %s oauth: empty access token", kind)
	}
	ttl := 3600
	if n, err := tr.ExpiresIn.Int64(); err == nil && n > 0 {
		ttl = int(n)
	}

	u.tokens[kind] = cachedToken{value: tr.AccessToken, expiresAt: u.now().Add(time.Duration(ttl) * time.Second)}
	u.logger.Info().Str("account", string(kind)).Int("expires_in", ttl).Msg("ups token obtained")
	return tr.AccessToken, nil
}

func (u *UPS) rateRequest(acct UPSAccount, countryCode string, weightKg decimal.Decimal) rateRequestEnvelope {
	origin := addressJSON{
		AddressLine: u.opts.Origin.Lines,
		City:        u.opts.Origin.City,
		PostalCode:  u.opts.Origin.PostalCode,
		CountryCode: u.opts.Origin.CountryCode,
	}
	var env rateRequestEnvelope
	env.RateRequest.Request.RequestOption = "Shop"
	env.RateRequest.Request.TransactionReference.CustomerContext = uuid.NewString()
	env.RateRequest.Shipment = shipmentJSON{
		Shipper: partyJSON{Name: u.opts.ShipperName, ShipperNumber: acct.AccountNumber, Address: origin},
		ShipTo: partyJSON{Name: "Customer", Address: addressJSON{
			City:        "Main City",
			PostalCode:  "00000",
			CountryCode: countryCode,
		}},
		ShipFrom: partyJSON{Name: u.opts.ShipperName, Address: origin},
		Package: []packageJSON{{
			PackagingType: codeJSON{Code: "02", Description: "Customer Supplied Package"},
			Dimensions: dimensionsJSON{
				UnitOfMeasurement: codeJSON{Code: "CM", Description: "Centimeters"},
				Length:            "30",
				Width:             "30",
				Height:            "15",
			},
			PackageWeight: weightJSON{
				UnitOfMeasurement: codeJSON{Code: "KGS", Description: "Kilograms"},
				Weight:            weightKg.String(),
			},
		}},
	}
	return env
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

type codeJSON struct {
	Code        string `json:"Code"`
	Description string `json:"Description,omitempty"`
}

type addressJSON struct {
	AddressLine []string `json:"AddressLine,omitempty"`
	City        string   `json:"City,omitempty"`
	PostalCode  string   `json:"PostalCode,omitempty"`
	CountryCode string   `json:"CountryCode"`
}

type partyJSON struct {
	Name          string      `json:"Name"`
	ShipperNumber string      `json:"ShipperNumber,omitempty"`
	Address       addressJSON `json:"Address"`
}

type dimensionsJSON struct {
	UnitOfMeasurement codeJSON `json:"UnitOfMeasurement"`
	Length            string   `json:"Length"`
	Width             string   `json:"Width"`
	Height            string   `json:"Height"`
}

type weightJSON struct {
	UnitOfMeasurement codeJSON `json:"UnitOfMeasurement"`
	Weight            string   `json:"Weight"`
}

type packageJSON struct {
	PackagingType codeJSON       `json:"PackagingType"`
	Dimensions    dimensionsJSON `json:"Dimensions"`
	PackageWeight weightJSON     `json:"PackageWeight"`
}

type shipmentJSON struct {
	Shipper  partyJSON     `json:"Shipper"`
	ShipTo   partyJSON     `json:"ShipTo"`
	ShipFrom partyJSON     `json:"ShipFrom"`
	Package  []packageJSON `json:"Package"`
}

type rateRequestEnvelope struct {
	RateRequest struct {
		Request struct {
			RequestOption        string `json:"RequestOption"`
			TransactionReference struct {
				CustomerContext string `json:"CustomerContext"`
			} `json:"TransactionReference"`
		} `json:"Request"`
		Shipment shipmentJSON `json:"Shipment"`
	} `json:"RateRequest"`
}

type ratedShipment struct {
	Service      codeJSON `json:"Service"`
	TotalCharges struct {
		CurrencyCode  string `json:"CurrencyCode"`
		MonetaryValue string `json:"MonetaryValue"`
	} `json:"TotalCharges"`
}

// ratedShipments accepts both a single object and an array.
type ratedShipments []ratedShipment

func (r *ratedShipments) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*r = nil
		return nil
	}
	if trimmed[0] == '[' {
		var list []ratedShipment
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		*r = list
		return nil
	}
	var single ratedShipment
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return err
	}
	*r = ratedShipments{single}
	return nil
}

type rateResponse struct {
	RateResponse struct {
		RatedShipment ratedShipments `json:"RatedShipment"`
	} `json:"RateResponse"`
}

type upsErrorResponse struct {
	Response struct {
		Errors []struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"response"`
}

func parseUPSError(status int, payload []byte) error {
	var apiErr upsErrorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil && len(apiErr.Response.Errors) > 0 {
		first := apiErr.Response.Errors[0]
		return fmt.Errorf("ups api error (%d): %s %s", status, first.Code, first.Message)
	}
	if len(payload) > 0 {
		return fmt.Errorf("ups api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("ups api error (%d)", status)
}

var _ RateSource = (*UPS)(nil)
