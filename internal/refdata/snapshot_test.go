package refdata

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func baseTables() Tables {
	return Tables{
		Carriers: []Carrier{{ID: 1, Code: "SPRING", Name: "Spring", Currency: "EUR"}},
		Services: []Service{
			{ID: 10, CarrierID: 1, Code: "SPRING_EU", Label: "Spring EU", MaxWeightKg: d("30")},
			{ID: 11, CarrierID: 1, Code: "SPRING_FR", Label: "Spring FR", MaxWeightKg: d("30")},
		},
		Scopes: []TariffScope{
			{ID: 100, ServiceID: 10, Code: "ROW", CatchAll: true},
			{ID: 101, ServiceID: 10, Code: "DE"},
			{ID: 110, ServiceID: 11, Code: "FR"},
		},
		ScopeCountries: []ScopeCountry{
			{ScopeID: 100, CountryISO2: "DE"},
			{ScopeID: 100, CountryISO2: "AT"},
			{ScopeID: 101, CountryISO2: "de"},
			{ScopeID: 110, CountryISO2: "FR"},
		},
		Bands: []TariffBand{
			{ID: 2, ScopeID: 101, MinWeightKg: d("2.001"), MaxWeightKg: d("5"), BaseAmount: d("8"), AmountPerKg: d("0")},
			{ID: 1, ScopeID: 101, MinWeightKg: d("0"), MaxWeightKg: d("2"), BaseAmount: d("5.2"), AmountPerKg: d("9.5")},
			{ID: 3, ScopeID: 100, MinWeightKg: d("0"), MaxWeightKg: d("30"), BaseAmount: d("10"), AmountPerKg: d("1")},
			{ID: 4, ScopeID: 110, MinWeightKg: d("0"), MaxWeightKg: d("30"), BaseAmount: d("4"), AmountPerKg: d("0")},
		},
		Surcharges: []SurchargeRule{
			{ID: 1, ServiceID: 10, Name: "FUEL", Kind: KindPercent, Basis: BasisFreight, Value: d("5")},
		},
		Restrictions: []Restriction{
			{ServiceCode: "SPRING_EU", CountryISO2: "at", Status: "SUSPENDED", Message: "paused"},
		},
	}
}

func mustBuild(t *testing.T, tables Tables) (*Snapshot, Report) {
	t.Helper()
	snap, report, err := Build(tables)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return snap, report
}

func TestScopeForPrefersSpecificOverCatchAll(t *testing.T) {
	snap, _ := mustBuild(t, baseTables())

	cases := []struct {
		country string
		want    string
	}{
		{"DE", "DE"},
		{"de", "DE"},
		{"JP", "ROW"},
		{"AT", "ROW"},
	}
	for _, tc := range cases {
		scope, ok := snap.ScopeFor(10, tc.country)
		if !ok {
			t.Fatalf("ScopeFor(10, %s) found nothing", tc.country)
		}
		if scope.Code != tc.want {
			t.Errorf("ScopeFor(10, %s) = %s, want %s", tc.country, scope.Code, tc.want)
		}
	}
}

func TestScopeForSpecificRegisteredFirst(t *testing.T) {
	tables := baseTables()
	tables.Scopes[0], tables.Scopes[1] = tables.Scopes[1], tables.Scopes[0]
	snap, _ := mustBuild(t, tables)

	scope, ok := snap.ScopeFor(10, "DE")
	if !ok || scope.Code != "DE" {
		t.Fatalf("catch-all registered later must not replace specific scope, got %q", scope.Code)
	}
}

func TestScopeForWithoutCatchAll(t *testing.T) {
	snap, _ := mustBuild(t, baseTables())

	if _, ok := snap.ScopeFor(11, "JP"); ok {
		t.Fatal("service without catch-all should not cover JP")
	}
	if sc, ok := snap.ScopeFor(11, "FR"); !ok || sc.Code != "FR" {
		t.Fatalf("expected FR scope, got %q", sc.Code)
	}
	if _, ok := snap.ScopeFor(999, "FR"); ok {
		t.Fatal("unknown service should have no scope")
	}
}

func TestBandsSortedByMinWeight(t *testing.T) {
	snap, report := mustBuild(t, baseTables())

	scope, _ := snap.ScopeFor(10, "DE")
	if len(scope.Bands) != 2 {
		t.Fatalf("expected 2 bands, got %d", len(scope.Bands))
	}
	if scope.Bands[0].ID != 1 || scope.Bands[1].ID != 2 {
		t.Fatalf("bands not sorted: %d, %d", scope.Bands[0].ID, scope.Bands[1].ID)
	}
	if len(report.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", report.Warnings)
	}
}

func TestOverlappingBandsReported(t *testing.T) {
	tables := baseTables()
	tables.Bands[0].MinWeightKg = d("2")
	_, report := mustBuild(t, tables)

	if len(report.Warnings) != 1 || !strings.Contains(report.Warnings[0], "overlaps") {
		t.Fatalf("expected overlap warning, got %v", report.Warnings)
	}
	if report.Degraded {
		t.Fatal("band overlap must not mark the load as degraded")
	}
}

func TestRestrictionFor(t *testing.T) {
	snap, _ := mustBuild(t, baseTables())

	r, ok := snap.RestrictionFor("SPRING_EU", "AT")
	if !ok {
		t.Fatal("restriction not found")
	}
	if !r.Suspended() {
		t.Fatal("SUSPENDED status should be treated as suspended")
	}
	if _, ok := snap.RestrictionFor("SPRING_EU", "DE"); ok {
		t.Fatal("no restriction expected for DE")
	}
}

func TestBuildRejectsInconsistentTables(t *testing.T) {
	cases := map[string]func(*Tables){
		"unknown carrier": func(tb *Tables) { tb.Services[0].CarrierID = 9 },
		"duplicate service": func(tb *Tables) {
			tb.Services[1].ID = 10
		},
		"specific scope without countries": func(tb *Tables) {
			tb.Scopes = append(tb.Scopes, TariffScope{ID: 103, ServiceID: 10, Code: "EMPTY"})
		},
		"membership of unknown scope": func(tb *Tables) {
			tb.ScopeCountries = append(tb.ScopeCountries, ScopeCountry{ScopeID: 999, CountryISO2: "JP"})
		},
		"inverted band": func(tb *Tables) {
			tb.Bands[0].MinWeightKg = d("9")
		},
		"surcharge of unknown service": func(tb *Tables) {
			tb.Surcharges[0].ServiceID = 77
		},
		"no carriers": func(tb *Tables) {
			tb.Carriers = nil
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			tables := baseTables()
			mutate(&tables)
			snap, _, err := Build(tables)
			if err == nil {
				t.Fatal("expected build error")
			}
			if snap != nil {
				t.Fatal("failed build must not return a snapshot")
			}
			var loadErr *LoadError
			if !errors.As(err, &loadErr) {
				t.Fatalf("expected *LoadError, got %T", err)
			}
		})
	}
}

func TestSecondCatchAllKeepsFirst(t *testing.T) {
	tables := baseTables()
	tables.Scopes = append(tables.Scopes, TariffScope{ID: 102, ServiceID: 10, Code: "ROW2", CatchAll: true})
	snap, report := mustBuild(t, tables)

	if sc, ok := snap.ScopeFor(10, "JP"); !ok || sc.Code != "ROW" {
		t.Fatalf("first catch-all should win, got %q", sc.Code)
	}
	if len(report.Warnings) == 0 || !strings.Contains(strings.Join(report.Warnings, "\n"), "ROW2 ignored") {
		t.Fatalf("expected warning about ROW2, got %v", report.Warnings)
	}
	if report.Degraded {
		t.Fatal("a shadowed catch-all is a warning, not a degraded load")
	}
	if got := len(snap.ScopesFor(10)); got != 3 {
		t.Fatalf("expected 3 scopes for service 10, got %d", got)
	}
}

func TestUnknownSurchargeKindIsWarning(t *testing.T) {
	tables := baseTables()
	tables.Surcharges = append(tables.Surcharges, SurchargeRule{ID: 2, ServiceID: 10, Name: "ODD", Kind: "BOGUS", Value: d("1")})
	snap, report := mustBuild(t, tables)

	if len(snap.SurchargesFor(10)) != 2 {
		t.Fatal("unknown kind rules are kept")
	}
	if len(report.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", report.Warnings)
	}
}

func TestConditionsSatisfiedBy(t *testing.T) {
	rule := Conditions{ConditionDeliveryType: "residential"}

	if rule.SatisfiedBy(nil) {
		t.Fatal("missing key must not satisfy")
	}
	if rule.SatisfiedBy(Conditions{ConditionDeliveryType: "commercial"}) {
		t.Fatal("mismatched value must not satisfy")
	}
	if !rule.SatisfiedBy(Conditions{ConditionDeliveryType: "residential", "signature": "yes"}) {
		t.Fatal("extra query keys must be ignored")
	}
	if !(Conditions{}).SatisfiedBy(nil) {
		t.Fatal("empty requirements always apply")
	}
}

func TestStats(t *testing.T) {
	snap, _ := mustBuild(t, baseTables())
	st := snap.Stats()
	if st.Carriers != 1 || st.Services != 2 || st.Scopes != 3 || st.Bands != 4 || st.Surcharges != 1 || st.Restrictions != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if snap.ServiceCount(1) != 2 {
		t.Fatalf("expected 2 services for carrier 1")
	}
	if _, ok := snap.ServiceByCode("spring", "SPRING_FR"); !ok {
		t.Fatal("service lookup by carrier code should be case-insensitive on carrier")
	}
}
