package refdata

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

type serviceKey struct {
	carrierCode string
	code        string
}

type scopeKey struct {
	serviceID int64
	country   string
}

type restrictionKey struct {
	serviceCode string
	country     string
}

// Snapshot is an immutable, indexed view of the reference tables. Slices
// returned by its methods are shared and must not be modified.
type Snapshot struct {
	carriers []Carrier
	services []Service
	scopes   []TariffScope

	carrierIdx     map[int64]int
	serviceIdx     map[int64]int
	serviceByCode  map[serviceKey]int
	scopesByServ   map[int64][]int
	scopeByCountry map[scopeKey]int
	catchAll       map[int64]int
	surcharges     map[int64][]SurchargeRule
	restrictions   map[restrictionKey]Restriction

	loadedAt time.Time
}

// Stats summarises a snapshot.
type Stats struct {
	Carriers     int
	Services     int
	Scopes       int
	Bands        int
	Surcharges   int
	Restrictions int
	LoadedAt     time.Time
}

// Build validates tables and constructs the lookup indices. Structural
// problems in mandatory tables return a *LoadError; data-quality findings
// (overlapping bands, shadowed scope memberships) go to the report.
func Build(t Tables) (*Snapshot, Report, error) {
	var report Report
	s := &Snapshot{
		carrierIdx:     make(map[int64]int, len(t.Carriers)),
		serviceIdx:     make(map[int64]int, len(t.Services)),
		serviceByCode:  make(map[serviceKey]int, len(t.Services)),
		scopesByServ:   make(map[int64][]int, len(t.Services)),
		scopeByCountry: make(map[scopeKey]int),
		catchAll:       make(map[int64]int),
		surcharges:     make(map[int64][]SurchargeRule),
		restrictions:   make(map[restrictionKey]Restriction, len(t.Restrictions)),
		loadedAt:       time.Now().UTC(),
	}

	steps := []func(Tables, *Report) error{
		s.indexCarriers,
		s.indexServices,
		s.indexScopes,
		s.indexScopeCountries,
		s.indexBands,
		s.indexSurcharges,
	}
	for _, step := range steps {
		if err := step(t, &report); err != nil {
			return nil, report, err
		}
	}
	if err := s.indexScopeMembership(&report); err != nil {
		return nil, report, err
	}
	s.indexRestrictions(t, &report)

	return s, report, nil
}

func (s *Snapshot) indexCarriers(t Tables, _ *Report) error {
	if len(t.Carriers) == 0 {
		return &LoadError{Table: TableCarriers, Err: errors.New("no carriers defined")}
	}
	s.carriers = make([]Carrier, 0, len(t.Carriers))
	for i, c := range t.Carriers {
		if _, dup := s.carrierIdx[c.ID]; dup {
			return &LoadError{Table: TableCarriers, Row: i + 2, Err: fmt.Errorf("duplicate carrier_id %d", c.ID)}
		}
		s.carrierIdx[c.ID] = len(s.carriers)
		s.carriers = append(s.carriers, c)
	}
	return nil
}

func (s *Snapshot) indexServices(t Tables, _ *Report) error {
	s.services = make([]Service, 0, len(t.Services))
	for i, svc := range t.Services {
		ci, ok := s.carrierIdx[svc.CarrierID]
		if !ok {
			return &LoadError{Table: TableServices, Row: i + 2, Column: "carrier_id", Err: fmt.Errorf("unknown carrier %d", svc.CarrierID)}
		}
		if _, dup := s.serviceIdx[svc.ID]; dup {
			return &LoadError{Table: TableServices, Row: i + 2, Err: fmt.Errorf("duplicate service_id %d", svc.ID)}
		}
		if svc.MaxWeightKg.IsNegative() {
			return &LoadError{Table: TableServices, Row: i + 2, Column: "max_weight_kg", Err: errors.New("must not be negative")}
		}
		key := serviceKey{carrierCode: s.carriers[ci].Code, code: svc.Code}
		if _, dup := s.serviceByCode[key]; dup {
			return &LoadError{Table: TableServices, Row: i + 2, Column: "code", Err: fmt.Errorf("duplicate service %s/%s", key.carrierCode, key.code)}
		}
		s.serviceIdx[svc.ID] = len(s.services)
		s.serviceByCode[key] = len(s.services)
		s.services = append(s.services, svc)
	}
	return nil
}

func (s *Snapshot) indexScopes(t Tables, report *Report) error {
	s.scopes = make([]TariffScope, 0, len(t.Scopes))
	seen := make(map[int64]struct{}, len(t.Scopes))
	for i, sc := range t.Scopes {
		if _, ok := s.serviceIdx[sc.ServiceID]; !ok {
			return &LoadError{Table: TableScopes, Row: i + 2, Column: "service_id", Err: fmt.Errorf("unknown service %d", sc.ServiceID)}
		}
		if _, dup := seen[sc.ID]; dup {
			return &LoadError{Table: TableScopes, Row: i + 2, Err: fmt.Errorf("duplicate scope_id %d", sc.ID)}
		}
		seen[sc.ID] = struct{}{}

		if sc.CatchAll {
			if prev, dup := s.catchAll[sc.ServiceID]; dup {
				report.Warnf("service %d: catch-all scope %s ignored; keeping %s", sc.ServiceID, sc.Code, s.scopes[prev].Code)
			} else {
				s.catchAll[sc.ServiceID] = len(s.scopes)
			}
		}

		sc.Countries = nil
		sc.Bands = nil
		s.scopesByServ[sc.ServiceID] = append(s.scopesByServ[sc.ServiceID], len(s.scopes))
		s.scopes = append(s.scopes, sc)
	}
	return nil
}

func (s *Snapshot) indexScopeCountries(t Tables, _ *Report) error {
	scopeIdx := s.scopeIndex()
	members := make(map[int]map[string]struct{}, len(s.scopes))
	for i, m := range t.ScopeCountries {
		idx, ok := scopeIdx[m.ScopeID]
		if !ok {
			return &LoadError{Table: TableScopeCountries, Row: i + 2, Column: "scope_id", Err: fmt.Errorf("unknown scope %d", m.ScopeID)}
		}
		code := strings.ToUpper(strings.TrimSpace(m.CountryISO2))
		if len(code) != 2 {
			return &LoadError{Table: TableScopeCountries, Row: i + 2, Column: "country_iso2", Err: fmt.Errorf("invalid country code %q", m.CountryISO2)}
		}
		if members[idx] == nil {
			members[idx] = make(map[string]struct{})
		}
		members[idx][code] = struct{}{}
	}

	for idx := range s.scopes {
		set := members[idx]
		countries := make([]string, 0, len(set))
		for code := range set {
			countries = append(countries, code)
		}
		sort.Strings(countries)
		s.scopes[idx].Countries = countries

		if len(countries) == 0 && !s.scopes[idx].CatchAll {
			sc := s.scopes[idx]
			return &LoadError{Table: TableScopeCountries, Err: fmt.Errorf("scope %d (%s) has no countries and is not catch-all", sc.ID, sc.Code)}
		}
	}
	return nil
}

func (s *Snapshot) indexBands(t Tables, report *Report) error {
	scopeIdx := s.scopeIndex()
	for i, b := range t.Bands {
		idx, ok := scopeIdx[b.ScopeID]
		if !ok {
			return &LoadError{Table: TableBands, Row: i + 2, Column: "scope_id", Err: fmt.Errorf("unknown scope %d", b.ScopeID)}
		}
		if b.MinWeightKg.IsNegative() || b.MinWeightKg.GreaterThan(b.MaxWeightKg) {
			return &LoadError{Table: TableBands, Row: i + 2, Err: fmt.Errorf("invalid weight range [%s, %s]", b.MinWeightKg, b.MaxWeightKg)}
		}
		s.scopes[idx].Bands = append(s.scopes[idx].Bands, b)
	}

	for idx := range s.scopes {
		bands := s.scopes[idx].Bands
		sort.SliceStable(bands, func(i, j int) bool {
			return bands[i].MinWeightKg.LessThan(bands[j].MinWeightKg)
		})
		for i := 1; i < len(bands); i++ {
			if !bands[i].MinWeightKg.GreaterThan(bands[i-1].MaxWeightKg) {
				report.Warnf("scope %s: band %d [%s] overlaps band %d [%s]",
					s.scopes[idx].Code, bands[i].ID, bands[i].Describe(), bands[i-1].ID, bands[i-1].Describe())
			}
		}
	}
	return nil
}

func (s *Snapshot) indexSurcharges(t Tables, report *Report) error {
	for i, rule := range t.Surcharges {
		if _, ok := s.serviceIdx[rule.ServiceID]; !ok {
			return &LoadError{Table: TableSurcharges, Row: i + 2, Column: "service_id", Err: fmt.Errorf("unknown service %d", rule.ServiceID)}
		}
		switch rule.Kind {
		case KindPercent:
			if rule.Basis != BasisFreight && rule.Basis != BasisTotal {
				report.Warnf("surcharge %s: unknown basis %q contributes nothing", rule.Name, rule.Basis)
			}
		case KindFlat, KindPerKg:
		default:
			report.Warnf("surcharge %s: unknown kind %q contributes nothing", rule.Name, rule.Kind)
		}
		if rule.Conditions == nil {
			rule.Conditions = Conditions{}
		}
		s.surcharges[rule.ServiceID] = append(s.surcharges[rule.ServiceID], rule)
	}
	return nil
}

// indexScopeMembership registers (service, country) pairs. A specific scope
// always wins over a catch-all one that also lists the country; between two
// specific scopes the first registered is kept.
func (s *Snapshot) indexScopeMembership(report *Report) error {
	for idx, sc := range s.scopes {
		for _, code := range sc.Countries {
			key := scopeKey{serviceID: sc.ServiceID, country: code}
			prev, taken := s.scopeByCountry[key]
			switch {
			case !taken:
				s.scopeByCountry[key] = idx
			case s.scopes[prev].CatchAll && !sc.CatchAll:
				s.scopeByCountry[key] = idx
			case !s.scopes[prev].CatchAll && !sc.CatchAll:
				report.Warnf("country %s listed in scopes %s and %s of service %d; keeping %s",
					code, s.scopes[prev].Code, sc.Code, sc.ServiceID, s.scopes[prev].Code)
			}
		}
	}
	return nil
}

func (s *Snapshot) indexRestrictions(t Tables, report *Report) {
	codes := make(map[string]struct{}, len(s.services))
	for _, svc := range s.services {
		codes[svc.Code] = struct{}{}
	}
	for _, r := range t.Restrictions {
		if _, ok := codes[r.ServiceCode]; !ok {
			report.Warnf("restriction for unknown service %s (%s)", r.ServiceCode, r.CountryISO2)
		}
		key := restrictionKey{serviceCode: r.ServiceCode, country: strings.ToUpper(r.CountryISO2)}
		if _, dup := s.restrictions[key]; dup {
			report.Warnf("duplicate restriction %s/%s; keeping the first", r.ServiceCode, r.CountryISO2)
			continue
		}
		s.restrictions[key] = r
	}
}

func (s *Snapshot) scopeIndex() map[int64]int {
	idx := make(map[int64]int, len(s.scopes))
	for i, sc := range s.scopes {
		idx[sc.ID] = i
	}
	return idx
}

// Carriers returns all carriers in load order.
func (s *Snapshot) Carriers() []Carrier { return s.carriers }

// Services returns all services in load order.
func (s *Snapshot) Services() []Service { return s.services }

// Carrier looks up a carrier by id.
func (s *Snapshot) Carrier(id int64) (Carrier, bool) {
	idx, ok := s.carrierIdx[id]
	if !ok {
		return Carrier{}, false
	}
	return s.carriers[idx], true
}

// Service looks up a service by id.
func (s *Snapshot) Service(id int64) (Service, bool) {
	idx, ok := s.serviceIdx[id]
	if !ok {
		return Service{}, false
	}
	return s.services[idx], true
}

// ServiceByCode looks up a service by carrier code and service code.
func (s *Snapshot) ServiceByCode(carrierCode, code string) (Service, bool) {
	idx, ok := s.serviceByCode[serviceKey{carrierCode: strings.ToUpper(carrierCode), code: code}]
	if !ok {
		return Service{}, false
	}
	return s.services[idx], true
}

// ScopesFor returns every scope of a service in load order.
func (s *Snapshot) ScopesFor(serviceID int64) []TariffScope {
	idxs := s.scopesByServ[serviceID]
	out := make([]TariffScope, 0, len(idxs))
	for _, idx := range idxs {
		out = append(out, s.scopes[idx])
	}
	return out
}

// ScopeFor returns the scope pricing country for a service: the specific
// scope listing it, else the service's catch-all scope.
func (s *Snapshot) ScopeFor(serviceID int64, country string) (TariffScope, bool) {
	if idx, ok := s.scopeByCountry[scopeKey{serviceID: serviceID, country: strings.ToUpper(country)}]; ok {
		return s.scopes[idx], true
	}
	if idx, ok := s.catchAll[serviceID]; ok {
		return s.scopes[idx], true
	}
	return TariffScope{}, false
}

// SurchargesFor returns the rules of a service in stored order.
func (s *Snapshot) SurchargesFor(serviceID int64) []SurchargeRule {
	return s.surcharges[serviceID]
}

// RestrictionFor returns the restriction for a service code and country.
func (s *Snapshot) RestrictionFor(serviceCode, country string) (Restriction, bool) {
	r, ok := s.restrictions[restrictionKey{serviceCode: serviceCode, country: strings.ToUpper(country)}]
	return r, ok
}

// ServiceCount returns the number of services per carrier id.
func (s *Snapshot) ServiceCount(carrierID int64) int {
	n := 0
	for _, svc := range s.services {
		if svc.CarrierID == carrierID {
			n++
		}
	}
	return n
}

// Stats summarises the snapshot contents.
func (s *Snapshot) Stats() Stats {
	st := Stats{
		Carriers:     len(s.carriers),
		Services:     len(s.services),
		Scopes:       len(s.scopes),
		Restrictions: len(s.restrictions),
		LoadedAt:     s.loadedAt,
	}
	for _, sc := range s.scopes {
		st.Bands += len(sc.Bands)
	}
	for _, rules := range s.surcharges {
		st.Surcharges += len(rules)
	}
	return st
}
