// Package service implements the session capacity and attendance ledger:
// lazily materialized sessions, seat-limited bookings, monthly attendance
// buckets, check-in orchestration and promotion eligibility.
//
// Components receive their stores through Deps so that the MySQL stores and
// the in-memory stores are interchangeable.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/dojo-schedule/internal/calendar"
	"github.com/iliyamo/dojo-schedule/internal/model"
	"github.com/iliyamo/dojo-schedule/internal/repository"
)

// Config tunes business rules.
type Config struct {
	DefaultTimezone string        // zone used when a tenant has none
	OpensBefore     time.Duration // check-in opens this long before start
	ClosesAfter     time.Duration // check-in closes this long after end
	BlockedStatuses []string      // financial statuses that block check-in
	Now             func() time.Time
	NewID           func() string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimezone: "UTC",
		OpensBefore:     15 * time.Minute,
		ClosesAfter:     20 * time.Minute,
		BlockedStatuses: []string{model.FinancialOverdue, model.FinancialDelinquent},
		Now:             time.Now,
		NewID:           uuid.NewString,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DefaultTimezone == "" {
		c.DefaultTimezone = def.DefaultTimezone
	}
	if c.OpensBefore <= 0 {
		c.OpensBefore = def.OpensBefore
	}
	if c.ClosesAfter <= 0 {
		c.ClosesAfter = def.ClosesAfter
	}
	if c.BlockedStatuses == nil {
		c.BlockedStatuses = def.BlockedStatuses
	}
	if c.Now == nil {
		c.Now = def.Now
	}
	if c.NewID == nil {
		c.NewID = def.NewID
	}
	return c
}

// Deps bundles every store and collaborator the components need.
type Deps struct {
	Templates  TemplateStore
	Sessions   SessionStore
	Bookings   BookingStore
	Attendance AttendanceStore
	Students   StudentDirectory
	Ranks      RankStore
	Tenants    TenantDirectory
	Rules      RuleCatalog
	Outbox     OutboxStore
	Logger     *slog.Logger
}

// Services wires the components together.
type Services struct {
	Catalog     *Catalog
	Sessions    *SessionRegistry
	Bookings    *BookingLedger
	Attendance  *AttendanceLedger
	CheckIns    *CheckInCoordinator
	Eligibility *EligibilityEvaluator
	Schedule    *Schedule
	Calendars   *Calendars
}

// New builds all components from deps.
func New(deps Deps, cfg Config) *Services {
	cfg = cfg.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cals := NewCalendars(deps.Tenants, cfg.DefaultTimezone)
	catalog := NewCatalog(deps.Templates)
	sessions := NewSessionRegistry(deps.Sessions, cfg.NewID)
	attendance := NewAttendanceLedger(deps.Attendance, catalog, cfg.NewID)
	bookings := NewBookingLedger(deps.Bookings, catalog, sessions, cals, cfg, logger)
	eligibility := NewEligibilityEvaluator(deps.Students, deps.Ranks, deps.Rules, attendance, cals, cfg.Now)
	return &Services{
		Catalog:     catalog,
		Sessions:    sessions,
		Bookings:    bookings,
		Attendance:  attendance,
		CheckIns:    NewCheckInCoordinator(deps, catalog, sessions, attendance, cals, cfg, logger),
		Eligibility: eligibility,
		Schedule:    NewSchedule(catalog, deps.Sessions, cals, cfg.Now),
		Calendars:   cals,
	}
}

// Calendars resolves the calendar of a tenant and caches loaded zones.
type Calendars struct {
	tenants  TenantDirectory
	fallback string
	mu       sync.RWMutex
	byZone   map[string]calendar.Calendar
}

// NewCalendars returns a resolver.  tenants may be nil, in which case every
// tenant uses fallback.
func NewCalendars(tenants TenantDirectory, fallback string) *Calendars {
	return &Calendars{tenants: tenants, fallback: fallback, byZone: map[string]calendar.Calendar{}}
}

// For returns the calendar of tenantID.  Unknown tenants and tenants
// without a zone use the fallback zone.
func (c *Calendars) For(ctx context.Context, tenantID string) (calendar.Calendar, error) {
	zone := c.fallback
	if c.tenants != nil && strings.TrimSpace(tenantID) != "" {
		t, err := c.tenants.GetTenant(ctx, tenantID)
		switch {
		case err == nil:
			if t.Timezone != "" {
				zone = t.Timezone
			}
		case errors.Is(err, repository.ErrNotFound):
		default:
			return calendar.Calendar{}, err
		}
	}
	return c.zone(zone)
}

func (c *Calendars) zone(name string) (calendar.Calendar, error) {
	c.mu.RLock()
	cal, ok := c.byZone[name]
	c.mu.RUnlock()
	if ok {
		return cal, nil
	}
	cal, err := calendar.Load(name)
	if err != nil {
		return calendar.Calendar{}, err
	}
	c.mu.Lock()
	c.byZone[name] = cal
	c.mu.Unlock()
	return cal, nil
}

// Catalog is the read side of the class catalog.
type Catalog struct {
	templates TemplateStore
}

// NewCatalog wraps a template store.
func NewCatalog(templates TemplateStore) *Catalog { return &Catalog{templates: templates} }

// Template loads a template and validates its shape.
func (c *Catalog) Template(ctx context.Context, id string) (model.ClassTemplate, error) {
	const op = "catalog.Template"
	if strings.TrimSpace(id) == "" {
		return model.ClassTemplate{}, newError(op, ErrInvalidInput, "class template id is required")
	}
	tmpl, err := c.templates.GetTemplate(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.ClassTemplate{}, newError(op, ErrNotFound, "class template %s not found", id)
	}
	if err != nil {
		return model.ClassTemplate{}, err
	}
	if tmpl.Capacity <= 0 {
		return model.ClassTemplate{}, newError(op, ErrInvalidInput, "class template %s has no capacity", id)
	}
	return tmpl, nil
}

// Interval returns the template's minute-of-day range.
func (c *Catalog) Interval(tmpl model.ClassTemplate) (calendar.Interval, error) {
	iv, err := calendar.ParseInterval(tmpl.StartTime, tmpl.EndTime)
	if err != nil {
		return calendar.Interval{}, wrapError("catalog.Interval", ErrInvalidInput, err, "class template %s has an invalid time range", tmpl.ID)
	}
	return iv, nil
}

// Equivalent returns templates that describe the same slot under another id.
func (c *Catalog) Equivalent(ctx context.Context, tmpl model.ClassTemplate) ([]model.ClassTemplate, error) {
	return c.templates.FindEquivalentTemplates(ctx, tmpl)
}

// ForTenant lists the active templates of a tenant.
func (c *Catalog) ForTenant(ctx context.Context, tenantID string) ([]model.ClassTemplate, error) {
	all, err := c.templates.ListTemplates(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]model.ClassTemplate, 0, len(all))
	for _, t := range all {
		if t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}
