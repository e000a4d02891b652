package app

import (
	"fmt"
	"slices"
	"strings"

	"healthconnect/pkg/domain"
)

// AlertInput is a healthcare alert published by an admin. Empty Regions
// makes the alert global.
type AlertInput struct {
	Title    string
	Message  string
	Severity string
	Regions  []string
}

// ListActiveAlerts returns active alerts that apply to region. Global
// alerts always apply; an empty region returns every active alert.
func (a *App) ListActiveAlerts(region string) ([]domain.HealthcareAlert, error) {
	alerts, err := a.store.ListAlerts(true)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	region = strings.ToLower(trimmed(region))
	if region == "" {
		return alerts, nil
	}
	out := make([]domain.HealthcareAlert, 0, len(alerts))
	for _, al := range alerts {
		if len(al.Regions) == 0 || slices.Contains(al.Regions, region) {
			out = append(out, al)
		}
	}
	return out, nil
}

// ListAllAlerts returns every alert including inactive ones.
func (a *App) ListAllAlerts(actor Actor) ([]domain.HealthcareAlert, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return a.store.ListAlerts(false)
}

// CreateAlert publishes a new active alert.
func (a *App) CreateAlert(actor Actor, in AlertInput) (domain.HealthcareAlert, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return domain.HealthcareAlert{}, err
	}
	title, n := cleanText(in.Title)
	if n == 0 || n > maxSubjectRunes {
		return domain.HealthcareAlert{}, ErrAlertTitle
	}
	message, n := cleanText(in.Message)
	if n == 0 {
		return domain.HealthcareAlert{}, ErrAlertMessage
	}
	severity, ok := parseSeverity(in.Severity)
	if !ok {
		return domain.HealthcareAlert{}, ErrAlertSeverity
	}
	now := a.now()
	al := domain.HealthcareAlert{
		ID:        newID(),
		Title:     title,
		Message:   message,
		Severity:  severity,
		Regions:   normalizeRegions(in.Regions),
		Active:    true,
		CreatedBy: actor.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.SaveAlert(al); err != nil {
		return domain.HealthcareAlert{}, fmt.Errorf("save alert: %w", err)
	}
	return al, nil
}

// DeactivateAlert hides an alert from the public listing.
func (a *App) DeactivateAlert(actor Actor, id string) (domain.HealthcareAlert, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return domain.HealthcareAlert{}, err
	}
	al, ok, err := a.store.GetAlert(trimmed(id))
	if err != nil {
		return domain.HealthcareAlert{}, fmt.Errorf("fetch alert: %w", err)
	}
	if !ok {
		return domain.HealthcareAlert{}, notFound("alert")
	}
	if !al.Active {
		return al, nil
	}
	al.Active = false
	al.UpdatedAt = a.now()
	if err := a.store.SaveAlert(al); err != nil {
		return domain.HealthcareAlert{}, fmt.Errorf("save alert: %w", err)
	}
	return al, nil
}

func parseSeverity(raw string) (domain.AlertSeverity, bool) {
	switch s := domain.AlertSeverity(strings.ToLower(trimmed(raw))); s {
	case "":
		return domain.SeverityInfo, true
	case domain.SeverityInfo, domain.SeverityWarning, domain.SeverityCritical:
		return s, true
	default:
		return "", false
	}
}

func normalizeRegions(regions []string) []string {
	var out []string
	for _, r := range regions {
		r = strings.ToLower(trimmed(r))
		if r != "" && !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out
}
