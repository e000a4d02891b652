package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"healthconnect/pkg/domain"
)

// AdminStats gathers the dashboard counters concurrently.
func (a *App) AdminStats(ctx context.Context, actor Actor) (domain.AdminStats, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return domain.AdminStats{}, err
	}
	var stats domain.AdminStats
	now := a.now()
	g, gctx := errgroup.WithContext(ctx)
	count := func(name string, dst *int, fn func() (int, error)) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, err := fn()
			if err != nil {
				return fmt.Errorf("count %s: %w", name, err)
			}
			*dst = n
			return nil
		})
	}
	count("patients", &stats.Patients, func() (int, error) { return a.store.CountProfilesByRole(domain.RolePatient) })
	count("doctors", &stats.Doctors, func() (int, error) { return a.store.CountProfilesByRole(domain.RoleDoctor) })
	count("pending doctors", &stats.PendingDoctors, func() (int, error) { return a.store.CountDoctorProfiles(domain.VerificationPending) })
	count("open complaints", &stats.OpenComplaints, func() (int, error) { return a.store.CountComplaints(domain.ComplaintOpen) })
	count("upcoming appointments", &stats.UpcomingAppts, func() (int, error) { return a.store.CountUpcomingAppointments(now) })
	count("active alerts", &stats.ActiveAlerts, a.store.CountActiveAlerts)
	count("active chats", &stats.ActiveChatSessions, a.store.CountActiveChatSessions)
	if err := g.Wait(); err != nil {
		return domain.AdminStats{}, err
	}
	return stats, nil
}
