package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Feustey/Dazlng-sub004/internal/domain"
	"github.com/Feustey/Dazlng-sub004/internal/repository"
)

// updateEmailTracking aplica action sobre el seguimiento del email. Es best-effort:
// las fallas vuelven como warnings y nunca cortan el login.
func (s *OTPService) updateEmailTracking(ctx context.Context, email, source string, action domain.TrackingAction, note string) []Warning {
	if source == "" {
		source = DefaultSource
	}
	now := s.now()

	current, err := s.tracking.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		created, err := s.tracking.Create(ctx, newTracking(email, source, action, note, now))
		if err != nil {
			return s.warn(nil, "tracking_create", email, err)
		}
		if created {
			return nil
		}
		// Otra request creo la fila entre la lectura y el insert.
		current, err = s.tracking.GetByEmail(ctx, email)
		if err != nil {
			return s.warn(nil, "tracking_read", email, err)
		}
	case err != nil:
		return s.warn(nil, "tracking_read", email, err)
	}

	return s.applyTrackingAction(ctx, current, action, note)
}

func newTracking(email, source string, action domain.TrackingAction, note string, now time.Time) domain.EmailTracking {
	t := domain.EmailTracking{
		Email:            email,
		FirstSeenAt:      now,
		LastSeenAt:       now,
		ConversionStatus: domain.StatusOTPOnly,
		Source:           source,
		Notes:            domain.AppendNote("", "first seen via "+source, now),
	}
	switch action {
	case domain.ActionSuccessfulLogin:
		t.TotalLogins = 1
	case domain.ActionAccountCreation:
		t.ConversionStatus = domain.StatusConverted
		if note != "" {
			t.Notes = domain.AppendNote(t.Notes, note, now)
		}
	}
	return t
}

func (s *OTPService) applyTrackingAction(ctx context.Context, current domain.EmailTracking, action domain.TrackingAction, note string) []Warning {
	now := s.now()
	email := current.Email

	switch action {
	case domain.ActionSuccessfulLogin:
		updated, err := s.tracking.IncrementLogins(ctx, email, now)
		if err != nil {
			return s.warn(nil, "tracking_increment", email, err)
		}
		// Los umbrales se evaluan con el conteo previo a este login.
		pre := updated
		pre.TotalLogins--
		if !shouldPromote(pre, now) || !pre.ConversionStatus.CanAdvanceTo(domain.StatusConversionCandidate) {
			return nil
		}
		line := domain.AppendNote("", fmt.Sprintf(
			"promoted to %s: %d logins over %d days",
			domain.StatusConversionCandidate, updated.TotalLogins, pre.DaysSinceFirstSeen(now),
		), now)
		if _, err := s.tracking.UpdateStatus(ctx, email,
			[]domain.ConversionStatus{pre.ConversionStatus},
			domain.StatusConversionCandidate,
			line,
		); err != nil {
			return s.warn(nil, "tracking_promote", email, err)
		}
		return nil

	case domain.ActionAccountCreation:
		var warnings []Warning
		if err := s.tracking.Touch(ctx, email, now); err != nil {
			warnings = s.warn(warnings, "tracking_touch", email, err)
		}
		if note == "" {
			note = "account created"
		}
		if _, err := s.tracking.UpdateStatus(ctx, email, nil, domain.StatusConverted, domain.AppendNote("", note, now)); err != nil {
			warnings = s.warn(warnings, "tracking_convert", email, err)
		}
		return warnings

	default:
		if err := s.tracking.Touch(ctx, email, now); err != nil {
			return s.warn(nil, "tracking_touch", email, err)
		}
		return nil
	}
}
