package repository

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Feustey/Dazlng-sub004/internal/domain"
)

// MemoryOTPCodeRepository guarda codigos en memoria. Pensado para desarrollo local y tests.
type MemoryOTPCodeRepository struct {
	mu    sync.Mutex
	codes []domain.OTPCode
}

func NewMemoryOTPCodeRepository() *MemoryOTPCodeRepository {
	return &MemoryOTPCodeRepository{}
}

func (r *MemoryOTPCodeRepository) Create(_ context.Context, code domain.OTPCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidateLocked(code.Email)
	r.codes = append(r.codes, code)
	return nil
}

func (r *MemoryOTPCodeRepository) InvalidateActive(_ context.Context, email string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.invalidateLocked(email), nil
}

func (r *MemoryOTPCodeRepository) invalidateLocked(email string) int64 {
	var n int64
	for i := range r.codes {
		if r.codes[i].Email == email && !r.codes[i].Used {
			r.codes[i].Used = true
			n++
		}
	}
	return n
}

func (r *MemoryOTPCodeRepository) FindLatestActive(_ context.Context, email, code string) (domain.OTPCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		found domain.OTPCode
		ok    bool
	)
	for _, c := range r.codes {
		if c.Email != email || c.Code != code || c.Used {
			continue
		}
		if !ok || !c.CreatedAt.Before(found.CreatedAt) {
			found = c
			ok = true
		}
	}
	if !ok {
		return domain.OTPCode{}, ErrNotFound
	}
	return found, nil
}

func (r *MemoryOTPCodeRepository) Consume(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.codes {
		if r.codes[i].ID == id {
			if r.codes[i].Used {
				return false, nil
			}
			r.codes[i].Used = true
			r.codes[i].Attempts++
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryOTPCodeRepository) Expire(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.codes {
		if r.codes[i].ID == id {
			r.codes[i].Used = true
		}
	}
	return nil
}

func (r *MemoryOTPCodeRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := len(r.codes)
	r.codes = slices.DeleteFunc(r.codes, func(c domain.OTPCode) bool {
		return c.ExpiresAt.Before(now)
	})
	return int64(before - len(r.codes)), nil
}

// Snapshot devuelve una copia de los codigos de un email, en orden de insercion.
func (r *MemoryOTPCodeRepository) Snapshot(email string) []domain.OTPCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.OTPCode
	for _, c := range r.codes {
		if c.Email == email {
			out = append(out, c)
		}
	}
	return out
}

// MemoryEmailTrackingRepository guarda el seguimiento en memoria.
type MemoryEmailTrackingRepository struct {
	mu    sync.Mutex
	items map[string]domain.EmailTracking
}

func NewMemoryEmailTrackingRepository() *MemoryEmailTrackingRepository {
	return &MemoryEmailTrackingRepository{items: make(map[string]domain.EmailTracking)}
}

func (r *MemoryEmailTrackingRepository) GetByEmail(_ context.Context, email string) (domain.EmailTracking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.items[email]
	if !ok {
		return domain.EmailTracking{}, ErrNotFound
	}
	return t, nil
}

func (r *MemoryEmailTrackingRepository) Create(_ context.Context, t domain.EmailTracking) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[t.Email]; ok {
		return false, nil
	}
	r.items[t.Email] = t
	return true, nil
}

func (r *MemoryEmailTrackingRepository) Touch(_ context.Context, email string, seenAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.items[email]
	if !ok {
		return ErrNotFound
	}
	if seenAt.After(t.LastSeenAt) {
		t.LastSeenAt = seenAt
	}
	r.items[email] = t
	return nil
}

func (r *MemoryEmailTrackingRepository) IncrementLogins(_ context.Context, email string, seenAt time.Time) (domain.EmailTracking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.items[email]
	if !ok {
		return domain.EmailTracking{}, ErrNotFound
	}
	t.TotalLogins++
	if seenAt.After(t.LastSeenAt) {
		t.LastSeenAt = seenAt
	}
	r.items[email] = t
	return t, nil
}

func (r *MemoryEmailTrackingRepository) UpdateStatus(_ context.Context, email string, from []domain.ConversionStatus, to domain.ConversionStatus, note string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.items[email]
	if !ok {
		return false, nil
	}
	if len(from) > 0 && !slices.Contains(from, t.ConversionStatus) {
		return false, nil
	}
	t.ConversionStatus = to
	if strings.TrimSpace(note) != "" {
		if t.Notes == "" {
			t.Notes = note
		} else {
			t.Notes += "\n" + note
		}
	}
	r.items[email] = t
	return true, nil
}

// Put reemplaza la fila completa; util para preparar escenarios.
func (r *MemoryEmailTrackingRepository) Put(t domain.EmailTracking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[t.Email] = t
}
