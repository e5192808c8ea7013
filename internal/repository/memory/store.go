// Package memory is an in-process implementation of the repository
// interfaces. It enforces the same uniqueness and guarded-update rules as the
// PostgreSQL schema and is used by service tests and local runs without a
// database.
package memory

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/segyhp/payout-engine/internal/domain"
	"github.com/segyhp/payout-engine/internal/repository"
	"github.com/shopspring/decimal"
)

type state struct {
	mu             sync.Mutex
	appointments   map[uuid.UUID]*domain.Appointment
	slots          map[uuid.UUID]*domain.AvailabilitySlot
	confirmations  map[uuid.UUID]*domain.Confirmation
	cycles         map[uuid.UUID]*domain.Cycle
	earnings       map[uuid.UUID]*domain.Earning
	payouts        map[uuid.UUID]*domain.Payout
	feeCharges     map[uuid.UUID]*domain.FeeCharge
	paymentMethods map[uuid.UUID]*domain.PaymentMethod
	settings       map[string]string
}

// Store groups one repository per entity over shared state.
type Store struct {
	state *state

	Appointments   *AppointmentRepository
	Confirmations  *ConfirmationRepository
	Cycles         *CycleRepository
	Earnings       *EarningRepository
	Payouts        *PayoutRepository
	FeeCharges     *FeeChargeRepository
	PaymentMethods *PaymentMethodRepository
	Settings       *SettingsRepository
}

func New() *Store {
	s := &state{
		appointments:   make(map[uuid.UUID]*domain.Appointment),
		slots:          make(map[uuid.UUID]*domain.AvailabilitySlot),
		confirmations:  make(map[uuid.UUID]*domain.Confirmation),
		cycles:         make(map[uuid.UUID]*domain.Cycle),
		earnings:       make(map[uuid.UUID]*domain.Earning),
		payouts:        make(map[uuid.UUID]*domain.Payout),
		feeCharges:     make(map[uuid.UUID]*domain.FeeCharge),
		paymentMethods: make(map[uuid.UUID]*domain.PaymentMethod),
		settings:       make(map[string]string),
	}

	return &Store{
		state:          s,
		Appointments:   &AppointmentRepository{s},
		Confirmations:  &ConfirmationRepository{s},
		Cycles:         &CycleRepository{s},
		Earnings:       &EarningRepository{s},
		Payouts:        &PayoutRepository{s},
		FeeCharges:     &FeeChargeRepository{s},
		PaymentMethods: &PaymentMethodRepository{s},
		Settings:       &SettingsRepository{s},
	}
}

var (
	_ repository.AppointmentRepository   = (*AppointmentRepository)(nil)
	_ repository.ConfirmationRepository  = (*ConfirmationRepository)(nil)
	_ repository.CycleRepository         = (*CycleRepository)(nil)
	_ repository.EarningRepository       = (*EarningRepository)(nil)
	_ repository.PayoutRepository        = (*PayoutRepository)(nil)
	_ repository.FeeChargeRepository     = (*FeeChargeRepository)(nil)
	_ repository.PaymentMethodRepository = (*PaymentMethodRepository)(nil)
	_ repository.SettingsRepository      = (*SettingsRepository)(nil)
)

// Seeding helpers for tests and local fixtures.

func (s *Store) PutAppointment(a *domain.Appointment) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	c := *a
	s.state.appointments[a.ID] = &c
}

func (s *Store) PutSlot(slot *domain.AvailabilitySlot) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	c := *slot
	s.state.slots[slot.ID] = &c
}

func (s *Store) PutPaymentMethod(m *domain.PaymentMethod) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	c := *m
	s.state.paymentMethods[m.ProfessionalID] = &c
}

// CountCycles returns the number of stored cycles with the given status, or
// all cycles when status is empty.
func (s *Store) CountCycles(status string) int {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	n := 0
	for _, c := range s.state.cycles {
		if status == "" || c.Status == status {
			n++
		}
	}
	return n
}

func (s *Store) CountConfirmations(appointmentID uuid.UUID) int {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	n := 0
	for _, c := range s.state.confirmations {
		if c.AppointmentID == appointmentID {
			n++
		}
	}
	return n
}

func (s *Store) AllEarnings() []*domain.Earning {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	out := make([]*domain.Earning, 0, len(s.state.earnings))
	for _, e := range s.state.earnings {
		c := *e
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) AllPayouts() []*domain.Payout {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	out := make([]*domain.Payout, 0, len(s.state.payouts))
	for _, p := range s.state.payouts {
		c := *p
		out = append(out, &c)
	}
	return out
}

func (s *Store) AllFeeCharges() []*domain.FeeCharge {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	out := make([]*domain.FeeCharge, 0, len(s.state.feeCharges))
	for _, f := range s.state.feeCharges {
		c := *f
		out = append(out, &c)
	}
	return out
}

func containsStatus(statuses []string, status string) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func sumOutstanding(charges map[uuid.UUID]*domain.FeeCharge, professionalID uuid.UUID) decimal.Decimal {
	total := decimal.Zero
	for _, f := range charges {
		if f.ProfessionalID == professionalID && f.IsOutstanding() {
			total = total.Add(f.Remaining())
		}
	}
	return total
}
