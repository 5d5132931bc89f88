package payment

import (
	"sort"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
)

// Split is one leg of a payment.
type Split struct {
	PaymentMethodID int64           `json:"payment_method_id"`
	Amount          decimal.Decimal `json:"amount"`
}

// Methods is the catalog of payment methods the validator checks against.
// Enabled is the shop's configured subset; an empty set means every active
// method is enabled.
type Methods struct {
	All     map[int64]*models.PaymentMethod
	Enabled map[int64]bool
}

// IsEnabled reports whether the shop accepts method id.
func (m Methods) IsEnabled(id int64) bool {
	pm, ok := m.All[id]
	if !ok || !pm.IsActive {
		return false
	}
	if len(m.Enabled) == 0 {
		return true
	}
	return m.Enabled[id]
}

// EnabledList returns the shop's accepted methods ordered by id.
func (m Methods) EnabledList() []models.PaymentMethod {
	out := make([]models.PaymentMethod, 0, len(m.All))
	for id, pm := range m.All {
		if m.IsEnabled(id) {
			out = append(out, *pm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ByCode finds a method by its code.
func (m Methods) ByCode(code string) (*models.PaymentMethod, bool) {
	for _, pm := range m.All {
		if pm.Code == code {
			return pm, true
		}
	}
	return nil, false
}

// IsCents reports whether amount fits the 2-decimal money columns unchanged.
func IsCents(amount decimal.Decimal) bool {
	return amount.Equal(amount.Round(2))
}

// Validator checks payment splits against the amount due.
type Validator struct{}

// NewValidator creates a payment split validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate accepts splits only when every method is usable at the shop and the
// amounts add up to exactly amountDue.
func (v *Validator) Validate(splits []Split, amountDue decimal.Decimal, methods Methods) error {
	if len(splits) == 0 {
		return apperr.Validation("at least one payment is required")
	}

	sum := decimal.Zero
	for i, s := range splits {
		if s.Amount.IsNegative() {
			return apperr.Validation("payment amount must not be negative").WithDetail("index", i)
		}
		if !IsCents(s.Amount) {
			return apperr.Validation("payment amount %s has more than 2 decimal places", s.Amount).WithDetail("index", i)
		}

		pm, ok := methods.All[s.PaymentMethodID]
		if !ok {
			return apperr.NotFound("payment method %d not found", s.PaymentMethodID)
		}
		if !pm.IsActive {
			return apperr.Validation("payment method %s is not active", pm.Code).
				WithDetail("payment_method_id", pm.ID)
		}
		if !methods.IsEnabled(pm.ID) {
			return apperr.Validation("payment method %s is not accepted by this shop", pm.Code).
				WithDetail("payment_method_id", pm.ID)
		}

		sum = sum.Add(s.Amount)
	}

	if !sum.Equal(amountDue) {
		return apperr.PaymentMismatch("payments total %s but %s is due", sum.StringFixed(2), amountDue.StringFixed(2)).
			WithDetail("paid", sum.StringFixed(2)).
			WithDetail("due", amountDue.StringFixed(2))
	}
	return nil
}

// ValidateShopSettings checks a shop's new set of enabled methods. Cash must
// always stay enabled.
func (v *Validator) ValidateShopSettings(methodIDs []int64, all map[int64]*models.PaymentMethod) error {
	if len(methodIDs) == 0 {
		return apperr.Validation("at least one payment method must be enabled")
	}

	hasCash := false
	for _, id := range methodIDs {
		pm, ok := all[id]
		if !ok {
			return apperr.NotFound("payment method %d not found", id)
		}
		if !pm.IsActive {
			return apperr.Validation("payment method %s is not active", pm.Code).WithDetail("payment_method_id", id)
		}
		if pm.IsProtected() {
			hasCash = true
		}
	}

	if !hasCash {
		return apperr.Validation("cash payment cannot be disabled")
	}
	return nil
}
