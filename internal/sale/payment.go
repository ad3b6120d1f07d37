package sale

import (
	"regexp"
	"strings"

	"github.com/macharian8/stocksnap/internal/domain"
)

// PushFallbackNotice is surfaced to the operator when a push-to-pay sale is
// recorded. The STK gateway is not wired up yet; downgrading to cash at
// submission time is the documented product decision, not a bug.
const PushFallbackNotice = "push payment not available yet — recorded as cash"

// Kenyan mobile numbers: optional +254/254/0 prefix followed by a 7xx or
// 1xx national number. Normalized form is +254XXXXXXXXX.
var phonePattern = regexp.MustCompile(`^(?:\+254|254|0)((?:7|1)\d{8})$`)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{10}$`)

// NormalizedPayment is what the engine persists: the effective method and
// status, the validated method-specific fields, and an optional operator
// notice.
type NormalizedPayment struct {
	Method domain.PaymentMethod
	Status domain.PaymentStatus
	Phone  string
	Code   string
	Note   string
	Notice string
}

// ValidatePayment is pure and re-run at confirm time.
func ValidatePayment(p domain.Payment) (NormalizedPayment, error) {
	switch payment := p.(type) {
	case domain.CashPayment, nil:
		return NormalizedPayment{Method: domain.PayCash, Status: domain.PaymentConfirmed}, nil

	case domain.PushPayment:
		phone, ok := normalizePhone(payment.Phone)
		if !ok {
			return NormalizedPayment{}, &FieldError{Field: "phone", Reason: InvalidPhone}
		}
		// Phone must still be valid so the record is usable once the
		// gateway lands, but the sale itself is recorded as cash.
		return NormalizedPayment{
			Method: domain.PayCash,
			Status: domain.PaymentConfirmed,
			Phone:  phone,
			Notice: PushFallbackNotice,
		}, nil

	case domain.CodePayment:
		normalized := strings.ToUpper(strings.TrimSpace(payment.Code))
		if !codePattern.MatchString(normalized) {
			return NormalizedPayment{}, &FieldError{Field: "transaction_code", Reason: InvalidCode}
		}
		// The code is treated as proof of completed payment, reconciled
		// out-of-band.
		return NormalizedPayment{
			Method: domain.PayCode,
			Status: domain.PaymentConfirmed,
			Code:   normalized,
		}, nil

	case domain.OtherPayment:
		return NormalizedPayment{
			Method: domain.PayOther,
			Status: domain.PaymentConfirmed,
			Note:   strings.TrimSpace(payment.Note),
		}, nil

	default:
		return NormalizedPayment{Method: domain.PayCash, Status: domain.PaymentConfirmed}, nil
	}
}

func normalizePhone(raw string) (string, bool) {
	compact := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(raw))
	m := phonePattern.FindStringSubmatch(compact)
	if m == nil {
		return "", false
	}
	return "+254" + m[1], true
}
