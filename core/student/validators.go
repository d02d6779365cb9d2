package student

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/tesoreria/backend/core"
	"github.com/tesoreria/backend/core/ledger"
)

var (
	payMethodTag  = "paymethod"
	payMethodText = "medio de pago inválido"

	duplicateTag  = "noduplicates"
	duplicateText = "hay cuotas repetidas"
)

// InitValidators registers the validators of the student models.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(payMethodTag, payMethodValidation)
	core.RegisterCustomTranslation(validate, translator, payMethodTag, payMethodText)

	validate.RegisterStructValidation(paymentStructValidation, NewPayment{})
	core.RegisterCustomTranslation(validate, translator, duplicateTag, duplicateText)
}

func (np *NewPayment) Validate(validate *validator.Validate) error {
	return validate.Struct(np)
}

func (f *QueryFilter) Validate() error {
	if f.Status != "" && !ledger.AccountStatus(f.Status).Valid() {
		return core.NewValidationError(nil, core.FieldError{Field: "status", Error: "estado desconocido"})
	}
	return nil
}

// payMethodValidation checks that the method is one of ledger.MethodKinds
func payMethodValidation(fl validator.FieldLevel) bool {
	kind := fl.Field().String()
	for _, k := range ledger.MethodKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// paymentStructValidation rejects an installment selected twice.
func paymentStructValidation(sl validator.StructLevel) {
	np := sl.Current().Interface().(NewPayment)
	seen := make(map[int]bool, len(np.Installments))
	for _, n := range np.Installments {
		if seen[n] {
			sl.ReportError(np.Installments, "installments", "Installments", duplicateTag, "")
			return
		}
		seen[n] = true
	}
}
