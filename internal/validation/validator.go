package validation

import (
	"fmt"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation
// registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// struct-level rule: a line's discount can never exceed its original
	// price (field tags can't compare two fields)
	v.RegisterStructValidation(validateCartStruct, ValidateCartRequest{})

	return v
}

func validateCartStruct(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(ValidateCartRequest)

	for i, it := range req.Items {
		if it.Discount > it.OriginalPrice {
			sl.ReportError(it.Discount,
				fmt.Sprintf("items[%d].discount", i), "Discount",
				"discount_lte_original_price",
				fmt.Sprintf("discount %.2f > original price %.2f", it.Discount, it.OriginalPrice))
		}
	}
}
