package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bmr-suspension/storefront-backend/services/checkout-service/models"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/pricing"
)

var payloadValidator = newPayloadValidator()

func newPayloadValidator() *validator.Validate {
	v := validator.New()
	// Prices compare as numbers.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if p, ok := field.Interface().(pricing.Price); ok {
			return p.InexactFloat64()
		}
		return nil
	}, pricing.Price{})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// validatePayload checks the invariants every stored or submitted checkout
// payload must satisfy before an order can be built from it.
func validatePayload(p *models.CheckoutPayload) error {
	if p == nil {
		return fmt.Errorf("payload is empty")
	}
	err := payloadValidator.Struct(p)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return describeFieldError(fieldErrs[0])
	}
	return err
}

func describeFieldError(fe validator.FieldError) error {
	path := fe.Namespace()
	if i := strings.IndexByte(path, '.'); i >= 0 {
		path = path[i+1:]
	}
	switch fe.Tag() {
	case "required", "min":
		if fe.Field() == "items" {
			return errors.New("at least one item is required")
		}
		return fmt.Errorf("%s is required", path)
	case "required_without":
		return fmt.Errorf("%s: name or part number is required", strings.TrimSuffix(path, "."+fe.Field()))
	case "gte":
		if fe.Field() == "quantity" {
			return fmt.Errorf("%s must be at least 1", path)
		}
		return fmt.Errorf("%s must not be negative", path)
	}
	return fmt.Errorf("%s is invalid", path)
}
