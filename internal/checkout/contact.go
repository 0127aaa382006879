package checkout

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var phonePattern = regexp.MustCompile(`^\d{9}$`)

// ShippingContact is the delivery and contact data collected at checkout.
type ShippingContact struct {
	FirstName      string `json:"first_name" validate:"required"`
	LastName       string `json:"last_name" validate:"required"`
	Phone          string `json:"phone" validate:"required,phone9"`
	SecondaryPhone string `json:"secondary_phone,omitempty"`
	Gender         string `json:"gender,omitempty"`
	Address        string `json:"address" validate:"required"`
	Region         string `json:"region" validate:"required"`
	Province       string `json:"province" validate:"required"`
	District       string `json:"district" validate:"required"`
	Reference      string `json:"reference,omitempty"`
}

// Normalized trims every field.
func (c ShippingContact) Normalized() ShippingContact {
	return ShippingContact{
		FirstName:      strings.TrimSpace(c.FirstName),
		LastName:       strings.TrimSpace(c.LastName),
		Phone:          strings.TrimSpace(c.Phone),
		SecondaryPhone: strings.TrimSpace(c.SecondaryPhone),
		Gender:         strings.TrimSpace(c.Gender),
		Address:        strings.TrimSpace(c.Address),
		Region:         strings.TrimSpace(c.Region),
		Province:       strings.TrimSpace(c.Province),
		District:       strings.TrimSpace(c.District),
		Reference:      strings.TrimSpace(c.Reference),
	}
}

func (c ShippingContact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// ShippingAddress renders "address, district, province, region (Ref: reference)".
func (c ShippingContact) ShippingAddress() string {
	addr := fmt.Sprintf("%s, %s, %s, %s", c.Address, c.District, c.Province, c.Region)
	if c.Reference != "" {
		addr += fmt.Sprintf(" (Ref: %s)", c.Reference)
	}
	return addr
}

var ErrValidation = errors.New("invalid shipping contact")

// ValidationError names the first field that failed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type contactValidator struct {
	v *validator.Validate
}

func newContactValidator() *contactValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("phone9", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return &contactValidator{v: v}
}

// Validate reports missing required fields before format problems, in form order.
func (cv *contactValidator) Validate(c ShippingContact) error {
	err := cv.v.Struct(c)
	if err == nil {
		return nil
	}

	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) || len(vErrs) == 0 {
		return err
	}

	first := vErrs[0]
	for _, fe := range vErrs {
		if fe.Tag() == "required" {
			first = fe
			break
		}
	}
	return &ValidationError{Field: first.Field(), Reason: reason(first)}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "phone9":
		return "must be exactly 9 digits"
	}
	return fmt.Sprintf("failed %s", fe.Tag())
}
