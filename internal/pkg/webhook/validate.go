package webhook

import (
	"errors"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// decimal(12,2): at most ten integer digits and two fraction digits
var amountPattern = regexp.MustCompile(`^-?\d{1,10}(\.\d{1,2})?$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		return amountPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("epoch", func(fl validator.FieldLevel) bool {
		_, err := strconv.ParseInt(fl.Field().String(), 10, 64)
		return err == nil
	})
	return v
}

// Validate checks the payload schema and returns a *SchemaError listing
// every offending field.
func (p *Payload) Validate() error {
	schemaErr := &SchemaError{}
	for field, rule := range p.typeErrors {
		schemaErr.add(field, rule)
	}

	if err := validate.Struct(p); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return err
		}
		for _, fe := range ve {
			schemaErr.add(fe.Field(), fe.Tag())
		}
	}

	if len(schemaErr.Fields) > 0 {
		return schemaErr
	}
	return nil
}
