package dto

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	apperrors "github.com/reglet-dev/flowgate/internal/application/errors"
)

// validate is a package-level singleton; building a validator is expensive.
var validate = newValidator()

var (
	namePattern    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	segmentPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._+-]*$`)
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// plugin_name: an author or package, free of the "." and "-" separators
	_ = v.RegisterValidation("plugin_name", func(fl validator.FieldLevel) bool {
		return namePattern.MatchString(fl.Field().String())
	})

	// plugin_segment: a single, path-safe id segment
	_ = v.RegisterValidation("plugin_segment", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s != "." && s != ".." && segmentPattern.MatchString(s)
	})

	// semantic_version: parseable by Masterminds/semver
	_ = v.RegisterValidation("semantic_version", func(fl validator.FieldLevel) bool {
		_, err := semver.NewVersion(fl.Field().String())
		return err == nil
	})

	return v
}

// validateStruct runs the struct validator and converts failures into an
// application ValidationError listing every failing field.
func validateStruct(name string, s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.NewValidationError(name, err.Error())
	}

	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return apperrors.NewValidationError(verrs[0].Namespace(), "invalid "+name, details...)
}
