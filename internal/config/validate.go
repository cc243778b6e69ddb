package config

import (
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/recordmanager/internal/rmerror"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateDataSource enforces DataSource's `validate:` struct tags, turning
// the first failing field into a ConfigError naming the source.
func validateDataSource(ds DataSource) error {
	if err := validate.Struct(ds); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			fe := verrs[0]
			return rmerror.ConfigErrorf("data source %q: field %q failed validation %q", ds.ID, fe.StructField(), fe.Tag())
		}
		return rmerror.ConfigErrorf("data source %q: %v", ds.ID, err)
	}
	return nil
}
