package validate

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Struct validates v by its `validate` tags. Violations are reported as
// model.ErrInvalidArgument with one "field: tag" entry per failed rule.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return goerr.Wrap(err, "failed to validate")
	}

	fields := make([]string, 0, len(verrs))
	for _, e := range verrs {
		if e.Param() != "" {
			fields = append(fields, fmt.Sprintf("%s: %s=%s", e.Namespace(), e.Tag(), e.Param()))
		} else {
			fields = append(fields, fmt.Sprintf("%s: %s", e.Namespace(), e.Tag()))
		}
	}
	sort.Strings(fields)
	return goerr.Wrap(model.ErrInvalidArgument, "validation failed: "+strings.Join(fields, ", "),
		goerr.V("fields", fields))
}
