package ledger

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(sessionStructValidation, WorkSession{})
	return v
}

// sessionStructValidation requires positive hours for hourly work.
func sessionStructValidation(sl validator.StructLevel) {
	if ws, ok := sl.Current().Interface().(WorkSession); ok {
		if ws.WorkType == WorkHourly && ws.Hours <= 0 {
			sl.ReportError(ws.Hours, "hours", "Hours", "hourly_hours", "")
		}
	}
}

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid record: " + strings.Join(e.Fields, ", ")
}

func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return out
}
