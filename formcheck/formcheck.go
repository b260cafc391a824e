// Package formcheck validates the inputs of a submission form before the
// values are written to a SharePoint list.
package formcheck

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Input types that are checked. Other types (checkbox, radio, button, ...)
// are always skipped.
const (
	TypeText     = "text"
	TypeSelect   = "select"
	TypeNumber   = "number"
	TypeTextarea = "textarea"
	TypeFile     = "file"
)

// Input is a single form control. The zero value describes an active,
// visible control.
type Input struct {
	ID    string
	Type  string
	Value string

	ReadOnly  bool
	Hidden    bool
	Disabled  bool
	Invisible bool
}

// Active reports whether the user can edit the input.
func (in Input) Active() bool {
	return !in.ReadOnly && !in.Hidden && !in.Disabled && !in.Invisible
}

// Options tunes Validate.
type Options struct {
	// Include lists IDs of inactive inputs that are still checked.
	Include []string
	// Exclude lists IDs that are never checked.
	Exclude []string
	// OnEachError is called for every failing input, in form order.
	OnEachError func(FieldError)
}

// FieldError describes a failing input.
type FieldError struct {
	ID   string
	Type string
	// Rule is the failed rule: "required" or "float".
	Rule string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("formcheck: %s input %q failed %s", e.Type, e.ID, e.Rule)
}

// Result is the outcome of Validate.
type Result struct {
	// Checked is the number of inputs that were validated.
	Checked int
	Errors  []FieldError
}

// Valid reports whether every checked input passed.
func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

// Err joins the field errors, or returns nil when the form is valid.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, fe := range r.Errors {
		errs[i] = fe
	}
	return errors.Join(errs...)
}

var validate = newValidator()

// newValidator registers "float": any value strconv.ParseFloat accepts
// (".5", "-2", "1e3") except NaN.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("float", func(fl validator.FieldLevel) bool {
		f, err := strconv.ParseFloat(fl.Field().String(), 64)
		return err == nil && !math.IsNaN(f)
	}); err != nil {
		panic(err)
	}
	return v
}

// rules maps a normalized input type to its validator tag.
var rules = map[string]string{
	TypeText:     "required",
	TypeSelect:   "required",
	TypeTextarea: "required",
	TypeFile:     "required",
	TypeNumber:   "required,float",
}

func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	switch t {
	case "select-one", "select-multiple":
		return TypeSelect
	}
	return t
}

// Validate checks inputs in order. Inputs of unsupported types and excluded
// inputs are skipped; inactive inputs are checked only when included.
func Validate(inputs []Input, opts Options) Result {
	var res Result
	for _, in := range inputs {
		rule, ok := rules[normalizeType(in.Type)]
		if !ok || slices.Contains(opts.Exclude, in.ID) {
			continue
		}
		if !in.Active() && !slices.Contains(opts.Include, in.ID) {
			continue
		}

		res.Checked++
		if err := validate.Var(strings.TrimSpace(in.Value), rule); err != nil {
			fe := FieldError{ID: in.ID, Type: normalizeType(in.Type), Rule: failedRule(err)}
			res.Errors = append(res.Errors, fe)
			if opts.OnEachError != nil {
				opts.OnEachError(fe)
			}
		}
	}
	return res
}

func failedRule(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Tag()
	}
	return "invalid"
}
