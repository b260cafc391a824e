package formcheck

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		inputs  []Input
		opts    Options
		checked int
		failing []string
	}{
		{
			name:    "empty form",
			checked: 0,
		},
		{
			name: "all filled",
			inputs: []Input{
				{ID: "title", Type: "text", Value: "Leave"},
				{ID: "kind", Type: "select-one", Value: "annual"},
				{ID: "days", Type: "number", Value: "3"},
				{ID: "notes", Type: "textarea", Value: "beach"},
				{ID: "proof", Type: "file", Value: "ticket.pdf"},
			},
			checked: 5,
		},
		{
			name: "missing values",
			inputs: []Input{
				{ID: "title", Type: "text"},
				{ID: "notes", Type: "textarea", Value: "   "},
				{ID: "kind", Type: "select", Value: "x"},
			},
			checked: 3,
			failing: []string{"title", "notes"},
		},
		{
			name: "unsupported types skipped",
			inputs: []Input{
				{ID: "agree", Type: "checkbox"},
				{ID: "go", Type: "submit"},
				{ID: "mail", Type: "email"},
			},
			checked: 0,
		},
		{
			name: "number must be numeric",
			inputs: []Input{
				{ID: "a", Type: "number", Value: "12.5"},
				{ID: "b", Type: "number", Value: "-3"},
				{ID: "c", Type: "number", Value: "three"},
				{ID: "d", Type: "number"},
				{ID: "e", Type: "number", Value: ".5"},
				{ID: "f", Type: "number", Value: "1e3"},
				{ID: "g", Type: "number", Value: "NaN"},
				{ID: "h", Type: "number", Value: " 7 "},
			},
			checked: 8,
			failing: []string{"c", "d", "g"},
		},
		{
			name: "excluded inputs skipped",
			inputs: []Input{
				{ID: "title", Type: "text"},
				{ID: "notes", Type: "textarea"},
			},
			opts:    Options{Exclude: []string{"notes"}},
			checked: 1,
			failing: []string{"title"},
		},
		{
			name: "inactive inputs skipped unless included",
			inputs: []Input{
				{ID: "ro", Type: "text", ReadOnly: true},
				{ID: "hidden", Type: "text", Hidden: true},
				{ID: "disabled", Type: "text", Disabled: true},
				{ID: "collapsed", Type: "text", Invisible: true},
			},
			opts:    Options{Include: []string{"disabled"}},
			checked: 1,
			failing: []string{"disabled"},
		},
		{
			name: "exclude wins over include",
			inputs: []Input{
				{ID: "ro", Type: "text", ReadOnly: true},
			},
			opts:    Options{Include: []string{"ro"}, Exclude: []string{"ro"}},
			checked: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reported []string
			opts := tt.opts
			opts.OnEachError = func(fe FieldError) { reported = append(reported, fe.ID) }

			res := Validate(tt.inputs, opts)
			assert.Equal(t, tt.checked, res.Checked)

			var failing []string
			for _, fe := range res.Errors {
				failing = append(failing, fe.ID)
			}
			assert.Equal(t, tt.failing, failing)
			assert.Equal(t, tt.failing, reported)
			assert.Equal(t, len(tt.failing) == 0, res.Valid())
		})
	}
}

func TestValidateRules(t *testing.T) {
	res := Validate([]Input{
		{ID: "title", Type: "TEXT"},
		{ID: "days", Type: "number", Value: "x"},
	}, Options{})

	require.Len(t, res.Errors, 2)
	assert.Equal(t, FieldError{ID: "title", Type: TypeText, Rule: "required"}, res.Errors[0])
	assert.Equal(t, FieldError{ID: "days", Type: TypeNumber, Rule: "float"}, res.Errors[1])

	err := res.Err()
	require.Error(t, err)
	var fe FieldError
	assert.True(t, errors.As(err, &fe))
	assert.Contains(t, err.Error(), `"title"`)
}

func TestResultErrNilWhenValid(t *testing.T) {
	res := Validate([]Input{{ID: "title", Type: "text", Value: "ok"}}, Options{})
	assert.NoError(t, res.Err())
}
