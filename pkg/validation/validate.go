// Handles all sorts of custom data validations happening in Hearth.

package validation

import (
	"regexp"
	"sync"

	"github.com/asaskevich/govalidator"
)

var upperIdent = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

var once sync.Once

// This function registers custom validation tags to be used as annotations in struct.
// After registering and adding the annotation, govalidator.ValidateStruct will trigger the validation.
// Safe to call more than once.
func RegisterCustomValidations() {
	once.Do(func() {
		// This custom validation checks if there's any whitespace in the input string.
		// SSE fields are line based, so a newline in them would split the frame.
		govalidator.TagMap["nospace"] = govalidator.Validator(func(str string) bool {
			return !govalidator.HasWhitespace(str)
		})
		// Upper case identifiers such as role names and event names.
		govalidator.TagMap["upperident"] = govalidator.Validator(IsUpperIdent)
	})
}

// IsUpperIdent reports whether str looks like ADMIN or MESSAGE_EVENT.
func IsUpperIdent(str string) bool {
	return upperIdent.MatchString(str)
}
