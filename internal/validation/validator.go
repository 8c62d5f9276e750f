// Package validation checks form payloads before they reach the network and
// reports every failing field instead of stopping at the first.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/fastygo/classroom/domain"
)

const notBlankTag = "notblank"

// messages overrides the generic translation for "<Struct>.<json field>.<tag>".
var messages = map[string]string{
	"LoginRequest.email.required":    "Please enter a valid email address",
	"LoginRequest.email.email":       "Please enter a valid email address",
	"LoginRequest.password.required": "Password is required",

	"RegisterRequest.name.required":  "Name is required",
	"RegisterRequest.name.notblank":  "Name is required",
	"RegisterRequest.email.required": "Please enter a valid email address",
	"RegisterRequest.email.email":    "Please enter a valid email address",
	"RegisterRequest.password.min":   "Password must be at least 6 characters long",
	"RegisterRequest.password.max":   "Password cannot be longer than 72 characters",
	"RegisterRequest.role.oneof":     "Role must be either student or teacher",

	"CreateClassRequest.title.required": "Class name must be at least 2 characters",
	"CreateClassRequest.title.min":      "Class name must be at least 2 characters",

	"JoinClassRequest.code.required": "Class code is required",
	"JoinClassRequest.code.max":      "Invalid class code format",

	"CreateAssignmentRequest.classId.required": "Please select a class",
	"CreateAssignmentRequest.title.required":   "Title must be at least 2 characters",
	"CreateAssignmentRequest.title.min":        "Title must be at least 2 characters",

	"UpdateAssignmentRequest.title.required": "Title must be at least 2 characters",
	"UpdateAssignmentRequest.title.min":      "Title must be at least 2 characters",

	"SubmitAssignmentRequest.assignmentId.required":   "Assignment is required",
	"SubmitAssignmentRequest.submissionText.notblank": "Submission text is required",

	"GradeRequest.marks.gte": "Marks must be between 0 and 100",
	"GradeRequest.marks.lte": "Marks must be between 0 and 100",
}

// Validator checks tagged request structs.
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	english := en.New()
	uni := ut.New(english, english)
	translator, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, translator)

	// Report JSON names, which are what the server and forms use.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation(notBlankTag, notBlank)
	_ = v.RegisterTranslation(notBlankTag, translator,
		func(ut.Translator) error { return nil },
		func(_ ut.Translator, fe validator.FieldError) string {
			return fe.Field() + " cannot be blank"
		})

	return &Validator{validate: v, translator: translator}
}

func notBlank(fl validator.FieldLevel) bool {
	if s, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return false
}

// Struct validates payload. It returns nil or a *domain.ValidationError
// listing each failing field once, in declaration order.
func (v *Validator) Struct(payload interface{}) error {
	err := v.validate.Struct(payload)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return domain.WrapError(domain.ErrCodeInvalid, "invalid payload", err)
	}

	out := &domain.ValidationError{}
	seen := make(map[string]bool, len(fieldErrs))
	for _, fe := range fieldErrs {
		if seen[fe.Field()] {
			continue
		}
		seen[fe.Field()] = true
		out.Fields = append(out.Fields, domain.FieldError{
			Field:   fe.Field(),
			Message: v.message(fe),
		})
	}
	return out
}

func (v *Validator) message(fe validator.FieldError) string {
	if msg, ok := messages[fe.Namespace()+"."+fe.Tag()]; ok {
		return msg
	}
	return fe.Translate(v.translator)
}
