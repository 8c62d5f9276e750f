package usecase

import (
	"errors"

	"github.com/fastygo/classroom/domain"
	"github.com/fastygo/classroom/internal/apiclient"
)

// Notifier presents the outcome of a mutation to the user, e.g. as a toast.
type Notifier interface {
	Success(message string)
	Error(message string)
}

// NotifierFuncs adapts two functions to Notifier. Nil fields are skipped.
type NotifierFuncs struct {
	OnSuccess func(message string)
	OnError   func(message string)
}

func (n NotifierFuncs) Success(message string) {
	if n.OnSuccess != nil {
		n.OnSuccess(message)
	}
}

func (n NotifierFuncs) Error(message string) {
	if n.OnError != nil {
		n.OnError(message)
	}
}

// Nop discards notifications.
var Nop Notifier = NotifierFuncs{}

// Report shows success when err is nil and the user-facing text of err
// otherwise. Validation failures are left to the form. err is returned as is.
func Report(n Notifier, success string, err error) error {
	if n == nil {
		return err
	}
	switch {
	case err == nil:
		n.Success(success)
	case isValidation(err):
	default:
		n.Error(apiclient.Message(err))
	}
	return err
}

func isValidation(err error) bool {
	var vErr *domain.ValidationError
	return errors.As(err, &vErr)
}
