// Package classroom exposes every class, assignment, submission and dashboard
// operation of the API as cached queries and invalidating mutations.
package classroom

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"github.com/fastygo/classroom/domain"
	"github.com/fastygo/classroom/internal/apiclient"
	"github.com/fastygo/classroom/internal/query"
	"github.com/fastygo/classroom/internal/validation"
	"github.com/fastygo/classroom/usecase"
)

const (
	MsgCreateClass      = "Class created successfully!"
	MsgJoinClass        = "Successfully joined class!"
	MsgCreateAssignment = "Assignment created successfully!"
	MsgUpdateAssignment = "Assignment updated successfully!"
	MsgSubmitAssignment = "Assignment submitted successfully!"
	MsgGradeSubmission  = "Submission graded successfully!"
)

type UseCase struct {
	api       *apiclient.Client
	cache     *query.Cache
	validator *validation.Validator
	notifier  usecase.Notifier
	logger    *zap.Logger
}

func New(api *apiclient.Client, cache *query.Cache, validator *validation.Validator, notifier usecase.Notifier, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = usecase.Nop
	}
	if validator == nil {
		validator = validation.New()
	}
	return &UseCase{
		api:       api,
		cache:     cache,
		validator: validator,
		notifier:  notifier,
		logger:    logger,
	}
}

func path(parts ...string) string {
	out := ""
	for _, p := range parts {
		out += "/" + url.PathEscape(p)
	}
	return out
}

func getList[T any](api *apiclient.Client, p string) func(context.Context) ([]T, error) {
	return func(ctx context.Context) ([]T, error) {
		items, err := apiclient.GetJSON[[]T](ctx, api, p)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []T{}
		}
		return items, nil
	}
}

func getOne[T any](api *apiclient.Client, p string) func(context.Context) (*T, error) {
	return func(ctx context.Context) (*T, error) {
		return apiclient.GetJSON[*T](ctx, api, p)
	}
}

func send[T any](api *apiclient.Client, method, p string, body interface{}) func(context.Context) (*T, error) {
	return func(ctx context.Context) (*T, error) {
		return apiclient.Call[*T](ctx, api, apiclient.Request{Method: method, Path: p, Body: body})
	}
}

func required(field, message, value string) error {
	if value != "" {
		return nil
	}
	return &domain.ValidationError{Fields: []domain.FieldError{{Field: field, Message: message}}}
}

// mutate validates req, runs fn with the mutation retry policy, applies the
// invalidations of m and reports the outcome.
func mutate[T any](ctx context.Context, uc *UseCase, req interface{}, m query.Mutation, vars query.Vars, success string, fn func(context.Context) (T, error)) (T, error) {
	if req != nil {
		if err := uc.validator.Struct(req); err != nil {
			var zero T
			return zero, err
		}
	}
	out, err := query.Mutate(ctx, uc.cache, m, vars, fn)
	if err != nil {
		uc.logger.Debug("mutation failed", zap.String("mutation", string(m)), zap.Error(err))
	}
	return out, usecase.Report(uc.notifier, success, err)
}
