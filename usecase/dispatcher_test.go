package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/classroom/domain"
	"github.com/fastygo/classroom/internal/apiclient"
)

func TestDispatcher(t *testing.T) {
	d := NewDispatcher()
	var got []string
	require.NoError(t, d.Register(Command{Name: "join", Mutation: true, Handler: func(ctx context.Context, args []string) (interface{}, error) {
		got = args
		return "joined", nil
	}}))
	require.NoError(t, d.Register(Command{Name: "classes", Handler: func(context.Context, []string) (interface{}, error) {
		return nil, nil
	}}))

	out, err := d.Dispatch(context.Background(), "join", []string{"ALG101"})
	require.NoError(t, err)
	assert.Equal(t, "joined", out)
	assert.Equal(t, []string{"ALG101"}, got)

	_, err = d.Dispatch(context.Background(), "missing", nil)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeNotFound))

	err = d.Register(Command{Name: "join", Handler: func(context.Context, []string) (interface{}, error) { return nil, nil }})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeConflict))
	assert.True(t, domain.IsDomainError(d.Register(Command{Name: "x"}), domain.ErrCodeInvalid))

	cmds := d.Commands()
	require.Len(t, cmds, 2)
	assert.Equal(t, "classes", cmds[0].Name)
	assert.True(t, cmds[1].Mutation)

	assert.Panics(t, func() {
		d.MustRegister(Command{Name: "classes", Handler: cmds[0].Handler})
	})
}

func TestReport(t *testing.T) {
	var successes, failures []string
	n := NotifierFuncs{
		OnSuccess: func(m string) { successes = append(successes, m) },
		OnError:   func(m string) { failures = append(failures, m) },
	}

	assert.NoError(t, Report(n, "Saved!", nil))

	apiErr := &apiclient.Error{StatusCode: 409, Message: "Already joined this class"}
	assert.Same(t, apiErr, Report(n, "Saved!", apiErr))

	vErr := &domain.ValidationError{Fields: []domain.FieldError{{Field: "code", Message: "Class code is required"}}}
	assert.Equal(t, vErr, Report(n, "Saved!", vErr))

	plain := errors.New("dial tcp: connection refused")
	assert.Equal(t, plain, Report(n, "Saved!", plain))

	assert.Equal(t, []string{"Saved!"}, successes)
	assert.Equal(t, []string{"Already joined this class", "dial tcp: connection refused"}, failures)

	assert.Equal(t, plain, Report(nil, "Saved!", plain))
	Nop.Success("ignored")
	Nop.Error("ignored")
}
