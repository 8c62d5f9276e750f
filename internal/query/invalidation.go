package query

import (
	"context"

	"go.uber.org/zap"
)

// Mutation names a server-side change with cache consequences.
type Mutation string

const (
	MutationLogin            Mutation = "login"
	MutationRegister         Mutation = "register"
	MutationCreateClass      Mutation = "create_class"
	MutationJoinClass        Mutation = "join_class"
	MutationCreateAssignment Mutation = "create_assignment"
	MutationUpdateAssignment Mutation = "update_assignment"
	MutationSubmitAssignment Mutation = "submit_assignment"
	MutationGradeSubmission  Mutation = "grade_submission"
)

// Vars identifies the entities a mutation touched.
type Vars struct {
	ClassID      string
	AssignmentID string
}

// dependents maps each mutation to the query prefixes it makes stale.
var dependents = map[Mutation]func(Vars) []Key{
	MutationLogin: func(Vars) []Key {
		return []Key{KeyMe()}
	},
	MutationRegister: func(Vars) []Key {
		return nil
	},
	MutationCreateClass: func(Vars) []Key {
		return []Key{KeyClasses}
	},
	MutationJoinClass: func(Vars) []Key {
		return []Key{KeyClasses}
	},
	MutationCreateAssignment: func(v Vars) []Key {
		return []Key{
			KeyAssignmentsByClass(v.ClassID),
			{"assignments", "teacher"},
			KeyDashboard,
		}
	},
	MutationUpdateAssignment: func(v Vars) []Key {
		return []Key{
			KeyAssignmentDetail(v.AssignmentID),
			KeyAssignments,
			KeyDashboard,
		}
	},
	MutationSubmitAssignment: func(v Vars) []Key {
		return []Key{
			KeyMySubmission(v.AssignmentID),
			KeySubmissionsByAssignment(v.AssignmentID),
			KeyAssignmentDetail(v.AssignmentID),
			KeyDashboard,
		}
	},
	MutationGradeSubmission: func(v Vars) []Key {
		return []Key{
			KeySubmissionsByAssignment(v.AssignmentID),
			KeyDashboard,
		}
	},
}

// Dependents returns the prefixes invalidated after m succeeds.
func Dependents(m Mutation, v Vars) []Key {
	fn, ok := dependents[m]
	if !ok {
		return nil
	}
	return fn(v)
}

// Settle applies the invalidations of a completed mutation.
func (c *Cache) Settle(m Mutation, v Vars) int {
	n := c.Invalidate(Dependents(m, v)...)
	c.logger.Debug("mutation settled", zap.String("mutation", string(m)), zap.Int("invalidated", n))
	return n
}

// Mutate runs fn under the mutation retry policy and, once it succeeds,
// invalidates the queries that depend on m.
func Mutate[T any](ctx context.Context, c *Cache, m Mutation, v Vars, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := Retry(ctx, c.cfg.MutationRetry, c.cfg.Backoff, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	c.Settle(m, v)
	return out, nil
}
