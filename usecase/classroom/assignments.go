package classroom

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/fastygo/classroom/api/transport"
	"github.com/fastygo/classroom/domain"
	"github.com/fastygo/classroom/internal/query"
)

func (uc *UseCase) AssignmentsByClass(ctx context.Context, classID string) ([]domain.Assignment, error) {
	return query.Fetch(ctx, uc.cache, query.KeyAssignmentsByClass(classID),
		query.Options{StaleTime: query.StaleAssignmentsByClass},
		getList[domain.Assignment](uc.api, path("assignments", "class", classID)))
}

func (uc *UseCase) Assignment(ctx context.Context, id string) (*domain.Assignment, error) {
	return query.Fetch(ctx, uc.cache, query.KeyAssignmentDetail(id),
		query.Options{StaleTime: query.StaleAssignmentDetail},
		getOne[domain.Assignment](uc.api, path("assignments", id)))
}

// PrefetchAssignment warms the assignment detail cache.
func (uc *UseCase) PrefetchAssignment(ctx context.Context, id string) error {
	return query.Prefetch(ctx, uc.cache, query.KeyAssignmentDetail(id),
		query.Options{StaleTime: query.StaleAssignmentDetail},
		getOne[domain.Assignment](uc.api, path("assignments", id)))
}

// TeacherAssignments lists the assignments of one class, or of every class
// the user has when classID is empty.
func (uc *UseCase) TeacherAssignments(ctx context.Context, classID string) ([]domain.Assignment, error) {
	return query.Fetch(ctx, uc.cache, query.KeyTeacherAssignments(classID),
		query.Options{StaleTime: query.StaleAssignmentsByClass},
		func(ctx context.Context) ([]domain.Assignment, error) {
			if classID != "" {
				return getList[domain.Assignment](uc.api, path("assignments", "class", classID))(ctx)
			}
			return uc.allAssignments(ctx)
		})
}

func (uc *UseCase) allAssignments(ctx context.Context) ([]domain.Assignment, error) {
	classes, err := uc.MyClasses(ctx)
	if err != nil {
		return nil, err
	}

	lists := make([][]domain.Assignment, len(classes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, c := range classes {
		i, id := i, c.ID
		g.Go(func() error {
			items, err := uc.AssignmentsByClass(gctx, id)
			lists[i] = items
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := []domain.Assignment{}
	for _, l := range lists {
		out = append(out, l...)
	}
	return out, nil
}

func (uc *UseCase) CreateAssignment(ctx context.Context, req transport.CreateAssignmentRequest) (*domain.Assignment, error) {
	return mutate(ctx, uc, req, query.MutationCreateAssignment, query.Vars{ClassID: req.ClassID}, MsgCreateAssignment,
		send[domain.Assignment](uc.api, http.MethodPost, "/assignments/createAssignment", req))
}

func (uc *UseCase) UpdateAssignment(ctx context.Context, id string, req transport.UpdateAssignmentRequest) (*domain.Assignment, error) {
	if err := required("assignmentId", "Assignment is required", id); err != nil {
		return nil, err
	}
	return mutate(ctx, uc, req, query.MutationUpdateAssignment, query.Vars{AssignmentID: id}, MsgUpdateAssignment,
		send[domain.Assignment](uc.api, http.MethodPatch, path("assignments", id), req))
}
