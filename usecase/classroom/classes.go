package classroom

import (
	"context"
	"net/http"

	"github.com/fastygo/classroom/api/transport"
	"github.com/fastygo/classroom/domain"
	"github.com/fastygo/classroom/internal/query"
)

// MyClasses lists the classes the user teaches or attends.
func (uc *UseCase) MyClasses(ctx context.Context) ([]domain.Class, error) {
	return query.Fetch(ctx, uc.cache, query.KeyMyClasses(),
		query.Options{StaleTime: query.StaleClasses},
		getList[domain.Class](uc.api, "/classes/my"))
}

func (uc *UseCase) Class(ctx context.Context, id string) (*domain.Class, error) {
	return query.Fetch(ctx, uc.cache, query.KeyClassDetail(id),
		query.Options{StaleTime: query.StaleClassDetail},
		getOne[domain.Class](uc.api, path("classes", id)))
}

// PrefetchClass warms the class detail cache.
func (uc *UseCase) PrefetchClass(ctx context.Context, id string) error {
	return query.Prefetch(ctx, uc.cache, query.KeyClassDetail(id),
		query.Options{StaleTime: query.StaleClassDetail},
		getOne[domain.Class](uc.api, path("classes", id)))
}

func (uc *UseCase) CreateClass(ctx context.Context, req transport.CreateClassRequest) (*domain.Class, error) {
	return mutate(ctx, uc, req, query.MutationCreateClass, query.Vars{}, MsgCreateClass,
		send[domain.Class](uc.api, http.MethodPost, "/classes/createClass", req))
}

func (uc *UseCase) JoinClass(ctx context.Context, req transport.JoinClassRequest) (*domain.Class, error) {
	return mutate(ctx, uc, req, query.MutationJoinClass, query.Vars{}, MsgJoinClass,
		send[domain.Class](uc.api, http.MethodPost, "/classes/join", req))
}
