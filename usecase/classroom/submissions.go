package classroom

import (
	"context"
	"net/http"

	"github.com/fastygo/classroom/api/transport"
	"github.com/fastygo/classroom/domain"
	"github.com/fastygo/classroom/internal/apiclient"
	"github.com/fastygo/classroom/internal/query"
)

func (uc *UseCase) SubmissionsByAssignment(ctx context.Context, assignmentID string) ([]domain.Submission, error) {
	return query.Fetch(ctx, uc.cache, query.KeySubmissionsByAssignment(assignmentID),
		query.Options{StaleTime: query.StaleSubmissions},
		getList[domain.Submission](uc.api, path("submissions", "assignment", assignmentID)))
}

// MySubmission returns the student's submission for an assignment, or nil
// when there is none yet. A 404 here means "not submitted" and is not retried.
func (uc *UseCase) MySubmission(ctx context.Context, assignmentID string) (*domain.Submission, error) {
	p := path("submissions", "my", assignmentID)
	return query.Fetch(ctx, uc.cache, query.KeyMySubmission(assignmentID),
		query.Options{StaleTime: query.StaleSubmissions, Retry: query.SkipStatus(query.Limit(2), http.StatusNotFound)},
		func(ctx context.Context) (*domain.Submission, error) {
			resp, err := uc.api.Get(ctx, p)
			if apiclient.StatusCode(err) == http.StatusNotFound {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			if resp.Result().Empty() {
				return nil, nil
			}
			return apiclient.Decode[*domain.Submission](resp)
		})
}

func (uc *UseCase) SubmitAssignment(ctx context.Context, req transport.SubmitAssignmentRequest) (*domain.Submission, error) {
	return mutate(ctx, uc, req, query.MutationSubmitAssignment, query.Vars{AssignmentID: req.AssignmentID}, MsgSubmitAssignment,
		send[domain.Submission](uc.api, http.MethodPost, "/submissions/submitAssignment", req))
}

// GradeSubmission records marks for a submission. The result carries the
// assignment it was graded under.
func (uc *UseCase) GradeSubmission(ctx context.Context, submissionID, assignmentID string, req transport.GradeRequest) (*domain.Submission, error) {
	if err := required("submissionId", "Submission is required", submissionID); err != nil {
		return nil, err
	}
	grade := send[domain.Submission](uc.api, http.MethodPatch, path("submissions", submissionID, "grade"), req)
	return mutate(ctx, uc, req, query.MutationGradeSubmission, query.Vars{AssignmentID: assignmentID}, MsgGradeSubmission,
		func(ctx context.Context) (*domain.Submission, error) {
			sub, err := grade(ctx)
			if err != nil {
				return nil, err
			}
			if sub == nil {
				sub = &domain.Submission{ID: submissionID}
			}
			sub.AssignmentID = assignmentID
			return sub, nil
		})
}
