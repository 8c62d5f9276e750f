package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/fastygo/classroom/api/transport"
	"github.com/fastygo/classroom/domain"
	"github.com/fastygo/classroom/internal/guard"
	"github.com/fastygo/classroom/usecase"
)

func (a *app) register() {
	a.commands.MustRegister(
		usecase.Command{Name: "login", Usage: "-email EMAIL; password is prompted", Mutation: true, Handler: a.login},
		usecase.Command{Name: "register", Usage: "-name NAME -email EMAIL -role student|teacher; password is prompted", Mutation: true, Handler: a.registerUser},
		usecase.Command{Name: "logout", Usage: "end the session", Handler: a.logout},
		usecase.Command{Name: "whoami", Usage: "show the signed-in user", Handler: a.whoami},
		usecase.Command{Name: "status", Usage: "[-watch] probe the API and session backend", Handler: a.status},
		usecase.Command{Name: "open", Usage: "PATH check whether a page may be opened", Handler: a.open},

		usecase.Command{Name: "dashboard", Usage: "show dashboard counters", Handler: a.dashboard},
		usecase.Command{Name: "classes", Usage: "list my classes", Handler: a.classes},
		usecase.Command{Name: "class", Usage: "-id CLASS", Handler: a.class},
		usecase.Command{Name: "create-class", Usage: "-title TITLE [-subject S] [-description D]", Mutation: true, Handler: a.createClass},
		usecase.Command{Name: "join", Usage: "-code CODE", Mutation: true, Handler: a.join},

		usecase.Command{Name: "assignments", Usage: "[-class CLASS] list assignments", Handler: a.assignments},
		usecase.Command{Name: "assignment", Usage: "-id ASSIGNMENT", Handler: a.assignment},
		usecase.Command{Name: "create-assignment", Usage: "-class CLASS -title TITLE [-description D] [-due DATE]", Mutation: true, Handler: a.createAssignment},
		usecase.Command{Name: "edit-assignment", Usage: "-id ASSIGNMENT -title TITLE [-description D] [-due DATE]", Mutation: true, Handler: a.editAssignment},

		usecase.Command{Name: "submissions", Usage: "-assignment ASSIGNMENT list submissions", Handler: a.submissions},
		usecase.Command{Name: "my-submission", Usage: "-assignment ASSIGNMENT", Handler: a.mySubmission},
		usecase.Command{Name: "submit", Usage: "-assignment ASSIGNMENT -text TEXT [-file URL]", Mutation: true, Handler: a.submit},
		usecase.Command{Name: "grade", Usage: "-id SUBMISSION -assignment ASSIGNMENT -marks N [-feedback F]", Mutation: true, Handler: a.grade},
	)
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

// idFlag registers -<name>, falling back to the first positional argument.
func idFlag(fs *flag.FlagSet, name, usage string) func() string {
	v := fs.String(name, "", usage)
	return func() string {
		if *v != "" {
			return *v
		}
		return fs.Arg(0)
	}
}

// required rejects an empty identifier before it reaches a page path.
func required(field, value string) error {
	if strings.TrimSpace(value) != "" {
		return nil
	}
	return &domain.ValidationError{Fields: []domain.FieldError{{Field: field, Message: "is required"}}}
}

func (a *app) login(ctx context.Context, args []string) (interface{}, error) {
	fs := a.flags("login")
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	password, err := a.promptPassword()
	if err != nil {
		return nil, err
	}
	sess, err := a.auth.Login(ctx, transport.LoginRequest{Email: *email, Password: password})
	if err != nil {
		return nil, err
	}
	return domain.User{ID: sess.ID, Name: sess.Name, Email: sess.Email, Role: sess.Role}, nil
}

func (a *app) registerUser(ctx context.Context, args []string) (interface{}, error) {
	fs := a.flags("register")
	name := fs.String("name", "", "full name")
	email := fs.String("email", "", "account email")
	role := fs.String("role", string(domain.RoleStudent), "student or teacher")
	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	password, err := a.promptPassword()
	if err != nil {
		return nil, err
	}
	return a.auth.Register(ctx, transport.RegisterRequest{
		Name:     *name,
		Email:    *email,
		Password: password,
		Role:     domain.Role(*role),
	})
}

func (a *app) promptPassword() (string, error) {
	fmt.Fprint(a.errOut, "Password: ")
	pwd, err := readPasswordFunc()
	fmt.Fprintln(a.errOut)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pwd), nil
}

func (a *app) logout(ctx context.Context, _ []string) (interface{}, error) {
	return nil, a.auth.Logout(ctx)
}

type whoami struct {
	*domain.User
	AccessExpires *time.Time `json:"accessExpires,omitempty"`
}

func (a *app) whoami(ctx context.Context, _ []string) (interface{}, error) {
	if err := a.page(guard.HomeRoute); err != nil {
		return nil, err
	}
	user, err := a.auth.Me(ctx)
	if err != nil {
		return nil, err
	}
	out := whoami{User: user}
	if exp, ok := a.sessions.AccessExpiry(); ok {
		out.AccessExpires = &exp
	}
	return out, nil
}

func (a *app) status(ctx context.Context, args []string) (interface{}, error) {
	fs := a.flags("status")
	watch := fs.Bool("watch", false, "keep probing until interrupted")
	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	if !*watch {
		return a.monitor.Check(ctx), nil
	}

	a.monitor.Start()
	ticker := time.NewTicker(a.cfg.Monitor.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, nil
		case <-ticker.C:
			if err := a.print(a.monitor.GetStatus()); err != nil {
				return nil, err
			}
		}
	}
}

type pageDecision struct {
	Path     string            `json:"path"`
	Allowed  bool              `json:"allowed"`
	Redirect string            `json:"redirect,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
}

func (a *app) open(_ context.Context, args []string) (interface{}, error) {
	if len(args) != 1 {
		fmt.Fprintln(a.errOut, "Usage: classroom open PATH")
		return nil, errUsage
	}
	d := a.guard.Check(a.sessions.Current(), args[0])
	if d.NotFound {
		return nil, domain.NewError(domain.ErrCodeNotFound, "page not found")
	}
	return pageDecision{Path: args[0], Allowed: d.Allowed, Redirect: d.Redirect, Params: d.Params}, nil
}

func (a *app) dashboard(ctx context.Context, _ []string) (interface{}, error) {
	if err := a.page(guard.HomeRoute); err != nil {
		return nil, err
	}
	return a.classroom.Dashboard(ctx)
}

func (a *app) classes(ctx context.Context, _ []string) (interface{}, error) {
	if err := a.page("/classes"); err != nil {
		return nil, err
	}
	return a.classroom.MyClasses(ctx)
}

func (a *app) class(ctx context.Context, args []string) (interface{}, error) {
	fs := a.flags("class")
	id := idFlag(fs, "id", "class id")
	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	if err := required("id", id()); err != nil {
		return nil, err
	}
	if err := a.page("/classes"); err != nil {
		return nil, err
	}
	return a.classroom.Class(ctx, id())
}

func (a *app) createClass(ctx context.Context, args []string) (interface{}, error) {
	fs := a.flags("create-class")
	title := fs.String("title", "", "class name")
	subject := fs.String("subject", "", "subject")
	description := fs.String("description", "", "description")
	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	if err := a.page("/classes/create"); err != nil {
		return nil, err
	}
	return a.classroom.CreateClass(ctx, transport.CreateClassRequest{
		Title:       *title,
		Subject:     *subject,
		Description: *description,
	})
}

func (a *app) join(ctx context.Context, args []string) (interface{}, error) {
	fs := a.flags("join")
	code := idFlag(fs, "code", "class join code")
	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	if err := a.page("/classes/join"); err != nil {
		return nil, err
	}
	return a.classroom.JoinClass(ctx, transport.JoinClassRequest{Code: strings.TrimSpace(code())})
}

func (a *app) assignments(ctx context.Context, args []string) (interface{}, error) {
	fs := a.flags("assignments")
	classID := idFlag(fs, "class", "class id; teachers may omit it to list all")
	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	sess := a.sessions.Current()
	if sess.HasRole(domain.RoleTeacher) {
		if err := a.page("/assignments/create"); err != nil {
			return nil, err
		}
		return a.classroom.TeacherAssignments(ctx, classID())
	}
	if err := required("class", classID()); err != nil {
		return nil, err
	}
	if err := a.page("/classes/" + classID() + "/assignments"); err != nil {
		return nil, err
	}
	return a.classroom.AssignmentsByClass(ctx, classID())
}

func (a *app) assignment(ctx context.Context, args []string) (interface{}, error) {
	fs := a.flags("assignment")
	id := idFlag(fs, "id", "assignment id")
	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	if err := required("id", id()); err != nil {
		return nil, err
	}
	if err := a.page(guard.HomeRoute); err != nil {
		return nil, err
	}
	return a.classroom.Assignment(ctx, id())
}

func (a *app) createAssignment(ctx context.Context, args []string) (interface{}, error) {
	fs := a.flags("create-assignment")
	classID := fs.String("class", "", "class id")
	title := fs.String("title", "", "title")
	description := fs.String("description", "", "description")
	due := fs.String("due", "", "due date")
	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	if err := a.page("/assignments/create"); err != nil {
		return nil, err
	}
	return a.classroom.CreateAssignment(ctx, transport.CreateAssignmentRequest{
		ClassID:     *classID,
		Title:       *title,
		Description: *description,
		DueDate:     *due,
	})
}

func (a *app) editAssignment(ctx context.Context, args []string) (interface{}, error) {
	fs := a.flags("edit-assignment")
	id := idFlag(fs, "id", "assignment id")
	title := fs.String("title", "", "title")
	description := fs.String("description", "", "description")
	due := fs.String("due", "", "due date")
	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	if err := required("id", id()); err != nil {
		return nil, err
	}
	if err := a.page("/assignments/" + id() + "/edit"); err != nil {
		return nil, err
	}
	return a.classroom.UpdateAssignment(ctx, id(), transport.UpdateAssignmentRequest{
		Title:       *title,
		Description: *description,
		DueDate:     *due,
	})
}

func (a *app) submissions(ctx context.Context, args []string) (interface{}, error) {
	fs := a.flags("submissions")
	assignmentID := idFlag(fs, "assignment", "assignment id")
	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	if err := required("assignment", assignmentID()); err != nil {
		return nil, err
	}
	if err := a.page("/assignments/" + assignmentID() + "/submissions"); err != nil {
		return nil, err
	}
	return a.classroom.SubmissionsByAssignment(ctx, assignmentID())
}

func (a *app) mySubmission(ctx context.Context, args []string) (interface{}, error) {
	fs := a.flags("my-submission")
	assignmentID := idFlag(fs, "assignment", "assignment id")
	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	if err := required("assignment", assignmentID()); err != nil {
		return nil, err
	}
	if err := a.page("/assignments/" + assignmentID() + "/my-submission"); err != nil {
		return nil, err
	}
	sub, err := a.classroom.MySubmission(ctx, assignmentID())
	if err != nil {
		return nil, err
	}
	if sub == nil {
		fmt.Fprintln(a.out, "Not submitted yet")
		return nil, nil
	}
	return sub, nil
}

func (a *app) submit(ctx context.Context, args []string) (interface{}, error) {
	fs := a.flags("submit")
	assignmentID := idFlag(fs, "assignment", "assignment id")
	text := fs.String("text", "", "answer text")
	file := fs.String("file", "", "link to an attached file")
	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	if err := required("assignment", assignmentID()); err != nil {
		return nil, err
	}
	if err := a.page("/assignments/" + assignmentID() + "/submit"); err != nil {
		return nil, err
	}
	return a.classroom.SubmitAssignment(ctx, transport.SubmitAssignmentRequest{
		AssignmentID:   assignmentID(),
		SubmissionText: *text,
		SubmissionFile: *file,
	})
}

func (a *app) grade(ctx context.Context, args []string) (interface{}, error) {
	fs := a.flags("grade")
	id := idFlag(fs, "id", "submission id")
	assignmentID := fs.String("assignment", "", "assignment the submission belongs to")
	marks := fs.Int("marks", -1, "marks from 0 to 100")
	feedback := fs.String("feedback", "", "feedback for the student")
	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	if err := required("assignment", *assignmentID); err != nil {
		return nil, err
	}
	if err := a.page("/assignments/" + *assignmentID + "/submissions"); err != nil {
		return nil, err
	}
	return a.classroom.GradeSubmission(ctx, id(), *assignmentID, transport.GradeRequest{Marks: *marks, Feedback: *feedback})
}
