package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/fastygo/classroom/domain"
	"github.com/fastygo/classroom/internal/apiclient"
	"github.com/fastygo/classroom/internal/config"
	"github.com/fastygo/classroom/internal/guard"
	boltInfra "github.com/fastygo/classroom/internal/infrastructure/bolt"
	"github.com/fastygo/classroom/internal/infrastructure/monitor"
	redisInfra "github.com/fastygo/classroom/internal/infrastructure/redis"
	"github.com/fastygo/classroom/internal/query"
	"github.com/fastygo/classroom/internal/services/lifecycle"
	"github.com/fastygo/classroom/internal/session"
	"github.com/fastygo/classroom/internal/validation"
	"github.com/fastygo/classroom/repository"
	boltRepo "github.com/fastygo/classroom/repository/bolt"
	"github.com/fastygo/classroom/repository/memory"
	redisRepo "github.com/fastygo/classroom/repository/redis"
	"github.com/fastygo/classroom/usecase"
	authUC "github.com/fastygo/classroom/usecase/auth"
	classroomUC "github.com/fastygo/classroom/usecase/classroom"
)

var (
	readPasswordFunc = func() ([]byte, error) { return term.ReadPassword(int(syscall.Stdin)) } // mockable

	errUsage = errors.New("usage shown")
)

type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	out     io.Writer
	errOut  io.Writer
	manager *lifecycle.Manager

	sessions  *session.Store
	cache     *query.Cache
	guard     *guard.Guard
	monitor   *monitor.Monitor
	auth      *authUC.UseCase
	classroom *classroomUC.UseCase
	commands  *usecase.Dispatcher

	format string

	// reported is set once the notifier has shown an error to the user.
	reported bool
}

// openSessionRepository opens the configured session backend and registers it
// for shutdown.
func openSessionRepository(ctx context.Context, cfg *config.Config, manager *lifecycle.Manager) (repository.SessionRepository, error) {
	switch cfg.Session.Backend {
	case config.SessionBackendMemory:
		return memory.NewSessionRepository(), nil
	case config.SessionBackendRedis:
		client, err := redisInfra.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		manager.RegisterCloser("redis", client)
		return redisRepo.NewSessionRepository(client, cfg.Session.Key, cfg.Session.TTL, repository.CodecFor(cfg.Session.Secret)), nil
	case config.SessionBackendBolt, "":
		store, err := boltInfra.Open(cfg.Session.Path, "session")
		if err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}
		manager.RegisterCloser("bolt", store)
		return boltRepo.NewSessionRepository(store, cfg.Session.Key, repository.CodecFor(cfg.Session.Secret)), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}
}

func newApp(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	manager *lifecycle.Manager,
	repo repository.SessionRepository,
	doer apiclient.Doer,
	out, errOut io.Writer,
) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		out:     out,
		errOut:  errOut,
		manager: manager,
		guard:   guard.Default(),
	}

	a.sessions = session.New(ctx, repo, logger.Named("session"))

	navigator := apiclient.NavigatorFunc(func(path string) {
		fmt.Fprintf(errOut, "-> %s\n", path)
	})
	api := apiclient.New(apiclient.Config{
		BaseURL:       cfg.API.BaseURL,
		Timeout:       cfg.API.Timeout,
		RefreshCookie: cfg.API.RefreshCookie,
		UserAgent:     cfg.API.UserAgent,
		MaxConns:      cfg.API.MaxConns,
	}, doer, a.sessions, navigator, logger.Named("api"))

	a.cache = query.New(query.Config{
		DefaultStale:  cfg.Cache.DefaultStale,
		GCTime:        cfg.Cache.GCTime,
		QueryRetry:    query.QueryRetry(cfg.Retry.QueryMax),
		MutationRetry: query.MutationRetry(cfg.Retry.MutationMax),
		Backoff:       query.Backoff{Base: cfg.Retry.BaseDelay, Max: cfg.Retry.MaxDelay},
	}, logger.Named("query"))
	manager.Register("cache", a.cache.Close)

	janitor, err := query.NewJanitor(a.cache, cfg.Cache.GCInterval, logger.Named("janitor"))
	if err != nil {
		return nil, err
	}
	janitor.Start()
	manager.Register("janitor", janitor.Stop)

	a.monitor = monitor.New(monitor.Config{
		BaseURL:  cfg.API.BaseURL,
		Backend:  cfg.Session.Backend,
		Interval: cfg.Monitor.Interval,
	}, doer, a.sessions, a.cache, logger.Named("monitor"))
	manager.Register("monitor", func(context.Context) error {
		a.monitor.Stop()
		return nil
	})

	notifier := usecase.NotifierFuncs{
		OnSuccess: func(m string) { fmt.Fprintln(out, m) },
		OnError: func(m string) {
			a.reported = true
			fmt.Fprintf(errOut, "error: %s\n", m)
		},
	}
	v := validation.New()
	a.auth = authUC.New(api, a.sessions, a.cache, v, notifier, logger.Named("auth"))
	a.classroom = classroomUC.New(api, a.cache, v, notifier, logger.Named("classroom"))

	a.commands = usecase.NewDispatcher()
	a.register()
	return a, nil
}

// run dispatches args and returns the process exit code.
func (a *app) run(ctx context.Context, args []string) int {
	global := flag.NewFlagSet("classroom", flag.ContinueOnError)
	global.SetOutput(a.errOut)
	global.Usage = a.printUsage
	output := a.cfg.Output
	if output == "" {
		output = config.OutputJSON
	}
	format := global.String("o", output, "output format: json or yaml")
	if err := global.Parse(args); err != nil {
		return 2
	}
	args = global.Args()
	if *format != config.OutputJSON && *format != config.OutputYAML {
		fmt.Fprintf(a.errOut, "error: unknown output format %q\n", *format)
		return 2
	}
	if len(args) == 0 || args[0] == "help" {
		a.printUsage()
		return 2
	}

	name := args[0]
	a.format = *format
	a.reported = false
	result, err := a.commands.Dispatch(ctx, name, args[1:])
	if err != nil {
		return a.fail(name, err)
	}
	if result != nil {
		if err := a.print(result); err != nil {
			a.logger.Error("print result", zap.Error(err))
			return 1
		}
	}
	return 0
}

func (a *app) fail(name string, err error) int {
	var vErr *domain.ValidationError
	switch {
	case errors.Is(err, flag.ErrHelp), errors.Is(err, errUsage):
		return 2
	case domain.IsDomainError(err, domain.ErrCodeNotFound) && !a.known(name):
		fmt.Fprintf(a.errOut, "error: %s\n", apiclient.Message(err))
		a.printUsage()
		return 2
	case errors.As(err, &vErr):
		for _, f := range vErr.Fields {
			fmt.Fprintf(a.errOut, "%s: %s\n", f.Field, f.Message)
		}
	case a.reported:
	default:
		fmt.Fprintf(a.errOut, "error: %s\n", apiclient.Message(err))
	}
	a.logger.Debug("command failed", zap.String("command", name), zap.Error(err))
	return 1
}

func (a *app) known(name string) bool {
	for _, c := range a.commands.Commands() {
		if c.Name == name {
			return true
		}
	}
	return false
}

func (a *app) print(v interface{}) error {
	if a.format != config.OutputYAML {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	// Round trip through JSON so yaml keys follow the json tags.
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	enc := yaml.NewEncoder(a.out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func (a *app) printUsage() {
	fmt.Fprintln(a.errOut, "Usage: classroom [-o json|yaml] <command> [flags]")
	fmt.Fprintln(a.errOut, "Commands:")
	for _, c := range a.commands.Commands() {
		fmt.Fprintf(a.errOut, "  %-18s %s\n", c.Name, c.Usage)
	}
}

// page checks the route guard for path and follows its redirect when denied.
func (a *app) page(path string) error {
	d := a.guard.Check(a.sessions.Current(), path)
	switch {
	case d.Allowed:
		return nil
	case d.NotFound:
		return domain.NewError(domain.ErrCodeNotFound, "page not found")
	case d.Redirect == guard.LoginRoute:
		fmt.Fprintf(a.errOut, "-> %s\n", d.Redirect)
		return domain.NewError(domain.ErrCodeUnauthorized, "Please log in first")
	default:
		fmt.Fprintf(a.errOut, "-> %s\n", d.Redirect)
		return domain.NewError(domain.ErrCodeForbidden, "Your role cannot open this page")
	}
}
