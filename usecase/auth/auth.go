package auth

import (
	"context"

	"go.uber.org/zap"

	"github.com/fastygo/classroom/api/transport"
	"github.com/fastygo/classroom/domain"
	"github.com/fastygo/classroom/internal/apiclient"
	"github.com/fastygo/classroom/internal/query"
	"github.com/fastygo/classroom/internal/session"
	"github.com/fastygo/classroom/internal/validation"
	"github.com/fastygo/classroom/usecase"
)

const (
	PathLogin    = "/auth/login"
	PathRegister = "/auth/register"
	PathMe       = "/auth/me"

	MsgLogin    = "Login successful!"
	MsgRegister = "Registration successful!"
)

type UseCase struct {
	api       *apiclient.Client
	sessions  *session.Store
	cache     *query.Cache
	validator *validation.Validator
	notifier  usecase.Notifier
	logger    *zap.Logger
}

func New(
	api *apiclient.Client,
	sessions *session.Store,
	cache *query.Cache,
	validator *validation.Validator,
	notifier usecase.Notifier,
	logger *zap.Logger,
) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = usecase.Nop
	}
	if validator == nil {
		validator = validation.New()
	}
	uc := &UseCase{
		api:       api,
		sessions:  sessions,
		cache:     cache,
		validator: validator,
		notifier:  notifier,
		logger:    logger,
	}
	// Whatever ends the session, the next user must not see this user's data.
	sessions.OnLogout(func(reason session.LogoutReason) {
		cache.Clear()
		logger.Info("session ended", zap.String("reason", string(reason)))
	})
	return uc
}

// Login exchanges credentials for a session and stores it.
func (uc *UseCase) Login(ctx context.Context, req transport.LoginRequest) (*domain.Session, error) {
	if err := uc.validator.Struct(req); err != nil {
		return nil, err
	}
	sess, err := query.Mutate(ctx, uc.cache, query.MutationLogin, query.Vars{}, func(ctx context.Context) (*domain.Session, error) {
		resp, err := uc.api.Post(ctx, PathLogin, req)
		if err != nil {
			return nil, err
		}
		sess, err := sessionFrom(resp)
		if err != nil {
			return nil, err
		}
		// The login payload may carry no user id, so any previous session counts
		// as another identity.
		if uc.sessions.Current() != nil {
			uc.cache.Clear()
		}
		if err := uc.sessions.Login(ctx, sess); err != nil {
			return nil, err
		}
		return sess, nil
	})
	return sess, usecase.Report(uc.notifier, MsgLogin, err)
}

// Register creates an account. When the server answers with tokens the new
// user is signed in right away.
func (uc *UseCase) Register(ctx context.Context, req transport.RegisterRequest) (*domain.User, error) {
	if err := uc.validator.Struct(req); err != nil {
		return nil, err
	}
	user, err := query.Mutate(ctx, uc.cache, query.MutationRegister, query.Vars{}, func(ctx context.Context) (*domain.User, error) {
		resp, err := uc.api.Post(ctx, PathRegister, req)
		if err != nil {
			return nil, err
		}
		payload, err := apiclient.Decode[transport.LoginResponse](resp)
		if err != nil {
			return nil, err
		}
		if payload.AccessToken != "" {
			sess, err := sessionFrom(resp)
			if err != nil {
				return nil, err
			}
			if err := uc.sessions.Login(ctx, sess); err != nil {
				return nil, err
			}
		}
		return &domain.User{ID: payload.ID, Name: payload.Name, Email: payload.Email, Role: payload.Role}, nil
	})
	return user, usecase.Report(uc.notifier, MsgRegister, err)
}

func sessionFrom(resp *apiclient.Response) (*domain.Session, error) {
	payload, err := apiclient.Decode[transport.LoginResponse](resp)
	if err != nil {
		return nil, err
	}
	if payload.AccessToken == "" || !payload.Role.Valid() {
		return nil, domain.ErrInvalidResponse
	}
	refresh := payload.RefreshToken
	if refresh == "" {
		refresh = resp.RefreshCookie
	}
	return &domain.Session{
		ID:           payload.ID,
		Name:         payload.Name,
		Email:        payload.Email,
		Role:         payload.Role,
		AccessToken:  payload.AccessToken,
		RefreshToken: refresh,
	}, nil
}

// Me returns the signed-in user's profile and merges it into the session.
// A 401/403 ends the session; other failures leave it alone.
func (uc *UseCase) Me(ctx context.Context) (*domain.User, error) {
	return uc.sessions.RefreshProfile(ctx, func(ctx context.Context) (*domain.User, error) {
		return query.Fetch(ctx, uc.cache, query.KeyMe(),
			query.Options{StaleTime: query.StaleProfile, Retry: query.RetryOnce},
			func(ctx context.Context) (*domain.User, error) {
				return apiclient.GetJSON[*domain.User](ctx, uc.api, PathMe)
			})
	})
}

// Logout ends the session. It is safe to call when signed out.
func (uc *UseCase) Logout(ctx context.Context) error {
	if err := uc.sessions.Logout(ctx, session.ReasonUser); err != nil {
		return err
	}
	uc.cache.Clear()
	return nil
}

// Current returns the active session without a network call.
func (uc *UseCase) Current() *domain.Session {
	return uc.sessions.Current()
}
