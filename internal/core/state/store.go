// Package state holds the observable authentication state of the client and
// the actions that move it.
package state

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/expensly/authclient/internal/core/domain"
	"github.com/expensly/authclient/internal/core/ports"
)

// Fallback messages used when a failure carries no message of its own.
const (
	MsgInitializeFailed     = "Failed to initialize authentication"
	MsgLoginFailed          = "Login failed"
	MsgRegisterFailed       = "Registration failed"
	MsgGoogleLoginFailed    = "Google login failed"
	MsgMicrosoftLoginFailed = "Microsoft login failed"
	MsgResetRequestFailed   = "Password reset request failed"
	MsgResetFailed          = "Password reset failed"
	MsgMFASetupFailed       = "MFA setup failed"
	MsgMFAVerifyFailed      = "MFA verification failed"
	MsgResendFailed         = "Failed to resend verification email"
	MsgVerifyEmailFailed    = "Email verification failed"
)

// State is a snapshot of the session as seen by the presentation layer.
type State struct {
	User            *domain.User    `json:"user"`
	Company         *domain.Company `json:"company"`
	IsAuthenticated bool            `json:"isAuthenticated"`
	IsLoading       bool            `json:"isLoading"`
	Error           string          `json:"error,omitempty"`
	IsInitialized   bool            `json:"isInitialized"`
	ExpiresAt       time.Time       `json:"expiresAt"`
}

func (s State) clone() State {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	if s.Company != nil {
		c := *s.Company
		s.Company = &c
	}
	return s
}

// Store runs authentication actions one at a time and publishes the
// resulting state to subscribers.
type Store struct {
	svc ports.AuthService
	log zerolog.Logger

	lane   chan struct{}
	flight singleflight.Group

	mu     sync.RWMutex
	state  State
	subs   map[int]func(State)
	nextID int
}

func NewStore(svc ports.AuthService, log zerolog.Logger) *Store {
	return &Store{
		svc:  svc,
		log:  log,
		lane: make(chan struct{}, 1),
		subs: make(map[int]func(State)),
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Subscribe registers fn to receive a snapshot after every mutation and
// returns a function that removes it. fn must not call back into the Store
// synchronously with an action.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) update(fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	snap := s.state.clone()
	subs := make([]func(State), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
}

// acquire waits for the action lane or ctx.
func (s *Store) acquire(ctx context.Context) (release func(), err error) {
	select {
	case s.lane <- struct{}{}:
		return func() { <-s.lane }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run executes action in the lane with the loading/error bookkeeping shared
// by every action.
func (s *Store) run(ctx context.Context, fallback string, action func() error) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	s.update(func(st *State) {
		st.IsLoading = true
		st.Error = ""
	})

	err = action()
	if err != nil {
		msg := errorMessage(err, fallback)
		s.update(func(st *State) {
			st.IsLoading = false
			st.Error = msg
		})
		return err
	}
	s.update(func(st *State) { st.IsLoading = false })
	return nil
}

// Initialize restores any persisted session. Concurrent calls share one run,
// which is detached from any single caller's cancellation; each caller stops
// waiting when its own ctx is done.
func (s *Store) Initialize(ctx context.Context) error {
	shared := context.WithoutCancel(ctx)
	ch := s.flight.DoChan("initialize", func() (any, error) {
		release, err := s.acquire(shared)
		if err != nil {
			return nil, err
		}
		defer release()

		s.update(func(st *State) {
			st.IsLoading = true
			st.Error = ""
		})

		session, err := s.svc.Initialize(shared)
		if err != nil {
			s.log.Error().Err(err).Msg("auth initialization error")
			s.update(func(st *State) {
				st.Error = MsgInitializeFailed
				st.IsInitialized = true
				st.IsLoading = false
			})
			return nil, err
		}
		s.update(func(st *State) {
			setSession(st, session)
			st.IsInitialized = true
			st.IsLoading = false
		})
		return nil, nil
	})
	return wait(ctx, ch)
}

func (s *Store) Login(ctx context.Context, email, password string, rememberMe bool) error {
	return s.authenticate(ctx, MsgLoginFailed, func() (*domain.AuthResponse, error) {
		return s.svc.Login(ctx, domain.LoginRequest{Email: email, Password: password, RememberMe: rememberMe})
	})
}

func (s *Store) Register(ctx context.Context, req domain.RegisterRequest) error {
	return s.authenticate(ctx, MsgRegisterFailed, func() (*domain.AuthResponse, error) {
		return s.svc.Register(ctx, req)
	})
}

func (s *Store) LoginWithGoogle(ctx context.Context, idToken string) error {
	return s.authenticate(ctx, MsgGoogleLoginFailed, func() (*domain.AuthResponse, error) {
		return s.svc.LoginWithGoogle(ctx, idToken)
	})
}

func (s *Store) LoginWithMicrosoft(ctx context.Context, accessToken string) error {
	return s.authenticate(ctx, MsgMicrosoftLoginFailed, func() (*domain.AuthResponse, error) {
		return s.svc.LoginWithMicrosoft(ctx, accessToken)
	})
}

func (s *Store) authenticate(ctx context.Context, fallback string, login func() (*domain.AuthResponse, error)) error {
	return s.run(ctx, fallback, func() error {
		resp, err := login()
		if err != nil {
			return err
		}
		s.update(func(st *State) { setSession(st, resp.Session()) })
		return nil
	})
}

// Logout ends the session. Local state is cleared whatever the server says,
// and also when ctx ends before the lane frees up.
func (s *Store) Logout(ctx context.Context) (domain.LogoutResult, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		s.update(func(st *State) { setSession(st, nil) })
		return domain.LogoutResult{}, err
	}
	defer release()

	s.update(func(st *State) { st.IsLoading = true })

	res := s.svc.Logout(ctx)
	if res.Err != nil {
		s.log.Warn().Err(res.Err).Msg("logout error")
	}
	s.update(func(st *State) {
		setSession(st, nil)
		st.IsLoading = false
		st.Error = ""
	})
	return res, nil
}

// Refresh exchanges the stored refresh token. A failed refresh signs the
// user out locally. Concurrent calls share one run.
func (s *Store) Refresh(ctx context.Context) (domain.RefreshResult, error) {
	shared := context.WithoutCancel(ctx)
	ch := s.flight.DoChan("refresh", func() (any, error) {
		release, err := s.acquire(shared)
		if err != nil {
			return nil, err
		}
		defer release()

		res := s.svc.RefreshTokens(shared, "")
		s.update(func(st *State) {
			if res.OK() {
				setSession(st, res.Session)
				return
			}
			setSession(st, nil)
		})
		return res, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return domain.RefreshResult{}, r.Err
		}
		return r.Val.(domain.RefreshResult), nil
	case <-ctx.Done():
		return domain.RefreshResult{}, ctx.Err()
	}
}

func (s *Store) RequestPasswordReset(ctx context.Context, email string) error {
	return s.run(ctx, MsgResetRequestFailed, func() error {
		return s.svc.RequestPasswordReset(ctx, domain.PasswordResetRequest{Email: email})
	})
}

func (s *Store) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	return s.run(ctx, MsgResetFailed, func() error {
		return s.svc.ConfirmPasswordReset(ctx, domain.PasswordResetConfirm{Token: token, NewPassword: newPassword})
	})
}

func (s *Store) SetupMFA(ctx context.Context) (*domain.MFASetupResponse, error) {
	var resp *domain.MFASetupResponse
	err := s.run(ctx, MsgMFASetupFailed, func() error {
		var err error
		resp, err = s.svc.SetupMFA(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Store) VerifyMFA(ctx context.Context, code string, typ domain.MFAType) error {
	return s.run(ctx, MsgMFAVerifyFailed, func() error {
		return s.svc.VerifyMFA(ctx, domain.MFAVerifyRequest{Code: code, Type: typ})
	})
}

func (s *Store) ResendVerificationEmail(ctx context.Context) error {
	return s.run(ctx, MsgResendFailed, func() error {
		return s.svc.ResendVerificationEmail(ctx)
	})
}

// VerifyEmail confirms token and marks the current user verified.
func (s *Store) VerifyEmail(ctx context.Context, token string) error {
	return s.run(ctx, MsgVerifyEmailFailed, func() error {
		if err := s.svc.VerifyEmail(ctx, token); err != nil {
			return err
		}
		verified := true
		s.update(func(st *State) {
			if st.User != nil {
				u := st.User.Apply(domain.UserPatch{IsEmailVerified: &verified})
				st.User = &u
			}
		})
		return nil
	})
}

// UpdateUser patches the current user; it is a no-op when signed out.
func (s *Store) UpdateUser(patch domain.UserPatch) {
	s.update(func(st *State) {
		if st.User != nil {
			u := st.User.Apply(patch)
			st.User = &u
		}
	})
}

func (s *Store) ClearError() {
	s.update(func(st *State) { st.Error = "" })
}

func setSession(st *State, session *domain.Session) {
	if session == nil {
		st.User = nil
		st.Company = nil
		st.IsAuthenticated = false
		st.ExpiresAt = time.Time{}
		return
	}
	u, c := session.User, session.Company
	st.User = &u
	st.Company = &c
	st.IsAuthenticated = true
	st.ExpiresAt = session.ExpiresAt
}

func wait(ctx context.Context, ch <-chan singleflight.Result) error {
	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// errorMessage prefers the message carried by err over fallback.
func errorMessage(err error, fallback string) string {
	if apiErr, ok := domain.AsAPIError(err); ok {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return fallback
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}
