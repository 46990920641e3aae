package state

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/expensly/authclient/internal/core/domain"
)

// stubService implements ports.AuthService with overridable hooks.
type stubService struct {
	initCalls atomic.Int32
	initGate  chan struct{}
	initFn    func(ctx context.Context) (*domain.Session, error)
	loginFn   func(req domain.LoginRequest) (*domain.AuthResponse, error)
	logoutRes domain.LogoutResult
	refreshFn   func() domain.RefreshResult
	refreshGate chan struct{}
	verifyErr   error
}

func (s *stubService) Initialize(ctx context.Context) (*domain.Session, error) {
	s.initCalls.Add(1)
	if s.initGate != nil {
		<-s.initGate
	}
	if s.initFn != nil {
		return s.initFn(ctx)
	}
	return nil, nil
}

func (s *stubService) CachedSession(context.Context) (*domain.Session, error) { return nil, nil }

func (s *stubService) Login(_ context.Context, req domain.LoginRequest) (*domain.AuthResponse, error) {
	return s.loginFn(req)
}

func (s *stubService) Register(context.Context, domain.RegisterRequest) (*domain.AuthResponse, error) {
	return nil, domain.NewAPIError(http.StatusConflict, "", nil)
}

func (s *stubService) LoginWithGoogle(context.Context, string) (*domain.AuthResponse, error) {
	return sampleResponse(), nil
}

func (s *stubService) LoginWithMicrosoft(context.Context, string) (*domain.AuthResponse, error) {
	return sampleResponse(), nil
}

func (s *stubService) RefreshTokens(ctx context.Context, _ string) domain.RefreshResult {
	if s.refreshGate != nil {
		<-s.refreshGate
	}
	if err := ctx.Err(); err != nil {
		return domain.RefreshResult{Outcome: domain.RefreshNetworkFailure, Err: err}
	}
	return s.refreshFn()
}

func (s *stubService) Logout(context.Context) domain.LogoutResult { return s.logoutRes }

func (s *stubService) RequestPasswordReset(context.Context, domain.PasswordResetRequest) error {
	return nil
}

func (s *stubService) ConfirmPasswordReset(context.Context, domain.PasswordResetConfirm) error {
	return errors.New("")
}

func (s *stubService) SetupMFA(context.Context) (*domain.MFASetupResponse, error) {
	return &domain.MFASetupResponse{Secret: "S"}, nil
}

func (s *stubService) VerifyMFA(context.Context, domain.MFAVerifyRequest) error { return nil }

func (s *stubService) ResendVerificationEmail(context.Context) error { return nil }

func (s *stubService) VerifyEmail(context.Context, string) error { return s.verifyErr }

func (s *stubService) AccessToken() string { return "" }

func sampleResponse() *domain.AuthResponse {
	return &domain.AuthResponse{
		User:        domain.User{ID: "u-1", Email: "ana@example.com"},
		Company:     domain.Company{ID: "c-1", Name: "Acme"},
		AccessToken: "A",
		ExpiresAt:   time.Unix(1_900_000_000, 0),
	}
}

func TestLogin_SuccessPublishesLoadingThenSession(t *testing.T) {
	svc := &stubService{loginFn: func(domain.LoginRequest) (*domain.AuthResponse, error) { return sampleResponse(), nil }}
	store := NewStore(svc, zerolog.Nop())

	var mu sync.Mutex
	var seen []State
	unsubscribe := store.Subscribe(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	defer unsubscribe()

	require.NoError(t, store.Login(context.Background(), "ana@example.com", "pw", true))

	snap := store.Snapshot()
	require.True(t, snap.IsAuthenticated)
	require.False(t, snap.IsLoading)
	require.Equal(t, "u-1", snap.User.ID)
	require.Equal(t, "Acme", snap.Company.Name)
	require.Equal(t, time.Unix(1_900_000_000, 0), snap.ExpiresAt)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(seen), 2)
	require.True(t, seen[0].IsLoading)
	require.False(t, seen[len(seen)-1].IsLoading)
}

func TestLogin_FailureSetsServerMessage(t *testing.T) {
	svc := &stubService{loginFn: func(domain.LoginRequest) (*domain.AuthResponse, error) {
		return nil, domain.NewAPIError(http.StatusUnauthorized, "Invalid credentials", nil)
	}}
	store := NewStore(svc, zerolog.Nop())

	err := store.Login(context.Background(), "ana@example.com", "bad", false)
	require.Error(t, err)

	snap := store.Snapshot()
	require.Equal(t, "Invalid credentials", snap.Error)
	require.False(t, snap.IsLoading)
	require.False(t, snap.IsAuthenticated)

	store.ClearError()
	require.Empty(t, store.Snapshot().Error)
}

func TestFailuresWithoutMessageUseFallback(t *testing.T) {
	store := NewStore(&stubService{}, zerolog.Nop())
	ctx := context.Background()

	require.Error(t, store.Register(ctx, domain.RegisterRequest{}))
	require.Equal(t, MsgRegisterFailed, store.Snapshot().Error)

	require.Error(t, store.ConfirmPasswordReset(ctx, "t", "pw"))
	require.Equal(t, MsgResetFailed, store.Snapshot().Error)
}

func TestLogout_AlwaysClearsState(t *testing.T) {
	svc := &stubService{
		loginFn:   func(domain.LoginRequest) (*domain.AuthResponse, error) { return sampleResponse(), nil },
		logoutRes: domain.LogoutResult{Err: domain.NewAPIError(domain.StatusNetworkError, "Network error occurred", nil)},
	}
	store := NewStore(svc, zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, store.Login(ctx, "ana@example.com", "pw", false))

	res, err := store.Logout(ctx)
	require.NoError(t, err)
	require.False(t, res.Revoked)

	snap := store.Snapshot()
	require.False(t, snap.IsAuthenticated)
	require.Nil(t, snap.User)
	require.Nil(t, snap.Company)
	require.True(t, snap.ExpiresAt.IsZero())
}

func TestInitialize_ConcurrentCallsShareOneRun(t *testing.T) {
	svc := &stubService{
		initGate: make(chan struct{}),
		initFn: func(context.Context) (*domain.Session, error) {
			return sampleResponse().Session(), nil
		},
	}
	store := NewStore(svc, zerolog.Nop())

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.Initialize(context.Background())
		}()
	}
	require.Eventually(t, func() bool { return svc.initCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(svc.initGate)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), svc.initCalls.Load())
	snap := store.Snapshot()
	require.True(t, snap.IsInitialized)
	require.True(t, snap.IsAuthenticated)
}

func TestInitialize_CancelledCallerDoesNotAbortOthers(t *testing.T) {
	svc := &stubService{
		initGate: make(chan struct{}),
		initFn: func(ctx context.Context) (*domain.Session, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return sampleResponse().Session(), nil
		},
	}
	store := NewStore(svc, zerolog.Nop())

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() { errA <- store.Initialize(ctxA) }()
	require.Eventually(t, func() bool { return svc.initCalls.Load() == 1 }, time.Second, 5*time.Millisecond)

	errB := make(chan error, 1)
	go func() { errB <- store.Initialize(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)

	close(svc.initGate)
	require.NoError(t, <-errB)
	snap := store.Snapshot()
	require.True(t, snap.IsAuthenticated)
	require.Empty(t, snap.Error)
}

func TestRefresh_CancelledCallerDoesNotSignOutOthers(t *testing.T) {
	svc := &stubService{
		loginFn:     func(domain.LoginRequest) (*domain.AuthResponse, error) { return sampleResponse(), nil },
		refreshGate: make(chan struct{}),
		refreshFn: func() domain.RefreshResult {
			return domain.RefreshResult{Outcome: domain.RefreshSucceeded, Session: sampleResponse().Session()}
		},
	}
	store := NewStore(svc, zerolog.Nop())
	require.NoError(t, store.Login(context.Background(), "ana@example.com", "pw", false))

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := store.Refresh(ctxA)
		errA <- err
	}()
	type outcome struct {
		res domain.RefreshResult
		err error
	}
	outB := make(chan outcome, 1)
	go func() {
		res, err := store.Refresh(context.Background())
		outB <- outcome{res, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)

	close(svc.refreshGate)
	b := <-outB
	require.NoError(t, b.err)
	require.Equal(t, domain.RefreshSucceeded, b.res.Outcome)
	require.True(t, store.Snapshot().IsAuthenticated)
}

func TestLogout_ClearsStateWhenCancelledWaitingForLane(t *testing.T) {
	svc := &stubService{
		loginFn:  func(domain.LoginRequest) (*domain.AuthResponse, error) { return sampleResponse(), nil },
		initGate: make(chan struct{}),
	}
	store := NewStore(svc, zerolog.Nop())
	require.NoError(t, store.Login(context.Background(), "ana@example.com", "pw", false))

	done := make(chan error, 1)
	go func() { done <- store.Initialize(context.Background()) }()
	require.Eventually(t, func() bool { return svc.initCalls.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := store.Logout(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, store.Snapshot().IsAuthenticated)
	require.Nil(t, store.Snapshot().User)

	close(svc.initGate)
	require.NoError(t, <-done)
}

func TestInitialize_ErrorMarksInitialized(t *testing.T) {
	svc := &stubService{initFn: func(context.Context) (*domain.Session, error) { return nil, context.Canceled }}
	store := NewStore(svc, zerolog.Nop())

	require.ErrorIs(t, store.Initialize(context.Background()), context.Canceled)
	snap := store.Snapshot()
	require.True(t, snap.IsInitialized)
	require.False(t, snap.IsLoading)
	require.Equal(t, MsgInitializeFailed, snap.Error)
}

func TestActionsWaitForLaneAndHonorContext(t *testing.T) {
	svc := &stubService{initGate: make(chan struct{})}
	store := NewStore(svc, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- store.Initialize(context.Background()) }()
	require.Eventually(t, func() bool { return svc.initCalls.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := store.RequestPasswordReset(ctx, "ana@example.com")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(svc.initGate)
	require.NoError(t, <-done)
	require.NoError(t, store.RequestPasswordReset(context.Background(), "ana@example.com"))
}

func TestRefresh_FailureSignsOut(t *testing.T) {
	svc := &stubService{
		loginFn: func(domain.LoginRequest) (*domain.AuthResponse, error) { return sampleResponse(), nil },
		refreshFn: func() domain.RefreshResult {
			return domain.RefreshResult{Outcome: domain.RefreshRejected, Err: errors.New("401")}
		},
	}
	store := NewStore(svc, zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, store.Login(ctx, "ana@example.com", "pw", false))

	res, err := store.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.RefreshRejected, res.Outcome)
	require.False(t, store.Snapshot().IsAuthenticated)
}

func TestVerifyEmail_MarksUserVerified(t *testing.T) {
	svc := &stubService{loginFn: func(domain.LoginRequest) (*domain.AuthResponse, error) { return sampleResponse(), nil }}
	store := NewStore(svc, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, store.VerifyEmail(ctx, "tok"))
	require.False(t, store.Snapshot().IsLoading)

	require.NoError(t, store.Login(ctx, "ana@example.com", "pw", false))
	require.NoError(t, store.VerifyEmail(ctx, "tok"))
	require.True(t, store.Snapshot().User.IsEmailVerified)

	svc.verifyErr = domain.NewAPIError(http.StatusBadRequest, "", nil)
	require.Error(t, store.VerifyEmail(ctx, "bad"))
	require.Equal(t, MsgVerifyEmailFailed, store.Snapshot().Error)
}

func TestUpdateUser(t *testing.T) {
	svc := &stubService{loginFn: func(domain.LoginRequest) (*domain.AuthResponse, error) { return sampleResponse(), nil }}
	store := NewStore(svc, zerolog.Nop())
	name := "Ana"

	store.UpdateUser(domain.UserPatch{FirstName: &name})
	require.Nil(t, store.Snapshot().User)

	require.NoError(t, store.Login(context.Background(), "ana@example.com", "pw", false))
	store.UpdateUser(domain.UserPatch{FirstName: &name})
	require.Equal(t, "Ana", store.Snapshot().User.FirstName)
}

func TestSnapshotIsDetached(t *testing.T) {
	svc := &stubService{loginFn: func(domain.LoginRequest) (*domain.AuthResponse, error) { return sampleResponse(), nil }}
	store := NewStore(svc, zerolog.Nop())
	require.NoError(t, store.Login(context.Background(), "ana@example.com", "pw", false))

	snap := store.Snapshot()
	snap.User.Email = "mutated@example.com"
	require.Equal(t, "ana@example.com", store.Snapshot().User.Email)
}

func TestSetupMFA_ReturnsResponse(t *testing.T) {
	store := NewStore(&stubService{}, zerolog.Nop())
	resp, err := store.SetupMFA(context.Background())
	require.NoError(t, err)
	require.Equal(t, "S", resp.Secret)
}
