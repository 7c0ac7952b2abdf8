package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/account-auth/internal/apperr"
	"github.com/iliyamo/account-auth/internal/logging"
	"github.com/iliyamo/account-auth/internal/queue"
	"github.com/iliyamo/account-auth/internal/token"
)

type sessionFixture struct {
	store  *memStore
	tokens *token.Issuer
	events *recorder
	sm     *SessionManager
}

func newSessionFixture(t *testing.T, policy SessionPolicy) *sessionFixture {
	t.Helper()
	return newSessionFixtureWithIssuer(t, policy, newIssuer(t))
}

func newSessionFixtureWithIssuer(t *testing.T, policy SessionPolicy, iss *token.Issuer) *sessionFixture {
	t.Helper()
	store := newMemStore()
	events := &recorder{}
	sm := NewSessionManager(store, NewVerifier(store, bcrypt.MinCost), iss, policy, events, logging.Nop())
	return &sessionFixture{store: store, tokens: iss, events: events, sm: sm}
}

func TestVerifier_SameOutcomeForUnknownUserAndWrongPassword(t *testing.T) {
	store := newMemStore()
	seedUser(t, store, "alice", "correct1")
	v := NewVerifier(store, bcrypt.MinCost)
	ctx := context.Background()

	u, errUnknown := v.Verify(ctx, "nobody", "correct1")
	assert.Nil(t, u)
	u, errWrong := v.Verify(ctx, "alice", "wrong-password")
	assert.Nil(t, u)

	require.Error(t, errUnknown)
	assert.Equal(t, errUnknown, errWrong)
	assert.ErrorIs(t, errUnknown, ErrCredentialsNotFound)
}

func TestVerifier_StripsPasswordHash(t *testing.T) {
	store := newMemStore()
	seeded := seedUser(t, store, "alice", "correct1")
	v := NewVerifier(store, bcrypt.MinCost)

	u, err := v.Verify(context.Background(), " alice ", "correct1")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, u.ID)
	assert.Empty(t, u.PasswordHash)
}

func TestVerifier_StoreFailureIsInternal(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("connection reset")
	v := NewVerifier(store, bcrypt.MinCost)

	_, err := v.Verify(context.Background(), "alice", "correct1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCredentialsNotFound)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestLogin_RejectsBadCredentialsGenerically(t *testing.T) {
	f := newSessionFixture(t, SessionPolicy{StrictPersist: true})
	seedUser(t, f.store, "alice", "correct1")
	ctx := context.Background()

	_, errUnknown := f.sm.Login(ctx, "nobody", "correct1")
	_, errWrong := f.sm.Login(ctx, "alice", "nope-nope")

	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(errUnknown))
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(errWrong))
	assert.Equal(t, apperr.Message(errUnknown), apperr.Message(errWrong))
	assert.Zero(t, f.store.setCount())
}

func TestLogin_PersistsReturnedRefreshToken(t *testing.T) {
	f := newSessionFixture(t, SessionPolicy{StrictPersist: true})
	u := seedUser(t, f.store, "alice", "correct1")

	before := time.Now()
	res, err := f.sm.Login(context.Background(), "alice", "correct1")
	require.NoError(t, err)

	tok, exp := f.store.slot(u.ID)
	require.NotNil(t, tok)
	assert.Equal(t, res.RefreshToken, *tok)
	require.NotNil(t, exp)
	assert.WithinDuration(t, before.Add(f.tokens.RefreshTTL()), *exp, 2*time.Second)
	assert.Equal(t, res.RefreshExpiresAt, *exp)

	assert.Equal(t, u.ID, res.User.ID)
	assert.Equal(t, "alice", res.User.Username)

	claims, err := f.tokens.VerifyAccess(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, []string{queue.EventLoggedIn}, f.events.types())
}

func TestLogin_PersistFailurePolicy(t *testing.T) {
	t.Run("strict", func(t *testing.T) {
		f := newSessionFixture(t, SessionPolicy{StrictPersist: true})
		seedUser(t, f.store, "alice", "correct1")
		f.store.setErr = errors.New("disk full")

		res, err := f.sm.Login(context.Background(), "alice", "correct1")
		assert.Nil(t, res)
		assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
		assert.Empty(t, f.events.types())
	})
	t.Run("permissive", func(t *testing.T) {
		f := newSessionFixture(t, SessionPolicy{StrictPersist: false})
		seedUser(t, f.store, "alice", "correct1")
		f.store.setErr = errors.New("disk full")

		res, err := f.sm.Login(context.Background(), "alice", "correct1")
		require.NoError(t, err)
		assert.NotEmpty(t, res.AccessToken)
		assert.NotEmpty(t, res.RefreshToken)

		// The unpersisted refresh token cannot be used.
		f.store.setErr = nil
		_, err = f.sm.Refresh(context.Background(), res.RefreshToken)
		assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	})
}

func TestLogin_EventFailureDoesNotFailLogin(t *testing.T) {
	f := newSessionFixture(t, SessionPolicy{StrictPersist: true})
	seedUser(t, f.store, "alice", "correct1")
	f.events.err = errors.New("broker down")

	_, err := f.sm.Login(context.Background(), "alice", "correct1")
	assert.NoError(t, err)
}

func TestRefresh_EmptyTokenIsBadRequest(t *testing.T) {
	f := newSessionFixture(t, SessionPolicy{StrictPersist: true})

	_, err := f.sm.Refresh(context.Background(), "")
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}

func TestRefresh_RejectsAccessTokenAsRefresh(t *testing.T) {
	// One shared key, so only the type marker tells the tokens apart.
	iss, err := token.NewIssuer(token.Options{AccessSecret: "shared", AccessTTL: time.Hour, RefreshTTL: time.Hour})
	require.NoError(t, err)
	f := newSessionFixtureWithIssuer(t, SessionPolicy{StrictPersist: true}, iss)
	seedUser(t, f.store, "alice", "correct1")

	res, err := f.sm.Login(context.Background(), "alice", "correct1")
	require.NoError(t, err)

	_, err = f.sm.Refresh(context.Background(), res.AccessToken)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	assert.ErrorIs(t, err, token.ErrInvalidTokenKind)
}

func TestRefresh_RejectsGarbage(t *testing.T) {
	f := newSessionFixture(t, SessionPolicy{StrictPersist: true})

	_, err := f.sm.Refresh(context.Background(), "not.a.jwt")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestRefresh_UnknownUser(t *testing.T) {
	f := newSessionFixture(t, SessionPolicy{StrictPersist: true})
	raw, _, err := f.tokens.IssueRefresh(99)
	require.NoError(t, err)

	_, err = f.sm.Refresh(context.Background(), raw)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestRefresh_AfterSlotClearedIsUnauthorized(t *testing.T) {
	f := newSessionFixture(t, SessionPolicy{StrictPersist: true})
	u := seedUser(t, f.store, "alice", "correct1")
	ctx := context.Background()

	res, err := f.sm.Login(ctx, "alice", "correct1")
	require.NoError(t, err)
	require.NoError(t, f.store.SetRefreshToken(ctx, u.ID, nil, nil))

	_, err = f.sm.Refresh(ctx, res.RefreshToken)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestRefresh_ExpiredSlotIsClearedAndRejected(t *testing.T) {
	f := newSessionFixture(t, SessionPolicy{StrictPersist: true})
	u := seedUser(t, f.store, "alice", "correct1")
	ctx := context.Background()

	res, err := f.sm.Login(ctx, "alice", "correct1")
	require.NoError(t, err)
	past := time.Now().Add(-time.Minute)
	require.NoError(t, f.store.SetRefreshToken(ctx, u.ID, &res.RefreshToken, &past))

	_, err = f.sm.Refresh(ctx, res.RefreshToken)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	assert.Equal(t, "refresh token expired", apperr.Message(err))

	tok, exp := f.store.slot(u.ID)
	assert.Nil(t, tok)
	assert.Nil(t, exp)

	_, err = f.sm.Refresh(ctx, res.RefreshToken)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	assert.Contains(t, f.events.types(), queue.EventRefreshExpired)
}

func TestRefresh_LeavesSlotUntouched(t *testing.T) {
	f := newSessionFixture(t, SessionPolicy{StrictPersist: true})
	u := seedUser(t, f.store, "alice", "correct1")
	ctx := context.Background()

	res, err := f.sm.Login(ctx, "alice", "correct1")
	require.NoError(t, err)
	calls := f.store.setCount()

	for i := 0; i < 2; i++ {
		out, err := f.sm.Refresh(ctx, res.RefreshToken)
		require.NoError(t, err)
		_, err = f.tokens.VerifyAccess(out.AccessToken)
		require.NoError(t, err)
	}
	tok, _ := f.store.slot(u.ID)
	assert.Equal(t, res.RefreshToken, *tok)
	assert.Equal(t, calls, f.store.setCount())
}

func TestLogout_NothingToResolve(t *testing.T) {
	f := newSessionFixture(t, SessionPolicy{StrictPersist: true})
	seedUser(t, f.store, "alice", "correct1")

	f.sm.Logout(context.Background(), LogoutRequest{})
	f.sm.Logout(context.Background(), LogoutRequest{RefreshToken: "garbage"})
	assert.Zero(t, f.store.setCount())
}

func TestLogout_ByUserID(t *testing.T) {
	f := newSessionFixture(t, SessionPolicy{StrictPersist: true})
	u := seedUser(t, f.store, "alice", "correct1")
	ctx := context.Background()

	_, err := f.sm.Login(ctx, "alice", "correct1")
	require.NoError(t, err)

	f.sm.Logout(ctx, LogoutRequest{UserID: u.ID, RefreshToken: "ignored"})
	tok, exp := f.store.slot(u.ID)
	assert.Nil(t, tok)
	assert.Nil(t, exp)
	assert.Contains(t, f.events.types(), queue.EventLoggedOut)
}

func TestLogout_SupersededRefreshTokenClearsNothing(t *testing.T) {
	f := newSessionFixture(t, SessionPolicy{StrictPersist: true})
	u := seedUser(t, f.store, "alice", "correct1")
	ctx := context.Background()

	first, err := f.sm.Login(ctx, "alice", "correct1")
	require.NoError(t, err)
	second, err := f.sm.Login(ctx, "alice", "correct1")
	require.NoError(t, err)

	f.sm.Logout(ctx, LogoutRequest{RefreshToken: first.RefreshToken})
	tok, _ := f.store.slot(u.ID)
	require.NotNil(t, tok)
	assert.Equal(t, second.RefreshToken, *tok)
}

func TestLogout_StoreFailureIsSwallowed(t *testing.T) {
	f := newSessionFixture(t, SessionPolicy{StrictPersist: true})
	u := seedUser(t, f.store, "alice", "correct1")
	f.store.setErr = errors.New("connection reset")

	assert.NotPanics(t, func() {
		f.sm.Logout(context.Background(), LogoutRequest{UserID: u.ID})
	})
	assert.NotContains(t, f.events.types(), queue.EventLoggedOut)
}

func TestSessionScenario_LoginRefreshLogout(t *testing.T) {
	f := newSessionFixture(t, SessionPolicy{StrictPersist: true})
	seedUser(t, f.store, "alice", "correct1")
	ctx := context.Background()

	login, err := f.sm.Login(ctx, "alice", "correct1")
	require.NoError(t, err)
	a1, r1 := login.AccessToken, login.RefreshToken

	refreshed, err := f.sm.Refresh(ctx, r1)
	require.NoError(t, err)
	assert.NotEqual(t, a1, refreshed.AccessToken)

	f.sm.Logout(ctx, LogoutRequest{RefreshToken: r1})

	_, err = f.sm.Refresh(ctx, r1)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestSessionScenario_ConcurrentLoginsLastWriteWins(t *testing.T) {
	f := newSessionFixture(t, SessionPolicy{StrictPersist: true})
	u := seedUser(t, f.store, "alice", "correct1")
	ctx := context.Background()

	results := make([]*LoginResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.sm.Login(ctx, "alice", "correct1")
		}(i)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.NotEqual(t, results[0].RefreshToken, results[1].RefreshToken)

	stored, _ := f.store.slot(u.ID)
	require.NotNil(t, stored)
	winner, loser := results[0], results[1]
	if *stored == results[1].RefreshToken {
		winner, loser = results[1], results[0]
	}
	require.Equal(t, winner.RefreshToken, *stored)

	_, err := f.sm.Refresh(ctx, winner.RefreshToken)
	assert.NoError(t, err)
	_, err = f.sm.Refresh(ctx, loser.RefreshToken)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}
