package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/student_records/pkg/events"
	"github.com/Skotchmaster/student_records/pkg/logging"
	"github.com/Skotchmaster/student_records/pkg/metrics"
	"github.com/Skotchmaster/student_records/pkg/revocation"
	"github.com/Skotchmaster/student_records/pkg/tokens"
	"github.com/Skotchmaster/student_records/services/auth/internal/models"
	"github.com/Skotchmaster/student_records/services/auth/internal/repo"
)

type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type RefreshTokenRepo interface {
	CreateRefreshToken(ctx context.Context, t *models.RefreshToken) error
	FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)
	DeactivateRefreshToken(ctx context.Context, id uuid.UUID) error
	RotateRefreshToken(ctx context.Context, oldID uuid.UUID, next *models.RefreshToken) error
}

type AuthService struct {
	Users       CredentialStore
	Tokens      RefreshTokenRepo
	Codec       *tokens.Codec
	Revocations revocation.Store
	Verifier    *CredentialVerifier
	Events      events.Publisher
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

type Session struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	Role         string
	AccessExp    time.Time
	RefreshExp   time.Time
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AuthService) verifier() *CredentialVerifier {
	if s.Verifier == nil {
		s.Verifier = NewCredentialVerifier(s.Users)
	}
	return s.Verifier
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		s.Metrics.Session("login", "invalid_input")
		return nil, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	user, err := s.Users.FindByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		s.verifier().Equalize(password)
		s.Metrics.Session("login", "rejected")
		l.Warn("login_failed", "status", 401, "reason", "unknown email")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		s.Metrics.Session("login", "error")
		return nil, fmt.Errorf("find user: %w", err)
	}

	ok, err := s.verifier().Verify(ctx, user.ID.String(), password)
	if err != nil {
		s.Metrics.Session("login", "error")
		return nil, err
	}
	if !ok {
		s.Metrics.Session("login", "rejected")
		l.Warn("login_failed", "status", 401, "reason", "password mismatch", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	sess, row, err := s.issue(user)
	if err != nil {
		s.Metrics.Session("login", "error")
		return nil, err
	}
	if err := s.Tokens.CreateRefreshToken(ctx, row); err != nil {
		s.Metrics.Session("login", "error")
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	s.Metrics.Session("login", "success")
	l.Info("login_successful", "user_id", user.ID, "jti", row.JTI)
	s.publish(ctx, events.Event{Type: events.TypeLoggedIn, UserID: sess.UserID, Email: user.Email})
	return sess, nil
}

// Refresh rotates a refresh token. The presented token must carry a valid
// signature, be unexpired and still be active in storage.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	claims, err := s.Codec.ValidateRefreshToken(refreshToken)
	if err != nil {
		s.Metrics.Session("refresh", "rejected")
		l.Warn("refresh_failed", "status", 401, "error", err, "token", logging.Fingerprint(refreshToken))
		return nil, err
	}

	row, err := s.Tokens.FindRefreshToken(ctx, refreshToken)
	if errors.Is(err, repo.ErrNotFound) {
		s.Metrics.Session("refresh", "rejected")
		l.Warn("refresh_failed", "status", 401, "reason", "unknown refresh token", "jti", claims.TokenID())
		return nil, fmt.Errorf("%w: refresh token not recognised", tokens.ErrTokenInvalid)
	}
	if err != nil {
		s.Metrics.Session("refresh", "error")
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	if !row.IsActive || row.UserID.String() != claims.UserID() {
		s.Metrics.Session("refresh", "rejected")
		l.Warn("refresh_failed", "status", 401, "reason", "refresh token inactive", "jti", claims.TokenID())
		return nil, fmt.Errorf("%w: refresh token is no longer active", tokens.ErrTokenInvalid)
	}

	user, err := s.lookupSubject(ctx, claims)
	if err != nil {
		s.Metrics.Session("refresh", "rejected")
		l.Warn("refresh_failed", "status", 401, "error", err, "jti", claims.TokenID())
		return nil, err
	}

	sess, next, err := s.issue(user)
	if err != nil {
		s.Metrics.Session("refresh", "error")
		return nil, err
	}
	if err := s.Tokens.RotateRefreshToken(ctx, row.ID, next); err != nil {
		if errors.Is(err, repo.ErrTokenInactive) {
			s.Metrics.Session("refresh", "rejected")
			return nil, fmt.Errorf("%w: refresh token is no longer active", tokens.ErrTokenInvalid)
		}
		s.Metrics.Session("refresh", "error")
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	s.Metrics.Session("refresh", "success")
	l.Info("refresh_successful", "user_id", user.ID, "old_jti", claims.TokenID(), "jti", next.JTI)
	s.publish(ctx, events.Event{Type: events.TypeTokenRefreshed, UserID: sess.UserID, Email: user.Email, TokenID: claims.TokenID()})
	return sess, nil
}

func (s *AuthService) lookupSubject(ctx context.Context, claims *tokens.RefreshClaims) (*models.User, error) {
	var (
		user *models.User
		err  error
	)
	if claims.Email != "" {
		user, err = s.Users.FindByEmail(ctx, claims.Email)
	} else {
		user, err = s.Users.FindByID(ctx, claims.UserID())
	}
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user.ID.String() != claims.UserID() {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// Logout revokes the access token's jti until the token would have expired
// anyway, then deactivates the refresh token, if any. Nothing is changed when
// the access token cannot be read or the revocation cannot be recorded.
// Repeating it is harmless.
func (s *AuthService) Logout(ctx context.Context, refreshToken, accessToken string) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout")

	claims, err := s.Codec.ReadClaimsUnverified(accessToken)
	if err != nil {
		s.Metrics.Session("logout", "rejected")
		return err
	}
	jti := claims.TokenID()
	if jti == "" {
		s.Metrics.Session("logout", "rejected")
		return fmt.Errorf("%w: access token has no jti", tokens.ErrTokenMalformed)
	}

	ttl := s.revocationTTL(claims)
	if err := s.Revocations.MarkRevoked(ctx, jti, ttl); err != nil {
		s.Metrics.Session("logout", "error")
		l.Error("token_revocation_failed", "jti", jti, "error", err)
		return fmt.Errorf("%w: %w", ErrRevocationUnavailable, err)
	}

	if refreshToken != "" {
		row, err := s.Tokens.FindRefreshToken(ctx, refreshToken)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			l.Info("logout_refresh_unknown", "token", logging.Fingerprint(refreshToken))
		case err != nil:
			s.Metrics.Session("logout", "error")
			return fmt.Errorf("find refresh token: %w", err)
		case row.IsActive:
			if err := s.Tokens.DeactivateRefreshToken(ctx, row.ID); err != nil {
				s.Metrics.Session("logout", "error")
				return fmt.Errorf("deactivate refresh token: %w", err)
			}
		}
	}

	s.Metrics.Session("logout", "success")
	l.Info("token_revoked", "jti", jti, "user_id", claims.UserID(), "ttl", ttl.String())
	s.publish(ctx, events.Event{Type: events.TypeLoggedOut, UserID: claims.UserID(), Email: claims.Email, TokenID: jti})
	return nil
}

// revocationTTL covers the token's remaining lifetime. The claims are
// unverified, so the ttl is capped at the configured access lifetime.
func (s *AuthService) revocationTTL(claims *tokens.AccessClaims) time.Duration {
	limit := s.Codec.AccessTTL
	if limit <= 0 {
		limit = tokens.DefaultAccessTTL
	}
	ttl, ok := claims.Remaining(s.now())
	if !ok || ttl > limit {
		ttl = limit
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func (s *AuthService) issue(user *models.User) (*Session, *models.RefreshToken, error) {
	userID := user.ID.String()
	access, err := s.Codec.IssueAccessToken(userID, user.Email, user.Role)
	if err != nil {
		return nil, nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.Codec.IssueRefreshToken(userID, user.Email)
	if err != nil {
		return nil, nil, fmt.Errorf("issue refresh token: %w", err)
	}

	ac, err := s.Codec.ReadClaimsUnverified(access)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.Codec.ReadClaimsUnverified(refresh)
	if err != nil {
		return nil, nil, err
	}

	row := &models.RefreshToken{
		UserID:    user.ID,
		Token:     repo.Sha256Hex(refresh),
		JTI:       rc.TokenID(),
		ExpiresAt: rc.ExpiresAt.Time,
		IsActive:  true,
	}
	return &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		UserID:       userID,
		Role:         user.Role,
		AccessExp:    ac.ExpiresAt.Time,
		RefreshExp:   rc.ExpiresAt.Time,
	}, row, nil
}

// publish never fails the caller; errors are only logged.
func (s *AuthService) publish(ctx context.Context, e events.Event) {
	if s.Events == nil {
		return
	}
	e.OccurredAt = s.now().UTC()
	e.RequestID = logging.RequestIDFromContext(ctx)
	if err := s.Events.Publish(ctx, e); err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed", "type", e.Type, "error", err)
	}
}
