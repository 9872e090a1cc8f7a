package registration

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/foyerhq/foyer/internal/domain"
	"github.com/foyerhq/foyer/internal/repository"
	"github.com/foyerhq/foyer/internal/service/session"
	"github.com/foyerhq/foyer/pkg/crypto"
)

var (
	// ErrPersistence indicates the account could not be stored.
	ErrPersistence = errors.New("registration: persistence failure")
	// ErrSessionIssuance indicates the account exists but no session could
	// be established for it.
	ErrSessionIssuance = errors.New("registration: session issuance failure")
	// ErrInvalidCredentials indicates a sign-in attempt with an unknown
	// email or wrong password.
	ErrInvalidCredentials = errors.New("registration: invalid credentials")
)

// DuplicateEmailMessage is shown when the address is already registered.
const DuplicateEmailMessage = "Email already in use by another account."

// WelcomeRedirect is where a freshly signed-in user is sent.
const WelcomeRedirect = "/welcome"

// Outcome classifies how a registration attempt ended.
type Outcome string

const (
	// OutcomeRejected means validation turned the request away.
	OutcomeRejected Outcome = "rejected"
	// OutcomeDuplicate means the email already belongs to an account.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeAuthenticated means the account was created and signed in.
	OutcomeAuthenticated Outcome = "authenticated"
)

// Result reports a completed registration attempt. Violations is populated
// only for OutcomeRejected, Message only for OutcomeDuplicate, and Session
// plus Redirect only for OutcomeAuthenticated.
type Result struct {
	Outcome    Outcome
	Violations []Violation
	Message    string
	Redirect   string
	Session    *session.Session
}

// Sessions is the slice of the session service registration needs.
type Sessions interface {
	Issue(ctx context.Context, user domain.User) (*session.Session, error)
}

// Publisher broadcasts account lifecycle events.
type Publisher interface {
	Publish(event domain.Event)
}

// Service runs the registration workflow.
type Service struct {
	users    repository.UserRepository
	hasher   crypto.Hasher
	sessions Sessions
	bus      Publisher
	policy   PasswordPolicy
	log      *slog.Logger
	now      func() time.Time
}

// New constructs a registration Service.
func New(
	users repository.UserRepository,
	hasher crypto.Hasher,
	sessions Sessions,
	bus Publisher,
	policy PasswordPolicy,
	log *slog.Logger,
) *Service {
	return &Service{
		users:    users,
		hasher:   hasher,
		sessions: sessions,
		bus:      bus,
		policy:   policy,
		log:      log,
		now:      time.Now,
	}
}

// Register runs the full workflow: validate the form, check for an existing
// account, create the user, announce it, and sign the new user in. Rejected
// and duplicate attempts are ordinary results, not errors; the error return
// covers persistence and session issuance failures only.
func (s *Service) Register(ctx context.Context, req Request) (*Result, error) {
	if violations := Validate(req, s.policy); len(violations) > 0 {
		return &Result{Outcome: OutcomeRejected, Violations: violations}, nil
	}

	email := domain.NormalizeEmail(req.Email)

	// Advisory pre-check. The unique index on email is what actually closes
	// the race between concurrent registrations for the same address.
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return &Result{Outcome: OutcomeDuplicate, Message: DuplicateEmailMessage}, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, errors.Join(ErrPersistence, err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, errors.Join(ErrPersistence, err)
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err := s.users.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return &Result{Outcome: OutcomeDuplicate, Message: DuplicateEmailMessage}, nil
		}
		return nil, errors.Join(ErrPersistence, err)
	}

	s.bus.Publish(domain.Event{
		Kind: domain.EventUserCreated,
		User: user,
		At:   s.now(),
	})

	// Sign the new account in through the same path returning users use, so
	// a session is only ever minted from persisted credentials.
	_, sess, err := s.SignIn(ctx, email, req.Password)
	if err != nil {
		return nil, errors.Join(ErrSessionIssuance, err)
	}

	s.log.Info("user registered", "user_id", user.ID, "email", user.Email)
	return &Result{
		Outcome:  OutcomeAuthenticated,
		Redirect: WelcomeRedirect,
		Session:  sess,
	}, nil
}

// SignIn verifies credentials against the stored account and issues a
// session for it.
func (s *Service) SignIn(ctx context.Context, email, password string) (*domain.User, *session.Session, error) {
	user, err := s.users.GetUserByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	sess, err := s.sessions.Issue(ctx, *user)
	if err != nil {
		return nil, nil, err
	}
	return user, sess, nil
}
