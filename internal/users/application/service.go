// Package application carries the account workflows: login, invited
// signup, password recovery, and the admin-side invitation lifecycle.
package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"freight-cloud/internal/apperror"
	"freight-cloud/internal/auth"
	"freight-cloud/internal/companies"
	"freight-cloud/internal/notify"
	"freight-cloud/internal/observability/metrics"
	"freight-cloud/internal/users/domain"
	usermongo "freight-cloud/internal/users/infrastructure/mongo"
)

// Service wires the user repository, the tenant store and the mailer
// into the account workflows.
type Service struct {
	repo      *usermongo.Repository
	companies *companies.Store
	mailer    notify.Sender
	logger    *log.Logger

	secret     []byte
	tokenTTL   time.Duration
	appBaseURL string
}

// NewService constructs a Service.
func NewService(repo *usermongo.Repository, comps *companies.Store, mailer notify.Sender,
	logger *log.Logger, secret []byte, tokenTTL time.Duration, appBaseURL string) (*Service, error) {
	if repo == nil {
		return nil, errors.New("users: nil repository")
	}
	if comps == nil {
		return nil, errors.New("users: nil company store")
	}
	if mailer == nil {
		return nil, errors.New("users: nil mailer")
	}
	if logger == nil {
		return nil, errors.New("users: nil logger")
	}
	if len(secret) == 0 {
		return nil, errors.New("users: empty jwt secret")
	}
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{
		repo:       repo,
		companies:  comps,
		mailer:     mailer,
		logger:     logger,
		secret:     secret,
		tokenTTL:   tokenTTL,
		appBaseURL: strings.TrimRight(appBaseURL, "/"),
	}, nil
}

// Login authenticates by email and password and issues a bearer
// token. Inactive accounts are rejected.
func (s *Service) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	token, user, err := s.login(ctx, email, password)
	if err != nil {
		metrics.IncLogin(metrics.ResultError)
		return "", nil, err
	}
	metrics.IncLogin(metrics.ResultSuccess)
	return token, user, nil
}

func (s *Service) login(ctx context.Context, email, password string) (string, *domain.User, error) {
	if email == "" || password == "" {
		return "", nil, apperror.New(apperror.KindValidation, "users: email and password required")
	}
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			return "", nil, apperror.New(apperror.KindUnauthorized, "users: incorrect email or password")
		}
		return "", nil, err
	}
	if !user.CheckPassword(password) {
		return "", nil, apperror.New(apperror.KindUnauthorized, "users: incorrect email or password")
	}
	if user.Status != domain.StatusActive {
		return "", nil, apperror.New(apperror.KindForbidden, "users: account deactivated")
	}
	token, err := auth.SignJWT(user.ID.Hex(), user.Company.Hex(), user.Role, s.secret, s.tokenTTL)
	if err != nil {
		return "", nil, fmt.Errorf("users: sign token: %w", err)
	}
	return token, user, nil
}

// SignupInput is the account detail supplied on invitation acceptance.
type SignupInput struct {
	Name     string `json:"name"`
	Surname  string `json:"surname"`
	Password string `json:"password"`
}

// Signup creates an account from a pending invitation, back-links the
// user into the company, and marks the invitation consumed.
func (s *Service) Signup(ctx context.Context, plainToken string, input SignupInput) (*domain.User, error) {
	inv, err := s.repo.FindInvitationByToken(ctx, plainToken)
	if err != nil {
		return nil, err
	}
	if inv.IsUserRegistered {
		return nil, apperror.New(apperror.KindConflict, "users: invitation already used")
	}
	if input.Name == "" {
		return nil, apperror.New(apperror.KindValidation, "users: name required")
	}

	user := &domain.User{
		Name:    input.Name,
		Surname: input.Surname,
		Email:   inv.Email,
		Role:    inv.Role,
		Status:  domain.StatusActive,
		Company: inv.Company,
	}
	if err := user.SetPassword(input.Password); err != nil {
		return nil, err
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	if err := s.companies.AddUser(ctx, inv.Company, user.ID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateInvitation(ctx, inv.ID, bson.M{"is_user_registered": true}); err != nil {
		return nil, err
	}
	metrics.IncInvitationEvent(metrics.InvitationAccepted)
	return user, nil
}

// HashCheck marks an invitation's email as reached. The client calls
// it when the invite link is first opened.
func (s *Service) HashCheck(ctx context.Context, plainToken string) (*domain.Invitation, error) {
	inv, err := s.repo.FindInvitationByToken(ctx, plainToken)
	if err != nil {
		return nil, err
	}
	if !inv.IsEmailAcquired {
		if err := s.repo.UpdateInvitation(ctx, inv.ID, bson.M{"is_email_acquired": true}); err != nil {
			return nil, err
		}
		inv.IsEmailAcquired = true
	}
	return inv, nil
}

// ForgotPassword issues a reset token and emails the reset link. The
// token is cleared again when the mail cannot be delivered.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	plainToken, err := user.CreatePasswordResetToken()
	if err != nil {
		return fmt.Errorf("users: create reset token: %w", err)
	}
	if err := s.repo.UpdateUser(ctx, user.ID, bson.M{
		"password_reset_token":   user.PasswordResetToken,
		"password_reset_expires": user.PasswordResetExpires,
	}); err != nil {
		return err
	}

	link := fmt.Sprintf("%s/reset-password/%s", s.appBaseURL, plainToken)
	msg, err := notify.PasswordResetEmail(user.Email, link, domain.PasswordResetValidity.String())
	if err != nil {
		return fmt.Errorf("users: render reset mail: %w", err)
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		if clearErr := s.repo.UpdateUser(ctx, user.ID, bson.M{
			"password_reset_token":   "",
			"password_reset_expires": time.Time{},
		}); clearErr != nil {
			s.logger.Printf("users: clear reset token after send failure: %v", clearErr)
		}
		return apperror.Wrap(apperror.KindUpstream, "users: sending reset mail failed", err)
	}
	s.logger.Printf("users: reset link sent email=%s", user.Email)
	return nil
}

// ResetPassword sets a new password from a valid reset token and
// clears the token.
func (s *Service) ResetPassword(ctx context.Context, plainToken, newPassword string) error {
	user, err := s.repo.FindByResetToken(ctx, plainToken)
	if err != nil {
		return err
	}
	if err := user.SetPassword(newPassword); err != nil {
		return err
	}
	return s.repo.UpdateUser(ctx, user.ID, bson.M{
		"password":               user.Password,
		"password_changed_at":    user.PasswordChangedAt,
		"password_reset_token":   "",
		"password_reset_expires": time.Time{},
	})
}

// InviteInput is the admin-side invitation request.
type InviteInput struct {
	Email        string `json:"email"`
	ConfirmEmail string `json:"confirm_email"`
	Role         string `json:"role"`
}

// Invite issues a new invitation for an email address, replacing any
// pending one, and mails the signup link. The invitation is removed
// again when the mail cannot be delivered.
func (s *Service) Invite(ctx context.Context, senderID, companyID bson.ObjectID, input InviteInput) (*domain.Invitation, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	confirm := strings.ToLower(strings.TrimSpace(input.ConfirmEmail))
	if email == "" || email != confirm {
		return nil, apperror.New(apperror.KindValidation, "users: email and confirmation must match")
	}
	role, ok := auth.NormalizeRole(input.Role)
	if !ok {
		return nil, apperror.New(apperror.KindValidation, "users: unknown role")
	}
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, apperror.New(apperror.KindDuplicate, "users: email already registered")
	} else if apperror.KindOf(err) != apperror.KindNotFound {
		return nil, err
	}

	plainToken, err := domain.RandomToken()
	if err != nil {
		return nil, fmt.Errorf("users: create invitation token: %w", err)
	}
	company, err := s.companies.Get(ctx, companyID)
	if err != nil {
		return nil, err
	}
	inv := &domain.Invitation{
		Email:             email,
		ConfirmEmail:      confirm,
		Role:              role,
		TokenHash:         domain.HashToken(plainToken),
		ExpiresAt:         time.Now().UTC().Add(domain.InvitationValidity),
		Company:           companyID,
		SenderInformation: senderID,
	}
	if err := s.repo.ReplaceInvitation(ctx, inv); err != nil {
		return nil, err
	}

	link := fmt.Sprintf("%s/sign-up/%s", s.appBaseURL, plainToken)
	msg, err := notify.InvitationEmail(email, company.Name, link, domain.InvitationValidity.String())
	if err != nil {
		return nil, fmt.Errorf("users: render invitation mail: %w", err)
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		if delErr := s.repo.DeleteInvitation(ctx, inv.ID); delErr != nil {
			s.logger.Printf("users: delete invitation after send failure: %v", delErr)
		}
		return nil, apperror.Wrap(apperror.KindUpstream, "users: sending invitation mail failed", err)
	}
	metrics.IncInvitationEvent(metrics.InvitationSent)
	s.logger.Printf("users: invitation sent email=%s role=%s", email, role)
	return inv, nil
}

// RevokeInvitation removes a pending invitation.
func (s *Service) RevokeInvitation(ctx context.Context, id bson.ObjectID) error {
	if err := s.repo.DeleteInvitation(ctx, id); err != nil {
		return err
	}
	metrics.IncInvitationEvent(metrics.InvitationRevoked)
	return nil
}

// VerifyTokenUser satisfies the auth middleware's verifier hook: the
// subject must exist, be active, not have rotated the password since
// token issue, and appear in the claimed company's user list.
func (s *Service) VerifyTokenUser(ctx context.Context, userID, companyID string, issuedAt time.Time) error {
	uid, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return apperror.Wrap(apperror.KindUnauthorized, "users: invalid token subject", err)
	}
	cid, err := bson.ObjectIDFromHex(companyID)
	if err != nil {
		return apperror.Wrap(apperror.KindUnauthorized, "users: invalid token company", err)
	}
	user, err := s.repo.FindByID(ctx, uid)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			return apperror.New(apperror.KindUnauthorized, "users: account no longer exists")
		}
		return err
	}
	if user.Status != domain.StatusActive {
		return apperror.New(apperror.KindUnauthorized, "users: account deactivated")
	}
	if user.ChangedPasswordAfter(issuedAt) {
		return apperror.New(apperror.KindUnauthorized, "users: password changed after token issue")
	}
	member, err := s.companies.IsMember(ctx, cid, uid)
	if err != nil {
		return err
	}
	if !member {
		return apperror.New(apperror.KindUnauthorized, "users: not a member of the claimed company")
	}
	return nil
}
