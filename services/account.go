package services

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"ecodigital/apperr"
	"ecodigital/baas"
	"ecodigital/models"
	"ecodigital/utils"
)

// Apps a login can target. Each one admits a single role, except the
// mobile app which admits everyone.
const (
	AppMobile    = "mobile"
	AppDashboard = "dashboard"
	AppSales     = "sales"
)

var (
	ErrBadCredentials   = apperr.Unauthenticated("Credenciais inválidas. Por favor, tente novamente.")
	ErrProfileUnchecked = apperr.Forbidden("Não foi possível verificar seu perfil de usuário. Contate o suporte.")
	ErrNotAdmin         = apperr.Forbidden("Você não tem permissão de administrador para acessar este painel.")
	ErrAccessDenied     = apperr.Forbidden("Acesso negado. Você não tem permissão para acessar esta página.")
)

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	App      string `json:"app" validate:"omitempty,oneof=mobile dashboard sales"`
}

type LoginResult struct {
	Session *baas.Session   `json:"session"`
	Profile *models.Profile `json:"profile"`
}

// AccountService signs people in and out through the auth gateway and
// resolves bearer tokens to profiles.
type AccountService struct {
	DB   *gorm.DB
	Auth baas.Auth
	log  *zap.Logger
}

func NewAccountService(db *gorm.DB, auth baas.Auth, log *zap.Logger) *AccountService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountService{DB: db, Auth: auth, log: log.With(zap.String("component", "account"))}
}

func allowed(app, role string) bool {
	switch app {
	case AppDashboard:
		return role == models.RoleAdmin
	case AppSales:
		return role == models.RoleSales
	}
	return true
}

// Login exchanges credentials for a session. When the profile cannot be read
// or its role does not fit the app, the fresh session is signed out again.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	sess, err := s.Auth.SignInWithPassword(ctx, in.Email, in.Password)
	if err != nil {
		if baas.IsAuthStatus(err, 400, 401, 422) {
			return nil, apperr.Wrap(ErrBadCredentials.Kind, ErrBadCredentials.Msg, err)
		}
		return nil, apperr.Backend("Não foi possível entrar. Tente novamente.", err)
	}

	var profile models.Profile
	if err := s.DB.WithContext(ctx).Where("id = ?", sess.User.ID).First(&profile).Error; err != nil {
		s.signOut(ctx, sess.AccessToken)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileUnchecked
		}
		return nil, apperr.Wrap(ErrProfileUnchecked.Kind, ErrProfileUnchecked.Msg, err)
	}

	if !allowed(in.App, profile.Role) {
		s.signOut(ctx, sess.AccessToken)
		s.log.Info("login rejected for app", zap.String("profile_id", profile.ID), zap.String("app", in.App), zap.String("role", profile.Role))
		if in.App == AppDashboard {
			return nil, ErrNotAdmin
		}
		return nil, ErrAccessDenied
	}
	return &LoginResult{Session: sess, Profile: &profile}, nil
}

func (s *AccountService) Logout(ctx context.Context, accessToken string) error {
	if err := s.Auth.SignOut(ctx, accessToken); err != nil {
		return apperr.Backend("Não foi possível sair.", err)
	}
	return nil
}

func (s *AccountService) signOut(ctx context.Context, token string) {
	if err := s.Auth.SignOut(ctx, token); err != nil {
		s.log.Warn("sign out failed", zap.Error(err))
	}
}

// Authenticate resolves a bearer token to its profile.
func (s *AccountService) Authenticate(ctx context.Context, accessToken string) (*models.Profile, error) {
	if accessToken == "" {
		return nil, apperr.ErrMissingToken
	}
	user, err := s.Auth.GetUser(ctx, accessToken)
	if err != nil {
		if baas.IsAuthStatus(err, 401, 403, 404) {
			return nil, apperr.Wrap(apperr.ErrInvalidSession.Kind, apperr.ErrInvalidSession.Msg, err)
		}
		return nil, apperr.Backend("Falha na autenticação.", err)
	}
	var profile models.Profile
	if err := s.DB.WithContext(ctx).Where("id = ?", user.ID).First(&profile).Error; err != nil {
		return nil, wrapDB("load session profile", notFound(err, apperr.ErrProfileMissing))
	}
	return &profile, nil
}

// ErrPasswordSaved is returned when the password changed but the profile flag
// could not be cleared.
var ErrPasswordSaved = apperr.New(apperr.KindBackend,
	"Sua senha foi atualizada, mas houve um problema ao salvar seu perfil. Por favor, contate o suporte.")

type ChangePasswordInput struct {
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// ChangePassword runs the forced change: policy check, confirmation match,
// identity update, flag reset and sign out.
func (s *AccountService) ChangePassword(ctx context.Context, accessToken, profileID string, in ChangePasswordInput) error {
	if failed := utils.CheckPassword(in.NewPassword); len(failed) > 0 {
		return &apperr.Error{Kind: apperr.KindInvalid, Msg: "Sua senha precisa atender aos seguintes requisitos: " + strings.Join(failed, "; ")}
	}
	if in.NewPassword != in.ConfirmPassword {
		return apperr.Invalid("Os campos de nova senha e confirmação precisam ser idênticos.")
	}
	if err := s.Auth.UpdatePassword(ctx, accessToken, in.NewPassword); err != nil {
		return apperr.Wrap(apperr.KindBackend, "Não foi possível atualizar sua senha. Tente novamente.", err)
	}

	res := s.DB.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", profileID).Update("requires_password_change", false)
	if res.Error != nil || res.RowsAffected == 0 {
		cause := res.Error
		if cause == nil {
			cause = errors.New("profile row not found")
		}
		s.log.Error("password changed but flag not cleared", zap.String("profile_id", profileID), zap.Error(cause))
		return apperr.Wrap(ErrPasswordSaved.Kind, ErrPasswordSaved.Msg, cause)
	}

	if err := s.Auth.SignOut(ctx, accessToken); err != nil {
		s.log.Warn("sign out after password change failed", zap.String("profile_id", profileID), zap.Error(err))
	}
	return nil
}
