package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ecodigital/apperr"
	"ecodigital/baas"
	"ecodigital/metrics"
	"ecodigital/models"
	"ecodigital/saga"
	"ecodigital/utils"
)

const (
	FlowCreateAccount   = "create_account"
	FlowAddCollaborator = "add_collaborator"
)

// ProvisioningService creates companies and people. Every flow spans the
// database and the auth service, so each runs as a saga.
type ProvisioningService struct {
	DB      *gorm.DB
	Auth    baas.Auth
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewProvisioningService(db *gorm.DB, auth baas.Auth, log *zap.Logger, m *metrics.Metrics) *ProvisioningService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProvisioningService{DB: db, Auth: auth, log: log.With(zap.String("component", "provisioning")), metrics: m}
}

type CreateAccountInput struct {
	CompanyName         string `json:"companyName" validate:"required,min=2"`
	EmployeeCount       int    `json:"employeeCount" validate:"min=1"`
	AdminName           string `json:"adminName" validate:"required,min=3"`
	AdminEmail          string `json:"adminEmail" validate:"required,email"`
	ProvisionalPassword string `json:"provisionalPassword" validate:"required,min=8"`
}

type Account struct {
	Company *models.Company `json:"company"`
	Admin   *models.Profile `json:"admin"`
}

var (
	ErrSalesOnly   = apperr.Forbidden("Apenas a equipe de Vendas pode executar esta ação.")
	ErrInvalidForm = apperr.Invalid("Dados do formulário inválidos.")

	errNoUserID = errors.New("auth service returned no user id")
)

// CreateAccount provisions a client company with its first admin. Only sales
// staff may call it. The admin must change the provisional password on first
// login.
func (s *ProvisioningService) CreateAccount(ctx context.Context, caller *models.Profile, in CreateAccountInput) (*Account, error) {
	if caller == nil || caller.Role != models.RoleSales {
		return nil, ErrSalesOnly
	}
	in.AdminName = utils.NormalizeName(in.AdminName)
	if err := utils.ValidateStruct(in); err != nil {
		return nil, apperr.Wrap(ErrInvalidForm.Kind, ErrInvalidForm.Msg, err)
	}

	company := &models.Company{Name: in.CompanyName, EmployeeCount: in.EmployeeCount}
	var user *baas.User
	admin := &models.Profile{FullName: in.AdminName, Role: models.RoleAdmin, RequiresPasswordChange: true}

	err := saga.New(FlowCreateAccount, s.log).
		Add("create company",
			func(ctx context.Context) error {
				slug, err := s.uniqueSlug(ctx, in.CompanyName)
				if err == nil {
					company.Slug = slug
					err = s.DB.WithContext(ctx).Create(company).Error
				}
				if err != nil {
					return apperr.Wrap(apperr.KindInvalid, "Falha ao criar a empresa: "+err.Error(), err)
				}
				return nil
			},
			func(ctx context.Context) error {
				return s.DB.WithContext(ctx).Delete(&models.Company{}, "id = ?", company.ID).Error
			},
		).
		Add("create auth user",
			func(ctx context.Context) error {
				var err error
				user, err = s.Auth.AdminCreateUser(ctx, in.AdminEmail, in.ProvisionalPassword, map[string]any{"name": in.AdminName})
				if err == nil && (user == nil || user.ID == "") {
					user, err = nil, errNoUserID
				}
				if err != nil {
					return apperr.Wrap(apperr.KindInvalid, "Falha ao criar o usuário no Auth: "+authMessage(err), err)
				}
				return nil
			},
			func(ctx context.Context) error { return s.Auth.AdminDeleteUser(ctx, user.ID) },
		).
		Add("create profile",
			func(ctx context.Context) error {
				admin.ID = user.ID
				admin.CompanyID = &company.ID
				if err := s.DB.WithContext(ctx).Create(admin).Error; err != nil {
					return apperr.Wrap(apperr.KindInvalid, "Falha ao criar o perfil do usuário: "+err.Error(), err)
				}
				return nil
			},
			nil,
		).
		Run(ctx)
	if err != nil {
		s.recordFailure(FlowCreateAccount, err, zap.String("company_id", company.ID), zap.String("email", in.AdminEmail))
		return nil, err
	}

	s.metrics.Provisioned(FlowCreateAccount, metrics.ResultOK)
	s.log.Info("account provisioned",
		zap.String("company_id", company.ID),
		zap.String("slug", company.Slug),
		zap.String("admin_id", admin.ID),
		zap.String("sales_id", caller.ID),
	)
	return &Account{Company: company, Admin: admin}, nil
}

type CollaboratorInput struct {
	FullName  string  `json:"full_name" validate:"required,min=3"`
	Email     string  `json:"email" validate:"required,email"`
	Password  string  `json:"password" validate:"required,min=8"`
	Role      string  `json:"role" validate:"required,oneof=admin employee"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,url"`
}

// AddCollaborator creates an auth identity and a profile in the admin's
// company. The identity is removed again when the profile insert fails.
func (s *ProvisioningService) AddCollaborator(ctx context.Context, admin *models.Profile, in CollaboratorInput) (*models.Profile, error) {
	if admin.CompanyID == nil {
		return nil, apperr.ErrNoCompany
	}
	in.FullName = utils.NormalizeName(in.FullName)
	if err := utils.ValidateStruct(in); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalid, err.Error(), err)
	}

	var user *baas.User
	profile := &models.Profile{
		FullName:  in.FullName,
		Role:      in.Role,
		CompanyID: admin.CompanyID,
		AvatarURL: in.AvatarURL,
	}

	err := saga.New(FlowAddCollaborator, s.log).
		Add("create auth user",
			func(ctx context.Context) error {
				var err error
				user, err = s.Auth.AdminCreateUser(ctx, in.Email, in.Password, map[string]any{"full_name": in.FullName})
				if err == nil && (user == nil || user.ID == "") {
					user, err = nil, errNoUserID
				}
				if err != nil {
					if baas.IsAuthStatus(err, 422) {
						return apperr.Wrap(apperr.KindConflict, "Já existe um usuário com este e-mail.", err)
					}
					return apperr.Backend("Não foi possível criar o usuário: "+authMessage(err), err)
				}
				return nil
			},
			func(ctx context.Context) error { return s.Auth.AdminDeleteUser(ctx, user.ID) },
		).
		Add("create profile",
			func(ctx context.Context) error {
				profile.ID = user.ID
				return wrapDB("create collaborator profile", s.DB.WithContext(ctx).Create(profile).Error)
			},
			nil,
		).
		Run(ctx)
	if err != nil {
		s.recordFailure(FlowAddCollaborator, err, zap.String("company_id", *admin.CompanyID), zap.String("email", in.Email))
		return nil, err
	}

	s.metrics.Provisioned(FlowAddCollaborator, metrics.ResultOK)
	s.log.Info("collaborator added",
		zap.String("profile_id", profile.ID),
		zap.String("company_id", *admin.CompanyID),
		zap.String("role", profile.Role),
		zap.String("admin_id", admin.ID),
	)
	return profile, nil
}

// RemoveCollaborator deletes a colleague's profile and then their auth
// identity. If the identity cannot be deleted the profile is restored along
// with its missions and feed authorship.
func (s *ProvisioningService) RemoveCollaborator(ctx context.Context, admin *models.Profile, id string) error {
	if admin.CompanyID == nil {
		return apperr.ErrNoCompany
	}
	if id == admin.ID {
		return apperr.Forbidden("Você não pode excluir a si mesmo.")
	}
	if _, err := uuid.Parse(id); err != nil {
		return apperr.NotFound("Colaborador não encontrado.")
	}

	var snapshot models.Profile
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !snapshot.InCompany(*admin.CompanyID)) {
		return apperr.NotFound("Colaborador não encontrado.")
	}
	if err != nil {
		return wrapDB("load collaborator", err)
	}
	// Deleting the profile cascades to its missions and unlinks its feed
	// entries, so both are kept for the restore.
	var missions []models.UserMission
	var feedIDs []string
	if err := s.DB.WithContext(ctx).Where("profile_id = ?", id).Find(&missions).Error; err != nil {
		return wrapDB("load collaborator missions", err)
	}
	if err := s.DB.WithContext(ctx).Model(&models.ActivityFeedEntry{}).Where("profile_id = ?", id).Pluck("id", &feedIDs).Error; err != nil {
		return wrapDB("load collaborator feed", err)
	}

	err = saga.New("remove_collaborator", s.log).
		Add("delete profile",
			func(ctx context.Context) error {
				return wrapDB("delete collaborator", s.DB.WithContext(ctx).Delete(&models.Profile{}, "id = ?", id).Error)
			},
			func(ctx context.Context) error {
				return s.restoreCollaborator(ctx, snapshot, missions, feedIDs)
			},
		).
		Add("delete auth user",
			func(ctx context.Context) error {
				err := s.Auth.AdminDeleteUser(ctx, id)
				if err != nil && !baas.IsAuthStatus(err, 404) {
					return apperr.Backend("Não foi possível excluir o usuário.", err)
				}
				return nil
			},
			nil,
		).
		Run(ctx)
	if err != nil {
		s.recordFailure("remove_collaborator", err, zap.String("profile_id", id))
		return err
	}
	s.log.Info("collaborator removed", zap.String("profile_id", id), zap.String("admin_id", admin.ID))
	return nil
}

func (s *ProvisioningService) restoreCollaborator(ctx context.Context, snapshot models.Profile, missions []models.UserMission, feedIDs []string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&snapshot).Error; err != nil {
			return err
		}
		if len(missions) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&missions).Error; err != nil {
				return err
			}
		}
		if len(feedIDs) == 0 {
			return nil
		}
		return tx.Model(&models.ActivityFeedEntry{}).Where("id IN ?", feedIDs).Update("profile_id", snapshot.ID).Error
	})
}

func (s *ProvisioningService) recordFailure(flow string, err error, fields ...zap.Field) {
	result := metrics.ResultRolledBack
	var sagaErr *saga.Error
	if errors.As(err, &sagaErr) && !sagaErr.RolledBack() {
		result = metrics.ResultRollbackFailed
		// Keep the ids for a manual cleanup.
		s.log.Error("provisioning left partial state", append(fields,
			zap.String("flow", flow),
			zap.String("step", sagaErr.Step),
			zap.Errors("rollback", sagaErr.RollbackErrs),
		)...)
	}
	s.metrics.Provisioned(flow, result)
}

func (s *ProvisioningService) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := utils.Slugify(name)
	slug := base
	for i := 0; i < 5; i++ {
		var count int64
		if err := s.DB.WithContext(ctx).Model(&models.Company{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return slug, nil
		}
		slug = base + "-" + uuid.NewString()[:6]
	}
	return "", errors.New("could not allocate a unique slug")
}

func authMessage(err error) string {
	var ae *baas.AuthError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return err.Error()
}
