package services

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rxtech-lab/vesting-mcp/internal/models"
	"github.com/rxtech-lab/vesting-mcp/internal/schedule"
	"gorm.io/gorm"
)

// TemplateService handles vesting template operations
type TemplateService interface {
	CreateTemplate(ctx context.Context, organizationID string, req CreateTemplateRequest) (*models.VestingTemplate, error)
	GetTemplate(ctx context.Context, organizationID, id string) (*models.VestingTemplate, error)
	ListTemplates(ctx context.Context, organizationID, keyword string, limit int) ([]models.VestingTemplate, error)
	// UpdateTemplate changes an unlocked template. Locked templates return ErrTemplateLocked.
	UpdateTemplate(ctx context.Context, organizationID, id string, req UpdateTemplateRequest) (*models.VestingTemplate, error)
	DeleteTemplate(ctx context.Context, organizationID, id string) error
}

type CreateTemplateRequest struct {
	Name        string           `json:"name" validate:"required"`
	Description string           `json:"description"`
	TokenID     *string          `json:"token_id,omitempty"`
	Schedule    schedule.Details `json:"schedule"`
}

type UpdateTemplateRequest struct {
	Name        *string           `json:"name,omitempty" validate:"omitempty,min=1"`
	Description *string           `json:"description,omitempty"`
	Schedule    *schedule.Details `json:"schedule,omitempty"`
}

type templateService struct {
	db       *gorm.DB
	validate *validator.Validate
}

// NewTemplateService creates a new TemplateService
func NewTemplateService(db *gorm.DB) TemplateService {
	return &templateService{db: db, validate: validator.New()}
}

func validateSchedule(details schedule.Details) error {
	if _, err := schedule.Parse(details); err != nil {
		return newError(ErrValidation, err, "invalid schedule")
	}
	return nil
}

// CreateTemplate creates a new template
func (s *templateService) CreateTemplate(ctx context.Context, organizationID string, req CreateTemplateRequest) (*models.VestingTemplate, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, newError(ErrValidation, err, "invalid template")
	}
	if err := validateSchedule(req.Schedule); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	if req.TokenID != nil && *req.TokenID == "" {
		req.TokenID = nil
	}
	if req.TokenID != nil {
		if _, err := findToken(db, organizationID, *req.TokenID); err != nil {
			return nil, err
		}
	}

	template := &models.VestingTemplate{
		ID:             uuid.New().String(),
		OrganizationID: organizationID,
		Name:           req.Name,
		Description:    req.Description,
		TokenID:        req.TokenID,
		Schedule:       req.Schedule,
	}
	if err := db.Create(template).Error; err != nil {
		return nil, err
	}
	return template, nil
}

// GetTemplate returns a template by its ID
func (s *templateService) GetTemplate(ctx context.Context, organizationID, id string) (*models.VestingTemplate, error) {
	return findTemplate(s.db.WithContext(ctx), organizationID, id)
}

func findTemplate(db *gorm.DB, organizationID, id string) (*models.VestingTemplate, error) {
	var template models.VestingTemplate
	err := db.Where("id = ? AND organization_id = ?", id, organizationID).First(&template).Error
	if err != nil {
		return nil, notFoundOr(err, "template")
	}
	return &template, nil
}

// ListTemplates returns templates with optional filtering
func (s *templateService) ListTemplates(ctx context.Context, organizationID, keyword string, limit int) ([]models.VestingTemplate, error) {
	query := s.db.WithContext(ctx).Model(&models.VestingTemplate{}).Where("organization_id = ?", organizationID)

	if keyword != "" {
		query = query.Where("name LIKE ? OR description LIKE ?", "%"+keyword+"%", "%"+keyword+"%")
	}

	if limit > 0 {
		query = query.Limit(limit)
	}

	var templates []models.VestingTemplate
	err := query.Order("created_at DESC").Find(&templates).Error
	return templates, err
}

// UpdateTemplate updates an existing template
func (s *templateService) UpdateTemplate(ctx context.Context, organizationID, id string, req UpdateTemplateRequest) (*models.VestingTemplate, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, newError(ErrValidation, err, "invalid template")
	}

	var (
		changes models.VestingTemplate
		columns []string
	)
	if req.Name != nil {
		changes.Name = *req.Name
		columns = append(columns, "name")
	}
	if req.Description != nil {
		changes.Description = *req.Description
		columns = append(columns, "description")
	}
	if req.Schedule != nil {
		if err := validateSchedule(*req.Schedule); err != nil {
			return nil, err
		}
		changes.Schedule = *req.Schedule
		columns = append(columns, "schedule")
	}

	db := s.db.WithContext(ctx)
	template, err := findTemplate(db, organizationID, id)
	if err != nil {
		return nil, err
	}
	if template.IsLocked() {
		return nil, newError(ErrTemplateLocked, nil, "template %s is used by a deployed contract", id)
	}
	if len(columns) == 0 {
		return template, nil
	}

	// the lock can be taken between the read above and this write
	result := db.Model(&models.VestingTemplate{}).
		Where("id = ? AND organization_id = ? AND locked_at IS NULL", id, organizationID).
		Select(columns).
		Updates(&changes)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, newError(ErrTemplateLocked, nil, "template %s is used by a deployed contract", id)
	}

	return findTemplate(db, organizationID, id)
}

// DeleteTemplate deletes a template. Locked templates are kept as the record of a deployed schedule.
func (s *templateService) DeleteTemplate(ctx context.Context, organizationID, id string) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ? AND locked_at IS NULL", id, organizationID).
		Delete(&models.VestingTemplate{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		template, err := findTemplate(s.db.WithContext(ctx), organizationID, id)
		if err != nil {
			return err
		}
		if template.IsLocked() {
			return newError(ErrTemplateLocked, nil, "template %s is used by a deployed contract", id)
		}
	}
	return nil
}

// lockTemplate marks a template as used by a deployed contract. Locking twice keeps the first time.
func lockTemplate(tx *gorm.DB, id string, at time.Time) error {
	return tx.Model(&models.VestingTemplate{}).
		Where("id = ? AND locked_at IS NULL", id).
		Update("locked_at", at).Error
}
