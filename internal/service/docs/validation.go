package docs

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"docvault/internal/config"
	"docvault/internal/domain"
	"docvault/internal/domain/models"
	"docvault/internal/domain/services"
)

func validateCreateNode(req *services.CreateNodeRequest) error {
	err := validation.ValidateStruct(req,
		validation.Field(&req.TenantID, validation.Required),
		validation.Field(&req.Title,
			validation.Required,
			validation.Length(1, config.MaxTitleLength),
		),
		validation.Field(&req.Kind,
			validation.Required,
			validation.In(models.NodeKindFolder, models.NodeKindDocument),
		),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

func validateTitle(title string) error {
	err := validation.Validate(title,
		validation.Required,
		validation.Length(1, config.MaxTitleLength),
	)
	if err != nil {
		return fmt.Errorf("%w: title: %v", domain.ErrValidation, err)
	}
	return nil
}

func validateUpdateMetadata(req *services.UpdateMetadataRequest) error {
	err := validation.ValidateStruct(req,
		validation.Field(&req.TenantID, validation.Required),
		validation.Field(&req.DocumentID, validation.Required),
		validation.Field(&req.Tags,
			validation.Length(0, config.MaxTagCount),
			validation.Each(validation.Required, validation.Length(1, config.MaxTagLength)),
		),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

func validateAppendRevision(req *services.AppendRevisionRequest) error {
	err := validation.Errors{
		"tenant_id":   validation.Validate(req.TenantID, validation.Required),
		"document_id": validation.Validate(req.DocumentID, validation.Required),
	}.Filter()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if req.Content == nil {
		return fmt.Errorf("%w: content reader is required", domain.ErrValidation)
	}
	return nil
}
