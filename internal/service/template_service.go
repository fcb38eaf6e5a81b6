// internal/service/template_service.go
package service

import (
	"context"
	"strings"

	appErrors "github.com/b2stos/nexuszap-sub000/internal/errors"
	"github.com/b2stos/nexuszap-sub000/internal/model"
	"github.com/b2stos/nexuszap-sub000/internal/provider"
	"github.com/b2stos/nexuszap-sub000/internal/repository"
)

// TemplateService is the pre-start gate: the broker's template registry is
// the source of truth, the local row only a cache.
type TemplateService struct {
	TemplateRepo repository.TemplateRepositoryInterface
	Validator    provider.TemplateValidator
}

// EnsureApproved revalidates the template against the broker. On mismatch the
// locally cached status is corrected before the verdict is returned.
func (s *TemplateService) EnsureApproved(ctx context.Context, templateID int) (*model.Template, error) {
	tmpl, err := s.TemplateRepo.GetByID(templateID)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, appErrors.ErrTemplateNotApproved
	}

	check, err := s.Validator.Revalidate(ctx, tmpl.Name, tmpl.Language, string(tmpl.Status))
	if err != nil {
		return nil, err
	}
	if check.Mismatch {
		corrected := model.TemplateStatus(check.Status)
		if err := s.TemplateRepo.UpdateStatus(templateID, corrected); err != nil {
			return nil, err
		}
		tmpl.Status = corrected
	}
	if !check.CanUse {
		return nil, appErrors.ErrTemplateNotApproved
	}
	return tmpl, nil
}

// RenderBody substitutes {placeholder} variables into a template body.
func RenderBody(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}
