package controllers

import (
	"context"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/speech-sdk/pkg/models"
)

type OrganisationController interface {
	Create(ctx context.Context, organisation *models.Organisation) (*models.Organisation, error)
	GetByID(ctx context.Context, id string) (*models.Organisation, error)
	List(ctx context.Context, filters url.Values) (*models.Page[models.Organisation], error)
}

type organisationController struct {
	api    Requester
	logger zerolog.Logger
}

func NewOrganisationController(api Requester, logger zerolog.Logger) OrganisationController {
	return &organisationController{
		api:    api,
		logger: logger,
	}
}

func (c *organisationController) Create(ctx context.Context, organisation *models.Organisation) (*models.Organisation, error) {
	if organisation == nil {
		return nil, models.ErrModelRequired
	}
	created, err := create[models.Organisation](ctx, c.api, "/organisations", compact(map[string]any{
		"id":   organisation.ID,
		"name": organisation.Name,
	}))
	if err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("organisation_id", created.ID).
		Msg("Organisation created")

	return created, nil
}

func (c *organisationController) GetByID(ctx context.Context, id string) (*models.Organisation, error) {
	if id == "" {
		return nil, models.ErrOrganisationIDRequired
	}
	return get[models.Organisation](ctx, c.api, organisationPath(id))
}

func (c *organisationController) List(ctx context.Context, filters url.Values) (*models.Page[models.Organisation], error) {
	return list[models.Organisation](ctx, c.api, "/organisations", filters)
}

type TenantController interface {
	Create(ctx context.Context, tenant *models.Tenant) (*models.Tenant, error)
	GetByID(ctx context.Context, id string) (*models.Tenant, error)
	List(ctx context.Context, filters url.Values) (*models.Page[models.Tenant], error)
}

type tenantController struct {
	api    Requester
	logger zerolog.Logger
}

func NewTenantController(api Requester, logger zerolog.Logger) TenantController {
	return &tenantController{
		api:    api,
		logger: logger,
	}
}

func (c *tenantController) Create(ctx context.Context, tenant *models.Tenant) (*models.Tenant, error) {
	if tenant == nil {
		return nil, models.ErrModelRequired
	}
	created, err := create[models.Tenant](ctx, c.api, "/tenants", compact(map[string]any{
		"id":   tenant.ID,
		"name": tenant.Name,
	}))
	if err != nil {
		return nil, err
	}

	c.logger.Info().Str("tenant_id", created.ID).Msg("Tenant created")
	return created, nil
}

func (c *tenantController) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	if id == "" {
		return nil, models.ErrTenantIDRequired
	}
	return get[models.Tenant](ctx, c.api, "/tenants/"+url.PathEscape(id))
}

func (c *tenantController) List(ctx context.Context, filters url.Values) (*models.Page[models.Tenant], error) {
	return list[models.Tenant](ctx, c.api, "/tenants", filters)
}
