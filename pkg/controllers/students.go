package controllers

import (
	"context"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/RubachokBoss/speech-sdk/pkg/models"
)

type StudentController interface {
	Create(ctx context.Context, student *models.Student) (*models.Student, error)
	GetByID(ctx context.Context, organisationID, id string) (*models.Student, error)
	List(ctx context.Context, organisationID string, filters url.Values) (*models.Page[models.Student], error)
}

type studentController struct {
	api    Requester
	logger zerolog.Logger
}

func NewStudentController(api Requester, logger zerolog.Logger) StudentController {
	return &studentController{
		api:    api,
		logger: logger,
	}
}

func (c *studentController) Create(ctx context.Context, student *models.Student) (*models.Student, error) {
	if student == nil {
		return nil, models.ErrModelRequired
	}
	if student.OrganisationID == "" {
		return nil, models.ErrOrganisationIDRequired
	}

	body := compact(map[string]any{
		"id":        student.ID,
		"firstName": student.FirstName,
		"lastName":  student.LastName,
		"gender":    string(student.Gender),
	})
	if student.BirthYear > 0 {
		body["birthYear"] = student.BirthYear
	}

	created, err := create[models.Student](ctx, c.api, organisationPath(student.OrganisationID)+"/students", body)
	if err != nil {
		return nil, err
	}
	created.OrganisationID = student.OrganisationID

	c.logger.Info().
		Str("organisation_id", created.OrganisationID).
		Str("student_id", created.ID).
		Msg("Student created")

	return created, nil
}

func (c *studentController) GetByID(ctx context.Context, organisationID, id string) (*models.Student, error) {
	if organisationID == "" {
		return nil, models.ErrOrganisationIDRequired
	}
	if id == "" {
		return nil, models.ErrStudentIDRequired
	}

	student, err := get[models.Student](ctx, c.api, withID(organisationPath(organisationID)+"/students", id))
	if err != nil {
		return nil, err
	}
	student.OrganisationID = organisationID
	return student, nil
}

func (c *studentController) List(ctx context.Context, organisationID string, filters url.Values) (*models.Page[models.Student], error) {
	if organisationID == "" {
		return nil, models.ErrOrganisationIDRequired
	}

	page, err := list[models.Student](ctx, c.api, organisationPath(organisationID)+"/students", filters)
	if err != nil {
		return nil, err
	}
	page.Items = lo.Map(page.Items, func(s models.Student, _ int) models.Student {
		s.OrganisationID = organisationID
		return s
	})
	return page, nil
}
