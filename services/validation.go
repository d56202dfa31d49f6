package services

import (
	"errors"
	"reflect"
	"strings"

	"github.com/FASALGAF00R/Campuscore-backend/models"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"gorm.io/datatypes"
)

const (
	maxMessageLength  = 2000
	maxFeedbackLength = 1000
	minRating         = 1
	maxRating         = 5
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	// category=<kind> and priority=<kind> check membership in the kind's sets.
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		p, ok := policyFor(models.Kind(fl.Param()))
		return ok && p.allowsCategory(fl.Field().String())
	})
	_ = v.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		p, ok := policyFor(models.Kind(fl.Param()))
		return ok && p.allowsPriority(models.Priority(fl.Field().String()))
	})
	return v
}

// CreatePayload is the kind-specific body of a create command.
type CreatePayload interface {
	Kind() models.Kind
	check() map[string]string
	common() (category, description string, priority models.Priority)
	build(base models.RequestBase) models.Request
}

// NewCreatePayload returns an empty payload for kind, ready to decode into.
func NewCreatePayload(kind models.Kind) (CreatePayload, error) {
	switch kind {
	case models.KindSOS:
		return &CreateSOSPayload{}, nil
	case models.KindEmergencyAssist:
		return &CreateAssistPayload{}, nil
	case models.KindCounseling:
		return &CreateCounselingPayload{}, nil
	}
	return nil, validationError("unknown request kind "+string(kind), nil)
}

type CreateSOSPayload struct {
	Category    string             `json:"category" validate:"required,category=sos"`
	Description string             `json:"description" validate:"required,notblank,max=1000"`
	Priority    models.Priority    `json:"priority" validate:"omitempty,priority=sos"`
	Location    models.SOSLocation `json:"location"`
}

func (*CreateSOSPayload) Kind() models.Kind          { return models.KindSOS }
func (p *CreateSOSPayload) check() map[string]string { return structErrors(p) }

func (p *CreateSOSPayload) common() (string, string, models.Priority) {
	return p.Category, p.Description, p.Priority
}

func (p *CreateSOSPayload) build(base models.RequestBase) models.Request {
	return &models.SOSAlert{RequestBase: base, Location: datatypes.NewJSONType(p.Location)}
}

type CreateAssistPayload struct {
	Category    string                `json:"category" validate:"required,category=emergency-assist"`
	Title       string                `json:"title" validate:"required,notblank,max=100"`
	Description string                `json:"description" validate:"required,notblank,max=1000"`
	Priority    models.Priority       `json:"priority" validate:"omitempty,priority=emergency-assist"`
	Location    models.AssistLocation `json:"location"`
	Consent     bool                  `json:"consent"`
}

func (*CreateAssistPayload) Kind() models.Kind { return models.KindEmergencyAssist }

func (p *CreateAssistPayload) common() (string, string, models.Priority) {
	return p.Category, p.Description, p.Priority
}

func (p *CreateAssistPayload) check() map[string]string {
	fields := structErrors(p)
	if !p.Consent {
		if fields == nil {
			fields = map[string]string{}
		}
		fields["consent"] = "must be true"
	}
	return fields
}

func (p *CreateAssistPayload) build(base models.RequestBase) models.Request {
	return &models.EmergencyAssist{
		RequestBase: base,
		Title:       strings.TrimSpace(p.Title),
		Consent:     p.Consent,
		Location:    datatypes.NewJSONType(p.Location),
	}
}

type CreateCounselingPayload struct {
	Category    string          `json:"category" validate:"required,category=counseling"`
	Title       string          `json:"title" validate:"required,notblank,max=150"`
	Description string          `json:"description" validate:"required,notblank,max=2000"`
	Priority    models.Priority `json:"priority" validate:"omitempty,priority=counseling"`
	IsAnonymous bool            `json:"is_anonymous"`
}

func (*CreateCounselingPayload) Kind() models.Kind          { return models.KindCounseling }
func (p *CreateCounselingPayload) check() map[string]string { return structErrors(p) }

func (p *CreateCounselingPayload) common() (string, string, models.Priority) {
	return p.Category, p.Description, p.Priority
}

func (p *CreateCounselingPayload) build(base models.RequestBase) models.Request {
	return &models.CounselingRequest{
		RequestBase: base,
		Title:       strings.TrimSpace(p.Title),
		IsAnonymous: p.IsAnonymous,
	}
}

// structErrors runs the shared validator and returns field -> failed rule,
// or nil when the value is valid.
func structErrors(v any) map[string]string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_": err.Error()}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" && rule == "max" {
			rule += "=" + fe.Param()
		}
		fields[fe.Field()] = rule
	}
	return fields
}
