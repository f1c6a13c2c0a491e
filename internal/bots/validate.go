package bots

import (
	"github.com/go-playground/validator/v10"

	"github.com/colon-app/backend/internal/models"
	"github.com/colon-app/backend/pkg/validation"
)

// botInput is the create/update payload. Pointers distinguish a missing boolean from false.
type botInput struct {
	BotName              string         `json:"botName" validate:"required,max=50"`
	IsInteractiveEnabled *bool          `json:"isInteractiveEnabled" validate:"required"`
	IsRecordingEnabled   *bool          `json:"isRecordingEnabled" validate:"required"`
	TriggerMode          string         `json:"triggerMode" validate:"omitempty,oneof=chat_only name_reaction all_reaction"`
	Features             *featuresInput `json:"features" validate:"omitempty"`
}

type featuresInput struct {
	Reaction featureInput `json:"reaction"`
	Chat     featureInput `json:"chat"`
	Voice    featureInput `json:"voice"`
}

type featureInput struct {
	Enabled     bool   `json:"enabled"`
	Instruction string `json:"instruction" validate:"max=1000"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validation.New()
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		in := sl.Current().Interface().(botInput)
		if in.IsInteractiveEnabled != nil && *in.IsInteractiveEnabled && in.TriggerMode == "" {
			sl.ReportError(in.TriggerMode, "triggerMode", "TriggerMode", "required_trigger", "")
		}
	}, botInput{})
	return v
}

// Validate checks the payload against the bot schema.
func (in *botInput) Validate() error {
	return validate.Struct(in)
}

func (f *featuresInput) toModel() *models.Features {
	if f == nil {
		return nil
	}
	return &models.Features{
		Reaction: models.Feature(f.Reaction),
		Chat:     models.Feature(f.Chat),
		Voice:    models.Feature(f.Voice),
	}
}

// apply copies the validated input onto b.
func (in *botInput) apply(b *models.Bot) {
	b.BotName = in.BotName
	b.IsInteractiveEnabled = *in.IsInteractiveEnabled
	b.IsRecordingEnabled = *in.IsRecordingEnabled
	if in.TriggerMode != "" {
		b.TriggerMode = in.TriggerMode
	}
	if in.Features != nil {
		b.Features = in.Features.toModel()
	}
}
