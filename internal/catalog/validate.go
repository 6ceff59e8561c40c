package catalog

import (
	"errors"
	"regexp"

	"gopkg.in/go-playground/validator.v9"

	"github.com/hitoshi/musify/internal/model"
)

// durationPattern は曲の長さの書式（分:秒）。秒は00から59。
var durationPattern = regexp.MustCompile(`^[0-9]+:[0-5][0-9]$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		return durationPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err.Error())
	}
	return v
}

// albumForm はアルバム作成フォームの検証用構造体。
type albumForm struct {
	Name      string `validate:"required"`
	Artist    string `validate:"required"`
	ImageType string `validate:"required,startswith=image/"`
}

// songForm は曲追加フォームの検証用構造体。
type songForm struct {
	Title         string `validate:"required"`
	Duration      string `validate:"required,duration"`
	AudioType     string `validate:"required,startswith=audio/"`
	ThumbnailType string `validate:"omitempty,startswith=image/"`
}

// fieldMessages はフィールドと検証タグの組に対応するメッセージ。
var fieldMessages = map[string]map[string]string{
	"Name":          {"required": "Album name is required!"},
	"Artist":        {"required": "Artist name is required!"},
	"ImageType":     {"required": "Please select an album cover image!", "startswith": "Please select an image file!"},
	"Title":         {"required": "Song title is required!"},
	"Duration":      {"required": "Duration is required!", "duration": "Duration must be in MM:SS format!"},
	"AudioType":     {"required": "Please select an audio file!", "startswith": "Please select an audio file!"},
	"ThumbnailType": {"startswith": "Please select an image file!"},
}

// validateForm はフォームを検証し、最初の違反をValidationErrorとして返す。
func validateForm(form any) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return model.NewValidationError("Invalid form input!")
	}

	fe := verrs[0]
	if msg, ok := fieldMessages[fe.Field()][fe.Tag()]; ok {
		return model.NewValidationError(msg)
	}
	return model.NewValidationError("Invalid value for " + fe.Field() + "!")
}
