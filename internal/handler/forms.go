package handler

import (
	"errors"

	"gopkg.in/go-playground/validator.v9"
)

var formValidator = validator.New()

// loginForm はログインフォームの入力。
type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
}

// registerForm はアカウント登録フォームの入力。
// パスワード不一致を長さ不足より先に報告するため、ConfirmPasswordを先に置く。
type registerForm struct {
	DisplayName     string `validate:"required"`
	Email           string `validate:"required,email"`
	ConfirmPassword string `validate:"eqfield=Password"`
	Password        string `validate:"required,min=6"`
}

var formMessages = map[string]map[string]string{
	"DisplayName":     {"required": "Name is required!"},
	"Email":           {"required": "Email is required!", "email": "Invalid email address!"},
	"Password":        {"required": "Password is required!", "min": "Password must be at least 6 characters!"},
	"ConfirmPassword": {"eqfield": "Passwords do not match!"},
}

// checkForm はフォームを検証し、最初の違反に対応するメッセージを返す。違反がなければ空文字列。
func checkForm(form any) string {
	err := formValidator.Struct(form)
	if err == nil {
		return ""
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid form input!"
	}
	fe := verrs[0]
	if msg, ok := formMessages[fe.Field()][fe.Tag()]; ok {
		return msg
	}
	return "Invalid value for " + fe.Field() + "!"
}
