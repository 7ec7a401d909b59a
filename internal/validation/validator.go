// Package validation はリクエスト構造体の入力値検証を提供する。
// go-playground/validatorのタグで宣言した規則を検証し、APIErrorに変換する。
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/five/internal/model"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// handlePattern はハンドル名に使える文字。英数字と@.+-_のみ。
var handlePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// get は共有のValidateインスタンスを返す。
// エラーメッセージのフィールド名にはjsonタグの名前を使う。
func get() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		validate.RegisterValidation("handle", func(fl validator.FieldLevel) bool {
			return handlePattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// Struct は構造体をタグに従って検証する。
// 違反がある場合は全ての違反をまとめたValidationErrorを返す。
func Struct(s any) error {
	err := get().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return model.NewValidationError(err.Error())
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, message(fe))
	}
	return model.NewValidationError(strings.Join(messages, "; "))
}

// message はフィールドエラーを利用者向けの英語メッセージに変換する。
func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "handle":
		return fmt.Sprintf("%s may contain only letters, digits and @.+-_", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
