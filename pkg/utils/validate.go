package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"genalixir-backend/pkg/apperror"
	"genalixir-backend/pkg/models"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator 返回注册了目录校验标签的共享实例
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		// 错误信息中使用 JSON 字段名
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		must := func(tag string, fn func(string) bool) {
			if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
				return fn(fl.Field().String())
			}); err != nil {
				panic(fmt.Sprintf("register %s validator: %v", tag, err))
			}
		}
		must("skill", models.IsSkill)
		must("aura", models.IsAura)
		must("country", models.IsCountry)
		must("pole", models.IsPole)
		must("role", func(s string) bool { return models.Role(s).Valid() })
		must("project_status", func(s string) bool { return models.ProjectStatus(s).Valid() })

		validate = v
	})
	return validate
}

// ValidateStruct 校验结构体，失败时返回 VALIDATION_ERROR
func ValidateStruct(v interface{}) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.Validation("invalid request")
	}

	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, describeFieldError(fe))
	}
	return apperror.Validation("%s", details[0]).WithDetails(strings.Join(details, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min", "max", "len":
		return fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param())
	case "numeric":
		return field + " must contain only digits"
	case "unique":
		return field + " must not contain duplicates"
	case "skill", "aura", "country", "pole", "role", "project_status":
		return fmt.Sprintf("%s is not a known %s", field, strings.ReplaceAll(fe.Tag(), "_", " "))
	case "base64":
		return field + " must be base64 encoded"
	}
	return fmt.Sprintf("%s failed on %s", field, fe.Tag())
}

// DecodeJSON 解析JSON请求体（拒绝未知字段）
func DecodeJSON(r *http.Request, v interface{}) error {
	return decodeJSON(r, v, false)
}

func decodeJSON(r *http.Request, v interface{}, optional bool) error {
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return apperror.Validation("request body too large")
		case errors.Is(err, io.EOF):
			if optional {
				return nil
			}
			return apperror.Validation("request body is required")
		}
		return apperror.Validation("invalid JSON body").WithDetails(err.Error())
	}
	if dec.More() {
		return apperror.Validation("request body must contain a single JSON object")
	}
	return nil
}

// DecodeAndValidate 解析并校验请求体
func DecodeAndValidate(r *http.Request, v interface{}) error {
	if err := DecodeJSON(r, v); err != nil {
		return err
	}
	return ValidateStruct(v)
}

// DecodeOptionalAndValidate 同 DecodeAndValidate，但空请求体（含分块传输）视为零值
func DecodeOptionalAndValidate(r *http.Request, v interface{}) error {
	if err := decodeJSON(r, v, true); err != nil {
		return err
	}
	return ValidateStruct(v)
}
