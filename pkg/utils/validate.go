package utils

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate 校验结构体上的 validate 标签。
func Validate(v any) error {
	return validate.Struct(v)
}

// DecodeJSON 解析请求体并校验。任何失败都返回 error，由调用方决定提示语。
func DecodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return Validate(v)
}
