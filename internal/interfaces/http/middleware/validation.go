package middleware

import (
	"errors"
	"reflect"
	"strings"

	"github.com/adamj-ops/everyday-properties/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// SetupValidator makes binding errors name fields by their json or form tag.
func SetupValidator() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			}
			return name
		})
	}
}

// AbortWithBindingError renders a request binding failure as 400. Field
// level failures are listed; anything else is reported as malformed JSON.
func AbortWithBindingError(c *gin.Context, err error) {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		abortWithCode(c, dto.ErrCodeInvalidJSON, "Request body is not valid JSON")
		return
	}

	details := make([]dto.ValidationDetail, 0, len(fieldErrs))
	for _, e := range fieldErrs {
		details = append(details, dto.ValidationDetail{Field: e.Field(), Message: validationMessage(e)})
	}
	c.AbortWithStatusJSON(dto.GetHTTPStatus(dto.ErrCodeInvalidInput), dto.NewErrorResponse(dto.ErrorInfo{
		Code:      dto.ErrCodeInvalidInput,
		Message:   "Request validation failed",
		RequestID: GetRequestID(c),
		Details:   details,
	}))
}

// AbortWithError renders err in the API error format.
func AbortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	abortWithError(c, err)
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "min":
		if e.Type().Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Type().Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "oneof":
		return "Must be one of: " + e.Param()
	case "uuid":
		return "Invalid UUID format"
	default:
		return "Invalid value"
	}
}
