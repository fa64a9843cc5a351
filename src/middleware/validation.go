package middleware

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonFieldName)
	}
}

// jsonFieldName reports validation failures under the JSON name of a field
func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// BindJSON decodes and validates the request body. On failure it writes a 400 envelope
// and returns false.
func BindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		AbortWithBindError(c, err)
		return false
	}
	return true
}

// BindQuery decodes and validates query parameters like BindJSON
func BindQuery(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		AbortWithBindError(c, err)
		return false
	}
	return true
}

// AbortWithBindError translates binding and validator errors into the 400 envelope
func AbortWithBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
		AbortWithFields(c, http.StatusBadRequest, "Request validation failed", fields)
		return
	}
	if errors.Is(err, io.EOF) {
		Abort(c, http.StatusBadRequest, CodeValidation, "Request body is required")
		return
	}
	Abort(c, http.StatusBadRequest, CodeValidation, "Malformed request: "+err.Error())
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "uuid", "uuid4":
		return "must be a UUID"
	case "ip", "cidr", "ip|cidr":
		return "must be an IP address or CIDR range"
	default:
		return fmt.Sprintf("failed the %q rule", fe.Tag())
	}
}
