package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sakif/insignia/internal/apperror"
)

// maxBodyBytes caps JSON request bodies. The largest legitimate body is a
// pair of ids.
const maxBodyBytes = 1 << 16

var validate = newValidator()

// newValidator reports fields by their JSON names, so errors say
// "guild_id" rather than "GuildID".
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
// Any failure comes back as an apperror validation error.
func decodeAndValidate(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "invalid JSON body")
	}

	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return apperror.ValidationFailed(fe.Field(), fe.Field()+" "+msgForTag(fe))
		}
		return apperror.ValidationFailed("body", err.Error())
	}
	return nil
}

func msgForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "number":
		return "must be numeric"
	default:
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
}

// parseSnowflake converts a numeric id taken from a body field or path
// segment. Numbers and numeric strings are both accepted in JSON bodies.
func parseSnowflake(field, raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		return 0, apperror.ValidationFailed(field, fmt.Sprintf("must provide numeric %s", field))
	}
	return id, nil
}

// pathSnowflake reads a chi URL parameter as a snowflake.
func pathSnowflake(r *http.Request, name string) (snowflake.ID, error) {
	return parseSnowflake(name, chi.URLParam(r, name))
}
