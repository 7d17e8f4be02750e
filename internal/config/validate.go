package config

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var validate *validator.Validate
var translator ut.Translator

func init() {
	validate = validator.New()
	var ok bool
	translator, ok = ut.New(en.New(), en.New()).GetTranslator("en")
	if !ok {
		panic("config: failed to get 'en' translator")
	}

	if err := en_translations.RegisterDefaultTranslations(validate, translator); err != nil {
		panic(err)
	}

	// Report fields by their config-file key rather than the Go name.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// validateStruct returns one "key: message" issue per failed tag.
func validateStruct(val any) []string {
	err := validate.Struct(val)
	if err == nil {
		return nil
	}

	var verrors validator.ValidationErrors
	if !errors.As(err, &verrors) {
		return []string{err.Error()}
	}

	issues := make([]string, 0, len(verrors))
	for _, verror := range verrors {
		issues = append(issues, fieldPath(verror)+": "+customErrForTag(verror.Tag(), verror))
	}
	return issues
}

// fieldPath drops the root struct name from the namespace, so
// "Config.tracing.sample_rate" becomes "tracing.sample_rate".
func fieldPath(verror validator.FieldError) string {
	ns := verror.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func customErrForTag(tag string, verror validator.FieldError) string {
	switch tag {
	case "required":
		return "this field is required"
	case "min":
		if verror.Kind() == reflect.Slice {
			return "at least " + verror.Param() + " entry is required"
		}
		return verror.Translate(translator)
	default:
		return verror.Translate(translator)
	}
}
