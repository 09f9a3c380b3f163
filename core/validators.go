package core

import (
	"reflect"
	"regexp"
	"strconv"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

const ScoreAbsent = "-"

// plain decimal scores only: no sign, exponent or hex form
var scorePattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

var (
	// custom validation tags & texts
	CAScoreTag  = "cascore"
	caScoreText = "{0} must be between 1-100"

	ExamScoreTag  = "examscore"
	examScoreText = "{0} must be a number between 0-100"

	requiredTag        = "required"
	requiredWithTag    = "required_with"
	requiredWithoutTag = "required_without"
	requiredText       = "this field is required"
)

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(CAScoreTag, caScoreValidation)
	RegisterCustomTranslation(validate, translator, CAScoreTag, caScoreText)

	_ = validate.RegisterValidation(ExamScoreTag, examScoreValidation)
	RegisterCustomTranslation(validate, translator, ExamScoreTag, examScoreText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithoutTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// IsScoreAbsent reports whether a score string holds no value.
func IsScoreAbsent(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == ScoreAbsent
}

// ValidCAScore accepts absent scores or numbers within [1, 100].
func ValidCAScore(s string) bool {
	return scoreInRange(s, 1, 100)
}

// ValidExamScore accepts absent scores or numbers within [0, 100].
func ValidExamScore(s string) bool {
	return scoreInRange(s, 0, 100)
}

func scoreInRange(s string, lo, hi float64) bool {
	if IsScoreAbsent(s) {
		return true
	}
	s = strings.TrimSpace(s)
	if !scorePattern.MatchString(s) {
		return false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return false
	}
	return n >= lo && n <= hi
}

// MapKeyFromNamespace extracts the map key of a failed field namespace, e.g. "Reg.CAScores[ENG].Year1" -> "ENG".
func MapKeyFromNamespace(ns string) string {
	start := strings.LastIndex(ns, "[")
	end := strings.LastIndex(ns, "]")
	if start < 0 || end <= start {
		return ""
	}
	return ns[start+1 : end]
}

// Custom Global Validators

func caScoreValidation(fl validator.FieldLevel) bool {
	return ValidCAScore(fl.Field().String())
}

func examScoreValidation(fl validator.FieldLevel) bool {
	return ValidExamScore(fl.Field().String())
}
