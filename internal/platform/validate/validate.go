// Package validate wraps go-playground/validator with english translations,
// json/yaml tag names in messages and the custom tags used by configuration
// payloads (clock, weekday)
package validate

import (
	"reflect"
	"strings"
	"sync"
	"time"

	perr "slaledger/internal/platform/errors"
	pstrings "slaledger/internal/platform/strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// Svc holds a validator and its translator
type Svc struct {
	Validator  *validator.Validate
	Translator ut.Translator
}

// Issue is one failed field, named by its tag name, with a translated message
type Issue struct {
	Field   string
	Message string
}

var (
	once sync.Once
	svc  *Svc
)

// Get returns the process-wide validator, initializing on first use
func Get() *Svc {
	once.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(tagName)
		_ = en_translations.RegisterDefaultTranslations(v, trans)

		register(v, trans, "clock", "{0} must be a clock time HH:MM", isClock)
		register(v, trans, "weekday", "{0} must be an english weekday name", isWeekday)

		svc = &Svc{Validator: v, Translator: trans}
	})
	return svc
}

// tagName prefers json names, then yaml names, in messages
func tagName(fld reflect.StructField) string {
	for _, key := range []string{"json", "yaml"} {
		tag := fld.Tag.Get(key)
		if tag == "-" || tag == "" {
			continue
		}
		if idx := strings.Index(tag, ","); idx >= 0 {
			tag = tag[:idx]
		}
		if tag != "" {
			return tag
		}
	}
	return fld.Name
}

func register(v *validator.Validate, trans ut.Translator, tag, text string, fn validator.Func) {
	_ = v.RegisterValidation(tag, fn)
	_ = v.RegisterTranslation(tag, trans,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			msg, _ := t.T(tag, fe.Field())
			return msg
		},
	)
}

// Struct validates s and returns every failed field. A nil slice means valid
func Struct(s any) []Issue {
	err := Get().Validator.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []Issue{{Message: err.Error()}}
	}
	out := make([]Issue, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, Issue{Field: fe.Namespace(), Message: fe.Translate(Get().Translator)})
	}
	return out
}

// Err folds issues into a single validation *perr.Error carrying the first field
func Err(issues []Issue) error {
	if len(issues) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(issues))
	for _, is := range issues {
		msgs = append(msgs, is.Message)
	}
	return perr.WithField(perr.New(perr.ErrorCodeValidation, strings.Join(msgs, "; ")), issues[0].Field)
}

// ParseClock parses "HH:MM" into an offset from midnight. "24:00" is end of day
func ParseClock(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "24:00" || s == "24:00:00" {
		return 24 * time.Hour, true
	}
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, true
		}
	}
	return 0, false
}

// Weekday maps an english day name (any case) to time.Weekday
func Weekday(s string) (time.Weekday, bool) {
	d, ok := weekdays[pstrings.FoldKey(s)]
	return d, ok
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func isClock(fl validator.FieldLevel) bool {
	_, ok := ParseClock(fl.Field().String())
	return ok
}

func isWeekday(fl validator.FieldLevel) bool {
	_, ok := Weekday(fl.Field().String())
	return ok
}
