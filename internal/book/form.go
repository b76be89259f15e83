package book

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"collecthive/internal/isbn"

	"github.com/go-playground/form/v4"
	"github.com/go-playground/validator/v10"
)

var (
	decoder  *form.Decoder
	validate *validator.Validate
)

func init() {
	decoder = form.NewDecoder()

	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	validate.RegisterValidation("isbn", validateISBN)
}

func validateISBN(fl validator.FieldLevel) bool {
	return isbn.Valid(fl.Field().String())
}

// bookForm mirrors the fields a client may submit. Authors arrive either as
// authors[0], authors[1], ... or as repeated authors keys.
type bookForm struct {
	ISBN        string   `form:"isbn" validate:"omitempty,isbn"`
	Title       string   `form:"title"`
	Subtitle    string   `form:"subtitle"`
	Authors     []string `form:"authors"`
	Description string   `form:"description"`
	Edition     string   `form:"edition"`
	Cover       string   `form:"cover"`
	Status      string   `form:"status" validate:"oneof=in_stock wishlist"`
}

// Parse turns submitted form values into a book. The returned book is always
// populated with what could be read, so it can be echoed back next to a
// ValidationErrors. ID and CreatedAt are left for the store to assign.
func Parse(values url.Values) (Book, error) {
	var f bookForm
	errs := ValidationErrors{}

	if err := decoder.Decode(&f, values); err != nil {
		var decodeErrs form.DecodeErrors
		if !errors.As(err, &decodeErrs) {
			return New(""), err
		}
		for field := range decodeErrs {
			errs[strings.ToLower(field)] = "invalid value"
		}
	}
	// Only a missing status key defaults; a submitted empty value is rejected.
	if _, ok := values["status"]; !ok {
		f.Status = string(StatusInStock)
	}

	draft := Book{
		ISBN:        strings.TrimSpace(f.ISBN),
		Title:       f.Title,
		Subtitle:    stringPtr(f.Subtitle),
		Authors:     compact(f.Authors),
		Description: stringPtr(f.Description),
		Edition:     f.Edition,
		Cover:       stringPtr(strings.TrimSpace(f.Cover)),
		Status:      Status(f.Status),
	}
	draft.applyDefaults()
	draft.Status = Status(f.Status)

	if err := validate.Struct(f); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return draft, err
		}
		for _, fe := range fieldErrs {
			errs[fe.Field()] = fieldMessage(fe)
		}
	}
	if len(errs) > 0 {
		return draft, errs
	}

	if draft.ISBN != "" {
		canonical, err := isbn.Normalize(draft.ISBN)
		if err != nil {
			return draft, ValidationErrors{"isbn": err.Error()}
		}
		draft.ISBN = canonical
	}
	return draft, nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "isbn":
		return (&isbn.InvalidError{Raw: fmt.Sprint(fe.Value())}).Error()
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
