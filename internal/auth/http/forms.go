package http

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
)

var reUsername = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

var (
	formDecoder   = newFormDecoder()
	formValidator = newFormValidator()
)

func newFormDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.SetAliasTag("form")
	// csrf_token and the submit button ride along with every form.
	d.IgnoreUnknownKeys(true)
	return d
}

func newFormValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return reUsername.MatchString(fl.Field().String())
	})
	v.RegisterAlias("password", "required,min=8")
	return v
}

type loginForm struct {
	Username   string `form:"username" validate:"required"`
	Password   string `form:"password" validate:"required"`
	RememberMe bool   `form:"remember_me"`
	Next       string `form:"next"`
}

type registerForm struct {
	Username  string `form:"username" validate:"required,min=3,max=20,username"`
	Email     string `form:"email" validate:"required,email"`
	FirstName string `form:"first_name" validate:"required,min=2,max=50"`
	LastName  string `form:"last_name" validate:"required,min=2,max=50"`
	Password  string `form:"password" validate:"password"`
	Password2 string `form:"password2" validate:"required,eqfield=Password"`
}

type profileForm struct {
	Username  string `form:"username" validate:"required,min=3,max=20,username"`
	Email     string `form:"email" validate:"required,email"`
	FirstName string `form:"first_name" validate:"required,min=2,max=50"`
	LastName  string `form:"last_name" validate:"required,min=2,max=50"`
	Bio       string `form:"bio" validate:"max=500"`
	AvatarURL string `form:"avatar_url" validate:"max=200"`
}

type changePasswordForm struct {
	CurrentPassword string `form:"current_password" validate:"required"`
	NewPassword     string `form:"new_password" validate:"password"`
	NewPassword2    string `form:"new_password2" validate:"required,eqfield=NewPassword"`
}

// forgotPasswordForm accepts an email address or a username.
type forgotPasswordForm struct {
	Email string `form:"email" validate:"required,max=254"`
}

type resetPasswordForm struct {
	Password  string `form:"password" validate:"password"`
	Password2 string `form:"password2" validate:"required,eqfield=Password"`
}

// decodeForm parses the urlencoded body of r into dst and trims every text
// field except passwords.
func decodeForm(r *http.Request, dst any) error {
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("parse form: %w", err)
	}
	if err := formDecoder.Decode(dst, r.PostForm); err != nil {
		return fmt.Errorf("decode form: %w", err)
	}
	trimStrings(dst)
	return nil
}

func trimStrings(dst any) {
	v := reflect.ValueOf(dst).Elem()
	t := v.Type()
	for i := range t.NumField() {
		f := v.Field(i)
		if f.Kind() != reflect.String || strings.Contains(strings.ToLower(t.Field(i).Name), "password") {
			continue
		}
		f.SetString(strings.TrimSpace(f.String()))
	}
}

// validateForm returns field name to message for every failed rule, or nil.
func validateForm(form any) map[string]string {
	err := formValidator.Struct(form)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_form": "Invalid form submission."}
	}

	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, seen := out[fe.Field()]; !seen {
			out[fe.Field()] = formatFieldError(fe)
		}
	}
	return out
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.ActualTag() {
	case "required":
		return "This field is required."
	case "email":
		return "Invalid email address."
	case "username":
		return "Username can only contain letters, numbers, and underscores"
	case "eqfield":
		return "Passwords must match"
	case "min":
		if strings.Contains(fe.Field(), "password") {
			return "Password must be at least " + fe.Param() + " characters long"
		}
		return "Field must be at least " + fe.Param() + " characters long."
	case "max":
		return "Field cannot be longer than " + fe.Param() + " characters."
	default:
		return "Invalid value."
	}
}
