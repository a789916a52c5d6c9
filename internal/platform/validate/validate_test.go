package validate

import (
	"testing"

	perr "rhat/internal/platform/errors"
	kit "rhat/internal/platform/testkit"
)

type payload struct {
	Name    string `yaml:"name" validate:"required,min=2"`
	Workers int    `yaml:"workers" validate:"min=1"`
	Note    string `json:"note" validate:"omitempty,max=3"`
}

func TestStruct_OK(t *testing.T) {
	if err := Struct(payload{Name: "ok", Workers: 1}); err != nil {
		t.Fatalf("Struct: %v", err)
	}
}

func TestStruct_MessagesUseTagNames(t *testing.T) {
	cases := []struct {
		in   payload
		want string
	}{
		{payload{Name: "x", Workers: 1}, "name must be at least 2"},
		{payload{Name: "ok", Workers: 0}, "workers must be at least 1"},
		{payload{Name: "ok", Workers: 1, Note: "long"}, "note must be at most 3"},
	}
	for _, c := range cases {
		err := Struct(c.in)
		kit.MustCode(t, err, perr.ErrorCodeInvalidArgument)
		kit.MustContain(t, err.Error(), c.want)
	}
}

func TestStruct_FieldAttached(t *testing.T) {
	err := Struct(payload{Workers: 1})
	e, ok := perr.As(err)
	if !ok {
		t.Fatalf("expected project error, got %T", err)
	}
	kit.MustContain(t, e.Field(), "name")
}

func TestRegisterValidation(t *testing.T) {
	type even struct {
		N int `yaml:"n" validate:"even"`
	}
	err := RegisterValidation("even", "{0} must be even", func(fl FieldLevel) bool {
		return fl.Field().Int()%2 == 0
	})
	if err != nil {
		t.Fatalf("RegisterValidation: %v", err)
	}
	if err := Struct(even{N: 2}); err != nil {
		t.Fatalf("Struct(even 2): %v", err)
	}
	err = Struct(even{N: 3})
	kit.MustContain(t, err.Error(), "n must be even")
}
