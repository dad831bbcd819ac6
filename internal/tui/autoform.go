package tui

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/charmbracelet/huh"

	"grimm.is/portgate/internal/validation"
)

// AutoForm builds a huh.Form from a struct pointer. String fields with a
// `tui:"..."` tag become inputs, or selects when the tag lists options.
//
// Tag syntax is semicolon separated key=value pairs:
//
//	tui:"title=Ports;desc=comma separated;validate=ports"
//	tui:"title=Mode;options=TCP:tcp,HTTP:http"
func AutoForm(v any) *huh.Form {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		panic("AutoForm requires a pointer to a struct")
	}

	el := val.Elem()
	t := el.Type()
	var fields []huh.Field

	for i := 0; i < el.NumField(); i++ {
		field := el.Field(i)
		tag := t.Field(i).Tag.Get("tui")
		if tag == "" {
			continue
		}

		props := parseTag(tag)
		title := props["title"]
		if title == "" {
			title = t.Field(i).Name
		}
		desc := props["desc"]

		switch field.Kind() {
		case reflect.String:
			ptr := field.Addr().Interface().(*string)

			if opts, ok := props["options"]; ok {
				fields = append(fields, huh.NewSelect[string]().
					Title(title).
					Description(desc).
					Options(parseOptions(opts)...).
					Value(ptr))
				continue
			}

			input := huh.NewInput().
				Title(title).
				Description(desc).
				Placeholder(props["placeholder"]).
				Value(ptr)
			if props["type"] == "password" {
				input.EchoMode(huh.EchoModePassword)
			}
			if fn, ok := Validators[props["validate"]]; ok {
				input.Validate(fn)
			}
			fields = append(fields, input)

		case reflect.Bool:
			fields = append(fields, huh.NewConfirm().
				Title(title).
				Description(desc).
				Value(field.Addr().Interface().(*bool)))
		}
	}

	return huh.NewForm(huh.NewGroup(fields...)).WithTheme(huh.ThemeBase16())
}

// parseTag parses "key=val;key2=val2".
func parseTag(tag string) map[string]string {
	res := make(map[string]string)
	for _, part := range strings.Split(tag, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 {
			res[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}
	return res
}

// parseOptions parses "Label:value,value2".
func parseOptions(s string) []huh.Option[string] {
	var out []huh.Option[string]
	for _, o := range strings.Split(s, ",") {
		label, value, ok := strings.Cut(o, ":")
		if !ok {
			label, value = o, o
		}
		out = append(out, huh.NewOption(strings.TrimSpace(label), strings.TrimSpace(value)))
	}
	return out
}

// Validators maps `validate=` names to input checks. The "keep" variants
// accept a blank value, meaning the stored value is kept.
var Validators = map[string]func(string) error{
	"required": func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("this field is required")
		}
		return nil
	},
	"addresses":   validation.ValidateAddresses,
	"ports":       validation.ValidatePorts,
	"healthcheck": validation.ValidateHealthCheckPort,
	"addresses_keep": func(s string) error {
		if strings.TrimSpace(s) == "" {
			return nil
		}
		return validation.ValidateAddresses(s)
	},
	"ports_keep": func(s string) error {
		if strings.TrimSpace(s) == "" {
			return nil
		}
		return validation.ValidatePorts(s)
	},
}
