package workflow

import (
	"fmt"
	"sort"
	"strconv"
)

// Validate checks that the definition declares a well-formed call surface and a
// runnable test recipe. The canonical four inputs must be declared as strings
// with their documented required/optional contract.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("workflow name is empty")
	}
	for _, name := range sortedInputNames(d) {
		in := d.Call.Inputs[name]
		switch in.Type {
		case TypeString, TypeBoolean, TypeNumber:
		default:
			return fmt.Errorf("input %q: unknown type %q", name, in.Type)
		}
		if in.Default != "" {
			if err := checkValue(in.Type, in.Default); err != nil {
				return fmt.Errorf("input %q default: %w", name, err)
			}
		}
		if in.Required && in.Default != "" {
			return fmt.Errorf("input %q: required input cannot carry a default", name)
		}
	}
	for _, name := range []string{InputBuildEnvironment, InputSyncTag, InputPythonVersion, InputTestMatrix} {
		in, ok := d.Call.Inputs[name]
		if !ok {
			return fmt.Errorf("input %q not declared", name)
		}
		if in.Type != TypeString {
			return fmt.Errorf("input %q must be %s, got %q", name, TypeString, in.Type)
		}
	}
	if !d.Call.Inputs[InputBuildEnvironment].Required {
		return fmt.Errorf("input %q must be required", InputBuildEnvironment)
	}
	if !d.Call.Inputs[InputTestMatrix].Required {
		return fmt.Errorf("input %q must be required", InputTestMatrix)
	}
	if d.Call.Inputs[InputSyncTag].Required {
		return fmt.Errorf("input %q must be optional", InputSyncTag)
	}
	if d.Call.Inputs[InputPythonVersion].Required {
		return fmt.Errorf("input %q must be optional", InputPythonVersion)
	}
	if d.Test.Repo == "" {
		return fmt.Errorf("test recipe: repo is empty")
	}
	if len(d.Test.Script) == 0 {
		return fmt.Errorf("test recipe: script is empty")
	}
	if d.Test.PackageGlob == "" {
		return fmt.Errorf("test recipe: package-glob is empty")
	}
	if d.Test.ImportName == "" {
		return fmt.Errorf("test recipe: import-name is empty")
	}
	return nil
}

// Resolve applies defaults and produces the effective input values for one
// invocation. Unknown keys are rejected, required inputs must be non-empty,
// and every value must match its declared type. The definition is not mutated.
func (d *Definition) Resolve(provided map[string]string) (Inputs, error) {
	for name := range provided {
		if _, ok := d.Call.Inputs[name]; !ok {
			return Inputs{}, fmt.Errorf("unknown input %q", name)
		}
	}
	values := make(map[string]string, len(d.Call.Inputs))
	for _, name := range sortedInputNames(d) {
		in := d.Call.Inputs[name]
		v, ok := provided[name]
		if !ok {
			v = in.Default
		}
		if in.Required && v == "" {
			return Inputs{}, fmt.Errorf("required input %q not provided", name)
		}
		if v != "" {
			if err := checkValue(in.Type, v); err != nil {
				return Inputs{}, fmt.Errorf("input %q: %w", name, err)
			}
		}
		values[name] = v
	}
	if values[InputPythonVersion] == "" {
		values[InputPythonVersion] = DefaultPythonVersion
	}
	return Inputs{
		BuildEnvironment: values[InputBuildEnvironment],
		SyncTag:          values[InputSyncTag],
		PythonVersion:    values[InputPythonVersion],
		TestMatrix:       values[InputTestMatrix],
		Values:           values,
	}, nil
}

func sortedInputNames(d *Definition) []string {
	names := make([]string, 0, len(d.Call.Inputs))
	for name := range d.Call.Inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func checkValue(typ, v string) error {
	switch typ {
	case TypeBoolean:
		if _, err := strconv.ParseBool(v); err != nil {
			return fmt.Errorf("not a boolean: %q", v)
		}
	case TypeNumber:
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("not a number: %q", v)
		}
	}
	return nil
}
