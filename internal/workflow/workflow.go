// Package workflow defines reusable workflow documents: the typed input
// surface a pipeline exposes to callers and the test recipe its jobs execute.
// A definition carries no run state; it is invoked with concrete input values.
package workflow

// Input type names accepted in a call declaration.
const (
	TypeString  = "string"
	TypeBoolean = "boolean"
	TypeNumber  = "number"
)

// Canonical input names every runnable workflow declares.
const (
	InputBuildEnvironment = "build-environment"
	InputSyncTag          = "sync-tag"
	InputPythonVersion    = "python-version"
	InputTestMatrix       = "test-matrix"
)

// DefaultPythonVersion is applied when python-version resolves to empty.
const DefaultPythonVersion = "3.8"

// InputSpec declares one typed input on the workflow call surface.
type InputSpec struct {
	Type        string `json:"type" yaml:"type"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Default     string `json:"default,omitempty" yaml:"default,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Call is the input declaration block, keyed by input name.
type Call struct {
	Inputs map[string]InputSpec `json:"inputs" yaml:"inputs"`
}

// Test is the execution recipe each matrix job follows.
type Test struct {
	Repo         string            `json:"repo" yaml:"repo"`                                     // project git URL
	Script       []string          `json:"script" yaml:"script"`                                 // test runner argv, run inside the checkout
	Requirements string            `json:"requirements,omitempty" yaml:"requirements,omitempty"` // pin manifest path inside the repo
	PackageGlob  string            `json:"package-glob" yaml:"package-glob"`                     // built package inside the build artifact
	ImportName   string            `json:"import-name" yaml:"import-name"`                       // module name for the smoke import
	OutputDir    string            `json:"output-dir,omitempty" yaml:"output-dir,omitempty"`     // test outputs to upload
	MinFreeGB    int               `json:"min-free-gb,omitempty" yaml:"min-free-gb,omitempty"`   // disk check threshold
	Env          map[string]string `json:"env,omitempty" yaml:"env,omitempty"`                   // extra env for the runner
}

// Definition is one reusable workflow document.
type Definition struct {
	Name string `json:"name" yaml:"name"`
	Call Call   `json:"call" yaml:"call"`
	Test Test   `json:"test" yaml:"test"`
}

// Inputs holds the resolved values of one invocation. Values carries every
// declared input; the canonical four are mirrored in named fields.
type Inputs struct {
	BuildEnvironment string
	SyncTag          string
	PythonVersion    string
	TestMatrix       string
	Values           map[string]string
}
