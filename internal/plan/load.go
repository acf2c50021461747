package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/MalakaSupun/startmate/internal/registry"
)

// Error codes for plan loading.
const (
	ErrCodeGeneric     = "P001" // Generic/unknown error
	ErrCodeNotFound    = "P002" // Path not found
	ErrCodeNoFiles     = "P003" // No CUE files found
	ErrCodeLoadFailed  = "P004" // CUE load failed
	ErrCodeBuildFailed = "P005" // CUE build failed
	ErrCodeBadField    = "P006" // Field missing or of the wrong type
)

// LoadError is a plan loading failure with CUE position where available.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load compiles the plan from a directory of CUE files.
//
// The directory must contain at least one .cue file declaring a top-level
// "plan" struct:
//
//	plan: {
//		actions: {
//			welcome_email: {executor: "email"}
//			slack_notify: {executor: "chat", depends_on: ["welcome_email"]}
//		}
//		settings: {max_attempts: 3, backoff_base: "500ms"}
//		feed: {hire_id_column: "email", start_date_column: "start_date"}
//	}
func Load(dir string) (*Plan, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("plan directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing plan directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	cueFiles, err := findCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	// Package "_" loads standalone CUE files without a package clause,
	// which is how plan directories are written (see doc comment above).
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir, Package: "_"})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	planVal := value.LookupPath(cue.ParsePath("plan"))
	if !planVal.Exists() {
		return nil, &LoadError{Code: ErrCodeBadField, Message: "no top-level \"plan\" struct found"}
	}

	return Compile(planVal)
}

// Compile parses a CUE plan value into a Plan.
func Compile(v cue.Value) (*Plan, error) {
	if err := v.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: err.Error(), Pos: v.Pos()}
	}

	p := &Plan{
		Settings: Settings{
			MaxAttempts:     DefaultMaxAttempts,
			Workers:         DefaultWorkers,
			BackoffBase:     DefaultBackoffBase,
			BackoffCap:      DefaultBackoffCap,
			ExecutorTimeout: DefaultExecutorTimeout,
			PollInterval:    DefaultPollInterval,
		},
		Feed: Feed{StartWindowDays: DefaultStartWindowDays},
	}

	if err := compileActions(v, p); err != nil {
		return nil, err
	}
	if err := compileSettings(v, p); err != nil {
		return nil, err
	}
	if err := compileFeed(v, p); err != nil {
		return nil, err
	}

	if err := p.validate(); err != nil {
		return nil, &LoadError{Code: ErrCodeBadField, Message: err.Error(), Pos: v.Pos()}
	}
	return p, nil
}

func compileActions(v cue.Value, p *Plan) error {
	actionsVal := v.LookupPath(cue.ParsePath("actions"))
	if !actionsVal.Exists() {
		return &LoadError{Code: ErrCodeBadField, Message: "plan.actions is required", Pos: v.Pos()}
	}

	iter, err := actionsVal.Fields()
	if err != nil {
		return &LoadError{Code: ErrCodeBadField, Message: fmt.Sprintf("iterating actions: %v", err), Pos: actionsVal.Pos()}
	}

	for iter.Next() {
		actionVal := iter.Value()
		def, err := compileAction(iter.Label(), actionVal)
		if err != nil {
			return err
		}
		p.Actions = append(p.Actions, def)
	}
	return nil
}

func compileAction(id string, v cue.Value) (def registry.ActionDefinition, err error) {
	def.ID = id

	execVal := v.LookupPath(cue.ParsePath("executor"))
	if !execVal.Exists() {
		return def, &LoadError{Code: ErrCodeBadField, Message: fmt.Sprintf("action %q: executor is required", id), Pos: v.Pos()}
	}
	def.Executor, err = execVal.String()
	if err != nil {
		return def, &LoadError{Code: ErrCodeBadField, Message: fmt.Sprintf("action %q: executor: %v", id, err), Pos: execVal.Pos()}
	}

	depsVal := v.LookupPath(cue.ParsePath("depends_on"))
	if depsVal.Exists() {
		if err := depsVal.Decode(&def.DependsOn); err != nil {
			return def, &LoadError{Code: ErrCodeBadField, Message: fmt.Sprintf("action %q: depends_on: %v", id, err), Pos: depsVal.Pos()}
		}
	}
	return def, nil
}

func compileSettings(v cue.Value, p *Plan) error {
	sv := v.LookupPath(cue.ParsePath("settings"))
	if !sv.Exists() {
		return nil
	}

	var err error
	if p.Settings.MaxAttempts, err = intField(sv, "max_attempts", p.Settings.MaxAttempts); err != nil {
		return err
	}
	if p.Settings.Workers, err = intField(sv, "workers", p.Settings.Workers); err != nil {
		return err
	}
	if p.Settings.BackoffBase, err = durationField(sv, "backoff_base", p.Settings.BackoffBase); err != nil {
		return err
	}
	if p.Settings.BackoffCap, err = durationField(sv, "backoff_cap", p.Settings.BackoffCap); err != nil {
		return err
	}
	if p.Settings.ExecutorTimeout, err = durationField(sv, "executor_timeout", p.Settings.ExecutorTimeout); err != nil {
		return err
	}
	if p.Settings.PollInterval, err = durationField(sv, "poll_interval", p.Settings.PollInterval); err != nil {
		return err
	}
	return nil
}

func compileFeed(v cue.Value, p *Plan) error {
	fv := v.LookupPath(cue.ParsePath("feed"))
	if !fv.Exists() {
		return &LoadError{Code: ErrCodeBadField, Message: "plan.feed is required", Pos: v.Pos()}
	}

	var err error
	if p.Feed.HireIDColumn, err = stringField(fv, "hire_id_column", ""); err != nil {
		return err
	}
	if p.Feed.StartDateColumn, err = stringField(fv, "start_date_column", ""); err != nil {
		return err
	}
	if p.Feed.StartWindowDays, err = intField(fv, "start_window_days", p.Feed.StartWindowDays); err != nil {
		return err
	}
	return nil
}

// stringField reads an optional string field, returning def when absent.
func stringField(v cue.Value, path, def string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return def, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &LoadError{Code: ErrCodeBadField, Message: fmt.Sprintf("%s: %v", path, err), Pos: fv.Pos()}
	}
	return s, nil
}

// intField reads an optional integer field, returning def when absent.
func intField(v cue.Value, path string, def int) (int, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return def, nil
	}
	n, err := fv.Int64()
	if err != nil {
		return 0, &LoadError{Code: ErrCodeBadField, Message: fmt.Sprintf("%s: %v", path, err), Pos: fv.Pos()}
	}
	return int(n), nil
}

// durationField reads an optional duration field given as a Go duration
// string ("500ms", "30s"), returning def when absent.
func durationField(v cue.Value, path string, def time.Duration) (time.Duration, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return def, nil
	}
	s, err := fv.String()
	if err != nil {
		return 0, &LoadError{Code: ErrCodeBadField, Message: fmt.Sprintf("%s: %v", path, err), Pos: fv.Pos()}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &LoadError{Code: ErrCodeBadField, Message: fmt.Sprintf("%s: %v", path, err), Pos: fv.Pos()}
	}
	return d, nil
}

// findCUEFiles walks the directory and returns all .cue file paths.
func findCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
