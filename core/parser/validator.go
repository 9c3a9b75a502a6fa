package parser

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-version"
	"gopkg.in/yaml.v3"

	"github.com/yetii/yetii/core/config"
	"github.com/yetii/yetii/core/drivers"
	"github.com/yetii/yetii/core/logger"
	"github.com/yetii/yetii/core/runtime/binder"
	"github.com/yetii/yetii/core/runtime/utils"
)

// MaxQueryTimeoutSeconds bounds queries[].timeout_seconds.
const MaxQueryTimeoutSeconds = 3600

// inventoryTimeout bounds the host driver probe run for driver checks.
const inventoryTimeout = 10 * time.Second

var (
	// log is the logger instance for the validator package
	log = logger.New("parser")

	// Name pattern: must start with a letter, followed by letters, numbers, hyphens, and underscores
	namePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

	rootFields       = fieldSet("version", "name", "description", "connections", "queries", "settings")
	connectionFields = fieldSet("id", "backend_kind", "dsn_or_address", "credential_ref", "driver", "protocol", "options")
	queryFields      = fieldSet("name", "description", "connection_id", "template", "parameters", "enabled", "timeout_seconds")
	parameterFields  = fieldSet("name", "type", "value", "nullable")

	settingsValidator = newSettingsValidator()
)

// Validate checks doc and builds the configuration model from it. Every problem is
// collected; the returned Config is nil unless the result is valid. Driver and
// protocol availability is checked against reg when it is non-nil.
//
// Validate does not modify doc, so validating the same document twice yields the
// same result.
func Validate(doc *Document, reg drivers.Registry) (*config.Config, ValidationResult) {
	if doc == nil {
		doc = &Document{}
	}
	log.Debugf("Starting validation")

	v := &docValidator{doc: doc, reg: reg}
	cfg := v.validate()

	result := ValidationResult{Errors: v.errs}
	if !result.Valid() {
		log.Debugf("Validation failed with %d error(s)", len(v.errs))
		return nil, result
	}
	log.Debugf("Validation completed successfully")
	return cfg, result
}

type docValidator struct {
	doc       *Document
	reg       drivers.Registry
	inventory *drivers.Inventory
	errs      []ValidationError
}

func (v *docValidator) addf(path, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{
		Path:    path,
		Message: fmt.Sprintf(format, args...),
		Line:    v.doc.Line(path),
	})
}

func (v *docValidator) validate() *config.Config {
	root, ok := v.doc.Root.(map[string]any)
	if !ok {
		if v.doc.Root == nil {
			v.addf("", "document is empty")
		} else {
			v.addf("", "document root must be a mapping")
		}
		return nil
	}

	v.unknownFields("", root, rootFields)

	cfg := &config.Config{}
	cfg.Version = v.checkVersion(root)
	cfg.Name = v.requiredString(root, "", "name")
	cfg.Description = v.optionalString(root, "", "description")
	cfg.Connections = v.connections(root)

	declared := make([]string, 0, len(cfg.Connections))
	for _, c := range cfg.Connections {
		if c.ID != "" {
			declared = append(declared, c.ID)
		}
	}
	cfg.Queries = v.queries(root, declared)
	cfg.Settings = v.settings(root)

	return cfg
}

func (v *docValidator) checkVersion(root map[string]any) string {
	raw, present := root["version"]
	if !present || raw == nil {
		v.addf("version", "is required")
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		v.addf("version", "must be a quoted string such as \"1.0.0\"")
		return ""
	}
	if _, err := version.NewSemver(s); err != nil || !hasThreeComponents(s) {
		v.addf("version", "'%s' is not a valid semantic version (MAJOR.MINOR.PATCH)", s)
	}
	return s
}

// hasThreeComponents reports whether the release part of s is MAJOR.MINOR.PATCH.
// go-version pads "1" and "1.0" to three segments, so the text is checked instead.
func hasThreeComponents(s string) bool {
	core := strings.TrimPrefix(s, "v")
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	return strings.Count(core, ".") == 2
}

// ---------------------------------------------------------------------------
// Connections
// ---------------------------------------------------------------------------

func (v *docValidator) connections(root map[string]any) []*config.Connection {
	items := v.requiredList(root, "connections")
	seen := make(map[string]string)

	var result []*config.Connection
	for i, item := range items {
		path := indexPath("connections", i)
		m, ok := item.(map[string]any)
		if !ok {
			v.addf(path, "must be a mapping")
			continue
		}
		v.unknownFields(path, m, connectionFields)

		conn := &config.Connection{Line: v.doc.Line(path)}
		conn.ID = v.uniqueName(m, path, "id", seen)

		if kind := v.requiredString(m, path, "backend_kind"); kind != "" {
			parsed, err := config.ParseBackendKind(kind)
			if err != nil {
				v.addf(path+".backend_kind", "'%s' is invalid. Must be one of: %s", kind, strings.Join(config.GetValidBackendKinds(), ", "))
			}
			conn.BackendKind = parsed
		}

		conn.DSN = v.envString(m, path, "dsn_or_address", true)
		conn.CredentialRef = v.envString(m, path, "credential_ref", false)
		conn.Options = v.options(m, path)

		driver := v.optionalString(m, path, "driver")
		protocol := v.optionalString(m, path, "protocol")

		switch conn.BackendKind {
		case config.BackendGenericDriver:
			if protocol != "" {
				v.addf(path+".protocol", "only applies to direct-wire connections")
			}
			if driver == "" {
				driver = config.InferDriver(conn.DSN)
			}
			if driver != "" {
				v.requireInstalled(path+".driver", drivers.KindSQL, "driver", driver)
			}
			conn.Driver = driver
		case config.BackendDirectWire:
			if driver != "" {
				v.addf(path+".driver", "only applies to generic-driver connections")
			}
			if protocol == "" {
				protocol = config.InferProtocol(conn.DSN)
			}
			if protocol != "" {
				v.requireInstalled(path+".protocol", drivers.KindWire, "protocol", protocol)
			}
			conn.Protocol = protocol
		}

		result = append(result, conn)
	}
	return result
}

func (v *docValidator) options(m map[string]any, path string) map[string]string {
	raw, present := m["options"]
	if !present || raw == nil {
		return nil
	}
	opath := path + ".options"
	om, ok := raw.(map[string]any)
	if !ok {
		v.addf(opath, "must be a mapping")
		return nil
	}

	out := make(map[string]string, len(om))
	for _, key := range sortedKeys(om) {
		switch value := om[key].(type) {
		case map[string]any, []any:
			v.addf(childPath(opath, key), "must be a scalar value")
		case nil:
			out[key] = ""
		default:
			substituted, err := utils.SubstituteEnvVars(fmt.Sprintf("%v", value))
			if err != nil {
				v.addf(childPath(opath, key), "%v", err)
				continue
			}
			out[key] = substituted
		}
	}
	return out
}

func (v *docValidator) requireInstalled(path string, kind drivers.Kind, what, name string) {
	if v.reg == nil {
		return
	}
	if v.inventory == nil {
		ctx, cancel := context.WithTimeout(context.Background(), inventoryTimeout)
		inv := v.reg.ListInstalled(ctx)
		cancel()
		for _, w := range inv.Warnings {
			log.Warnf("Driver inventory: %s", w)
		}
		v.inventory = &inv
	}
	if v.inventory.Has(kind, name) {
		return
	}
	if available := v.inventory.Names(kind); len(available) > 0 {
		v.addf(path, "%s '%s' is not installed. Installed: %s", what, name, strings.Join(available, ", "))
		return
	}
	v.addf(path, "%s '%s' is not installed", what, name)
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

func (v *docValidator) queries(root map[string]any, connections []string) []*config.QueryDefinition {
	items := v.requiredList(root, "queries")
	seen := make(map[string]string)

	declared := make(map[string]bool, len(connections))
	for _, id := range connections {
		declared[id] = true
	}

	var result []*config.QueryDefinition
	for i, item := range items {
		path := indexPath("queries", i)
		m, ok := item.(map[string]any)
		if !ok {
			v.addf(path, "must be a mapping")
			continue
		}
		v.unknownFields(path, m, queryFields)

		q := &config.QueryDefinition{Index: i, Line: v.doc.Line(path)}
		q.Name = v.uniqueName(m, path, "name", seen)
		q.Description = v.optionalString(m, path, "description")

		q.ConnectionID = v.requiredString(m, path, "connection_id")
		if q.ConnectionID != "" && !declared[q.ConnectionID] {
			if len(connections) == 0 {
				v.addf(path+".connection_id", "'%s' does not reference a declared connection", q.ConnectionID)
			} else {
				v.addf(path+".connection_id", "'%s' does not reference a declared connection. Must be one of: %s",
					q.ConnectionID, strings.Join(connections, ", "))
			}
		}

		q.Template = v.requiredString(m, path, "template")
		q.Enabled = v.optionalBool(m, path, "enabled", true)

		if seconds, ok := v.optionalInt(m, path, "timeout_seconds"); ok {
			if seconds < 1 || seconds > MaxQueryTimeoutSeconds {
				v.addf(path+".timeout_seconds", "must be between 1 and %d (got %d)", MaxQueryTimeoutSeconds, seconds)
			} else {
				q.Timeout = time.Duration(seconds) * time.Second
			}
		}

		q.Parameters = v.parameters(m, path)
		v.placeholders(path, q.Template, q.Parameters)

		result = append(result, q)
	}
	return result
}

func (v *docValidator) parameters(m map[string]any, path string) []config.Parameter {
	raw, present := m["parameters"]
	if !present || raw == nil {
		return nil
	}
	ppath := path + ".parameters"
	items, ok := raw.([]any)
	if !ok {
		v.addf(ppath, "must be a list")
		return nil
	}

	seen := make(map[string]string)
	// Positions matter for $N placeholders, so malformed entries keep their slot.
	result := make([]config.Parameter, 0, len(items))
	for k, item := range items {
		path := indexPath(ppath, k)
		var p config.Parameter

		pm, ok := item.(map[string]any)
		if !ok {
			v.addf(path, "must be a mapping")
			result = append(result, p)
			continue
		}
		v.unknownFields(path, pm, parameterFields)

		p.Name = v.uniqueName(pm, path, "name", seen)
		if typ := v.requiredString(pm, path, "type"); typ != "" {
			if config.IsValidParamType(typ) {
				p.Type = config.ParamType(typ)
			} else {
				v.addf(path+".type", "'%s' must be one of: %s", typ, strings.Join(config.GetValidParamTypes(), ", "))
			}
		}
		p.Nullable = v.optionalBool(pm, path, "nullable", false)

		value, has := pm["value"]
		switch {
		case has && value != nil:
			if s, ok := value.(string); ok {
				substituted, err := utils.SubstituteEnvVars(s)
				if err != nil {
					v.addf(path+".value", "%v", err)
					break
				}
				value = substituted
			}
			p.Value, p.HasValue = value, true
			if p.Type != "" {
				if _, err := binder.Coerce(value, p.Type); err != nil {
					v.addf(path+".value", "%v", err)
				}
			}
		case !p.Nullable:
			v.addf(path+".value", "is required unless nullable is true")
		}

		result = append(result, p)
	}
	return result
}

// placeholders checks that template placeholders and declared parameters correspond
// exactly.
func (v *docValidator) placeholders(path, template string, params []config.Parameter) {
	if template == "" {
		return
	}
	tpath := path + ".template"
	refs, syntax := binder.Scan(template)

	unused := func(k int, p config.Parameter, hint string) {
		if p.Name == "" {
			return
		}
		v.addf(indexPath(path+".parameters", k), "parameter '%s' is not referenced by the template%s", p.Name, hint)
	}

	switch syntax {
	case binder.SyntaxMixed:
		v.addf(tpath, "mixes named ({{ params.NAME }}) and positional ($N) placeholders; use one style")

	case binder.SyntaxNamed:
		declared := make(map[string]bool, len(params))
		for _, p := range params {
			declared[p.Name] = true
		}
		used := make(map[string]bool)
		for _, name := range binder.ReferencedNames(refs) {
			used[name] = true
			if !declared[name] {
				v.addf(tpath, "references '{{ params.%s }}' but parameters does not declare '%s'", name, name)
			}
		}
		for k, p := range params {
			if !used[p.Name] {
				unused(k, p, "")
			}
		}

	case binder.SyntaxPositional:
		used := make(map[int]bool)
		for _, pos := range binder.ReferencedPositions(refs) {
			used[pos] = true
			if pos < 1 || pos > len(params) {
				v.addf(tpath, "placeholder $%d is out of range (%d parameter(s) declared)", pos, len(params))
			}
		}
		for k, p := range params {
			if !used[k+1] {
				unused(k, p, fmt.Sprintf(" (expected $%d)", k+1))
			}
		}

	default:
		for k, p := range params {
			unused(k, p, "")
		}
	}
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

func (v *docValidator) settings(root map[string]any) config.Settings {
	s := config.DefaultSettings()

	raw, present := root["settings"]
	if !present || raw == nil {
		return s
	}
	m, ok := raw.(map[string]any)
	if !ok {
		v.addf("settings", "must be a mapping")
		return s
	}
	v.unknownStructFields("settings", m, reflect.TypeOf(s))

	if node, ok := v.doc.Node("settings"); ok {
		if err := node.Decode(&s); err != nil {
			var typeErr *yaml.TypeError
			if stderrors.As(err, &typeErr) {
				for _, msg := range typeErr.Errors {
					v.addf("settings", "%s", msg)
				}
			} else {
				v.addf("settings", "%v", err)
			}
		}
	}

	if err := settingsValidator.Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if stderrors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				v.addf(settingsPath(fe), "%s", describeFieldError(fe))
			}
		} else {
			v.addf("settings", "%v", err)
		}
	}
	return s
}

func newSettingsValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterTagNameFunc(yamlName)
	return validate
}

func yamlName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// settingsPath converts "Settings.pool.max_connections" into a document path.
func settingsPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return "settings" + ns[idx:]
	}
	return "settings"
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("must be at least %s (got %v)", fe.Param(), fe.Value())
	case "max":
		return fmt.Sprintf("must be at most %s (got %v)", fe.Param(), fe.Value())
	case "oneof":
		return fmt.Sprintf("'%v' is invalid. Must be one of: %s", fe.Value(), strings.Join(strings.Fields(fe.Param()), ", "))
	case "url":
		return fmt.Sprintf("'%v' is not a valid URL", fe.Value())
	}
	return fmt.Sprintf("failed '%s' validation", fe.Tag())
}

func (v *docValidator) unknownStructFields(path string, m map[string]any, t reflect.Type) {
	fields := make(map[string]reflect.Type, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if name := yamlName(t.Field(i)); name != "" {
			fields[name] = t.Field(i).Type
		}
	}
	for _, key := range sortedKeys(m) {
		ft, ok := fields[key]
		if !ok {
			v.addf(childPath(path, key), "unknown field '%s'", key)
			continue
		}
		if sub, ok := m[key].(map[string]any); ok && ft.Kind() == reflect.Struct {
			v.unknownStructFields(childPath(path, key), sub, ft)
		}
	}
}

// ---------------------------------------------------------------------------
// Field helpers
// ---------------------------------------------------------------------------

func fieldSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func (v *docValidator) unknownFields(path string, m map[string]any, allowed map[string]bool) {
	for _, key := range sortedKeys(m) {
		if !allowed[key] {
			v.addf(childPath(path, key), "unknown field '%s'", key)
		}
	}
}

func (v *docValidator) requiredList(m map[string]any, key string) []any {
	raw, present := m[key]
	if !present || raw == nil {
		v.addf(key, "is required and should have at least one entry")
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		v.addf(key, "must be a list")
		return nil
	}
	if len(items) == 0 {
		v.addf(key, "is required and should have at least one entry")
	}
	return items
}

func (v *docValidator) uniqueName(m map[string]any, path, key string, seen map[string]string) string {
	name := v.requiredString(m, path, key)
	if name == "" {
		return ""
	}
	fpath := childPath(path, key)
	if !namePattern.MatchString(name) {
		v.addf(fpath, "'%s' is invalid. Must start with a letter and can contain letters, numbers, hyphens, and underscores", name)
	}
	if first, dup := seen[name]; dup {
		v.addf(fpath, "'%s' is already defined at %s", name, first)
	} else {
		seen[name] = path
	}
	return name
}

func (v *docValidator) requiredString(m map[string]any, path, key string) string {
	fpath := childPath(path, key)
	raw, present := m[key]
	if !present || raw == nil {
		v.addf(fpath, "is required")
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		v.addf(fpath, "must be a string")
		return ""
	}
	if strings.TrimSpace(s) == "" {
		v.addf(fpath, "must not be empty")
		return ""
	}
	return s
}

func (v *docValidator) optionalString(m map[string]any, path, key string) string {
	raw, present := m[key]
	if !present || raw == nil {
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		v.addf(childPath(path, key), "must be a string")
		return ""
	}
	return s
}

// envString reads a string field and substitutes {{ env.X }} references in it.
func (v *docValidator) envString(m map[string]any, path, key string, required bool) string {
	var s string
	if required {
		s = v.requiredString(m, path, key)
	} else {
		s = v.optionalString(m, path, key)
	}
	if s == "" {
		return ""
	}
	out, err := utils.SubstituteEnvVars(s)
	if err != nil {
		v.addf(childPath(path, key), "%v", err)
		return ""
	}
	if required && strings.TrimSpace(out) == "" {
		v.addf(childPath(path, key), "must not be empty after environment substitution")
		return ""
	}
	return out
}

func (v *docValidator) optionalBool(m map[string]any, path, key string, def bool) bool {
	raw, present := m[key]
	if !present || raw == nil {
		return def
	}
	b, ok := raw.(bool)
	if !ok {
		v.addf(childPath(path, key), "must be a boolean (true or false)")
		return def
	}
	return b
}

func (v *docValidator) optionalInt(m map[string]any, path, key string) (int, bool) {
	raw, present := m[key]
	if !present || raw == nil {
		return 0, false
	}
	n, ok := raw.(int)
	if !ok {
		v.addf(childPath(path, key), "must be an integer")
		return 0, false
	}
	return n, true
}
