package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/criterium/internal/schema"
)

// SchemaResult contains the results of loading entity definitions.
type SchemaResult struct {
	Entities  []schema.Entity
	Registry  *schema.Registry
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// LoadError represents an error that occurred during schema loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSchema loads and compiles CUE entity definitions from a directory
// or a single .cue file. Every definition in the path unifies into one
// value before compilation, so an entity set may be split across files.
// Compiled entities are registered and cross-checked, which makes
// relationship targets and key metadata safe to plan against.
func LoadSchema(path string) (*SchemaResult, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema path not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema path: %v", err)}
	}

	var dir string
	var args []string
	var fileCount int
	if info.IsDir() {
		cueFiles, err := FindCUEFiles(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
		}
		if len(cueFiles) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
		}
		dir = path
		args = []string{"."}
		fileCount = len(cueFiles)
	} else {
		if filepath.Ext(path) != ".cue" {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("not a CUE file: %s", path)}
		}
		dir = filepath.Dir(path)
		args = []string{filepath.Base(path)}
		fileCount = 1
	}

	// Load CUE instances
	instances := load.Instances(args, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	// Build value from instance
	ctx := cuecontext.New()
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	entities, err := schema.CompileEntities(value)
	if err != nil {
		return nil, convertCompileError(err)
	}

	registry := schema.NewRegistry()
	for _, e := range entities {
		if err := registry.Register(e); err != nil {
			return nil, &LoadError{Code: ErrCodeRegistration, Message: err.Error()}
		}
	}
	if err := registry.Validate(); err != nil {
		return nil, &LoadError{Code: ErrCodeRelationTarget, Message: err.Error()}
	}

	return &SchemaResult{
		Entities:  entities,
		Registry:  registry,
		CUEValue:  value,
		FileCount: fileCount,
	}, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
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

// convertCompileError converts a schema compile error to a LoadError
// with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *schema.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: err.Error(),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeBadRequest  = "E007" // Malformed request file

	// Entity validation errors
	ErrCodeEntityTable         = "E101" // Missing table mapping
	ErrCodeEntityFields        = "E102" // No fields defined
	ErrCodeFieldType           = "E103" // Invalid field type
	ErrCodeEntityKey           = "E104" // Missing or empty key
	ErrCodeNoEntities          = "E105" // No entity definitions found
	ErrCodeEntityInvalid       = "E106" // Entity-local consistency failure
	ErrCodeCUEEval             = "E107" // CUE evaluation failure inside definitions
	ErrCodeRelationRef         = "E110" // Incomplete relationship declaration
	ErrCodeRelationCardinality = "E111" // Invalid cardinality
	ErrCodeRegistration        = "E120" // Entity registration failed
	ErrCodeRelationTarget      = "E121" // Relationship target cross-check failed
)

// IsSchemaErrorCode reports whether the code marks a problem in the
// schema content rather than in how the command was invoked. Schema
// problems exit with ExitFailure, invocation problems with
// ExitCommandError.
func IsSchemaErrorCode(code string) bool {
	return strings.HasPrefix(code, "E1")
}

// MapFieldToErrorCode maps a compile error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "table":
		return ErrCodeEntityTable
	case field == "fields":
		return ErrCodeEntityFields
	case strings.HasPrefix(field, "fields."):
		return ErrCodeFieldType
	case field == "key":
		return ErrCodeEntityKey
	case field == "entity":
		return ErrCodeNoEntities
	case strings.HasPrefix(field, "entity."):
		return ErrCodeEntityInvalid
	case field == "cue":
		return ErrCodeCUEEval
	case strings.HasSuffix(field, ".cardinality"):
		return ErrCodeRelationCardinality
	case strings.HasPrefix(field, "relations."):
		return ErrCodeRelationRef
	default:
		return ErrCodeGeneric
	}
}
