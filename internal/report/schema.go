package report

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed report.schema.json
var schemaData []byte

const schemaURL = "report.schema.json"

var (
	reportSchema *jsonschema.Schema
	compileOnce  sync.Once
	compileErr   error
)

func compileSchema() error {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaData))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal report schema: %w", err)
			return
		}

		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, doc); err != nil {
			compileErr = fmt.Errorf("add report schema resource: %w", err)
			return
		}

		reportSchema, err = compiler.Compile(schemaURL)
		if err != nil {
			compileErr = fmt.Errorf("compile report schema: %w", err)
		}
	})
	return compileErr
}

// Validate checks report JSON against the embedded schema and returns one
// message per violation. Nil means the report matches.
func Validate(data []byte) []string {
	if err := compileSchema(); err != nil {
		return []string{err.Error()}
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return []string{fmt.Sprintf("invalid JSON: %v", err)}
	}

	err = reportSchema.Validate(inst)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []string{err.Error()}
	}
	return flatten(verr)
}

// flatten collects the leaf causes of a validation error.
func flatten(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		return []string{verr.Error()}
	}
	var out []string
	for _, c := range verr.Causes {
		out = append(out, flatten(c)...)
	}
	return out
}
