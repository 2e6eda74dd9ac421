package usecase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// buildReportSchema returns the JSON-Schema the analysis payload must
// satisfy before it is accepted. The score is deliberately loose here
// (null, number, or string) because range enforcement and collapse to
// null happen in code after parsing; everything else is structural.
func buildReportSchema() map[string]any {
	stringArray := map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}

	return map[string]any{
		"type":                 "object",
		"required":             []string{"overview", "disputes", "creditHacks", "creditCards", "sideHustles"},
		"additionalProperties": true,
		"properties": map[string]any{
			"overview": map[string]any{
				"type":     "object",
				"required": []string{"summary"},
				"properties": map[string]any{
					"score":           map[string]any{"type": []string{"integer", "number", "string", "null"}},
					"summary":         map[string]any{"type": "string", "minLength": 1},
					"positiveFactors": stringArray,
					"negativeFactors": stringArray,
				},
			},
			"disputes": map[string]any{
				"type":     "object",
				"required": []string{"items"},
				"properties": map[string]any{
					"items": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"bureau":            map[string]any{"type": "string"},
								"accountName":       map[string]any{"type": "string"},
								"accountNumber":     map[string]any{"type": "string"},
								"issueType":         map[string]any{"type": "string"},
								"recommendedAction": map[string]any{"type": "string"},
							},
						},
					},
				},
			},
			"creditHacks": recommendationSection(map[string]any{
				"title":       map[string]any{"type": "string"},
				"description": map[string]any{"type": "string"},
				"impact":      map[string]any{"type": "string"},
				"timeframe":   map[string]any{"type": "string"},
				"steps":       stringArray,
			}),
			"creditCards": recommendationSection(map[string]any{
				"name":               map[string]any{"type": "string"},
				"issuer":             map[string]any{"type": "string"},
				"annualFee":          map[string]any{"type": []string{"string", "number"}},
				"apr":                map[string]any{"type": []string{"string", "number"}},
				"rewards":            map[string]any{"type": "string"},
				"approvalLikelihood": map[string]any{"type": "string"},
				"bestFor":            map[string]any{"type": "string"},
			}),
			"sideHustles": recommendationSection(map[string]any{
				"title":             map[string]any{"type": "string"},
				"description":       map[string]any{"type": "string"},
				"potentialEarnings": map[string]any{"type": []string{"string", "number"}},
				"startupCost":       map[string]any{"type": []string{"string", "number"}},
				"difficulty":        map[string]any{"type": "string"},
				"timeCommitment":    map[string]any{"type": "string"},
				"skills":            stringArray,
			}),
		},
	}
}

func recommendationSection(itemProps map[string]any) map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"recommendations"},
		"properties": map[string]any{
			"recommendations": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":       "object",
					"properties": itemProps,
				},
			},
		},
	}
}

var (
	reportSchemaOnce sync.Once
	reportSchema     *jsonschema.Schema
	reportSchemaErr  error
)

func compiledReportSchema() (*jsonschema.Schema, error) {
	reportSchemaOnce.Do(func() {
		raw, err := json.Marshal(buildReportSchema())
		if err != nil {
			reportSchemaErr = fmt.Errorf("marshal report schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("report.schema.json", bytes.NewReader(raw)); err != nil {
			reportSchemaErr = fmt.Errorf("add report schema: %w", err)
			return
		}
		reportSchema, reportSchemaErr = compiler.Compile("report.schema.json")
	})
	return reportSchema, reportSchemaErr
}

// validateReportJSON checks the parsed analysis document against the
// payload schema.
func validateReportJSON(doc any) error {
	schema, err := compiledReportSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("analysis json does not match schema: %w", err)
	}
	return nil
}
