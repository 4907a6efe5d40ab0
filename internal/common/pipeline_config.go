package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/video-insights/constants"
)

// FieldSpec is one user-defined output column: a title plus the prompt that fills it.
type FieldSpec struct {
	Name   string `yaml:"name" json:"name"`
	Prompt string `yaml:"prompt" json:"prompt"`
}

// GenerationSettings tunes one kind of generation call.
type GenerationSettings struct {
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
	Temperature float32 `yaml:"temperature" json:"temperature"`
}

// TranscriptPrompts drive the summarize stage.
type TranscriptPrompts struct {
	Summary          string             `yaml:"summary" json:"summary"`
	Tags             string             `yaml:"tags" json:"tags"`
	NeedsScreenshots string             `yaml:"needs_screenshots" json:"needs_screenshots"`
	CustomFields     []FieldSpec        `yaml:"custom_fields" json:"custom_fields"`
	SummaryGen       GenerationSettings `yaml:"summary_generation" json:"summary_generation"`
	TagsGen          GenerationSettings `yaml:"tags_generation" json:"tags_generation"`
	CustomGen        GenerationSettings `yaml:"custom_generation" json:"custom_generation"`
}

// ScreenshotPrompts drive the scene analysis stage.
type ScreenshotPrompts struct {
	Vision       string             `yaml:"vision" json:"vision"`
	Summary      string             `yaml:"summary" json:"summary"`
	CustomFields []FieldSpec        `yaml:"custom_fields" json:"custom_fields"`
	Generation   GenerationSettings `yaml:"generation" json:"generation"`
}

// PipelineConfig holds prompts and the data-driven custom column lists.
type PipelineConfig struct {
	Transcript  TranscriptPrompts `yaml:"transcript" json:"transcript"`
	Screenshots ScreenshotPrompts `yaml:"screenshots" json:"screenshots"`
}

// DefaultPipelineConfig returns the built-in prompts and custom fields.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Transcript: TranscriptPrompts{
			Summary:          "Please provide a brief summary of this transcript:",
			Tags:             "Based on this transcript, provide a comma-separated list of relevant tags (maximum 5 tags):",
			NeedsScreenshots: "If the transcript consists solely of mentions of music or the transcript does not include the name and URL of a product then respond with 'True', otherwise respond with 'False'",
			CustomFields: []FieldSpec{{
				Name:   "Products",
				Prompt: "Create a comma delimited list of products/solutions mentioned in the transcript, for each product/solution add a colon and then a concise sentence on why it was recommended.",
			}},
			SummaryGen: GenerationSettings{MaxTokens: 150, Temperature: 0.7},
			TagsGen:    GenerationSettings{MaxTokens: 50, Temperature: 0.7},
			CustomGen:  GenerationSettings{MaxTokens: 250, Temperature: 0.7},
		},
		Screenshots: ScreenshotPrompts{
			Vision:  "Extract all text from the image including captions, Product Names and any URLs. If there are no captions,products or URLs, just return N/A. Do not include any other text.",
			Summary: "Based on all the extracted text from the video screenshots create a concise summary of the content.",
			CustomFields: []FieldSpec{{
				Name:   "Screenshot Products",
				Prompt: "For each product add a colon and then a concise sentence on why it was recommended including the URL. If there is no URL, just add the product name. If this is no product, just add NA. Do not include any other text.",
			}},
			Generation: GenerationSettings{MaxTokens: 2000, Temperature: 0.7},
		},
	}
}

const pipelineConfigSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "transcript": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "summary": {"type": "string", "minLength": 1},
        "tags": {"type": "string", "minLength": 1},
        "needs_screenshots": {"type": "string", "minLength": 1},
        "custom_fields": {"$ref": "#/$defs/fields"},
        "summary_generation": {"$ref": "#/$defs/generation"},
        "tags_generation": {"$ref": "#/$defs/generation"},
        "custom_generation": {"$ref": "#/$defs/generation"}
      }
    },
    "screenshots": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "vision": {"type": "string", "minLength": 1},
        "summary": {"type": "string", "minLength": 1},
        "custom_fields": {"$ref": "#/$defs/fields"},
        "generation": {"$ref": "#/$defs/generation"}
      }
    }
  },
  "$defs": {
    "fields": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["name", "prompt"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "prompt": {"type": "string", "minLength": 1}
        }
      }
    },
    "generation": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "max_tokens": {"type": "integer", "minimum": 1},
        "temperature": {"type": "number", "minimum": 0, "maximum": 2}
      }
    }
  }
}`

// LoadPipelineConfig reads a YAML pipeline file, validates it, and overlays it on the defaults.
func LoadPipelineConfig(path string) (PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PipelineConfig{}, fmt.Errorf("read pipeline config: %w", err)
	}
	return ParsePipelineConfig(data)
}

// ParsePipelineConfig validates YAML bytes against the embedded schema and overlays them on the defaults.
func ParsePipelineConfig(data []byte) (PipelineConfig, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return PipelineConfig{}, fmt.Errorf("parse pipeline config: %w", err)
	}
	if doc == nil {
		return DefaultPipelineConfig(), nil
	}
	if err := validatePipelineDoc(doc); err != nil {
		return PipelineConfig{}, err
	}

	cfg := DefaultPipelineConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return PipelineConfig{}, fmt.Errorf("decode pipeline config: %w", err)
	}
	if err := checkFieldNames("transcript.custom_fields", cfg.Transcript.CustomFields); err != nil {
		return PipelineConfig{}, err
	}
	if err := checkFieldNames("screenshots.custom_fields", cfg.Screenshots.CustomFields); err != nil {
		return PipelineConfig{}, err
	}
	return cfg, nil
}

// validatePipelineDoc round-trips the YAML tree through JSON so the schema sees JSON types.
func validatePipelineDoc(doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("pipeline config is not JSON-compatible: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("unmarshal pipeline config: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("pipeline.json", bytes.NewReader([]byte(pipelineConfigSchema))); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("pipeline.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return NewAppError("CONFIG_ERROR", "pipeline config does not match schema", fmt.Errorf("%w: %v", ErrInvalidInput, err))
	}
	return nil
}

func checkFieldNames(path string, fields []FieldSpec) error {
	seen := make(map[string]struct{}, len(fields))
	reserved := make(map[string]struct{}, len(constants.ReservedColumns))
	for _, c := range constants.ReservedColumns {
		reserved[strings.ToLower(c)] = struct{}{}
	}
	for _, f := range fields {
		key := strings.ToLower(strings.TrimSpace(f.Name))
		if _, ok := reserved[key]; ok {
			return NewAppError("CONFIG_ERROR", fmt.Sprintf("%s: %q collides with a built-in column", path, f.Name), ErrInvalidInput)
		}
		if _, ok := seen[key]; ok {
			return NewAppError("CONFIG_ERROR", fmt.Sprintf("%s: duplicate field %q", path, f.Name), ErrInvalidInput)
		}
		seen[key] = struct{}{}
	}
	return nil
}
