package mapping

import (
	"context"
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
	"github.com/xkilldash9x/autoapply-cli/internal/profile"
)

const semanticSystemPrompt = `You map job application data onto web form fields and answer application questions.
You receive the applicant profile and a list of form fields.
1. Map profile data to the matching form fields.
2. For questions the profile does not cover, write a short, honest, professional answer.
3. For fields with options, answer with one of the listed option values.
Respond with a single JSON object and nothing else.`

const semanticUserPrompt = `Applicant profile:
%s

Form fields:
%s

Return JSON of the form:
{
  "mapped_fields": {"<identifier>": "<value>"},
  "explanations": {"<identifier>": "<why this value was generated>"}
}
Use the identifiers exactly as given. Leave out fields you cannot answer.
Only add an explanation for values that are not taken from the profile.`

// promptField is the subset of a descriptor shown to the model.
type promptField struct {
	Identifier string                `json:"identifier"`
	Kind       schemas.FieldKind     `json:"kind"`
	Label      string                `json:"label,omitempty"`
	Required   bool                  `json:"required"`
	Options    []schemas.FieldOption `json:"options,omitempty"`
}

// LLMSemanticMapper implements schemas.SemanticMapper on top of an LLMClient.
type LLMSemanticMapper struct {
	client      schemas.LLMClient
	logger      *zap.Logger
	temperature float64
}

// NewLLMSemanticMapper wraps client. temperature is passed on every request.
func NewLLMSemanticMapper(client schemas.LLMClient, temperature float64, logger *zap.Logger) *LLMSemanticMapper {
	return &LLMSemanticMapper{
		client:      client,
		logger:      logger.Named("semantic_mapper"),
		temperature: temperature,
	}
}

// MapFields asks the model for all fields in one request.
func (s *LLMSemanticMapper) MapFields(ctx context.Context, profileData map[string]interface{}, fields []schemas.FieldDescriptor) (*schemas.SemanticMapping, error) {
	if len(fields) == 0 {
		return &schemas.SemanticMapping{}, nil
	}

	profileJSON, err := json.MarshalIndent(profileData, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile: %w", err)
	}
	shown := make([]promptField, len(fields))
	for i, f := range fields {
		shown[i] = promptField{Identifier: f.Identifier, Kind: f.Kind, Label: f.Label, Required: f.Required, Options: f.Options}
	}
	fieldsJSON, err := json.MarshalIndent(shown, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode fields: %w", err)
	}

	req := schemas.GenerationRequest{
		SystemPrompt: semanticSystemPrompt,
		UserPrompt:   fmt.Sprintf(semanticUserPrompt, profileJSON, fieldsJSON),
		Tier:         schemas.TierFast,
		Options: schemas.GenerationOptions{
			Temperature:     s.temperature,
			ForceJSONFormat: true,
		},
	}

	raw, err := s.client.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", schemas.ErrMappingServiceUnavailable, err)
	}

	mapping, err := ParseSemanticResponse(raw)
	if err != nil {
		s.logger.Warn("Discarding unparseable semantic mapping response.", zap.Error(err), zap.Int("length", len(raw)))
		return nil, fmt.Errorf("%w: %w", schemas.ErrMappingServiceUnavailable, err)
	}
	s.logger.Debug("Semantic mapping received.", zap.Int("requested", len(fields)), zap.Int("mapped", len(mapping.MappedFields)))
	return mapping, nil
}

// ParseSemanticResponse decodes a model answer. Code fences are stripped,
// non-string values are stringified, and a flat object without
// "mapped_fields" is read as the mapping itself.
func ParseSemanticResponse(raw string) (*schemas.SemanticMapping, error) {
	body := stripFences(raw)
	if body == "" {
		return &schemas.SemanticMapping{MappedFields: map[string]string{}, Explanations: map[string]string{}}, nil
	}

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}

	mapped, hasMapped := doc["mapped_fields"].(map[string]interface{})
	explained, _ := doc["explanations"].(map[string]interface{})
	if !hasMapped {
		mapped = make(map[string]interface{}, len(doc))
		for k, v := range doc {
			if k != "explanations" && k != "mapped_fields" {
				mapped[k] = v
			}
		}
	}

	return &schemas.SemanticMapping{
		MappedFields: stringValues(mapped),
		Explanations: stringValues(explained),
	}, nil
}

func stringValues(in map[string]interface{}) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		s, ok := profile.Stringify(v)
		if !ok {
			encoded, err := json.MarshalToString(v)
			if err != nil {
				continue
			}
			s = encoded
		}
		if s = strings.TrimSpace(s); s != "" {
			out[k] = s
		}
	}
	return out
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the language tag line, e.g. "json".
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
