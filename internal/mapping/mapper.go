// Package mapping resolves form fields to values from the applicant profile.
//
// Resolution runs four tiers in a fixed order and never lets a later tier
// override an earlier one:
//
//  1. direct: the identifier equals a top-level profile key (case-insensitive)
//  2. structural: well-known composite fields built from nested profile data
//  3. heuristic: the identifier or label contains a pattern of a semantic group
//  4. semantic: one batched call to an external SemanticMapper
//
// Tiers 1 to 3 are pure functions of (profile, field).
package mapping

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
	"github.com/xkilldash9x/autoapply-cli/internal/config"
	"github.com/xkilldash9x/autoapply-cli/internal/profile"
)

// structuralFields maps normalized identifiers to composite profile views.
var structuralFields = map[string]func(*profile.Profile) string{
	"email":             (*profile.Profile).Email,
	"e mail":            (*profile.Profile).Email,
	"email address":     (*profile.Profile).Email,
	"emailaddress":      (*profile.Profile).Email,
	"phone":             (*profile.Profile).Phone,
	"telephone":         (*profile.Profile).Phone,
	"phone number":      (*profile.Profile).Phone,
	"phonenumber":       (*profile.Profile).Phone,
	"mobile":            (*profile.Profile).Phone,
	"address":           (*profile.Profile).Address,
	"current address":   (*profile.Profile).Address,
	"full address":      (*profile.Profile).Address,
	"street address":    (*profile.Profile).Address,
	"skills":            (*profile.Profile).Skills,
	"skill set":         (*profile.Profile).Skills,
	"skillset":          (*profile.Profile).Skills,
	"education":         (*profile.Profile).Education,
	"education history": (*profile.Profile).Education,
}

// Mapper runs the four resolution tiers.
type Mapper struct {
	logger   *zap.Logger
	groups   []group
	semantic schemas.SemanticMapper
}

// NewMapper creates a Mapper. semantic may be nil, in which case fields the
// local tiers cannot resolve stay unresolved.
func NewMapper(logger *zap.Logger, cfg config.MappingConfig, semantic schemas.SemanticMapper) *Mapper {
	if !cfg.SemanticEnabled {
		semantic = nil
	}
	return &Mapper{
		logger:   logger.Named("mapper"),
		groups:   orderGroups(cfg.HeuristicOrder),
		semantic: semantic,
	}
}

// GroupOf returns the heuristic group of field in this mapper's group order.
func (m *Mapper) GroupOf(field schemas.FieldDescriptor) string {
	g, _ := matchGroup(m.groups, field)
	return g.name
}

// ResolveLocal runs the direct, structural and heuristic tiers for one field.
func (m *Mapper) ResolveLocal(p *profile.Profile, field schemas.FieldDescriptor) schemas.MappingResult {
	g, grouped := matchGroup(m.groups, field)
	result := schemas.MappingResult{
		Identifier: field.Identifier,
		Provenance: schemas.ProvenanceUnresolved,
		Group:      g.name,
	}
	if field.Identifier == "" {
		return result
	}

	if v, ok := p.Get(field.Identifier); ok {
		// Composite values fall through to the structural tier.
		if s, scalar := profile.Stringify(v); scalar && s != "" {
			result.Value, result.Provenance = s, schemas.ProvenanceDirect
			return result
		}
	}

	if view, ok := structuralFields[normalize(field.Identifier)]; ok {
		if s := view(p); s != "" {
			result.Value, result.Provenance = s, schemas.ProvenanceStructural
			return result
		}
	}

	if grouped {
		if s := g.resolve(p, field); s != "" {
			result.Value, result.Provenance = s, schemas.ProvenanceHeuristic
		}
	}
	return result
}

// ResolveAll resolves every field, in order. Fields the local tiers leave
// unresolved go to the semantic mapper in a single batch. A semantic
// failure leaves them unresolved unless it was caused by the context ending,
// which is returned as a terminal error together with the partial results.
func (m *Mapper) ResolveAll(ctx context.Context, p *profile.Profile, fields []schemas.FieldDescriptor) ([]schemas.MappingResult, error) {
	results := make([]schemas.MappingResult, len(fields))
	var pending []int
	for i, f := range fields {
		results[i] = m.ResolveLocal(p, f)
		if !results[i].Resolved() && f.Identifier != "" {
			pending = append(pending, i)
		}
	}

	if len(pending) == 0 || m.semantic == nil {
		m.logSummary(results, len(pending))
		return results, nil
	}

	batch := make([]schemas.FieldDescriptor, len(pending))
	for j, i := range pending {
		batch[j] = fields[i]
	}

	m.logger.Debug("Requesting semantic mapping.", zap.Int("fields", len(batch)))
	answer, err := m.semantic.MapFields(ctx, p.Raw(), batch)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil || errors.Is(err, context.DeadlineExceeded) {
			return results, errors.Join(err, ctxErr)
		}
		m.logger.Warn("Semantic mapping unavailable, leaving fields unresolved.",
			zap.String("code", string(schemas.CodeMappingServiceUnavailable)),
			zap.Int("fields", len(batch)),
			zap.Error(err))
		m.logSummary(results, len(pending))
		return results, nil
	}

	if answer != nil {
		values := foldKeys(answer.MappedFields)
		explanations := foldKeys(answer.Explanations)
		for _, i := range pending {
			key := strings.ToLower(fields[i].Identifier)
			v := strings.TrimSpace(values[key])
			if v == "" {
				continue
			}
			results[i].Value = v
			results[i].Provenance = schemas.ProvenanceSemantic
			results[i].Explanation = explanations[key]
		}
	}

	m.logSummary(results, len(pending))
	return results, nil
}

func (m *Mapper) logSummary(results []schemas.MappingResult, sentToSemantic int) {
	counts := make(map[schemas.Provenance]int)
	for _, r := range results {
		counts[r.Provenance]++
	}
	m.logger.Info("Field mapping complete.",
		zap.Int("fields", len(results)),
		zap.Int("direct", counts[schemas.ProvenanceDirect]),
		zap.Int("structural", counts[schemas.ProvenanceStructural]),
		zap.Int("heuristic", counts[schemas.ProvenanceHeuristic]),
		zap.Int("semantic", counts[schemas.ProvenanceSemantic]),
		zap.Int("unresolved", counts[schemas.ProvenanceUnresolved]),
		zap.Int("sent_to_semantic", sentToSemantic))
}

func foldKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}
