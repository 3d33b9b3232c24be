package policy

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// claimsPolicy es la policy declarativa built-in: autoriza cuando todos los
// claims requeridos están presentes (y, si hay match, con el valor esperado).
// Cubre el caso común de claims gathering sin un script host externo.
type claimsPolicy struct {
	required    []ClaimDefinition
	match       map[string]string
	gatheringID string
}

func (p *claimsPolicy) Authorize(ctx context.Context, actx *AuthorizationContext) (bool, error) {
	for _, def := range p.required {
		v, ok := actx.Claims.Get(def.Name)
		if !ok {
			return false, nil
		}
		if want, hasMatch := p.match[def.Name]; hasMatch && fmt.Sprint(v) != want {
			return false, nil
		}
	}
	return true, nil
}

func (p *claimsPolicy) RequiredClaims(ctx context.Context, actx *AuthorizationContext) ([]ClaimDefinition, error) {
	return p.required, nil
}

func (p *claimsPolicy) GatheringScriptName(ctx context.Context, actx *AuthorizationContext) (string, error) {
	return p.gatheringID, nil
}

type policyFile struct {
	Policies []struct {
		Ref            string            `yaml:"ref"`
		RequiredClaims []string          `yaml:"required_claims"`
		MatchClaims    map[string]string `yaml:"match_claims"`
		GatheringID    string            `yaml:"gathering_id"`
	} `yaml:"policies"`
}

// FileLoader devuelve un Loader que lee policies declarativas desde un YAML.
// Cada Reload relee el archivo completo; un archivo roto deja el set vigente
// intacto (el registry no hace swap si el loader falla).
func FileLoader(path string) Loader {
	return func(ctx context.Context) (map[string]Policy, error) {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var f policyFile
		if err := yaml.Unmarshal(b, &f); err != nil {
			return nil, fmt.Errorf("policy file %s: %w", path, err)
		}

		out := make(map[string]Policy, len(f.Policies))
		for _, d := range f.Policies {
			if d.Ref == "" {
				return nil, fmt.Errorf("policy file %s: policy without ref", path)
			}
			if _, dup := out[d.Ref]; dup {
				return nil, fmt.Errorf("policy file %s: duplicate ref %q", path, d.Ref)
			}
			required := make([]ClaimDefinition, 0, len(d.RequiredClaims))
			for _, name := range d.RequiredClaims {
				required = append(required, ClaimDefinition{Name: name})
			}
			out[d.Ref] = &claimsPolicy{
				required:    required,
				match:       d.MatchClaims,
				gatheringID: d.GatheringID,
			}
		}
		return out, nil
	}
}
