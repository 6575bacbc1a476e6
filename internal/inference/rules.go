package inference

import (
	"strings"

	"github.com/latticekb/lattice/pkg/types"
)

// proposal is one typed, confidence-weighted relationship suggestion
// for an unordered entity pair. reversed orients the edge from b to a
// instead of a to b.
type proposal struct {
	relType    string
	confidence float64
	reversed   bool
}

// detect evaluates the heuristic rule list for one unordered pair.
// Directional rules check both orientations, so the result does not
// depend on which entity id sorts first. Rules pattern-match on
// attribute kinds and treat malformed shapes as "no contribution";
// they never fail.
func detect(a, b *types.Entity) []proposal {
	var out []proposal

	// Same-type affinity.
	if a.Type == b.Type {
		out = append(out, proposal{relType: types.RelSimilarTo, confidence: 0.3})
	}

	// Employment: the organization's name appears in the person's
	// department field. The edge runs person to organization.
	if person, org, swapped, ok := orient(a, b, types.EntityPerson, types.EntityOrganization); ok {
		if isEmployment(person, org) {
			out = append(out, proposal{relType: types.RelWorksFor, confidence: 0.8, reversed: swapped})
		}
	}

	// Colleagues: two people with the same non-empty department.
	if a.Type == types.EntityPerson && b.Type == types.EntityPerson && isColleague(a, b) {
		out = append(out, proposal{relType: types.RelColleagueOf, confidence: 0.7})
	}

	// Project involvement: the person's name appears in the project's
	// assignee field. The edge runs person to project.
	if person, project, swapped, ok := orient(a, b, types.EntityPerson, types.EntityProject); ok {
		if isProjectInvolvement(person, project) {
			out = append(out, proposal{relType: types.RelInvolvedIn, confidence: 0.6, reversed: swapped})
		}
	}

	// Shared email domain.
	if sharesEmailDomain(a, b) {
		out = append(out, proposal{relType: types.RelSameDomain, confidence: 0.5})
	}

	return out
}

// orient matches an unordered pair against a typed source/target shape.
// swapped reports that the match came from the (b, a) orientation.
func orient(a, b *types.Entity, sourceType, targetType string) (source, target *types.Entity, swapped, ok bool) {
	switch {
	case a.Type == sourceType && b.Type == targetType:
		return a, b, false, true
	case b.Type == sourceType && a.Type == targetType:
		return b, a, true, true
	default:
		return nil, nil, false, false
	}
}

func isEmployment(person, org *types.Entity) bool {
	orgName := strings.ToLower(org.StringAttr("name"))
	department := strings.ToLower(person.StringAttr("department"))
	if orgName == "" || department == "" {
		return false
	}
	return strings.Contains(department, orgName)
}

func isColleague(a, b *types.Entity) bool {
	deptA := strings.ToLower(a.StringAttr("department"))
	deptB := strings.ToLower(b.StringAttr("department"))
	return deptA != "" && deptA == deptB
}

func isProjectInvolvement(person, project *types.Entity) bool {
	name := strings.ToLower(person.StringAttr("name"))
	assignee := strings.ToLower(project.StringAttr("assignee"))
	if name == "" || assignee == "" {
		return false
	}
	return strings.Contains(assignee, name)
}

func sharesEmailDomain(a, b *types.Entity) bool {
	domainsA := emailDomains(a)
	if len(domainsA) == 0 {
		return false
	}
	for d := range emailDomains(b) {
		if _, ok := domainsA[d]; ok {
			return true
		}
	}
	return false
}

func emailDomains(e *types.Entity) map[string]struct{} {
	emails := e.StringListAttr("emails")
	if len(emails) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		at := strings.LastIndex(email, "@")
		if at < 0 || at == len(email)-1 {
			continue
		}
		out[strings.ToLower(email[at+1:])] = struct{}{}
	}
	return out
}
