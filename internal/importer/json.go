// Package importer extracts typed entities from arbitrary JSON
// documents. Objects are typed by how well their keys overlap a
// configured field set, and free text is mined for emails, phone
// numbers, and dates.
package importer

import (
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/latticekb/lattice/pkg/types"
)

// ErrInvalidDocument is returned when a file is not valid JSON.
var ErrInvalidDocument = errors.New("invalid json document")

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`)
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
		regexp.MustCompile(`\d{2}/\d{2}/\d{4}`),
		regexp.MustCompile(`\d{2}-\d{2}-\d{4}`),
	}
	idCleaner = regexp.MustCompile(`[^\w\-]`)
)

// Config controls which JSON objects become entities and how they are
// identified.
type Config struct {
	// EntityFields maps an entity type to the fields an object of that
	// type is expected to carry. An object is typed when more than half
	// of some type's fields are present.
	EntityFields map[string][]string

	// PrimaryFields lists, per type, the fields tried in order when
	// deriving an entity id. Objects with none of them get a hash id.
	PrimaryFields map[string][]string
}

// DefaultConfig covers the five built-in entity types.
func DefaultConfig() Config {
	return Config{
		EntityFields: map[string][]string{
			types.EntityPerson:       {"name", "email", "phone", "title", "department"},
			types.EntityOrganization: {"name", "address", "website", "industry"},
			types.EntityProject:      {"name", "description", "status", "deadline"},
			types.EntityTask:         {"title", "description", "assignee", "priority", "due_date"},
			types.EntityDocument:     {"title", "content", "author", "created_date"},
		},
		PrimaryFields: map[string][]string{
			types.EntityPerson:       {"email", "name"},
			types.EntityOrganization: {"name"},
			types.EntityProject:      {"name"},
			types.EntityTask:         {"title"},
			types.EntityDocument:     {"title"},
		},
	}
}

// Extracted is one entity found in a document, not yet added to a
// graph. Path records where in the document it was found.
type Extracted struct {
	ID         string
	Type       string
	Path       string
	Attributes types.Attributes
}

// Options configures one extraction run.
type Options struct {
	// Progress, when non-nil, receives events while walking large
	// arrays and directories. Sends never block; a slow receiver
	// misses intermediate events.
	Progress chan<- types.Progress
}

// Importer turns JSON documents into extraction candidates.
type Importer struct {
	cfg       Config
	typeOrder []string
}

// New creates an importer with the given config. A zero Config falls
// back to DefaultConfig.
func New(cfg Config) *Importer {
	if cfg.EntityFields == nil {
		cfg = DefaultConfig()
	}
	order := make([]string, 0, len(cfg.EntityFields))
	for t := range cfg.EntityFields {
		order = append(order, t)
	}
	sort.Strings(order)
	return &Importer{cfg: cfg, typeOrder: order}
}

// ProcessFile extracts entities from one JSON file.
func (imp *Importer) ProcessFile(path string, opts Options) ([]Extracted, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, path, err)
	}
	return imp.Extract(doc, opts), nil
}

// ProcessDirectory extracts entities from every *.json file in a
// directory. Files that fail to parse are logged and skipped; one
// progress event is emitted per file.
func (imp *Importer) ProcessDirectory(dir string, opts Options) ([]Extracted, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	sort.Strings(paths)

	var all []Extracted
	for i, path := range paths {
		found, err := imp.ProcessFile(path, Options{})
		if err != nil {
			log.Warn("skipping unprocessable file", "path", path, "error", err)
		} else {
			all = append(all, found...)
		}
		emit(opts.Progress, types.Progress{Completed: i + 1, Total: len(paths)})
	}
	return all, nil
}

// Extract walks a decoded JSON value and returns every object that
// matches a configured entity type.
func (imp *Importer) Extract(doc interface{}, opts Options) []Extracted {
	return imp.walk(doc, "", opts)
}

func (imp *Importer) walk(node interface{}, path string, opts Options) []Extracted {
	var out []Extracted
	switch v := node.(type) {
	case map[string]interface{}:
		if entityType := imp.identifyType(v); entityType != "" {
			out = append(out, imp.buildEntity(v, entityType, path))
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			childPath := k
			if path != "" {
				childPath = path + "." + k
			}
			out = append(out, imp.walk(v[k], childPath, opts)...)
		}
	case []interface{}:
		for i, item := range v {
			out = append(out, imp.walk(item, fmt.Sprintf("%s[%d]", path, i), opts)...)
			if len(v) > 10 {
				emit(opts.Progress, types.Progress{Completed: i + 1, Total: len(v)})
			}
		}
	}
	return out
}

// identifyType returns the best-scoring entity type for an object, or
// "" when no type clears the overlap threshold. Ties keep the first
// type in ascending name order.
func (imp *Importer) identifyType(obj map[string]interface{}) string {
	best := ""
	bestScore := 0.0
	for _, entityType := range imp.typeOrder {
		fields := imp.cfg.EntityFields[entityType]
		if len(fields) == 0 {
			continue
		}
		matched := 0
		for _, f := range fields {
			if _, ok := obj[f]; ok {
				matched++
			}
		}
		score := float64(matched) / float64(len(fields))
		if score > 0.5 && score > bestScore {
			best = entityType
			bestScore = score
		}
	}
	return best
}

func (imp *Importer) buildEntity(obj map[string]interface{}, entityType, path string) Extracted {
	attrs := make(types.Attributes)
	for _, field := range imp.cfg.EntityFields[entityType] {
		if raw, ok := obj[field]; ok {
			attrs[field] = types.FromAny(raw)
		}
	}
	for key, values := range minePatterns(obj) {
		attrs[key] = types.StringList(values...)
	}
	return Extracted{
		ID:         imp.entityID(obj, entityType),
		Type:       entityType,
		Path:       path,
		Attributes: attrs,
	}
}

// entityID derives a stable id from the first primary field present,
// falling back to a content hash.
func (imp *Importer) entityID(obj map[string]interface{}, entityType string) string {
	primaries := imp.cfg.PrimaryFields[entityType]
	if len(primaries) == 0 {
		primaries = []string{"name"}
	}
	for _, field := range primaries {
		raw, ok := obj[field]
		if !ok {
			continue
		}
		base := strings.ToLower(fmt.Sprintf("%v", raw))
		base = strings.ReplaceAll(base, " ", "_")
		base = idCleaner.ReplaceAllString(base, "")
		if base != "" {
			return entityType + "_" + base
		}
	}

	// json.Marshal sorts map keys, so the hash is stable.
	data, _ := json.Marshal(obj)
	sum := md5.Sum(data)
	return fmt.Sprintf("%s_%x", entityType, sum[:4])
}

// minePatterns scans the object's JSON text for emails, phone numbers,
// and dates, returning sorted unique values per category.
func minePatterns(obj map[string]interface{}) map[string][]string {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil
	}
	text := string(data)

	out := make(map[string][]string)
	if emails := uniqueSorted(emailPattern.FindAllString(text, -1)); len(emails) > 0 {
		out["emails"] = emails
	}
	if phones := uniqueSorted(phonePattern.FindAllString(text, -1)); len(phones) > 0 {
		out["phones"] = phones
	}
	var dates []string
	for _, p := range datePatterns {
		dates = append(dates, p.FindAllString(text, -1)...)
	}
	if dates = uniqueSorted(dates); len(dates) > 0 {
		out["dates"] = dates
	}
	return out
}

func uniqueSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func emit(ch chan<- types.Progress, p types.Progress) {
	if ch == nil {
		return
	}
	select {
	case ch <- p:
	default:
	}
}
