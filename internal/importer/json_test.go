package importer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticekb/lattice/pkg/types"
)

func TestIdentifyType(t *testing.T) {
	imp := New(Config{})

	// 3 of 5 person fields present.
	person := map[string]interface{}{
		"name": "Alice Smith", "email": "alice@acme.com", "department": "Engineering",
	}
	assert.Equal(t, types.EntityPerson, imp.identifyType(person))

	// 2 of 5 fields is not enough.
	vague := map[string]interface{}{"name": "thing", "email": "x@y.io"}
	assert.Equal(t, "", imp.identifyType(vague))

	// 3 of 4 organization fields.
	org := map[string]interface{}{
		"name": "Acme", "website": "acme.com", "industry": "manufacturing",
	}
	assert.Equal(t, types.EntityOrganization, imp.identifyType(org))
}

func TestExtractNestedDocument(t *testing.T) {
	imp := New(Config{})
	doc := map[string]interface{}{
		"team": map[string]interface{}{
			"lead": map[string]interface{}{
				"name":       "Alice Smith",
				"email":      "alice@acme.com",
				"title":      "Principal Engineer",
				"department": "Engineering",
			},
			"members": []interface{}{
				map[string]interface{}{
					"name":  "Bob Jones",
					"email": "bob@acme.com",
					"phone": "555-123-4567",
				},
			},
		},
	}

	found := imp.Extract(doc, Options{})
	require.Len(t, found, 2)

	byID := make(map[string]Extracted)
	for _, e := range found {
		byID[e.ID] = e
	}

	// The id cleaner strips '@' and '.' from the primary field.
	alice, ok := byID["person_aliceacmecom"]
	require.True(t, ok)
	assert.Equal(t, types.EntityPerson, alice.Type)
	assert.Equal(t, "team.lead", alice.Path)
	assert.Equal(t, "Alice Smith", alice.Attributes["name"].Str())
	assert.Equal(t, []string{"alice@acme.com"}, stringItems(alice.Attributes["emails"]))

	bob, ok := byID["person_bobacmecom"]
	require.True(t, ok)
	assert.Equal(t, "team.members[0]", bob.Path)
	assert.Equal(t, []string{"555-123-4567"}, stringItems(bob.Attributes["phones"]))
}

func TestEntityIDFallsBackToHash(t *testing.T) {
	imp := New(Config{})
	obj := map[string]interface{}{
		"description": "quarterly report",
		"status":      "active",
		"deadline":    "2026-09-01",
	}
	require.Equal(t, types.EntityProject, imp.identifyType(obj))

	id := imp.entityID(obj, types.EntityProject)
	assert.Regexp(t, `^project_[0-9a-f]{8}$`, id)

	// Same content, same id.
	assert.Equal(t, id, imp.entityID(obj, types.EntityProject))
}

func TestMinePatterns(t *testing.T) {
	obj := map[string]interface{}{
		"notes": "reach alice@acme.com or 555-123-4567 before 2026-01-15",
		"alt":   "also alice@acme.com on 01/15/2026",
	}
	patterns := minePatterns(obj)
	assert.Equal(t, []string{"alice@acme.com"}, patterns["emails"])
	assert.Equal(t, []string{"555-123-4567"}, patterns["phones"])
	assert.Equal(t, []string{"01/15/2026", "2026-01-15"}, patterns["dates"])
}

func TestProcessFileAndDirectory(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "people.json")
	require.NoError(t, os.WriteFile(good, []byte(`[
		{"name": "Alice Smith", "email": "alice@acme.com", "title": "Engineer"},
		{"name": "Acme", "website": "acme.com", "industry": "manufacturing"}
	]`), 0o644))
	bad := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{nope`), 0o644))

	_, err := New(Config{}).ProcessFile(bad, Options{})
	assert.ErrorIs(t, err, ErrInvalidDocument)

	progress := make(chan types.Progress, 16)
	found, err := New(Config{}).ProcessDirectory(dir, Options{Progress: progress})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	close(progress)
	var last types.Progress
	count := 0
	for p := range progress {
		last = p
		count++
	}
	assert.Equal(t, 2, count)
	assert.Equal(t, types.Progress{Completed: 2, Total: 2}, last)
}

func TestLargeArrayEmitsProgress(t *testing.T) {
	imp := New(Config{})
	items := make([]interface{}, 12)
	for i := range items {
		items[i] = map[string]interface{}{"note": "nothing matchable"}
	}
	progress := make(chan types.Progress, 16)
	imp.Extract(items, Options{Progress: progress})
	close(progress)

	var events []types.Progress
	for p := range progress {
		events = append(events, p)
	}
	require.NotEmpty(t, events)
	assert.Equal(t, types.Progress{Completed: 12, Total: 12}, events[len(events)-1])
}

func stringItems(v types.Value) []string {
	var out []string
	for _, item := range v.Items() {
		out = append(out, item.Str())
	}
	return out
}
