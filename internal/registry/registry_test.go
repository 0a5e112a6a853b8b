package registry

import (
	"errors"
	"testing"

	"github.com/gitgrid/gitgrid/internal/model"
)

func TestResolveKnownNames(t *testing.T) {
	r := New(nil)
	labels := map[string]string{
		"organizations": "Organizations",
		"repositories":  "Repositories",
		"commits":       "Commits",
		"pulls":         "Pull Requests",
		"issues":        "Issues",
		"users":         "Users",
	}
	for name, label := range labels {
		h, err := r.Resolve(name)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", name, err)
		}
		if h.Name != name || h.Label != label {
			t.Errorf("Resolve(%q) = %s/%s", name, h.Name, h.Label)
		}
	}
}

func TestResolveRejectsUnknownNames(t *testing.T) {
	r := New(nil)
	for _, name := range []string{"", "Issues", "issue", "pull", "gists", " users", "users "} {
		h, err := r.Resolve(name)
		if !errors.Is(err, model.ErrInvalidCollection) {
			t.Errorf("Resolve(%q) error = %v, want ErrInvalidCollection", name, err)
		}
		if h != nil {
			t.Errorf("Resolve(%q) returned a handle", name)
		}
	}
}

func TestDefinitions(t *testing.T) {
	defs := Definitions()
	if len(defs) != 6 {
		t.Fatalf("expected 6 collections, got %d", len(defs))
	}
	scoped := 0
	for _, d := range defs {
		if d.RepositoryScoped {
			scoped++
		}
		if d.Name == "commits" && d.KeyField != "sha" {
			t.Errorf("commits key field = %q, want sha", d.KeyField)
		}
	}
	if scoped != 3 {
		t.Errorf("expected 3 repository-scoped collections, got %d", scoped)
	}

	defs[0].Name = "mutated"
	if Names()[0] != "organizations" {
		t.Fatal("Definitions must return a copy")
	}
}
