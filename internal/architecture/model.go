package architecture

import (
	"sort"
	"strings"

	"github.com/archdrift/pkg/models"
)

// ComponentIndex is the read-only lookup built once per loaded model
type ComponentIndex struct {
	ByID         map[string]models.ArchitecturalComponent
	ByRepository map[string][]models.ArchitecturalComponent
}

// NewComponentIndex indexes components by id and by normalized repository URL.
// The first declaration of an id wins.
func NewComponentIndex(components []models.ArchitecturalComponent) *ComponentIndex {
	idx := &ComponentIndex{
		ByID:         make(map[string]models.ArchitecturalComponent, len(components)),
		ByRepository: make(map[string][]models.ArchitecturalComponent),
	}
	for _, c := range components {
		if _, dup := idx.ByID[c.ID]; dup {
			continue
		}
		idx.ByID[c.ID] = c
		if c.Repository != "" {
			key := NormalizeRepositoryURL(c.Repository)
			idx.ByRepository[key] = append(idx.ByRepository[key], c)
		}
	}
	return idx
}

// Model is one loaded architecture model
type Model struct {
	Format        Format
	Root          string
	Files         []string
	Components    []models.ArchitecturalComponent
	Relationships []models.ModelRelationship
	Index         *ComponentIndex
}

// NewModel indexes components and relationships loaded from files under root
func NewModel(format Format, root string, files []string, components []models.ArchitecturalComponent, rels []models.ModelRelationship) *Model {
	return &Model{
		Format:        format,
		Root:          root,
		Files:         files,
		Components:    components,
		Relationships: rels,
		Index:         NewComponentIndex(components),
	}
}

// Component returns the component with id
func (m *Model) Component(id string) (models.ArchitecturalComponent, bool) {
	c, ok := m.Index.ByID[id]
	return c, ok
}

// HasComponent reports whether id names a component of the model
func (m *Model) HasComponent(id string) bool {
	_, ok := m.Index.ByID[id]
	return ok
}

// FindAllComponentsByRepository returns every component linked to repoURL, in declaration order
func (m *Model) FindAllComponentsByRepository(repoURL string) []models.ArchitecturalComponent {
	found := m.Index.ByRepository[NormalizeRepositoryURL(repoURL)]
	out := make([]models.ArchitecturalComponent, len(found))
	copy(out, found)
	return out
}

// GetComponentDependencies returns the relationships whose source is id
func (m *Model) GetComponentDependencies(id string) []models.ModelRelationship {
	return m.filter(func(r models.ModelRelationship) bool { return r.Source == id })
}

// GetComponentDependents returns the relationships whose target is id
func (m *Model) GetComponentDependents(id string) []models.ModelRelationship {
	return m.filter(func(r models.ModelRelationship) bool { return r.Target == id })
}

// GetComponentRelationships returns every relationship touching id
func (m *Model) GetComponentRelationships(id string) []models.ModelRelationship {
	return m.filter(func(r models.ModelRelationship) bool { return r.Source == id || r.Target == id })
}

func (m *Model) filter(keep func(models.ModelRelationship) bool) []models.ModelRelationship {
	var out []models.ModelRelationship
	for _, r := range m.Relationships {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// IsAllowedDependency reports whether the model declares a dependency from a to b,
// either directly or between their enclosing components.
func (m *Model) IsAllowedDependency(a, b string) bool {
	if a == b {
		return true
	}
	sources := m.lineage(a)
	targets := m.lineage(b)
	for _, r := range m.Relationships {
		if sources[r.Source] && targets[r.Target] {
			return true
		}
	}
	return false
}

func (m *Model) lineage(id string) map[string]bool {
	seen := map[string]bool{}
	for id != "" && !seen[id] {
		seen[id] = true
		c, ok := m.Index.ByID[id]
		if !ok {
			break
		}
		id = c.Parent
	}
	return seen
}

// HasRelationship reports whether source -> target is already declared, ignoring kind
func (m *Model) HasRelationship(source, target string) bool {
	for _, r := range m.Relationships {
		if r.Source == source && r.Target == target {
			return true
		}
	}
	return false
}

// RelationshipKinds returns the distinct non-empty kinds used by declared relationships, sorted
func (m *Model) RelationshipKinds() []string {
	set := map[string]bool{}
	for _, r := range m.Relationships {
		if k := strings.TrimSpace(r.Kind); k != "" {
			set[k] = true
		}
	}
	kinds := make([]string, 0, len(set))
	for k := range set {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// NormalizeRepositoryURL folds the spellings of a repository URL onto one key:
// lowercase host and path, no scheme, credentials, .git suffix or trailing slash.
func NormalizeRepositoryURL(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}

	if strings.HasPrefix(s, "git@") {
		s = strings.Replace(strings.TrimPrefix(s, "git@"), ":", "/", 1)
	}
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	if at := strings.Index(s, "@"); at >= 0 && at < strings.Index(s+"/", "/") {
		s = s[at+1:]
	}

	// browse links such as /tree/main or /-/blob/main point into the same repository
	if i := strings.Index(s, "/-/"); i >= 0 {
		s = s[:i]
	}
	if strings.HasPrefix(s, "github.com/") {
		if parts := strings.SplitN(s, "/", 4); len(parts) == 4 {
			s = strings.Join(parts[:3], "/")
		}
	}

	s = strings.TrimRight(s, "/")
	s = strings.TrimSuffix(s, ".git")
	return strings.TrimRight(s, "/")
}
