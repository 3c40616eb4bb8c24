package architecture

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archdrift/pkg/models"
)

const likec4Spec = `specification {
  element system
  element container
}
`

const likec4Model = `model {
  customer = person 'Customer'

  orders = system 'Orders' 'Takes orders' {
    #core
    link https://github.com/Acme/Orders.git
    api = container 'Orders API' {
      -> payments 'charges cards'
    }
  }

  system payments 'Payments' {
    metadata {
      repository 'git@github.com:acme/payments.git'
    }
  }

  shipping = system 'Shipping' {
    link https://github.com/acme/orders/tree/main   // monorepo
  }

  orders -[async]-> shipping 'emits order events'
  customer -> orders.api 'places orders'
  // orders -> legacy 'removed'
  /* payments -> legacy
     'also removed' */
}

views {
  view index {
    include *
  }
}
`

const structurizrWorkspace = `workspace "Acme" {
  !identifiers flat
  model {
    customer = person "Customer"
    orders = softwareSystem "Orders" "Takes orders" "Core,Internal" {
      properties {
        "repository" "https://gitlab.com/acme/backend/orders"
      }
      ordersApi = container "Orders API" "REST" "Go" "Api" {
        -> payments "charges cards" "HTTPS"
      }
    }
    payments = softwareSystem "Payments" {
      url "https://github.com/acme/payments"
    }
    # legacy = softwareSystem "Legacy"
    customer -> orders "places orders"
    orders -> payments "settles" "HTTPS"
  }
  views {
    systemLandscape {
      include *
    }
  }
}
`

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

func loadLikeC4(t *testing.T) *Model {
	t.Helper()
	dir := writeFiles(t, map[string]string{
		"model.c4":                     likec4Model,
		"spec.c4":                      likec4Spec,
		"node_modules/pkg/ignored.c4":  "model { ghost = system 'Ghost' }",
	})
	m, err := Load(context.Background(), dir, "")
	require.NoError(t, err)
	return m
}

func TestLikeC4_Components(t *testing.T) {
	m := loadLikeC4(t)

	assert.Equal(t, FormatLikeC4, m.Format)
	assert.Len(t, m.Files, 2)

	ids := make([]string, 0, len(m.Components))
	for _, c := range m.Components {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"customer", "orders", "orders.api", "payments", "shipping"}, ids)

	orders, ok := m.Component("orders")
	require.True(t, ok)
	assert.Equal(t, models.ArchitecturalComponent{
		ID:          "orders",
		Name:        "Orders",
		Type:        "system",
		Tags:        []string{"core"},
		Repository:  "https://github.com/Acme/Orders.git",
		Description: "Takes orders",
	}, orders)

	api, _ := m.Component("orders.api")
	assert.Equal(t, "orders", api.Parent)
	assert.Equal(t, "Orders API", api.Name)

	payments, _ := m.Component("payments")
	assert.Equal(t, "system", payments.Type)
	assert.Equal(t, "git@github.com:acme/payments.git", payments.Repository)
}

func TestLikeC4_Relationships(t *testing.T) {
	m := loadLikeC4(t)

	want := []models.ModelRelationship{
		{Source: "orders.api", Target: "payments", Title: "charges cards"},
		{Source: "orders", Target: "shipping", Kind: "async", Title: "emits order events"},
		{Source: "customer", Target: "orders.api", Title: "places orders"},
	}
	if diff := cmp.Diff(want, m.Relationships); diff != "" {
		t.Errorf("relationships mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []string{"async"}, m.RelationshipKinds())
	assert.True(t, m.HasRelationship("orders", "shipping"))
	assert.False(t, m.HasRelationship("shipping", "orders"))
}

func TestLikeC4_Queries(t *testing.T) {
	m := loadLikeC4(t)

	found := m.FindAllComponentsByRepository("https://github.com/acme/orders")
	require.Len(t, found, 2)
	assert.Equal(t, "orders", found[0].ID)
	assert.Equal(t, "shipping", found[1].ID)

	assert.Len(t, m.FindAllComponentsByRepository("git@github.com:acme/payments"), 1)
	assert.Empty(t, m.FindAllComponentsByRepository("https://github.com/acme/unknown"))

	assert.Len(t, m.GetComponentDependencies("orders"), 1)
	assert.Len(t, m.GetComponentDependents("payments"), 1)
	assert.Len(t, m.GetComponentRelationships("orders.api"), 2)

	assert.True(t, m.IsAllowedDependency("orders.api", "shipping"), "parent relationship covers children")
	assert.True(t, m.IsAllowedDependency("orders", "orders"))
	assert.False(t, m.IsAllowedDependency("payments", "orders"))
}

func TestStructurizr_Load(t *testing.T) {
	dir := writeFiles(t, map[string]string{"workspace.dsl": structurizrWorkspace})

	m, err := Load(context.Background(), filepath.Join(dir, "workspace.dsl"), "")
	require.NoError(t, err)
	assert.Equal(t, FormatStructurizr, m.Format)
	assert.Equal(t, dir, m.Root)

	require.Len(t, m.Components, 4)
	orders, _ := m.Component("orders")
	assert.Equal(t, []string{"Core", "Internal"}, orders.Tags)
	assert.Equal(t, "Takes orders", orders.Description)

	api, _ := m.Component("ordersApi")
	assert.Equal(t, "orders", api.Parent)
	assert.Equal(t, []string{"Api"}, api.Tags)
	assert.Equal(t, "container", api.Type)

	want := []models.ModelRelationship{
		{Source: "ordersApi", Target: "payments", Kind: "HTTPS", Title: "charges cards"},
		{Source: "customer", Target: "orders", Title: "places orders"},
		{Source: "orders", Target: "payments", Kind: "HTTPS", Title: "settles"},
	}
	if diff := cmp.Diff(want, m.Relationships); diff != "" {
		t.Errorf("relationships mismatch (-want +got):\n%s", diff)
	}

	found := m.FindAllComponentsByRepository("https://gitlab.com/acme/backend/orders.git")
	require.Len(t, found, 1)
	assert.Equal(t, "orders", found[0].ID)
	assert.Len(t, m.FindAllComponentsByRepository("https://github.com/acme/payments/"), 1)
}

func TestStructurizr_IncludedFragment(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"workspace.dsl":   "workspace {\n  model {\n    !include systems.dsl\n    a -> b \"uses\"\n  }\n}\n",
		"systems.dsl":     "a = softwareSystem \"A\"\nb = softwareSystem \"B\"\n",
	})

	m, err := Load(context.Background(), dir, FormatStructurizr)
	require.NoError(t, err)
	assert.Len(t, m.Components, 2)
	assert.Equal(t, []models.ModelRelationship{{Source: "a", Target: "b", Title: "uses"}}, m.Relationships)
}

func TestDetectFormat(t *testing.T) {
	likec4 := writeFiles(t, map[string]string{"a.likec4": "model {}"})
	structurizr := writeFiles(t, map[string]string{"w.dsl": "workspace {}"})
	empty := writeFiles(t, map[string]string{"README.md": "# model"})

	got, err := DetectFormat(likec4)
	require.NoError(t, err)
	assert.Equal(t, FormatLikeC4, got)

	got, err = DetectFormat(structurizr)
	require.NoError(t, err)
	assert.Equal(t, FormatStructurizr, got)

	_, err = DetectFormat(empty)
	assert.ErrorIs(t, err, ErrNoModelFiles)

	adapter, err := NewAdapter(FormatLikeC4)
	require.NoError(t, err)
	_, err = adapter.LoadFromPath(context.Background(), empty)
	assert.ErrorIs(t, err, ErrNoModelFiles)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("auto")
	require.NoError(t, err)
	assert.Equal(t, Format(""), f)

	f, err = ParseFormat("Structurizr")
	require.NoError(t, err)
	assert.Equal(t, FormatStructurizr, f)

	_, err = ParseFormat("plantuml")
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = NewAdapter("plantuml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestNormalizeRepositoryURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://github.com/Acme/Orders.git", "github.com/acme/orders"},
		{"git@github.com:acme/orders.git", "github.com/acme/orders"},
		{"ssh://git@github.com/acme/orders", "github.com/acme/orders"},
		{"https://token@gitlab.com/acme/backend/orders/", "gitlab.com/acme/backend/orders"},
		{"https://gitlab.com/acme/backend/orders/-/tree/main", "gitlab.com/acme/backend/orders"},
		{"https://github.com/acme/orders/tree/main?x=1", "github.com/acme/orders"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeRepositoryURL(tt.in))
		})
	}
}

func TestLexLine(t *testing.T) {
	toks := lexLine(`a->b 'it''s' -[async]-> c = d`)
	kinds := make([]tokenKind, len(toks))
	for i, tok := range toks {
		kinds[i] = tok.kind
	}
	assert.Equal(t, []tokenKind{tokWord, tokArrow, tokWord, tokString, tokString, tokArrow, tokWord, tokAssign, tokWord}, kinds)
	assert.Equal(t, "async", toks[5].text)
}

func TestLexLine_TripleQuoted(t *testing.T) {
	toks := lexLine("description '''\n  Handles { payloads\n  ''' #tag")
	require.Len(t, toks, 3)
	assert.Equal(t, token{kind: tokString, text: "Handles { payloads"}, toks[1])
	assert.Equal(t, token{kind: tokWord, text: "#tag"}, toks[2])
}

func TestLikeC4_MultiLineStrings(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"spec.c4": likec4Spec,
		"model.c4": "model {\n" +
			"  a = system 'A' {\n" +
			"    description '''\n" +
			"      Handles { payloads\n" +
			"      // not a comment\n" +
			"    '''\n" +
			"  }\n" +
			"  b = system 'B' {\n" +
			"    description \"\"\"Batch } jobs\"\"\"\n" +
			"  }\n" +
			"  b -> a 'calls'\n" +
			"}\n",
	})

	m, err := Load(context.Background(), dir, "")
	require.NoError(t, err)

	ids := make([]string, 0, len(m.Components))
	for _, c := range m.Components {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"a", "b"}, ids)

	a, _ := m.Component("a")
	assert.Equal(t, "Handles { payloads\n// not a comment", a.Description)
	b, _ := m.Component("b")
	assert.Equal(t, "Batch } jobs", b.Description)

	assert.Equal(t, []models.ModelRelationship{{Source: "b", Target: "a", Title: "calls"}}, m.Relationships)
}
