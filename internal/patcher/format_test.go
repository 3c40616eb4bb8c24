package patcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archdrift/internal/architecture"
	"github.com/archdrift/pkg/models"
)

func mustFormat(t *testing.T, name string) Format {
	t.Helper()
	f, err := NewFormat(name, nil)
	require.NoError(t, err)
	return f
}

func TestNewFormat(t *testing.T) {
	likec4 := mustFormat(t, "LikeC4")
	assert.Equal(t, "likec4", likec4.Name())
	assert.Equal(t, []string{".c4", ".likec4"}, likec4.Extensions())
	assert.Equal(t, "  ", likec4.CanonicalIndent())
	assert.Equal(t, "'", likec4.StringDelimiter())

	structurizr := mustFormat(t, "structurizr")
	assert.Equal(t, []string{".dsl"}, structurizr.Extensions())
	assert.Equal(t, "    ", structurizr.CanonicalIndent())
	assert.True(t, structurizr.IsModelBlockLine("  Model {"))
	assert.False(t, likec4.IsModelBlockLine("  Model {"))
	assert.False(t, likec4.IsModelBlockLine("modelling {"))

	_, err := NewFormat("plantuml", nil)
	assert.ErrorIs(t, err, architecture.ErrUnknownFormat)
}

func TestGenerateLines(t *testing.T) {
	rels := []models.StructuredRelationship{
		{Source: "api", Target: "db", Kind: "sql", Description: "reads 'orders'\nand items"},
		{Source: "api", Target: "queue", Kind: "amqp", Description: `publishes "events"`},
		{Source: "web", Target: "api"},
	}
	kinds := map[string]bool{"sql": true}

	assert.Equal(t, []string{
		"api -[sql]-> db 'reads orders and items'",
		`api -> queue 'publishes "events"'`,
		"web -> api",
	}, mustFormat(t, "likec4").GenerateLines(rels, kinds))

	assert.Equal(t, []string{
		`api -> db "reads 'orders' and items" "sql"`,
		`api -> queue "publishes events"`,
		"web -> api",
	}, mustFormat(t, "structurizr").GenerateLines(rels, kinds))
}

func TestFindTargetFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	f := mustFormat(t, "likec4")

	got, err := f.FindTargetFile(dir)
	require.NoError(t, err)
	assert.Equal(t, "", got)

	write("a-spec.c4", "specification {\n  element system\n}\n")
	got, _ = f.FindTargetFile(dir)
	assert.Equal(t, filepath.Join(dir, "a-spec.c4"), got)

	write("b-elements.c4", "model {\n  a = system\n  // a -> b\n}\n")
	got, _ = f.FindTargetFile(dir)
	assert.Equal(t, filepath.Join(dir, "b-elements.c4"), got)

	write("c-relations.c4", "model {\n  a -> b\n}\n")
	got, _ = f.FindTargetFile(dir)
	assert.Equal(t, filepath.Join(dir, "c-relations.c4"), got)
}

func TestInsertLines(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		content string
		want    string
		wantErr error
	}{
		{
			name:   "structurizr nested model",
			format: "structurizr",
			content: "workspace {\n    model {\n        a = softwareSystem \"A\" {\n        }\n        b = softwareSystem \"B\"\n    }\n    views {\n    }\n}\n",
			want:    "workspace {\n    model {\n        a = softwareSystem \"A\" {\n        }\n        b = softwareSystem \"B\"\n\n        a -> b \"uses\"\n    }\n    views {\n    }\n}\n",
		},
		{
			name:    "empty model block uses canonical indent",
			format:  "likec4",
			content: "model {\n}\n",
			want:    "model {\n\n  a -> b \"uses\"\n}\n",
		},
		{
			name:    "braces in strings are ignored",
			format:  "likec4",
			content: "model {\n  a = system 'A {x}' {\n  }\n}\n",
			want:    "model {\n  a = system 'A {x}' {\n  }\n\n  a -> b \"uses\"\n}\n",
		},
		{
			name:    "braces in multi-line strings are ignored",
			format:  "likec4",
			content: "model {\n  a = system 'A' {\n    description '''\n      Handles { payloads\n    '''\n  }\n  b = system 'B'\n}\n",
			want:    "model {\n  a = system 'A' {\n    description '''\n      Handles { payloads\n    '''\n  }\n  b = system 'B'\n\n  a -> b \"uses\"\n}\n",
		},
		{
			name:    "unindented preceding line uses closing indent plus canonical indent",
			format:  "likec4",
			content: "model {\na = system\n}\n",
			want:    "model {\na = system\n\n  a -> b \"uses\"\n}\n",
		},
		{
			name:    "unindented preceding line in nested structurizr model",
			format:  "structurizr",
			content: "workspace {\n    model {\na = softwareSystem \"A\"\n    }\n}\n",
			want:    "workspace {\n    model {\na = softwareSystem \"A\"\n\n        a -> b \"uses\"\n    }\n}\n",
		},
		{
			name:    "no model block falls back to last closing brace",
			format:  "likec4",
			content: "extend a {\n  b = container\n}\n",
			want:    "extend a {\n  b = container\n\n  a -> b \"uses\"\n}\n",
		},
		{
			name:    "no braces at all",
			format:  "likec4",
			content: "a -> b\n",
			wantErr: ErrNoInsertionPoint,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := insertLines(tt.content, []string{`a -> b "uses"`}, mustFormat(t, tt.format))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrecheck(t *testing.T) {
	f := mustFormat(t, "likec4")
	original := "model {\n  a = system\n  b = system\n}\n"
	lines := []string{"a -> b"}

	tests := []struct {
		name      string
		candidate string
		wantErr   string
	}{
		{name: "accepted", candidate: "model {\n  a = system\n  b = system\n    a -> b\n}\n"},
		{name: "no model block", candidate: "a = system\nb = system\na -> b\nx\n", wantErr: "model block"},
		{name: "unclosed", candidate: "model {\n  a = system\n  b = system\n  a -> b\n", wantErr: "unbalanced"},
		{name: "early close", candidate: "}\nmodel {\n  a = system\n  b = system\n  a -> b\n", wantErr: "unbalanced"},
		{name: "shrunk", candidate: "model {\n  a -> b\n}\n", wantErr: "shrank"},
		{name: "unterminated string", candidate: "model {\n  a = system\n  b = system\n  a -> b\n  description '''\n}\n", wantErr: "unterminated"},
		{name: "line missing", candidate: "model {\n  a = system\n  b = system\n  b -> a\n}\n", wantErr: "missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := precheck(original, tt.candidate, lines, f)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
