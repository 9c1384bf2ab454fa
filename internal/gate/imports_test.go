package gate

import (
	"go/parser"
	"go/token"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The evaluator is pure; it must not pull in storage, file watching or
// logging through the lawbook service package.
func TestEvaluatorImportsStayPure(t *testing.T) {
	forbidden := []string{
		"github.com/davidahmann/lawgate/internal/lawbook",
		"github.com/davidahmann/lawgate/internal/ledger",
		"github.com/fsnotify/fsnotify",
		"go.uber.org/zap",
	}
	entries, err := os.ReadDir(".")
	require.NoError(t, err)
	fset := token.NewFileSet()
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, name, nil, parser.ImportsOnly)
		require.NoError(t, err)
		for _, imp := range f.Imports {
			path, err := strconv.Unquote(imp.Path.Value)
			require.NoError(t, err)
			assert.NotContains(t, forbidden, path, "%s imports %s", name, path)
		}
	}
}
