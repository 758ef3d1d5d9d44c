package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const validManifestTOML = `
[module]
id = "parser-json"
name = "JSON Parser"
version = "1.0.0"
entry_point = "parser.so"
description = "Parses JSON documents into the internal AST"
authors = ["autodev-team"]
license = "MIT"
category = "parser"

[capabilities]
provides = ["module:call:parser.v1"]

[compatibility]
auto_dev_version = "1.0.0"
platform = "linux/amd64"
`

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "module.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadManifestAcceptsValidManifest(t *testing.T) {
	path := writeManifest(t, validManifestTOML)
	m, err := LoadManifest(path)
	require.NoError(t, err)
	require.Equal(t, "parser-json", m.Module.ID)
	require.Equal(t, "parser", string(m.Module.Category))
	require.Equal(t, []string{"module:call:parser.v1"}, m.Capabilities.Provides)
}

func TestLoadManifestRejectsMissingName(t *testing.T) {
	path := writeManifest(t, `
[module]
id = "x"
version = "1.0.0"
description = "d"
authors = ["a"]
license = "MIT"
category = "parser"

[capabilities]
provides = ["system:noop"]

[compatibility]
auto_dev_version = "1.0.0"
platform = "linux/amd64"
`)
	_, err := LoadManifest(path)
	require.Error(t, err)
}

func TestLoadManifestRejectsInvalidCategory(t *testing.T) {
	path := writeManifest(t, `
[module]
id = "x"
name = "X"
version = "1.0.0"
description = "d"
authors = ["a"]
license = "MIT"
category = "not-a-real-category"

[capabilities]
provides = ["system:noop"]

[compatibility]
auto_dev_version = "1.0.0"
platform = "linux/amd64"
`)
	_, err := LoadManifest(path)
	require.Error(t, err)
}

func TestLoadManifestRejectsEmptyCapabilitiesProvides(t *testing.T) {
	path := writeManifest(t, `
[module]
id = "x"
name = "X"
version = "1.0.0"
description = "d"
authors = ["a"]
license = "MIT"
category = "parser"

[compatibility]
auto_dev_version = "1.0.0"
platform = "linux/amd64"
`)
	_, err := LoadManifest(path)
	require.Error(t, err)
}

func TestLoadManifestRejectsMissingCompatibility(t *testing.T) {
	path := writeManifest(t, `
[module]
id = "x"
name = "X"
version = "1.0.0"
description = "d"
authors = ["a"]
license = "MIT"
category = "parser"

[capabilities]
provides = ["system:noop"]
`)
	_, err := LoadManifest(path)
	require.Error(t, err)
}

func TestSaveManifestRoundTrips(t *testing.T) {
	path := writeManifest(t, validManifestTOML)
	m, err := LoadManifest(path)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "module.toml")
	require.NoError(t, SaveManifest(out, m))

	reloaded, err := LoadManifest(out)
	require.NoError(t, err)
	require.Equal(t, m, reloaded)
}
