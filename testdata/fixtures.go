// Package testdata provides helpers for installing fake plugins into a
// temporary plugin directory during tests.
package testdata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// InstallScriptPlugin writes a plugin directory containing a plugin.json
// manifest and a shell script as the executable. The script receives the
// request JSON on stdin and must write a response JSON to stdout.
func InstallScriptPlugin(pluginDir, name string, actions []string, script string) error {
	dir := filepath.Join(pluginDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	manifest := map[string]interface{}{
		"name":       name,
		"version":    "0.0.1",
		"executable": name + ".sh",
		"actions":    actions,
	}
	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "plugin.json"), manifestJSON, 0644); err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, name+".sh"), []byte(script), 0755)
}

// InstallEchoPlugin installs a plugin that echoes the request it received
// back inside the response data.
func InstallEchoPlugin(pluginDir, name string, actions []string) error {
	script := `#!/bin/sh
INPUT=$(cat)
echo "{\"success\":true,\"data\":{\"received\":$INPUT}}"
`
	return InstallScriptPlugin(pluginDir, name, actions, script)
}

// InstallFailingPlugin installs a plugin whose process always exits nonzero.
func InstallFailingPlugin(pluginDir, name string, actions []string) error {
	script := fmt.Sprintf(`#!/bin/sh
echo "%s exploded" >&2
exit 1
`, name)
	return InstallScriptPlugin(pluginDir, name, actions, script)
}
