package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	derrors "git.home.luguber.info/inful/distbuilder/internal/errors"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
)

// PackageDescriptor is the file name of the output package descriptor.
const PackageDescriptor = "package.json"

// PatchPackageType makes sure the output package descriptor declares the given
// linkage type ("module" or "commonjs"). Other fields are preserved and the
// write is skipped when the descriptor is already consistent. It reports
// whether the file was written.
func (m *Manager) PatchPackageType(packageType string) (bool, error) {
	path := filepath.Join(m.root, PackageDescriptor)

	desc := map[string]json.RawMessage{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &desc); err != nil {
			return false, derrors.FilesystemError("patch_metadata", fmt.Errorf("parse %s: %w", path, err))
		}
	case os.IsNotExist(err):
	default:
		return false, derrors.FilesystemError("patch_metadata", err).WithContext("path", path)
	}

	want, _ := json.Marshal(packageType)
	if cur, ok := desc["type"]; ok && bytes.Equal(bytes.TrimSpace(cur), want) {
		slog.Debug("Package descriptor already consistent", logfields.Path(path))
		return false, nil
	}
	desc["type"] = want

	out, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return false, derrors.InternalError("encode package descriptor", err)
	}
	if err := m.WriteArtifact(path, append(out, '\n')); err != nil {
		return false, err
	}
	slog.Info("Patched package descriptor", logfields.Path(path), slog.String("type", packageType))
	return true, nil
}

// DerivedConfig writes a temporary compiler configuration next to base with
// compilerOptions overridden by overrides. When base does not parse as plain
// JSON (comments, trailing commas) the derived file extends it instead of
// copying it. The returned release func deletes the file and is safe to call
// more than once; callers defer it so every return path cleans up.
func DerivedConfig(base string, overrides map[string]any) (string, func(), error) {
	doc := map[string]any{}
	if data, err := os.ReadFile(base); err == nil {
		if jerr := json.Unmarshal(data, &doc); jerr != nil {
			doc = map[string]any{"extends": "./" + filepath.Base(base)}
		}
	} else if !os.IsNotExist(err) {
		return "", func() {}, derrors.FilesystemError("derived_config", err).WithContext("path", base)
	}

	opts, _ := doc["compilerOptions"].(map[string]any)
	if opts == nil {
		opts = map[string]any{}
	}
	for k, v := range overrides {
		opts[k] = v
	}
	doc["compilerOptions"] = opts

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", func() {}, derrors.InternalError("encode derived config", err)
	}

	name := fmt.Sprintf("tsconfig.distbuilder-%s.json", uuid.NewString()[:8])
	path := filepath.Join(filepath.Dir(base), name)
	// #nosec G306 -- temporary config read by the compiler toolchain
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", func() {}, derrors.FilesystemError("derived_config", err).WithContext("path", path)
	}
	slog.Debug("Wrote derived compiler config", logfields.Path(path))

	release := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove derived compiler config", logfields.Path(path), logfields.Error(err))
		}
	}
	return path, release, nil
}
