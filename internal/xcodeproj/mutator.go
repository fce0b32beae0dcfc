package xcodeproj

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"howett.net/plist"
)

// backupFileName is the sibling filename a project.pbxproj is copied to
// before mutation.
const backupFileName = "project.xcodecache_backup_pbxproj"

// BackupPath returns the backup sibling path for a project.pbxproj.
func BackupPath(pbxprojPath string) string {
	return filepath.Join(filepath.Dir(pbxprojPath), backupFileName)
}

// Backup copies pbxprojPath to its backup sibling, overwriting any
// existing backup. Call before mutating a project.
func Backup(pbxprojPath string) error {
	data, err := os.ReadFile(pbxprojPath)
	if err != nil {
		return fmt.Errorf("backing up %s: %w", pbxprojPath, err)
	}
	if err := os.WriteFile(BackupPath(pbxprojPath), data, 0o644); err != nil {
		return fmt.Errorf("backing up %s: %w", pbxprojPath, err)
	}
	return nil
}

// Restore renames the backup sibling back over pbxprojPath, if a backup
// exists. It is a no-op if there is nothing to restore, so it is safe to
// call unconditionally during cleanup.
func Restore(pbxprojPath string) error {
	backup := BackupPath(pbxprojPath)
	if _, err := os.Stat(backup); err != nil {
		return nil
	}
	if err := os.Rename(backup, pbxprojPath); err != nil {
		return fmt.Errorf("restoring %s: %w", pbxprojPath, err)
	}
	return nil
}

// CleanBackup force-removes the backup sibling, if present.
func CleanBackup(pbxprojPath string) error {
	if err := os.Remove(BackupPath(pbxprojPath)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing backup for %s: %w", pbxprojPath, err)
	}
	return nil
}

// Save serializes p back to its project.pbxproj in OpenStep format.
func (p *Project) Save() error {
	data, err := plist.MarshalIndent(p.doc, plist.OpenStepFormat, "\t")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", p.PbxprojPath, err)
	}
	if err := os.WriteFile(p.PbxprojPath, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", p.PbxprojPath, err)
	}
	return nil
}

// newObjectUUID generates a 24-character hex identifier in the shape
// Xcode itself uses for new object references.
func newObjectUUID() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating object id: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

// RemoveSourceHeaderResourcePhases strips the sources, headers, and
// resources build phases from t, deleting their backing objects and
// removing them from the target's buildPhases list.
func (t *Target) RemoveSourceHeaderResourcePhases() {
	remove := map[string]bool{
		isaSourcesBuildPhase:   true,
		isaHeadersBuildPhase:   true,
		isaResourcesBuildPhase: true,
	}
	var kept []string
	for _, uuid := range t.buildPhaseUUIDs {
		obj, ok := t.proj.object(uuid)
		if ok && remove[isaOf(obj)] {
			delete(t.proj.doc.Objects, uuid)
			continue
		}
		kept = append(kept, uuid)
	}
	t.buildPhaseUUIDs = kept
	t.syncBuildPhases()
}

// AppendShellScriptPhase appends a new shell-script build phase named name
// running script, with environment variables exposed in the build log, and
// returns its object UUID.
func (t *Target) AppendShellScriptPhase(name, script string) (string, error) {
	uuid, err := newObjectUUID()
	if err != nil {
		return "", err
	}
	t.proj.doc.Objects[uuid] = rawDict{
		"isa":                 isaShellScriptBuildPhase,
		"name":                name,
		"shellPath":           "/bin/sh",
		"shellScript":         script,
		"showEnvVarsInLog":    "1",
		"inputPaths":          []interface{}{},
		"outputPaths":         []interface{}{},
		"files":               []interface{}{},
		"runOnlyForDeploymentPostprocessing": "0",
	}
	t.buildPhaseUUIDs = append(t.buildPhaseUUIDs, uuid)
	t.syncBuildPhases()
	return uuid, nil
}

// syncBuildPhases writes t.buildPhaseUUIDs back into the target's own
// object dictionary.
func (t *Target) syncBuildPhases() {
	obj, ok := t.proj.object(t.UUID)
	if !ok {
		return
	}
	phases := make([]interface{}, len(t.buildPhaseUUIDs))
	for i, u := range t.buildPhaseUUIDs {
		phases[i] = u
	}
	obj["buildPhases"] = phases
}

// ExtractScriptName returns the name of the shell-script phase
// disable_and_inject_extract appends for the named target.
func ExtractScriptName(targetName string) string {
	return "xcodecache_extract_" + targetName
}

// PrintenvScriptName returns the name of the shell-script phase
// inject_printenv appends for the named target.
func PrintenvScriptName(targetName string) string {
	return "xcodecache_printenv_" + targetName
}
