package xcodeproj

import (
	"fmt"
	"os"
	"path/filepath"
)

// Open reads the project.pbxproj inside xcodeprojPath.
func Open(xcodeprojPath string) (*Project, error) {
	pbxprojPath := filepath.Join(xcodeprojPath, "project.pbxproj")
	data, err := os.ReadFile(pbxprojPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", pbxprojPath, err)
	}
	doc, err := decodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", pbxprojPath, err)
	}
	return &Project{
		XcodeprojPath: xcodeprojPath,
		PbxprojPath:   pbxprojPath,
		doc:           doc,
	}, nil
}

// DiscoverProjects opens rootXcodeprojPath and transitively opens every
// referenced sub-project of type "wrapper.pb-project", deduplicated by
// absolute path and excluding the root itself. The root project is always
// first in the returned slice.
func DiscoverProjects(rootXcodeprojPath string) ([]*Project, error) {
	rootAbs, err := filepath.Abs(rootXcodeprojPath)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", rootXcodeprojPath, err)
	}
	root, err := Open(rootAbs)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{rootAbs: true}
	projects := []*Project{root}

	queue := []*Project{root}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		subPaths := p.subProjectPaths()
		for _, sp := range subPaths {
			abs, err := filepath.Abs(sp)
			if err != nil || visited[abs] {
				continue
			}
			visited[abs] = true
			sub, err := Open(abs)
			if err != nil {
				// A dangling sub-project reference is not fatal to
				// discovery of the rest of the workspace.
				continue
			}
			projects = append(projects, sub)
			queue = append(queue, sub)
		}
	}
	return projects, nil
}

// subProjectPaths returns the resolved directory paths of every file
// reference in p whose lastKnownFileType is "wrapper.pb-project".
func (p *Project) subProjectPaths() []string {
	var out []string
	srcroot := filepath.Dir(p.PbxprojPath)
	for uuid, obj := range p.doc.Objects {
		if isaOf(obj) != isaFileReference {
			continue
		}
		if asString(obj["lastKnownFileType"]) != wrapperProjectFileType {
			continue
		}
		ref, ok := p.ResolveFileReference(uuid)
		if !ok {
			continue
		}
		path, err := p.ResolvePath(ref, srcroot)
		if err != nil {
			continue
		}
		out = append(out, path)
	}
	return out
}
