package policy

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// DefaultPatterns are the glob patterns used to find policy files when the
// configuration does not override them.
var DefaultPatterns = []string{"*.yaml", "*.yml"}

// LoadDir reads every policy file matching the patterns under dir and returns
// the policies keyed by DAO name. A file whose "dao" field collides with an
// earlier file is an error rather than a silent override.
func LoadDir(dir string, patterns []string) (map[string]*Policy, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	files, err := resolveFiles(dir, patterns)
	if err != nil {
		return nil, err
	}

	policies := make(map[string]*Policy, len(files))
	source := make(map[string]string, len(files))

	for _, path := range files {
		p, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if prev, ok := source[p.DAO]; ok {
			return nil, fmt.Errorf("policy for %q defined in both %s and %s", p.DAO, prev, path)
		}
		policies[p.DAO] = p
		source[p.DAO] = path
	}

	return policies, nil
}

// LoadFile reads and validates a single policy file. Fields absent from the
// file keep their default values, so a policy file only needs to state what
// it tightens or loosens.
func LoadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}

	p := DefaultPolicy()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse policy %s: %w", path, err)
	}

	if p.DAO == "" || p.DAO == "default" {
		// Allow the default policy itself to be overridden from a file
		// named default.*, but an unnamed policy in any other file is a
		// mistake.
		base := filepath.Base(path)
		if stem(base) != "default" {
			return nil, fmt.Errorf("policy %s: dao field is required", path)
		}
		p.DAO = "default"
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

// resolveFiles expands the patterns relative to dir, deduplicated and stable.
func resolveFiles(dir string, patterns []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)

	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("resolve pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}

	return files, nil
}

func stem(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
