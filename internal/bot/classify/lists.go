package classify

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// TargetList is the on-disk form of a target list file.
type TargetList struct {
	Mobs  []string `yaml:"mobs"`
	Drops []string `yaml:"drops"`
}

// LoadTargetLists reads every *.yaml file in dir, in file name order, and
// merges their lists. Duplicate names keep their first position.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns the merged list or a non-nil error naming the failing file.
func LoadTargetLists(dir string) (TargetList, error) {
	if _, err := os.Stat(dir); err != nil {
		return TargetList{}, fmt.Errorf("reading target directory: %w", err)
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return TargetList{}, fmt.Errorf("listing target files in %s: %w", dir, err)
	}
	sort.Strings(paths)

	var merged TargetList
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return TargetList{}, fmt.Errorf("reading %s: %w", p, err)
		}
		var tl TargetList
		if err := yaml.Unmarshal(data, &tl); err != nil {
			return TargetList{}, fmt.Errorf("parsing %s: %w", p, err)
		}
		merged.Mobs = Merge(merged.Mobs, tl.Mobs)
		merged.Drops = Merge(merged.Drops, tl.Drops)
	}
	return merged, nil
}

// Merge appends extra to base, skipping empty names and names already present.
func Merge(base []string, extra ...[]string) []string {
	seen := make(map[string]bool, len(base))
	out := make([]string, 0, len(base))
	add := func(names []string) {
		for _, n := range names {
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	add(base)
	for _, e := range extra {
		add(e)
	}
	return out
}
