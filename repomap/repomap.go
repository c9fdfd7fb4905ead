// Package repomap resolves source repository names to their target
// organization equivalents and rewrites issue URLs accordingly.
package repomap

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Map is the repository lookup table. Names absent from the table
// resolve to themselves, so a partial table only redirects the
// repositories it names.
type Map struct {
	entries map[string]string
	ignore  bool
}

// Ignored returns a Map that resolves every name to itself,
// regardless of any mapping file contents.
func Ignored() *Map {
	return &Map{ignore: true}
}

// Load parses a mapping file of "source,target" lines. Blank lines
// and lines starting with # are skipped; anything else without a
// comma is a parse error.
func Load(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open repository mapping: %w", err)
	}
	defer f.Close()

	m := &Map{entries: make(map[string]string)}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		source, target, ok := strings.Cut(line, ",")
		if !ok {
			return nil, fmt.Errorf("repository mapping %s:%d: expected source,target", path, lineNo)
		}
		m.entries[strings.TrimSpace(source)] = strings.TrimSpace(target)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read repository mapping: %w", err)
	}
	return m, nil
}

// Resolve returns the target-side name for repo. Unmapped names come
// back unchanged.
func (m *Map) Resolve(repo string) string {
	if m == nil || m.ignore {
		return repo
	}
	if target, ok := m.entries[repo]; ok {
		return target
	}
	return repo
}

// RewriteURL substitutes the organization and repository segments of
// an issue or pull request URL (https://host/org/repo/issues/n),
// leaving the scheme, host and path suffix untouched.
func RewriteURL(issueURL, targetOrg string, m *Map) (string, error) {
	u, err := url.Parse(issueURL)
	if err != nil {
		return "", fmt.Errorf("parse item url %q: %w", issueURL, err)
	}
	segments := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
	if len(segments) < 2 || segments[0] == "" || segments[1] == "" {
		return "", fmt.Errorf("item url %q has no org/repo segments", issueURL)
	}
	segments[0] = targetOrg
	segments[1] = m.Resolve(segments[1])
	u.Path = "/" + strings.Join(segments, "/")
	return u.String(), nil
}
