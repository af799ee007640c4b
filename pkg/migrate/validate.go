package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// Migrations run against both postgres and the sqlite dev/test database, so
// constructs only one dialect understands are rejected.
var nonPortable = []struct {
	re   *regexp.Regexp
	hint string
}{
	{regexp.MustCompile(`(?i)\bgen_random_uuid\s*\(`), "ids are generated by the application"},
	{regexp.MustCompile(`(?i)\bnow\s*\(\s*\)`), "use CURRENT_TIMESTAMP"},
	{regexp.MustCompile(`(?i)\b(big)?serial\b`), "use explicit allocation"},
	{regexp.MustCompile(`(?i)\bjsonb\b`), "store JSON as TEXT"},
	{regexp.MustCompile(`(?i)\bcreate\s+(type|extension)\b`), "use TEXT with a CHECK constraint"},
	{regexp.MustCompile(`::`), "casts are postgres only"},
}

// ValidateDir checks migration filenames, goose annotations and dialect
// portability. It returns the number of migrations checked.
func ValidateDir(dir string) (int, error) {
	if dir == "" {
		return 0, fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{}
	count := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		name := e.Name()

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return count, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := seen[m[1]]; ok {
			return count, fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		seen[m[1]] = name

		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return count, fmt.Errorf("read file %q: %w", name, err)
		}
		if err := validateSQL(name, string(b)); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func validateSQL(name, txt string) error {
	up := strings.Index(txt, "-- +goose Up")
	down := strings.Index(txt, "-- +goose Down")
	switch {
	case up < 0:
		return fmt.Errorf("migration %q missing \"-- +goose Up\"", name)
	case down < 0:
		return fmt.Errorf("migration %q missing \"-- +goose Down\"", name)
	case down < up:
		return fmt.Errorf("migration %q has Down before Up", name)
	}
	if strings.Count(txt, "-- +goose StatementBegin") != strings.Count(txt, "-- +goose StatementEnd") {
		return fmt.Errorf("migration %q has unbalanced StatementBegin/StatementEnd", name)
	}

	for i, line := range strings.Split(txt, "\n") {
		code := line
		if idx := strings.Index(code, "--"); idx >= 0 {
			code = code[:idx]
		}
		for _, rule := range nonPortable {
			if rule.re.MatchString(code) {
				return fmt.Errorf("migration %q line %d is not portable (%s): %s", name, i+1, rule.hint, strings.TrimSpace(line))
			}
		}
	}
	return nil
}
