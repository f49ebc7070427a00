package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Save writes text into dir under base and rotates earlier reports. The
// current report keeps the bare name; older ones get a number before the
// extension (audit-report.txt, audit-report.1.txt, ...). At most keep files
// survive; the oldest is dropped.
func Save(dir, base string, keep int, text string) (string, error) {
	if keep < 1 {
		keep = 1
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	name := func(n int) string {
		if n == 0 {
			return filepath.Join(dir, base)
		}
		return filepath.Join(dir, fmt.Sprintf("%s.%d%s", stem, n, ext))
	}

	if err := os.Remove(name(keep - 1)); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("drop oldest report: %w", err)
	}
	for n := keep - 2; n >= 0; n-- {
		if err := os.Rename(name(n), name(n+1)); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("rotate report %d: %w", n, err)
		}
	}

	path := name(0)
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
