package attack

import (
	"bufio"
	"os"
	"strings"

	"github.com/ZerkerEOD/krakenwifi/internal/models"
	"github.com/ZerkerEOD/krakenwifi/pkg/debug"
)

// ParseOutputFile reads a hashcat output file and returns one crack
// record per parseable line. Each line is split on the first colon only:
// the identifier precedes it and the plaintext is everything after,
// including any further colons the password legitimately contains. Lines
// without a colon are skipped. A missing file means the run produced no
// cracks and is not an error.
func ParseOutputFile(path, hashTypeLabel string) ([]models.CrackResult, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			debug.Debug("Output file %s not present, zero results", path)
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var results []models.CrackResult
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			debug.Warning("Skipping malformed output line without delimiter: %q", line)
			continue
		}
		results = append(results, models.CrackResult{
			Hash:     line[:idx],
			Password: line[idx+1:],
			HashType: hashTypeLabel,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return results, nil
}
