package config

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/meshlink/overlay/internal/domain"
)

// LoadSeedDirectory parses the mandated config.csv format (§6): one seed
// per line, "IP,PORT", ASCII. A blank config.csv or a file with only
// blank lines yields an empty, non-nil slice.
func LoadSeedDirectory(path string) ([]domain.SeedID, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrMissingConfig, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // tolerate blank trailing lines
	r.TrimLeadingSpace = true

	seeds := make([]domain.SeedID, 0)
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrBadSeedLine, err)
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		if len(record) != 2 {
			return nil, fmt.Errorf("%w: expected IP,PORT, got %v", domain.ErrBadSeedLine, record)
		}
		ip := strings.TrimSpace(record[0])
		port, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("%w: bad port %q", domain.ErrBadSeedLine, record[1])
		}
		seeds = append(seeds, domain.SeedID{IP: ip, Port: port})
	}
	return seeds, nil
}

// Majority returns floor(n/2)+1, the consensus-majority size used by both
// §4.2 (ADD, among seeds) and §4.2 (REMOVE, among distinct reporters).
func Majority(n int) int {
	return n/2 + 1
}
