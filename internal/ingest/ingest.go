// Package ingest reads identity lists and writes discovery exports.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/terisuke/cohort/internal/model"
)

// handleColumns are the CSV headers accepted as the handle column, in
// preference order.
var handleColumns = []string{"account", "username", "name", "handle"}

// ReadIdentities reads account handles from a file. A file whose first
// non-comment line contains a recognized CSV header is parsed as CSV;
// anything else is treated as one handle per line with `#` comments.
// Handles are sigil-stripped and deduplicated case-insensitively,
// first occurrence winning.
func ReadIdentities(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open identity file: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	header := firstContentLine(lines)
	if col := headerColumn(header); col >= 0 {
		return readCSV(strings.NewReader(string(data)), col)
	}
	return readLines(lines), nil
}

func firstContentLine(lines []string) string {
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			return trimmed
		}
	}
	return ""
}

// headerColumn returns the index of the handle column in a CSV header
// line, or -1 if the line is not a recognized header.
func headerColumn(line string) int {
	fields := strings.Split(line, ",")
	for i, field := range fields {
		name := strings.ToLower(strings.TrimSpace(field))
		for _, candidate := range handleColumns {
			if name == candidate {
				return i
			}
		}
	}
	return -1
}

func readCSV(r io.Reader, col int) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse identity csv: %w", err)
	}
	if len(records) < 2 {
		return []string{}, nil
	}

	var handles []string
	seen := make(map[string]bool)
	for _, record := range records[1:] {
		if col >= len(record) {
			continue
		}
		handle := model.NormalizeHandle(record[col])
		key := model.HandleKey(handle)
		if handle == "" || seen[key] {
			continue
		}
		seen[key] = true
		handles = append(handles, handle)
	}
	return handles, nil
}

func readLines(lines []string) []string {
	var handles []string
	seen := make(map[string]bool)
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		handle := model.NormalizeHandle(trimmed)
		key := model.HandleKey(handle)
		if handle == "" || seen[key] {
			continue
		}
		seen[key] = true
		handles = append(handles, handle)
	}
	return handles
}

// WriteDiscovery exports discovered candidates as a CSV plus a
// companion plain handle list suitable for re-ingestion. It returns
// the CSV path.
func WriteDiscovery(dir, runID string, candidates []model.AccountCandidate) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	csvPath := filepath.Join(dir, "discovered_"+runID+".csv")
	f, err := os.Create(csvPath)
	if err != nil {
		return "", fmt.Errorf("create export: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.Write([]string{
		"handle", "display_name", "confidence", "profile_url", "description",
		"source", "quality_score", "diversity_score", "followers_count",
		"tweet_count", "region", "language", "dominant_sentiment",
		"last_tweet_at", "account_created_at",
	}); err != nil {
		return "", fmt.Errorf("write export header: %w", err)
	}
	for _, c := range candidates {
		record := []string{
			c.Handle,
			c.DisplayName,
			strconv.FormatFloat(c.Confidence, 'f', 2, 64),
			c.ProfileURL,
			c.Description,
			c.Source,
			strconv.FormatFloat(c.QualityScore, 'f', 2, 64),
			strconv.FormatFloat(c.DiversityScore, 'f', 3, 64),
			strconv.Itoa(c.FollowersCount),
			strconv.Itoa(c.TweetCount),
			c.Region,
			c.Language,
			c.DominantSentiment,
			c.LastTweetAt,
			c.AccountCreatedAt,
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("write export row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush export: %w", err)
	}

	handlesPath := filepath.Join(dir, "discovered_"+runID+"_handles.txt")
	var b strings.Builder
	b.WriteString("# discovered accounts, one handle per line\n")
	for _, c := range candidates {
		b.WriteString(model.NormalizeHandle(c.Handle))
		b.WriteByte('\n')
	}
	if err := os.WriteFile(handlesPath, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write handle list: %w", err)
	}

	return csvPath, nil
}
