package ingest

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/terisuke/cohort/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadIdentities_LineFormat(t *testing.T) {
	path := writeFile(t, "handles.txt", `# tech accounts
alice
@bob

# duplicates collapse case-insensitively
ALICE
 alice
carol
`)
	handles, err := ReadIdentities(path)
	if err != nil {
		t.Fatalf("ReadIdentities: %v", err)
	}
	want := []string{"alice", "bob", "carol"}
	if len(handles) != len(want) {
		t.Fatalf("handles = %v, want %v", handles, want)
	}
	for i := range want {
		if handles[i] != want[i] {
			t.Errorf("handles[%d] = %q, want %q", i, handles[i], want[i])
		}
	}
}

func TestReadIdentities_CSV(t *testing.T) {
	path := writeFile(t, "accounts.csv", `id,account,followers
1,@alice,5000
2,bob,100
3,ALICE,1
`)
	handles, err := ReadIdentities(path)
	if err != nil {
		t.Fatalf("ReadIdentities: %v", err)
	}
	if len(handles) != 2 || handles[0] != "alice" || handles[1] != "bob" {
		t.Errorf("handles = %v, want [alice bob]", handles)
	}
}

func TestReadIdentities_CSVHandleColumn(t *testing.T) {
	path := writeFile(t, "accounts.csv", `handle,followers
@alice,5000
bob,100
ALICE,1
`)
	handles, err := ReadIdentities(path)
	if err != nil {
		t.Fatalf("ReadIdentities: %v", err)
	}
	if len(handles) != 2 || handles[0] != "alice" || handles[1] != "bob" {
		t.Errorf("handles = %v, want [alice bob]", handles)
	}
}

func TestReadIdentities_CaseInsensitiveHeader(t *testing.T) {
	path := writeFile(t, "accounts.csv", `Username, Region
alice, JP
bob, US
`)
	handles, err := ReadIdentities(path)
	if err != nil {
		t.Fatalf("ReadIdentities: %v", err)
	}
	if len(handles) != 2 || handles[0] != "alice" {
		t.Errorf("handles = %v, want [alice bob]", handles)
	}
}

func TestReadIdentities_MissingFile(t *testing.T) {
	if _, err := ReadIdentities(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestWriteDiscovery(t *testing.T) {
	dir := t.TempDir()

	candidates := []model.AccountCandidate{
		{
			Handle: "alice", DisplayName: "Alice", Source: "x_api",
			Confidence: 0.9, ProfileURL: "https://x.com/alice",
			Description: "ML researcher, Tokyo", FollowersCount: 5000,
			TweetCount: 320, LastTweetAt: "2025-05-30T10:00:00Z",
			AccountCreatedAt: "2019-01-15T00:00:00Z", Region: "JP",
			Language: "ja", DominantSentiment: "positive",
			QualityScore: 0.78, DiversityScore: 0.812,
		},
		{
			Handle: "@bob", DisplayName: "Bob", Source: "web_search",
			Confidence: 0.5, Region: "US", Language: "en",
			DominantSentiment: "neutral", DiversityScore: 0.812,
		},
	}

	csvPath, err := WriteDiscovery(dir, "run1", candidates)
	if err != nil {
		t.Fatalf("WriteDiscovery: %v", err)
	}

	f, err := os.Open(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse export: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(records))
	}
	wantHeader := []string{
		"handle", "display_name", "confidence", "profile_url", "description",
		"source", "quality_score", "diversity_score", "followers_count",
		"tweet_count", "region", "language", "dominant_sentiment",
		"last_tweet_at", "account_created_at",
	}
	if len(records[0]) != len(wantHeader) {
		t.Fatalf("header = %v, want %v", records[0], wantHeader)
	}
	for i := range wantHeader {
		if records[0][i] != wantHeader[i] {
			t.Errorf("header[%d] = %q, want %q", i, records[0][i], wantHeader[i])
		}
	}
	row := records[1]
	if row[0] != "alice" || row[2] != "0.90" || row[3] != "https://x.com/alice" ||
		row[6] != "0.78" || row[7] != "0.812" || row[8] != "5000" ||
		row[9] != "320" || row[13] != "2025-05-30T10:00:00Z" {
		t.Errorf("row 1 = %v", row)
	}

	// The companion handle list round-trips through ReadIdentities.
	handlesPath := filepath.Join(dir, "discovered_run1_handles.txt")
	data, err := os.ReadFile(handlesPath)
	if err != nil {
		t.Fatalf("read handle list: %v", err)
	}
	if !strings.Contains(string(data), "alice") || !strings.Contains(string(data), "bob") {
		t.Errorf("handle list = %q", string(data))
	}

	handles, err := ReadIdentities(handlesPath)
	if err != nil {
		t.Fatalf("re-ingest: %v", err)
	}
	if len(handles) != 2 || handles[0] != "alice" || handles[1] != "bob" {
		t.Errorf("re-ingested = %v, want [alice bob]", handles)
	}
}
