package metadata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLSNCompare(t *testing.T) {
	tests := []struct {
		a, b LSN
		want int
	}{
		{"100", "100", 0},
		{"99", "100", -1},
		{"35000000012300001", "35000000012200001", 1},
		{"000100", "100", 0},
		{"", "0", 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.a.Compare(tt.b), "%s vs %s", tt.a, tt.b)
	}
}

func TestParseLSN(t *testing.T) {
	lsn, err := ParseLSN(" 00042000000001600001 ")
	require.NoError(t, err)
	assert.Equal(t, LSN("42000000001600001"), lsn)

	_, err = ParseLSN("12a")
	assert.Error(t, err)

	zero, err := ParseLSN("")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
}

func TestLSNUnmarshalJSON_NumberAndString(t *testing.T) {
	var d struct {
		A LSN `json:"a"`
		B LSN `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 35000000012300001, "b": "110"}`), &d))
	assert.Equal(t, LSN("35000000012300001"), d.A)
	assert.Equal(t, LSN("110"), d.B)
}

func TestParseBackupType(t *testing.T) {
	tests := map[string]BackupType{
		"D":            BackupTypeFull,
		"full":         BackupTypeFull,
		"I":            BackupTypeDifferential,
		"Differential": BackupTypeDifferential,
		"L":            BackupTypeLog,
		"log":          BackupTypeLog,
	}
	for in, want := range tests {
		got, err := ParseBackupType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseBackupType("incremental")
	assert.Error(t, err)
}

func TestParseFileType(t *testing.T) {
	ft, err := ParseFileType("S")
	require.NoError(t, err)
	assert.Equal(t, FileTypeFileStream, ft)

	_, err = ParseFileType("X")
	assert.Error(t, err)
}

func TestDescriptorValidate(t *testing.T) {
	d := BackupFileDescriptor{Path: "/backups/a.bak", Type: BackupTypeFull, FirstLSN: "200", LastLSN: "100"}
	assert.Error(t, d.Validate())

	d.LastLSN = "300"
	assert.NoError(t, d.Validate())

	d.Path = ""
	assert.Error(t, d.Validate())
}

func TestDescriptorValidate_LogRequiresStartTime(t *testing.T) {
	d := BackupFileDescriptor{Path: "/backups/a.trn", Type: BackupTypeLog, FirstLSN: "105", LastLSN: "120"}
	assert.ErrorContains(t, d.Validate(), "no start time")

	d.StartTime = time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	assert.NoError(t, d.Validate())

	full := BackupFileDescriptor{Path: "/backups/a.bak", Type: BackupTypeFull, FirstLSN: "100"}
	assert.NoError(t, full.Validate())
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://acct.blob.core.windows.net/c/db.bak"))
	assert.True(t, IsURL("s3://bucket/db.bak"))
	assert.False(t, IsURL(`\\fileserver\share\db.bak`))
	assert.False(t, IsURL(`D:\Backups\db.bak`))
}

const yamlManifest = `
version: "1"
database: Sales
backups:
  - path: /backups/sales_full.bak
    type: D
    first_lsn: 100
    last_lsn: 105
    start_time: 2024-03-01T01:00:00Z
    files:
      - logical_name: Sales
        physical_name: /var/opt/mssql/data/Sales.mdf
        type: D
      - logical_name: Sales_log
        physical_name: /var/opt/mssql/data/Sales_log.ldf
        type: L
  - path: /backups/sales_log1.trn
    type: log
    first_lsn: "105"
    last_lsn: "110"
    start_time: 2024-03-01T02:00:00Z
    backup_set_id: "2"
`

func TestParseManifest_YAML(t *testing.T) {
	m, err := ParseManifest([]byte(yamlManifest), FormatYAML)
	require.NoError(t, err)

	require.Len(t, m.Backups, 2)
	assert.Equal(t, "Sales", m.Backups[0].Database, "database inherited from manifest")
	assert.Equal(t, BackupTypeFull, m.Backups[0].Type)
	assert.Equal(t, LSN("100"), m.Backups[0].FirstLSN)
	assert.Equal(t, FileTypeLog, m.Backups[0].Files[1].Type)
	assert.Equal(t, BackupTypeLog, m.Backups[1].Type)
	assert.Equal(t, time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC), m.Backups[1].StartTime.UTC())
}

func TestParseManifest_Empty(t *testing.T) {
	_, err := ParseManifest([]byte(`{"database":"x","backups":[]}`), FormatJSON)
	assert.Error(t, err)
}

func TestManifestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := &Manifest{
		Database:    "Sales",
		GeneratedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Backups: []BackupFileDescriptor{
			{Path: "/b/full.bak", Type: BackupTypeFull, FirstLSN: "35000000012300001", StartTime: time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC)},
		},
	}

	for _, name := range []string{"m.yaml", "m.json"} {
		path := filepath.Join(dir, name)
		require.NoError(t, m.Save(path))

		loaded, err := LoadManifest(path)
		require.NoError(t, err, name)
		assert.Equal(t, ManifestVersion, loaded.Version)
		assert.Equal(t, LSN("35000000012300001"), loaded.Backups[0].FirstLSN, name)
	}

	assert.Error(t, m.Save(filepath.Join(dir, "m.txt")))
}

func TestListManifests_SkipsInvalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0644))

	older := &Manifest{Database: "A", GeneratedAt: time.Now().Add(-time.Hour),
		Backups: []BackupFileDescriptor{{Path: "a.bak", Type: BackupTypeFull}}}
	newer := &Manifest{Database: "B", GeneratedAt: time.Now(),
		Backups: []BackupFileDescriptor{{Path: "b.bak", Type: BackupTypeFull}}}
	require.NoError(t, older.Save(filepath.Join(dir, "a.yaml")))
	require.NoError(t, newer.Save(filepath.Join(dir, "b.json")))

	list, err := ListManifests(dir)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "B", list[0].Database)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.5 KiB", FormatSize(1536))
	assert.Equal(t, "2.0 GiB", FormatSize(2<<30))
}
