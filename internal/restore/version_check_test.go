package restore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlrestore/internal/metadata"
)

func TestParseSQLServerVersion(t *testing.T) {
	tests := []struct {
		input   string
		major   int
		build   int
		product string
	}{
		{"Microsoft SQL Server 2022 (RTM-CU12) (KB5033663) - 16.0.4115.5 (X64)\n\tMar  4 2024", 16, 4115, "SQL Server 2022"},
		{"Microsoft SQL Server 2019 (RTM) - 15.0.2000.5 (X64)", 15, 2000, "SQL Server 2019"},
		{"Microsoft SQL Server 2012 - 11.0.2100.60 (X64)", 11, 2100, "SQL Server 2012"},
	}

	for _, tt := range tests {
		v, err := ParseSQLServerVersion(tt.input)
		require.NoError(t, err)
		assert.Equal(t, tt.major, v.Major)
		assert.Equal(t, tt.build, v.Build)
		assert.Equal(t, tt.product, v.ProductName())
		assert.NotContains(t, v.Full, "\n")
	}

	_, err := ParseSQLServerVersion("PostgreSQL 17.2")
	assert.Error(t, err)
}

func TestCheckURLSupport(t *testing.T) {
	urlPlan := func(paths ...string) *Plan {
		plan := &Plan{}
		for _, p := range paths {
			plan.Points = append(plan.Points, RestorePoint{
				Type:        metadata.BackupTypeLog,
				Descriptors: []metadata.BackupFileDescriptor{{Path: p}},
			})
		}
		return plan
	}

	sql2019 := &VersionInfo{Major: 15}
	sql2022 := &VersionInfo{Major: 16}

	assert.NoError(t, CheckURLSupport(sql2019, urlPlan("https://acct.blob.core.windows.net/bak/a.bak")))
	assert.NoError(t, CheckURLSupport(sql2022, urlPlan("s3://minio:9000/bak/a.bak")))

	err := CheckURLSupport(sql2019, urlPlan("s3://minio:9000/bak/a.bak", "gs://bucket/b.bak"))
	var preErr *PreconditionError
	require.True(t, errors.As(err, &preErr))
	assert.Equal(t, 2, preErr.Len())
	assert.Contains(t, err.Error(), "SQL Server 2022 or later")
}
