package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlrestore/internal/config"
	"sqlrestore/internal/logger"
	"sqlrestore/internal/metadata"
)

func newMockServer(t *testing.T) (*SQLServer, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := New(&config.Config{Server: "sql01", Encrypt: "true"}, logger.NewNullLogger())
	s.db = db
	return s, mock
}

func TestParseServerInstance(t *testing.T) {
	tests := []struct {
		in           string
		wantHost     string
		wantPort     int
		wantInstance string
	}{
		{"sql01", "sql01", 0, ""},
		{"sql01:1533", "sql01", 1533, ""},
		{"tcp:sql01,1533", "sql01", 1533, ""},
		{`sql01\PROD`, "sql01", 0, "PROD"},
		{`sql01\PROD:14330`, "sql01", 14330, "PROD"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			host, port, instance := ParseServerInstance(tt.in)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPort, port)
			assert.Equal(t, tt.wantInstance, instance)
		})
	}
}

func TestBuildDSN(t *testing.T) {
	s := New(&config.Config{
		Server:                 "sql01",
		User:                   "restore_svc",
		Password:               "p@ss;word",
		Database:               "master",
		Encrypt:                "true",
		TrustServerCertificate: true,
		AppName:                "sqlrestore",
		ConnectTimeout:         30,
	}, logger.NewNullLogger())

	u, err := url.Parse(s.buildDSN())
	require.NoError(t, err)

	assert.Equal(t, "sqlserver", u.Scheme)
	assert.Equal(t, "sql01:1433", u.Host)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss;word", pw)
	assert.Equal(t, "master", u.Query().Get("database"))
	assert.Equal(t, "true", u.Query().Get("TrustServerCertificate"))
	assert.Equal(t, "30", u.Query().Get("connection timeout"))

	assert.NotContains(t, sanitizeDSN(s.buildDSN()), "p@ss")
}

func TestBuildDSN_NamedInstance(t *testing.T) {
	s := New(&config.Config{Server: "sql01", Instance: "PROD", Encrypt: "disable"}, logger.NewNullLogger())

	u, err := url.Parse(s.buildDSN())
	require.NoError(t, err)
	assert.Equal(t, "sql01", u.Host, "named instance resolves its port through SQL Browser")
	assert.Equal(t, "/PROD", u.Path)
	assert.Nil(t, u.User)
}

func TestNotConnected(t *testing.T) {
	s := New(&config.Config{}, logger.NewNullLogger())
	ctx := context.Background()

	assert.Error(t, s.Ping(ctx))
	_, err := s.DatabaseInfo(ctx, "x")
	assert.Error(t, err)
	assert.Error(t, s.ExecRestore(ctx, "RESTORE DATABASE [x]"))
	assert.NoError(t, s.Close())
}

func TestServerVersion(t *testing.T) {
	s, mock := newMockServer(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT @@VERSION")).
		WillReturnRows(sqlmock.NewRows([]string{""}).
			AddRow("Microsoft SQL Server 2022 (RTM) - 16.0.1000.6 (X64) \n\tOct  8 2022 05:58:25"))

	version, err := s.ServerVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Microsoft SQL Server 2022 (RTM) - 16.0.1000.6 (X64)", version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseInfo(t *testing.T) {
	s, mock := newMockServer(t)

	mock.ExpectQuery(`FROM sys.databases`).WithArgs("Sales").
		WillReturnRows(sqlmock.NewRows([]string{"name", "state_desc", "is_in_standby", "recovery_model_desc"}).
			AddRow("Sales", "RESTORING", false, "FULL"))
	mock.ExpectQuery(`FROM sys.databases`).WithArgs("Missing").
		WillReturnRows(sqlmock.NewRows([]string{"name", "state_desc", "is_in_standby", "recovery_model_desc"}))

	info, err := s.DatabaseInfo(context.Background(), "Sales")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.True(t, info.IsRestoring())
	assert.Equal(t, "FULL", info.RecoveryModel)

	info, err = s.DatabaseInfo(context.Background(), "Missing")
	require.NoError(t, err)
	assert.Nil(t, info)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDefaultPaths(t *testing.T) {
	s, mock := newMockServer(t)

	mock.ExpectQuery(`InstanceDefaultDataPath`).
		WillReturnRows(sqlmock.NewRows([]string{"data", "log"}).
			AddRow(`D:\MSSQL\Data\`, nil))

	paths, err := s.DefaultPaths(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `D:\MSSQL\Data\`, paths.DataDir)
	assert.Empty(t, paths.LogDir)
}

func TestFileAndDirectoryExists(t *testing.T) {
	s, mock := newMockServer(t)
	cols := []string{"File Exists", "File is a Directory", "Parent Directory Exists"}

	mock.ExpectQuery(`xp_fileexist`).WithArgs(`\\nas\backups\sales.bak`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(1, 0, 1))
	mock.ExpectQuery(`xp_fileexist`).WithArgs(`D:\Data`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(0, 1, 1))
	mock.ExpectQuery(`xp_fileexist`).WithArgs(`E:\missing.trn`).
		WillReturnError(fmt.Errorf("permission denied"))

	ctx := context.Background()

	ok, err := s.FileExists(ctx, `\\nas\backups\sales.bak`)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.DirectoryExists(ctx, `D:\Data`)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.FileExists(ctx, `E:\missing.trn`)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecRestore(t *testing.T) {
	s, mock := newMockServer(t)
	stmt := "RESTORE DATABASE [Sales] FROM DISK = N'/b/full.bak' WITH NORECOVERY"

	mock.ExpectExec(regexp.QuoteMeta(stmt)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(stmt)).WillReturnError(mssql.Error{Number: 3201, Message: "Cannot open backup device"})

	require.NoError(t, s.ExecRestore(context.Background(), stmt))

	err := s.ExecRestore(context.Background(), stmt)
	require.Error(t, err)
	assert.Equal(t, 3201, ErrorNumber(fmt.Errorf("point 1: %w", err)))
	assert.Equal(t, 0, ErrorNumber(errors.New("plain")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBackupHistory(t *testing.T) {
	s, mock := newMockServer(t)

	start := time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC)
	historyCols := []string{"backup_set_id", "uuid", "type", "database_name", "server_name",
		"first_lsn", "last_lsn", "database_backup_lsn", "checkpoint_lsn",
		"backup_start_date", "backup_finish_date", "position", "backup_size", "recovery_model",
		"physical_device_name"}

	mock.ExpectQuery(`FROM msdb.dbo.backupset`).
		WithArgs("Sales", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(historyCols).
			AddRow(int64(10), "A1B2C3D4-0000-0000-0000-000000000001", "D", "Sales", "SQL01",
				"35000000012300001", "35000000014000001", "0", "35000000012300001",
				start, start.Add(5*time.Minute), int64(1), int64(1<<30), "FULL", `\\nas\b\sales_1.bak`).
			AddRow(int64(10), "A1B2C3D4-0000-0000-0000-000000000001", "D", "Sales", "SQL01",
				"35000000012300001", "35000000014000001", "0", "35000000012300001",
				start, start.Add(5*time.Minute), int64(1), int64(1<<30), "FULL", `\\nas\b\sales_2.bak`).
			AddRow(int64(11), "A1B2C3D4-0000-0000-0000-000000000002", "L", "Sales", "SQL01",
				"35000000014000001", "35000000015000001", "35000000012300001", nil,
				start.Add(time.Hour), nil, int64(1), int64(4096), "FULL", `\\nas\b\sales_1.trn`))

	mock.ExpectQuery(`FROM msdb.dbo.backupfile`).WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"logical_name", "physical_name", "file_type", "file_size"}).
			AddRow("Sales", `D:\Data\Sales.mdf`, "D", int64(1<<30)).
			AddRow("Sales_log", `L:\Logs\Sales_log.ldf`, "L", int64(1<<28)))

	descs, err := s.BackupHistory(context.Background(), "Sales", time.Time{})
	require.NoError(t, err)
	require.Len(t, descs, 3)

	assert.Equal(t, metadata.BackupTypeFull, descs[0].Type)
	assert.Equal(t, metadata.LSN("35000000012300001"), descs[0].FirstLSN)
	assert.Len(t, descs[0].Files, 2)
	assert.Equal(t, descs[0].Files, descs[1].Files, "stripes share the file list")
	assert.Equal(t, metadata.FileTypeLog, descs[0].Files[1].Type)
	assert.Equal(t, int64(1<<30), descs[0].SizeBytes+descs[1].SizeBytes, "stripes add up to the set size")
	assert.Equal(t, int64(1<<29), descs[1].SizeBytes)
	assert.Equal(t, int64(4096), descs[2].SizeBytes)

	assert.Equal(t, metadata.BackupTypeLog, descs[2].Type)
	assert.True(t, descs[2].FinishTime.IsZero())
	assert.Empty(t, descs[2].Files)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSplitStripeSizes(t *testing.T) {
	descs := []metadata.BackupFileDescriptor{
		{Path: "a_1.bak", SizeBytes: 10},
		{Path: "a_2.bak", SizeBytes: 10},
		{Path: "a_3.bak", SizeBytes: 10},
		{Path: "b.trn", SizeBytes: 7},
	}

	splitStripeSizes(descs, []int64{1, 1, 1, 2})

	assert.Equal(t, int64(4), descs[0].SizeBytes)
	assert.Equal(t, int64(3), descs[1].SizeBytes)
	assert.Equal(t, int64(3), descs[2].SizeBytes)
	assert.Equal(t, int64(7), descs[3].SizeBytes)
}
