package restore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"sqlrestore/internal/database"
	"sqlrestore/internal/metadata"
)

// fakeServer records every call made by the engine
type fakeServer struct {
	mu sync.Mutex

	connectErrs []error // consumed one per Connect call
	connects    int
	closes      int

	version   string
	databases map[string]*database.DatabaseInfo
	files     map[string]bool
	dirs      map[string]bool

	failAt     int // 1-based ExecRestore call that fails, 0 for none
	failErr    error
	statements []string
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		version:   "Microsoft SQL Server 2022 (RTM-CU12) - 16.0.4115.5 (X64)",
		databases: make(map[string]*database.DatabaseInfo),
		files:     make(map[string]bool),
		dirs:      make(map[string]bool),
	}
}

var _ database.Server = (*fakeServer)(nil)

func (f *fakeServer) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		return err
	}
	return nil
}

func (f *fakeServer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeServer) Ping(ctx context.Context) error { return nil }

func (f *fakeServer) ServerVersion(ctx context.Context) (string, error) {
	return f.version, nil
}

func (f *fakeServer) DatabaseInfo(ctx context.Context, name string) (*database.DatabaseInfo, error) {
	return f.databases[strings.ToLower(name)], nil
}

func (f *fakeServer) DefaultPaths(ctx context.Context) (*database.DefaultPaths, error) {
	return &database.DefaultPaths{DataDir: `D:\Data`, LogDir: `L:\Log`}, nil
}

func (f *fakeServer) FileExists(ctx context.Context, path string) (bool, error) {
	return f.files[path], nil
}

func (f *fakeServer) DirectoryExists(ctx context.Context, path string) (bool, error) {
	return f.dirs[path], nil
}

func (f *fakeServer) ExecRestore(ctx context.Context, statement string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statements = append(f.statements, statement)
	if f.failAt > 0 && len(f.statements) == f.failAt {
		return f.failErr
	}
	return nil
}

func (f *fakeServer) BackupHistory(ctx context.Context, db string, since time.Time) ([]metadata.BackupFileDescriptor, error) {
	return nil, nil
}

func (f *fakeServer) addDatabase(name, state string) {
	f.databases[strings.ToLower(name)] = &database.DatabaseInfo{Name: name, State: state, RecoveryModel: "FULL"}
}

// fakeURLs answers URL existence checks from a fixed set
type fakeURLs map[string]bool

func (u fakeURLs) Exists(ctx context.Context, uri string) (bool, error) {
	if strings.Contains(uri, "unreachable") {
		return false, fmt.Errorf("403 Forbidden")
	}
	return u[uri], nil
}

// Backup chain used across the tests: a full at t0, logs every hour after
var t0 = time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)

func salesFiles() []metadata.FileEntry {
	return []metadata.FileEntry{
		{LogicalName: "Sales", PhysicalName: `D:\Data\Sales.mdf`, Type: metadata.FileTypeData},
		{LogicalName: "Sales_log", PhysicalName: `L:\Log\Sales_log.ldf`, Type: metadata.FileTypeLog},
	}
}

func fullBackup(path, firstLSN string, start time.Time) metadata.BackupFileDescriptor {
	return metadata.BackupFileDescriptor{
		Path:          path,
		Type:          metadata.BackupTypeFull,
		Database:      "Sales",
		FirstLSN:      metadata.LSN(firstLSN),
		CheckpointLSN: metadata.LSN(firstLSN),
		StartTime:     start,
		FinishTime:    start.Add(10 * time.Minute),
		Position:      1,
		SizeBytes:     100 * 1024 * 1024,
		RecoveryModel: "FULL",
		Files:         salesFiles(),
	}
}

func diffBackup(path, baseLSN, firstLSN string, start time.Time) metadata.BackupFileDescriptor {
	return metadata.BackupFileDescriptor{
		Path:              path,
		Type:              metadata.BackupTypeDifferential,
		Database:          "Sales",
		FirstLSN:          metadata.LSN(firstLSN),
		DatabaseBackupLSN: metadata.LSN(baseLSN),
		StartTime:         start,
		FinishTime:        start.Add(2 * time.Minute),
		Position:          1,
		SizeBytes:         10 * 1024 * 1024,
		RecoveryModel:     "FULL",
		Files:             salesFiles(),
	}
}

func logBackup(path, setID, firstLSN string, start time.Time) metadata.BackupFileDescriptor {
	return metadata.BackupFileDescriptor{
		Path:          path,
		Type:          metadata.BackupTypeLog,
		Database:      "Sales",
		FirstLSN:      metadata.LSN(firstLSN),
		StartTime:     start,
		BackupSetID:   setID,
		Position:      1,
		SizeBytes:     1024 * 1024,
		RecoveryModel: "FULL",
	}
}

// exampleChain is one full (LSN 100) and two logs (LSN 110 at T1, 120 at T2)
func exampleChain() []metadata.BackupFileDescriptor {
	return []metadata.BackupFileDescriptor{
		logBackup(`\\backup\Sales_log_2.trn`, "set-2", "120", t0.Add(2*time.Hour)),
		fullBackup(`\\backup\Sales_full.bak`, "100", t0),
		logBackup(`\\backup\Sales_log_1.trn`, "set-1", "110", t0.Add(time.Hour)),
	}
}
