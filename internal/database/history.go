package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sqlrestore/internal/metadata"
)

const backupHistoryQuery = `
SELECT bs.backup_set_id,
       CAST(bs.backup_set_uuid AS nvarchar(36)),
       bs.type,
       bs.database_name,
       bs.server_name,
       CAST(bs.first_lsn AS varchar(25)),
       CAST(bs.last_lsn AS varchar(25)),
       CAST(bs.database_backup_lsn AS varchar(25)),
       CAST(bs.checkpoint_lsn AS varchar(25)),
       bs.backup_start_date,
       bs.backup_finish_date,
       bs.position,
       CAST(bs.backup_size AS bigint),
       bs.recovery_model,
       bmf.physical_device_name
FROM msdb.dbo.backupset bs
JOIN msdb.dbo.backupmediafamily bmf ON bs.media_set_id = bmf.media_set_id
WHERE bs.database_name = @p1
  AND bs.backup_start_date >= @p2
  AND bs.type IN ('D', 'I', 'L')
  AND bs.is_copy_only = 0
ORDER BY bs.backup_start_date, bmf.family_sequence_number`

const backupFilesQuery = `
SELECT logical_name, physical_name, file_type, CAST(file_size AS bigint)
FROM msdb.dbo.backupfile
WHERE backup_set_id = @p1
ORDER BY file_number`

// BackupHistory reads the backup catalog for database from msdb. Every media
// family (stripe) of a backup set becomes its own descriptor.
func (s *SQLServer) BackupHistory(ctx context.Context, database string, since time.Time) ([]metadata.BackupFileDescriptor, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not connected")
	}
	if since.IsZero() {
		since = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	rows, err := s.db.QueryContext(ctx, backupHistoryQuery, database, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query backup history: %w", err)
	}

	var descs []metadata.BackupFileDescriptor
	var setIDs []int64
	for rows.Next() {
		var (
			setID                                  int64
			uuid, typ, dbName, serverName, device  string
			firstLSN, lastLSN, dbBackupLSN, ckpLSN sql.NullString
			start                                  time.Time
			finish                                 sql.NullTime
			position                               sql.NullInt64
			size                                   sql.NullInt64
			recoveryModel                          sql.NullString
		)
		if err := rows.Scan(&setID, &uuid, &typ, &dbName, &serverName,
			&firstLSN, &lastLSN, &dbBackupLSN, &ckpLSN,
			&start, &finish, &position, &size, &recoveryModel, &device); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan backup history row: %w", err)
		}

		backupType, err := metadata.ParseBackupType(typ)
		if err != nil {
			rows.Close()
			return nil, err
		}

		descs = append(descs, metadata.BackupFileDescriptor{
			Path:              device,
			Type:              backupType,
			Database:          dbName,
			Server:            serverName,
			FirstLSN:          metadata.LSN(firstLSN.String),
			LastLSN:           metadata.LSN(lastLSN.String),
			DatabaseBackupLSN: metadata.LSN(dbBackupLSN.String),
			CheckpointLSN:     metadata.LSN(ckpLSN.String),
			StartTime:         start,
			FinishTime:        finish.Time,
			BackupSetID:       uuid,
			Position:          int(position.Int64),
			SizeBytes:         size.Int64,
			RecoveryModel:     recoveryModel.String,
		})
		setIDs = append(setIDs, setID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read backup history: %w", err)
	}
	rows.Close()

	splitStripeSizes(descs, setIDs)

	// The session allows a single open result set, so file lists are read
	// only after the history rows are drained
	filesBySet := make(map[int64][]metadata.FileEntry)
	for i := range descs {
		if !descs[i].Type.IsDatabase() {
			continue
		}
		files, ok := filesBySet[setIDs[i]]
		if !ok {
			files, err = s.backupFiles(ctx, setIDs[i])
			if err != nil {
				return nil, err
			}
			filesBySet[setIDs[i]] = files
		}
		descs[i].Files = files
	}

	s.log.Debug("Read backup history", "database", database, "devices", len(descs))
	return descs, nil
}

// splitStripeSizes spreads the size msdb records for a backup set over its
// media families, so the devices of one set add up to the set size
func splitStripeSizes(descs []metadata.BackupFileDescriptor, setIDs []int64) {
	stripes := make(map[int64]int64)
	for _, id := range setIDs {
		stripes[id]++
	}

	seen := make(map[int64]bool)
	for i := range descs {
		n := stripes[setIDs[i]]
		if n < 2 {
			continue
		}
		total := descs[i].SizeBytes
		descs[i].SizeBytes = total / n
		if !seen[setIDs[i]] {
			// First family carries the remainder
			descs[i].SizeBytes += total % n
			seen[setIDs[i]] = true
		}
	}
}

func (s *SQLServer) backupFiles(ctx context.Context, setID int64) ([]metadata.FileEntry, error) {
	rows, err := s.db.QueryContext(ctx, backupFilesQuery, setID)
	if err != nil {
		return nil, fmt.Errorf("failed to query backup files for set %d: %w", setID, err)
	}
	defer rows.Close()

	var files []metadata.FileEntry
	for rows.Next() {
		var logical, physical, fileType string
		var size sql.NullInt64
		if err := rows.Scan(&logical, &physical, &fileType, &size); err != nil {
			return nil, fmt.Errorf("failed to scan backup file row: %w", err)
		}
		ft, err := metadata.ParseFileType(fileType)
		if err != nil {
			return nil, fmt.Errorf("backup set %d: %w", setID, err)
		}
		files = append(files, metadata.FileEntry{
			LogicalName:  logical,
			PhysicalName: physical,
			Type:         ft,
			SizeBytes:    size.Int64,
		})
	}
	return files, rows.Err()
}
