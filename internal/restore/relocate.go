package restore

import (
	"strings"

	"sqlrestore/internal/metadata"
)

// Relocation moves one database file during RESTORE DATABASE
type Relocation struct {
	LogicalName string
	Type        metadata.FileType
	From        string
	To          string
}

// Moved reports whether the file needs a MOVE clause
func (r Relocation) Moved() bool {
	return r.From != r.To
}

// RelocateFiles computes the destination of every file in a full or
// differential point. An explicit mapping wins; files it does not name keep
// their original path. Otherwise directory overrides and prefix/suffix
// rewrite each physical name.
func RelocateFiles(point *RestorePoint, opts *Options) []Relocation {
	if point == nil || !point.Type.IsDatabase() {
		return nil
	}

	files := pointFiles(point)
	relocations := make([]Relocation, 0, len(files))
	for _, f := range files {
		r := Relocation{
			LogicalName: f.LogicalName,
			Type:        f.Type,
			From:        f.PhysicalName,
			To:          f.PhysicalName,
		}

		if len(opts.FileMapping) > 0 {
			if to, ok := opts.mappedPath(f.LogicalName); ok {
				r.To = to
			}
		} else {
			r.To = rewritePath(f.PhysicalName, destinationDir(f.Type, opts), opts.Prefix, opts.Suffix)
		}

		relocations = append(relocations, r)
	}
	return relocations
}

// pointFiles returns the file list of a point. Every stripe of a backup set
// carries the same list, so duplicates by logical name are dropped.
func pointFiles(point *RestorePoint) []metadata.FileEntry {
	seen := make(map[string]bool)
	var files []metadata.FileEntry
	for _, d := range point.Descriptors {
		for _, f := range d.Files {
			key := strings.ToLower(f.LogicalName)
			if seen[key] {
				continue
			}
			seen[key] = true
			files = append(files, f)
		}
	}
	return files
}

func destinationDir(t metadata.FileType, opts *Options) string {
	switch t {
	case metadata.FileTypeLog:
		return opts.LogDir
	case metadata.FileTypeFileStream:
		if opts.FileStreamDir != "" {
			return opts.FileStreamDir
		}
		return opts.DataDir
	default:
		return opts.DataDir
	}
}

// rewritePath places the base name of physical, wrapped in prefix and
// suffix, into dir. An empty dir keeps the original directory.
func rewritePath(physical, dir, prefix, suffix string) string {
	if dir == "" && prefix == "" && suffix == "" {
		return physical
	}

	srcDir, name := splitServerPath(physical)
	stem, ext := name, ""
	if i := strings.LastIndex(name, "."); i > 0 {
		stem, ext = name[:i], name[i:]
	}
	name = prefix + stem + suffix + ext

	if dir == "" {
		return srcDir + name
	}

	sep := separatorOf(dir)
	if sep == 0 {
		sep = separatorOf(physical)
	}
	if sep == 0 {
		sep = '\\'
	}
	return strings.TrimRight(dir, `\/`) + string(sep) + name
}

// splitServerPath splits after the last separator. Server paths may be
// Windows or Linux paths regardless of the local OS, so path/filepath
// cannot be used.
func splitServerPath(p string) (dir, name string) {
	i := strings.LastIndexAny(p, `\/`)
	if i < 0 {
		return "", p
	}
	return p[:i+1], p[i+1:]
}

func separatorOf(p string) byte {
	switch {
	case strings.Contains(p, `\`):
		return '\\'
	case strings.Contains(p, "/"):
		return '/'
	default:
		return 0
	}
}
