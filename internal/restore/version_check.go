package restore

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// VersionInfo holds SQL Server version information
type VersionInfo struct {
	Major int
	Minor int
	Build int
	Full  string
}

var versionPattern = regexp.MustCompile(`-\s*(\d+)\.(\d+)\.(\d+)`)

// ParseSQLServerVersion extracts the version from @@VERSION
// Example: "Microsoft SQL Server 2022 (RTM) - 16.0.1000.6 (X64) ..." -> 16.0.1000
func ParseSQLServerVersion(versionStr string) (*VersionInfo, error) {
	matches := versionPattern.FindStringSubmatch(versionStr)
	if len(matches) < 4 {
		return nil, fmt.Errorf("could not parse SQL Server version from: %s", versionStr)
	}

	major, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("invalid major version: %s", matches[1])
	}
	minor, _ := strconv.Atoi(matches[2])
	build, _ := strconv.Atoi(matches[3])

	return &VersionInfo{
		Major: major,
		Minor: minor,
		Build: build,
		Full:  strings.TrimSpace(strings.SplitN(versionStr, "\n", 2)[0]),
	}, nil
}

// ProductName maps the major version to the marketing name
func (v *VersionInfo) ProductName() string {
	names := map[int]string{
		10: "SQL Server 2008",
		11: "SQL Server 2012",
		12: "SQL Server 2014",
		13: "SQL Server 2016",
		14: "SQL Server 2017",
		15: "SQL Server 2019",
		16: "SQL Server 2022",
		17: "SQL Server 2025",
	}
	if name, ok := names[v.Major]; ok {
		return name
	}
	return fmt.Sprintf("SQL Server %d.%d", v.Major, v.Minor)
}

// Minimum major versions for RESTORE FROM URL
const (
	minMajorAzureURL = 11 // 2012 SP1 CU2
	minMajorS3URL    = 16 // 2022
)

// CheckURLSupport reports URL devices the server cannot restore from
func CheckURLSupport(v *VersionInfo, plan *Plan) error {
	var problems *multierror.Error
	for i := range plan.Points {
		if !plan.Points[i].IsURL() {
			continue
		}
		for _, device := range plan.Points[i].Devices() {
			lower := strings.ToLower(device)
			switch {
			case strings.HasPrefix(lower, "s3://"):
				if v.Major < minMajorS3URL {
					problems = multierror.Append(problems,
						fmt.Errorf("%s cannot restore from S3 (%s needs SQL Server 2022 or later)", v.ProductName(), device))
				}
			case strings.HasPrefix(lower, "https://"):
				if v.Major < minMajorAzureURL {
					problems = multierror.Append(problems,
						fmt.Errorf("%s cannot restore from URL (%s)", v.ProductName(), device))
				}
			default:
				problems = multierror.Append(problems,
					fmt.Errorf("SQL Server cannot restore from %s, only https:// and s3:// URLs are supported", device))
			}
		}
	}
	return newPreconditionError(problems)
}

// checkServerVersion verifies the connected server supports the plan's URL devices
func (e *Engine) checkServerVersion(ctx context.Context, plan *Plan) error {
	versionStr, err := e.server.ServerVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get server version: %w", err)
	}

	version, err := ParseSQLServerVersion(versionStr)
	if err != nil {
		// Not critical, the RESTORE itself will fail with a clear message
		e.log.Warn("Could not determine server version", "error", err)
		return nil
	}

	e.log.Info("Server version", "product", version.ProductName(),
		"version", fmt.Sprintf("%d.%d.%d", version.Major, version.Minor, version.Build))

	if !plan.HasURLDevices() {
		return nil
	}
	return CheckURLSupport(version, plan)
}
