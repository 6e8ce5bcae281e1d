package checks

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrorClassification represents the severity and type of error
type ErrorClassification struct {
	Number   int    // SQL Server error number, 0 when unknown
	Type     string // "warning", "critical", "fatal"
	Category string // "device", "chain", "existing_db", "files", "permissions", "network", "version", "corruption"
	Message  string
	Hint     string
	Action   string // Suggested command or action
	Severity int    // 0=info, 1=warning, 2=error, 3=fatal
}

// hints for SQL Server error numbers raised by RESTORE
var numberHints = map[int]ErrorClassification{
	3201: {Type: "critical", Category: "device", Severity: 2,
		Hint:   "The server cannot open the backup device",
		Action: "Check the path exists on the SQL Server host and the service account can read it"},
	3013: {Type: "critical", Category: "device", Severity: 2,
		Hint:   "RESTORE terminated abnormally; the preceding message has the cause",
		Action: "Inspect the full error text and fix the underlying issue, then resume with --continue"},
	3154: {Type: "critical", Category: "existing_db", Severity: 2,
		Hint:   "The backup set holds a backup of a different database than the existing target",
		Action: "Restore under a new name or pass --replace"},
	3159: {Type: "critical", Category: "existing_db", Severity: 2,
		Hint:   "The tail of the log has not been backed up",
		Action: "Back up the log tail WITH NORECOVERY, or pass --replace to discard it"},
	4305: {Type: "critical", Category: "chain", Severity: 3,
		Hint:   "The log backup is too recent to apply; an earlier log backup is missing from the chain",
		Action: "Locate the missing log backup and include it in the manifest"},
	4326: {Type: "warning", Category: "chain", Severity: 1,
		Hint:   "The log backup is too early to apply; it was already covered by a later backup",
		Action: "Drop the log backup from the manifest and resume with --continue"},
	4330: {Type: "critical", Category: "chain", Severity: 2,
		Hint:   "The log chain cannot be rolled forward because the database is already recovered",
		Action: "Restart the sequence from the full backup"},
	3183: {Type: "fatal", Category: "corruption", Severity: 3,
		Hint:   "RESTORE detected an error on a page; the backup may be damaged",
		Action: "Verify the backup with RESTORE VERIFYONLY WITH CHECKSUM or use an older backup"},
	3241: {Type: "fatal", Category: "corruption", Severity: 3,
		Hint:   "The media family on the device is incorrectly formed",
		Action: "Make sure all stripes of the backup set are listed and none is truncated"},
	3101: {Type: "critical", Category: "existing_db", Severity: 2,
		Hint:   "Exclusive access could not be obtained because the database is in use",
		Action: "ALTER DATABASE ... SET SINGLE_USER WITH ROLLBACK IMMEDIATE before restoring"},
	3118: {Type: "critical", Category: "existing_db", Severity: 2,
		Hint:   "The target database does not exist",
		Action: "Run without --continue to restore from the full backup first"},
	1834: {Type: "critical", Category: "files", Severity: 2,
		Hint:   "A database file cannot be overwritten because it is used by another database",
		Action: "Relocate the files with --data-dir/--log-dir or --move"},
	5133: {Type: "critical", Category: "files", Severity: 2,
		Hint:   "Directory lookup for a database file failed",
		Action: "Create the destination directory on the server or relocate with --data-dir/--log-dir"},
	15151: {Type: "critical", Category: "permissions", Severity: 2,
		Hint:   "The credential for URL backups does not exist or is not accessible",
		Action: "CREATE CREDENTIAL on the server and pass it with --credential"},
	18456: {Type: "critical", Category: "network", Severity: 2,
		Hint:   "Login failed",
		Action: "Check --user/--password or MSSQL_USER/MSSQL_PASSWORD"},
	3169: {Type: "critical", Category: "version", Severity: 3,
		Hint:   "The backup was taken on a newer SQL Server version than the target",
		Action: "Restore on an instance at the same or a later version"},
}

// Compiled regex patterns for robust error matching
var errorPatterns = []struct {
	number  int
	pattern *regexp.Regexp
}{
	{3201, regexp.MustCompile(`(?i)cannot open backup device`)},
	{4305, regexp.MustCompile(`(?i)too recent to apply`)},
	{4326, regexp.MustCompile(`(?i)too early to apply`)},
	{3154, regexp.MustCompile(`(?i)backup set holds a backup of a database other than`)},
	{3159, regexp.MustCompile(`(?i)tail of the log.*has not been backed up`)},
	{3101, regexp.MustCompile(`(?i)exclusive access could not be obtained`)},
	{1834, regexp.MustCompile(`(?i)cannot be overwritten.*used by database`)},
	{5133, regexp.MustCompile(`(?i)directory lookup for the file .* failed`)},
	{15151, regexp.MustCompile(`(?i)credential.*(does not exist|not have permission)`)},
	{18456, regexp.MustCompile(`(?i)login failed for user`)},
	{3169, regexp.MustCompile(`(?i)backed up on a server running version`)},
}

var msgNumberPattern = regexp.MustCompile(`(?i)\bMsg (\d+)\b`)

// ClassifyError analyzes a SQL Server error and provides actionable hints.
// number may be 0 when the driver did not expose one; the message is then
// matched against known texts.
func ClassifyError(number int, errorMsg string) *ErrorClassification {
	if number == 0 {
		number = numberFromMessage(errorMsg)
	}

	if hint, ok := numberHints[number]; ok {
		hint.Number = number
		hint.Message = errorMsg
		return &hint
	}

	lowerMsg := strings.ToLower(errorMsg)

	// Connection errors
	if strings.Contains(lowerMsg, "connection refused") ||
		strings.Contains(lowerMsg, "unable to open tcp connection") ||
		strings.Contains(lowerMsg, "i/o timeout") {
		return &ErrorClassification{
			Type:     "critical",
			Category: "network",
			Message:  errorMsg,
			Hint:     "Cannot connect to SQL Server",
			Action:   "Check the server name, port and that TCP/IP is enabled for the instance",
			Severity: 2,
		}
	}

	// Permission errors
	if strings.Contains(lowerMsg, "permission denied") || strings.Contains(lowerMsg, "access is denied") {
		return &ErrorClassification{
			Type:     "critical",
			Category: "permissions",
			Message:  errorMsg,
			Hint:     "Insufficient permissions to perform operation",
			Action:   "Grant the login dbcreator or sysadmin and give the service account access to the backup share",
			Severity: 2,
		}
	}

	// Default: unclassified error
	return &ErrorClassification{
		Number:   number,
		Type:     "error",
		Category: "unknown",
		Message:  errorMsg,
		Hint:     "An error occurred during restore",
		Action:   "Check the SQL Server error log for details",
		Severity: 2,
	}
}

func numberFromMessage(msg string) int {
	if m := msgNumberPattern.FindStringSubmatch(msg); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	for _, p := range errorPatterns {
		if p.pattern.MatchString(msg) {
			return p.number
		}
	}
	return 0
}

// FormatErrorWithHint creates a user-friendly error message with hints
func FormatErrorWithHint(number int, errorMsg string) string {
	classification := ClassifyError(number, errorMsg)

	var icon string
	switch classification.Type {
	case "warning":
		icon = "⚠️ "
	case "critical":
		icon = "❌"
	case "fatal":
		icon = "🛑"
	default:
		icon = "⚠️ "
	}

	output := fmt.Sprintf("%s %s Error\n\n", icon, strings.ToUpper(classification.Type))
	output += fmt.Sprintf("Category: %s\n", classification.Category)
	if classification.Number != 0 {
		output += fmt.Sprintf("SQL Server error: %d\n", classification.Number)
	}
	output += fmt.Sprintf("Message: %s\n\n", classification.Message)
	output += fmt.Sprintf("💡 Hint: %s\n\n", classification.Hint)
	output += fmt.Sprintf("🔧 Action: %s\n", classification.Action)

	return output
}
