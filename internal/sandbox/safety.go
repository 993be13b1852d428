package sandbox

import "regexp"

// safetyRule is one entry of the command screening table. Rules are data:
// adding protection for a new footgun means adding a row, not a branch.
type safetyRule struct {
	pattern     *regexp.Regexp
	violation   string
	riskLevel   RiskLevel
	alternative string
}

var safetyRules = []safetyRule{
	{
		pattern:     regexp.MustCompile(`\brm\s+(-[a-zA-Z]*r[a-zA-Z]*f|-[a-zA-Z]*f[a-zA-Z]*r)\s+/(\s|$)`),
		violation:   "recursive forced removal of the filesystem root",
		riskLevel:   RiskCritical,
		alternative: "remove the specific directory you mean, never /",
	},
	{
		pattern:     regexp.MustCompile(`\brm\s+-[a-zA-Z]*r[a-zA-Z]*\s+~(/|\s|$)`),
		violation:   "recursive removal of the home directory",
		riskLevel:   RiskCritical,
		alternative: "remove the specific subdirectory you mean",
	},
	{
		pattern:     regexp.MustCompile(`\bdd\b.*\bof=/dev/(sd|hd|nvme|vd)`),
		violation:   "raw write to a block device",
		riskLevel:   RiskCritical,
		alternative: "write to a file and flash it with a dedicated tool",
	},
	{
		pattern:   regexp.MustCompile(`\bmkfs(\.[a-z0-9]+)?\b`),
		violation: "filesystem creation destroys existing data on the target",
		riskLevel: RiskCritical,
	},
	{
		pattern:   regexp.MustCompile(`:\(\)\s*\{\s*:\|:`),
		violation: "fork bomb",
		riskLevel: RiskCritical,
	},
	{
		pattern:     regexp.MustCompile(`\b(curl|wget)\b[^|;&]*\|\s*(sudo\s+)?(ba|z|da)?sh\b`),
		violation:   "piping a remote script into a shell",
		riskLevel:   RiskHigh,
		alternative: "download the script, review it, then run it",
	},
	{
		pattern:     regexp.MustCompile(`\bsudo\b`),
		violation:   "privilege escalation",
		riskLevel:   RiskHigh,
		alternative: "run without sudo; the task sandbox owns its workspace",
	},
	{
		pattern:     regexp.MustCompile(`\bchmod\s+(-[a-zA-Z]+\s+)*0?777\b`),
		violation:   "world-writable permissions",
		riskLevel:   RiskMedium,
		alternative: "grant the narrowest permission that works, e.g. 755 or 644",
	},
	{
		pattern:     regexp.MustCompile(`\bgit\s+push\b.*(--force\b|\s-f\b)`),
		violation:   "force push rewrites shared history",
		riskLevel:   RiskMedium,
		alternative: "use --force-with-lease, or avoid rewriting pushed history",
	},
	{
		pattern:     regexp.MustCompile(`(?i)\bdrop\s+(table|database)\b`),
		violation:   "dropping a table or database",
		riskLevel:   RiskHigh,
		alternative: "use a migration with an explicit down step",
	},
	{
		pattern:   regexp.MustCompile(`\b(shutdown|reboot|halt|poweroff)\b`),
		violation: "host power control",
		riskLevel: RiskHigh,
	},
	{
		pattern:     regexp.MustCompile(`\bkill\s+(-9\s+|-KILL\s+)?-?1(\s|$)`),
		violation:   "signalling every process (PID -1) or init",
		riskLevel:   RiskHigh,
		alternative: "kill the specific PID of the process you mean",
	},
	{
		pattern:     regexp.MustCompile(`>\s*/dev/(sd|hd|nvme|vd)`),
		violation:   "shell redirection onto a block device",
		riskLevel:   RiskCritical,
		alternative: "redirect to a regular file",
	},
}

// CheckCommand screens a command line against the safety rule table. It is
// pure: no filesystem or process state is consulted. A match is advisory;
// callers decide whether to refuse, confirm, or proceed.
func CheckCommand(command string) SafetyReport {
	report := SafetyReport{Safe: true}
	for _, r := range safetyRules {
		if !r.pattern.MatchString(command) {
			continue
		}
		report.Safe = false
		report.Violations = append(report.Violations, Violation{
			Violation:   r.violation,
			RiskLevel:   r.riskLevel,
			Alternative: r.alternative,
		})
		if r.riskLevel.rank() > report.RiskLevel.rank() {
			report.RiskLevel = r.riskLevel
		}
	}
	return report
}
