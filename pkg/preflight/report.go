package preflight

import (
	"context"
	"strings"

	"github.com/redentordev/laravel-vps/pkg/host"
)

// Status of one doctor line.
type Status string

const (
	StatusPass Status = "PASS"
	StatusWarn Status = "WARN"
	StatusFail Status = "FAIL"
)

// Result is one line of the doctor report.
type Result struct {
	Name   string
	Status Status
	Detail string
}

// Tool is a program the install step would otherwise provide.
type Tool struct {
	Name    string
	Command string
	Args    []string
	Hint    string
}

// Tools lists what doctor reports on besides the hard preconditions.
var Tools = []Tool{
	{Name: "PHP", Command: "php", Args: []string{"-v"}, Hint: "installed by the stack step"},
	{Name: "Nginx", Command: "nginx", Args: []string{"-v"}, Hint: "installed by the stack step"},
	{Name: "MySQL", Command: "mysql", Args: []string{"--version"}, Hint: "installed by the stack step"},
	{Name: "Composer", Command: "composer", Args: []string{"--version", "--no-ansi"}, Hint: "installed by the stack step"},
	{Name: "Git", Command: "git", Args: []string{"--version"}, Hint: "installed by the stack step"},
	{Name: "Certbot", Command: "certbot", Args: []string{"--version"}, Hint: "installed by the stack step"},
	{Name: "UFW", Command: "ufw", Args: []string{"version"}, Hint: "firewall step is skipped without it"},
}

// Report runs every check without stopping at the first failure.
func (c *Checker) Report(ctx context.Context) []Result {
	results := []Result{
		resultOf("Privilege", c.CheckPrivilege(ctx), "root"),
		resultOf("Connectivity", c.CheckConnectivity(ctx), strings.Join(c.ProbeTargets, ", ")),
	}
	info, err := c.CheckOS(ctx)
	results = append(results, resultOf("Operating system", err, info.String()))

	for _, t := range Tools {
		out, err := c.Host.Exec(ctx, host.Query(t.Command, t.Args...))
		if err != nil {
			results = append(results, Result{Name: t.Name, Status: StatusWarn, Detail: "not found, " + t.Hint})
			continue
		}
		results = append(results, Result{Name: t.Name, Status: StatusPass, Detail: firstLine(out)})
	}
	return results
}

func resultOf(name string, err error, ok string) Result {
	if err != nil {
		return Result{Name: name, Status: StatusFail, Detail: err.Error()}
	}
	return Result{Name: name, Status: StatusPass, Detail: ok}
}

func firstLine(out string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	if len(line) > 80 {
		line = line[:80] + "..."
	}
	return line
}

// Failed reports whether any result is a hard failure.
func Failed(results []Result) bool {
	for _, r := range results {
		if r.Status == StatusFail {
			return true
		}
	}
	return false
}
