// Package cli provides CLI tool dependency detection and interactive prompts.
package cli

import (
	"context"
	"os/exec"
	"regexp"
	"runtime"
	"strings"

	"github.com/bgdnvk/deploytool/internal/runner"
)

var semverRe = regexp.MustCompile(`v?(\d+\.\d+\.\d+)`)

// Tool describes an external binary the deploy workflow shells out to.
type Tool struct {
	Name        string
	Binary      string
	VersionArgs []string
	Required    bool
	Purpose     string
}

// Tools returns the binaries deploytool needs. terraformBinary may point at a
// compatible replacement.
func Tools(terraformBinary string) []Tool {
	if terraformBinary == "" {
		terraformBinary = "terraform"
	}
	return []Tool{
		{Name: "git", Binary: "git", VersionArgs: []string{"--version"}, Required: true, Purpose: "cloning repositories"},
		{Name: "docker", Binary: "docker", VersionArgs: []string{"--version"}, Required: true, Purpose: "building and pushing images"},
		{Name: "terraform", Binary: terraformBinary, VersionArgs: []string{"version"}, Required: true, Purpose: "provisioning infrastructure"},
	}
}

// DependencyChecker handles detection of CLI tools
type DependencyChecker struct {
	runner   runner.Runner
	lookPath func(string) (string, error)
	tools    []Tool
}

// NewDependencyChecker creates a checker for tools. Version probes go through r.
func NewDependencyChecker(r runner.Runner, tools []Tool) *DependencyChecker {
	return &DependencyChecker{runner: r, lookPath: exec.LookPath, tools: tools}
}

// DependencyStatus represents the status of a CLI tool
type DependencyStatus struct {
	Name      string
	Path      string
	Installed bool
	Version   string
	Required  bool
	Message   string
}

// CheckAll checks every configured tool
func (d *DependencyChecker) CheckAll(ctx context.Context) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(d.tools))
	for _, t := range d.tools {
		out = append(out, d.Check(ctx, t))
	}
	return out
}

// Missing filters deps down to the required tools that are not installed.
func Missing(deps []DependencyStatus) []DependencyStatus {
	var missing []DependencyStatus
	for _, dep := range deps {
		if dep.Required && !dep.Installed {
			missing = append(missing, dep)
		}
	}
	return missing
}

// Check looks up one tool and asks it for its version.
func (d *DependencyChecker) Check(ctx context.Context, t Tool) DependencyStatus {
	status := DependencyStatus{Name: t.Name, Required: t.Required}

	path, err := d.lookPath(t.Binary)
	if err != nil {
		status.Message = t.Binary + " is not installed (needed for " + t.Purpose + ")"
		return status
	}
	status.Path = path
	status.Installed = true

	res, err := d.runner.Run(ctx, runner.Command{Name: path, Args: t.VersionArgs})
	if err != nil {
		status.Message = "failed to get " + t.Name + " version"
		return status
	}
	status.Version = parseVersion(string(res.Output))
	return status
}

func parseVersion(output string) string {
	if m := semverRe.FindStringSubmatch(output); len(m) == 2 {
		return m[1]
	}
	first, _, _ := strings.Cut(strings.TrimSpace(output), "\n")
	return first
}

// GetPlatform returns the current platform (linux, darwin)
func GetPlatform() string {
	return runtime.GOOS
}

// GetArch returns the current architecture (amd64, arm64)
func GetArch() string {
	arch := runtime.GOARCH
	switch arch {
	case "amd64", "x86_64":
		return "amd64"
	case "arm64", "aarch64":
		return "arm64"
	default:
		return arch
	}
}
