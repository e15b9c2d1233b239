// Package sysinfo collects best-effort facts about the host a run executes
// on. Every probe degrades to a zero value; none of them can fail a run.
package sysinfo

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/dkoosis/megaqa/pkg/qa"
)

const probeTimeout = 2 * time.Second

// DiskFree reports free bytes on the filesystem that holds path. A path
// that does not exist yet is measured at its nearest existing parent.
func DiskFree(path string) (uint64, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return 0, err
	}
	for {
		if _, err := os.Stat(p); err == nil {
			break
		}
		parent := filepath.Dir(p)
		if parent == p {
			return 0, errors.New("no existing parent for " + path)
		}
		p = parent
	}
	u, err := disk.Usage(p)
	if err != nil {
		return 0, err
	}
	return u.Free, nil
}

// Environment describes this host for the run manifest.
func Environment(ctx context.Context, ci bool, outputRoot string) qa.Environment {
	env := qa.Environment{
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		CI:        ci,
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if info, err := host.InfoWithContext(ctx); err == nil {
		env.Hostname = info.Hostname
		env.Platform = strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
	} else if h, err := os.Hostname(); err == nil {
		env.Hostname = h
	}
	if free, err := DiskFree(outputRoot); err == nil {
		env.DiskFreeBytes = free
	}
	return env
}

// Git returns the HEAD commit and branch of the repository containing dir.
// Outside a repository, or without git installed, both are empty.
func Git(ctx context.Context, dir string) (sha, branch string) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	run := func(args ...string) string {
		cmd := exec.CommandContext(ctx, "git", args...)
		cmd.Dir = dir
		out, err := cmd.Output()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(out))
	}
	sha = run("rev-parse", "HEAD")
	if sha == "" {
		return "", ""
	}
	branch = run("rev-parse", "--abbrev-ref", "HEAD")
	if branch == "HEAD" {
		branch = ""
	}
	return sha, branch
}
