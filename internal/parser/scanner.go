package parser

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/pikaboard/pikausage/internal/model"
)

// ErrNoReadableRoots is returned when none of the configured agent roots could be read
var ErrNoReadableRoots = errors.New("no agent root directory could be read")

// sessionsDir is the per-agent directory holding session logs
const sessionsDir = "sessions"

// DirScanner discovers session logs laid out as <root>/<agent>/sessions/*.jsonl
type DirScanner struct{}

// Scan implements the scanner used by the usage service
func (DirScanner) Scan(roots []string) ([]model.SessionFile, []string, error) {
	return Scan(roots)
}

// Scan finds all session log files under the given agent roots.
//
// Missing roots and agents without a sessions directory are skipped silently.
// Entries that cannot be read are reported in the returned diagnostics and dropped.
// ErrNoReadableRoots is returned only if no root could be read and at least one
// of them failed for a reason other than not existing.
func Scan(roots []string) ([]model.SessionFile, []string, error) {
	var (
		files    []model.SessionFile
		diags    []string
		readable int
		failed   int
	)

	for _, root := range roots {
		agents, err := os.ReadDir(root)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			failed++
			diags = append(diags, fmt.Sprintf("read root %s: %v", root, err))
			continue
		}
		readable++

		for _, agent := range agents {
			agentPath := filepath.Join(root, agent.Name())
			if !isDir(agent, agentPath) {
				continue
			}

			found, agentDiags := scanAgent(agent.Name(), filepath.Join(agentPath, sessionsDir))
			files = append(files, found...)
			diags = append(diags, agentDiags...)
		}
	}

	if readable == 0 && failed > 0 {
		return nil, diags, ErrNoReadableRoots
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})

	return files, diags, nil
}

func scanAgent(agent, dir string) ([]model.SessionFile, []string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		// Agents may exist before their first session
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return nil, nil
		}
		return nil, []string{fmt.Sprintf("read sessions dir %s: %v", dir, err)}
	}

	var (
		files []model.SessionFile
		diags []string
	)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		info, err := os.Stat(path)
		if err != nil {
			diags = append(diags, fmt.Sprintf("stat session file %s: %v", path, err))
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}

		files = append(files, model.SessionFile{
			Agent:   agent,
			Path:    abs,
			ModTime: info.ModTime(),
		})
	}

	return files, diags
}

// isDir follows symlinks so linked agent directories are scanned too
func isDir(entry fs.DirEntry, path string) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
