// Package opencode manages the per-project backing server (one
// `opencode serve` process reused by every agent of a project), the SDK
// HTTP surface for sessions and prompts, and the SSE event stream that
// feeds passive heartbeats.
package opencode

import (
	"crypto/md5"
	"encoding/hex"
	"path/filepath"

	"github.com/nextlevelbuilder/opencode-teams/internal/state"
)

// ProjectHash identifies a project directory for the servers/ tree.
func ProjectHash(projectPath string) string {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		abs = projectPath
	}
	sum := md5.Sum([]byte(abs))
	return hex.EncodeToString(sum[:8])
}

// PortForPath derives the deterministic server port:
// 28000 + (first 16 bits of MD5(absolute project path) mod 1000).
func PortForPath(projectPath string) int {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		abs = projectPath
	}
	sum := md5.Sum([]byte(abs))
	v := int(sum[0])<<8 | int(sum[1])
	return state.ServerPortBase + v%state.ServerPortRange
}
