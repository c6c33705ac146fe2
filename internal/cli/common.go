// Package cli holds the helpers shared by the aida command line tools.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/orizon-lang/aida/internal/aida"
)

// Version information for all CLI tools
const (
	Version   = "0.1.0"
	CommitSHA = "unknown" // Will be set during build
)

// VersionInfo contains version and build information
type VersionInfo struct {
	Version         string `json:"version"`
	CommitSHA       string `json:"commit_sha"`
	ProtocolVersion string `json:"protocol_version"`
	AcceptVersions  string `json:"accept_versions"`
	GoVersion       string `json:"go_version"`
	Platform        string `json:"platform"`
	Arch            string `json:"arch"`
}

// GetVersionInfo returns structured version information, including the
// ORB protocol settings currently in effect.
func GetVersionInfo() *VersionInfo {
	opts := aida.CurrentOptions()
	return &VersionInfo{
		Version:         Version,
		CommitSHA:       CommitSHA,
		ProtocolVersion: opts.ProtocolVersion,
		AcceptVersions:  opts.AcceptVersions,
		GoVersion:       runtime.Version(),
		Platform:        runtime.GOOS,
		Arch:            runtime.GOARCH,
	}
}

// PrintVersion prints version information in a consistent format
func PrintVersion(toolName string, jsonOutput bool) {
	WriteVersion(os.Stdout, toolName, jsonOutput)
}

// WriteVersion is PrintVersion with an explicit writer.
func WriteVersion(w io.Writer, toolName string, jsonOutput bool) {
	info := GetVersionInfo()

	if jsonOutput {
		data, err := json.MarshalIndent(map[string]interface{}{
			"tool":         toolName,
			"version_info": info,
		}, "", "  ")
		if err == nil {
			fmt.Fprintln(w, string(data))
			return
		}
		fmt.Fprintf(os.Stderr, "Error: Failed to marshal version info to JSON: %v\n", err)
	}

	fmt.Fprintf(w, "%s v%s\n", toolName, info.Version)
	if info.CommitSHA != "unknown" && info.CommitSHA != "" {
		fmt.Fprintf(w, "Commit: %s\n", info.CommitSHA)
	}
	fmt.Fprintf(w, "Protocol: %s (accepts %s)\n", info.ProtocolVersion, info.AcceptVersions)
	fmt.Fprintf(w, "Go Version: %s\n", info.GoVersion)
	fmt.Fprintf(w, "Platform: %s/%s\n", info.Platform, info.Arch)
}

// ExitWithError prints an error message and exits with code 1
func ExitWithError(format string, args ...interface{}) {
	ExitWithCode(1, "Error: "+format, args...)
}

// ExitWithCode exits with the specified code and optional message
func ExitWithCode(code int, format string, args ...interface{}) {
	if format != "" {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
	os.Exit(code)
}
