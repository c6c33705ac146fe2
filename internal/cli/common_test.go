package cli

import (
	"bytes"
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orizon-lang/aida/internal/aida"
)

func TestGetVersionInfo(t *testing.T) {
	info := GetVersionInfo()
	require.Equal(t, Version, info.Version)
	require.Equal(t, aida.CurrentOptions().ProtocolVersion, info.ProtocolVersion)
	require.Equal(t, runtime.GOOS, info.Platform)
}

func TestWriteVersionText(t *testing.T) {
	var buf bytes.Buffer
	WriteVersion(&buf, "aida-typehash", false)
	out := buf.String()
	require.Contains(t, out, "aida-typehash v"+Version)
	require.Contains(t, out, "Protocol: "+aida.CurrentOptions().ProtocolVersion)
	require.NotContains(t, out, "Commit:")
}

func TestWriteVersionJSON(t *testing.T) {
	var buf bytes.Buffer
	WriteVersion(&buf, "aida-mini-server", true)
	var doc struct {
		Tool        string      `json:"tool"`
		VersionInfo VersionInfo `json:"version_info"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Equal(t, "aida-mini-server", doc.Tool)
	require.Equal(t, Version, doc.VersionInfo.Version)
	require.Equal(t, runtime.Version(), doc.VersionInfo.GoVersion)
}
