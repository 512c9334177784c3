package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchSignatures(t *testing.T) {
	tests := []struct {
		sigs []Signature
		text string
		want string
	}{
		{TransientSignatures, "dial tcp: connect: connection refused", "connection-refused"},
		{TransientSignatures, "Error: ECONNREFUSED 127.0.0.1:8080", "connection-refused"},
		{TransientSignatures, "read: connection reset by peer", "connection-reset"},
		{TransientSignatures, "server is not listening in the TCP address", "tcp-not-listening"},
		{TransientSignatures, "permission denied", ""},
		{MissingArchiveToolSignatures, "sh: 1: zip: not found", "zip-not-found"},
		{MissingArchiveToolSignatures, "zsh: command not found: zip", "command-not-found-zip"},
		{MissingArchiveToolSignatures, "gzip: stdin: unexpected end of file", ""},
		{MissingArchiveToolSignatures, "", ""},
	}
	for _, tt := range tests {
		got, ok := Match(tt.sigs, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
		assert.Equal(t, tt.want != "", ok, tt.text)
	}
}

func TestArchiveBaseDir(t *testing.T) {
	assert.Equal(t, "site", archiveBaseDir("cd site && zip -r /tmp/site.zip ."))
	assert.Equal(t, "/work/out", archiveBaseDir(`cd "/work/out" && zip -r /tmp/site.zip .`))
	assert.Equal(t, ".", archiveBaseDir("zip -r /tmp/site.zip site"))
}

func TestLooksLikeArchiveCommand(t *testing.T) {
	assert.True(t, looksLikeArchiveCommand("cd site && zip -r /tmp/site.zip .", "/tmp/site.zip"))
	assert.False(t, looksLikeArchiveCommand("zip -r /tmp/other.zip .", "/tmp/site.zip"))
	assert.False(t, looksLikeArchiveCommand("ls /tmp/site.zip", "/tmp/site.zip"))
}

func TestArchiveFallbackCommand(t *testing.T) {
	cmd := archiveFallbackCommand("site", "/tmp/site.zip")
	assert.Contains(t, cmd, `base = "site"`)
	assert.Contains(t, cmd, `out = "/tmp/site.zip"`)
	assert.Contains(t, cmd, "<<'PY'\n")
	assert.Contains(t, cmd, "\nPY")
}
