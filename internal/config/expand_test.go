package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpand(t *testing.T) {
	t.Setenv("DH_TOKEN", "abc")
	t.Setenv("DH_EMPTY", "")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "no references", in: "plain", want: "plain"},
		{name: "single reference", in: "${DH_TOKEN}", want: "abc"},
		{name: "embedded", in: "Bearer ${DH_TOKEN}!", want: "Bearer abc!"},
		{name: "set but empty", in: "x${DH_EMPTY}y", want: "xy"},
		{name: "unset kept", in: "${DH_DOES_NOT_EXIST}", want: "${DH_DOES_NOT_EXIST}"},
		{name: "bare dollar untouched", in: "pa$DH_TOKEN", want: "pa$DH_TOKEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Expand(tt.in))
		})
	}
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	assert.Equal(t, "", ExpandTilde(""))
	assert.Equal(t, home, ExpandTilde("~"))
	assert.Equal(t, filepath.Join(home, "filters.yaml"), ExpandTilde("~/filters.yaml"))
	assert.Equal(t, "/etc/deckhand", ExpandTilde("/etc/deckhand"))
	assert.Equal(t, "~other/x", ExpandTilde("~other/x"))
}

func TestExpandPath(t *testing.T) {
	t.Setenv("DH_DIR", "/srv/deckhand")
	assert.Equal(t, "/srv/deckhand/filters.yaml", ExpandPath("${DH_DIR}/filters.yaml"))
}
