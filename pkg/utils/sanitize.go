package utils

import (
	"regexp"
	"strings"
)

var (
	unsafeDirChars = regexp.MustCompile(`[^a-z0-9._-]+`)
	maxDirNameLen  = 100
)

// StateDirName turns a host, possibly with a port, into a directory name that is
// safe on any filesystem: "Example.com:8080" becomes "example.com_8080".
func StateDirName(host string) string {
	name := unsafeDirChars.ReplaceAllString(strings.ToLower(host), "_")
	name = strings.Trim(name, "_.")
	if len(name) > maxDirNameLen {
		name = strings.Trim(name[:maxDirNameLen], "_.")
	}
	if name == "" {
		return "default"
	}
	return name
}
