//go:build !windows

package system

// No native registry: RegTool falls back to reg query output.
var nativeKeyExists func(Key) (bool, error)
