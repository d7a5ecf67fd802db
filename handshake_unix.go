//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package mongo

import "golang.org/x/sys/unix"

func uname() (name, version string) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return "", ""
	}
	return unix.ByteSliceToString(u.Sysname[:]), unix.ByteSliceToString(u.Release[:])
}
