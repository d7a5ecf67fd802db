//go:build !(aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris)

package mongo

func uname() (name, version string) {
	return "", ""
}
