//go:build !unix

package host

import "syscall"

func controlBroadcast(network, address string, c syscall.RawConn) error {
	return nil
}
