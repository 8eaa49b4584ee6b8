package feed

import (
	"net"
	"os"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/pkg/exception"
)

// Listen opens a stream listener. A stale unix socket file is removed first.
func Listen(network, addr string) (net.Listener, error) {
	if addr == "" {
		return nil, exception.ErrConnectorNoAddress
	}
	if network == "" {
		network = "tcp"
	}
	if network == "unix" {
		if err := removeSocket(addr); err != nil {
			return nil, err
		}
	}

	ln, err := net.Listen(network, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s %s", network, addr)
	}
	if ul, ok := ln.(*net.UnixListener); ok {
		ul.SetUnlinkOnClose(true)
	}
	return ln, nil
}

func removeSocket(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Mode()&os.ModeSocket == 0 {
		return errors.Wrapf(exception.ErrInvalidArgument, "path exists and is not a socket: %s", path)
	}
	return os.Remove(path)
}
