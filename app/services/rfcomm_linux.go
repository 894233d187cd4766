//go:build linux

package services

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const rfcommPollInterval = 100 * time.Millisecond

// rfcommSend opens an RFCOMM stream socket to addr, writes payload and
// closes the socket. The connect and the write both honor ctx's deadline.
func rfcommSend(ctx context.Context, addr [6]byte, channel uint8, payload []byte) error {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return fmt.Errorf("open rfcomm socket: %w", err)
	}

	// bdaddr_t is stored least significant octet first
	sa := &unix.SockaddrRFCOMM{Channel: channel}
	for i := 0; i < 6; i++ {
		sa.Addr[i] = addr[5-i]
	}

	if err := connectNonBlocking(ctx, fd, sa); err != nil {
		unix.Close(fd)
		return err
	}

	// os.NewFile hands the non-blocking fd to the runtime poller, which
	// makes write deadlines work.
	conn := os.NewFile(uintptr(fd), "rfcomm")
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("write rfcomm socket: %w", err)
	}
	return nil
}

func connectNonBlocking(ctx context.Context, fd int, sa unix.Sockaddr) error {
	err := unix.Connect(fd, sa)
	if err == nil {
		return nil
	}
	if err != unix.EINPROGRESS && err != unix.EAGAIN {
		return fmt.Errorf("connect rfcomm: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("connect rfcomm: %w", err)
		}

		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
		n, err := unix.Poll(fds, int(rfcommPollInterval/time.Millisecond))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("poll rfcomm: %w", err)
		}
		if n == 0 {
			continue
		}

		soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			return fmt.Errorf("connect rfcomm: %w", err)
		}
		if soErr != 0 {
			return fmt.Errorf("connect rfcomm: %w", unix.Errno(soErr))
		}
		return nil
	}
}
