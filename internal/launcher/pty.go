package launcher

import (
	"os"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// openPTY allocates a pseudo-terminal pair for a pty:true program (§4.4
// step 3). The slave becomes the child's stdin/stdout/stderr; the master
// is kept by the supervisor as the single combined read side for both
// streams (a pty has no separate stdout/stderr channel). If the
// supervisor's own stdout is itself a terminal, propagate its window size
// onto the new pty so full-screen child programs render sanely -- the one
// piece of behavior golang.org/x/term exists for here.
func openPTY() (master, slave *os.File, err error) {
	master, slave, err = pty.Open()
	if err != nil {
		return nil, nil, err
	}
	if width, height, szErr := term.GetSize(int(os.Stdout.Fd())); szErr == nil {
		_ = pty.Setsize(master, &pty.Winsize{Rows: uint16(height), Cols: uint16(width)}) //nolint:gosec
	}
	return master, slave, nil
}

func setNonblocking(f *os.File) error {
	return unix.SetNonblock(int(f.Fd()), true)
}
