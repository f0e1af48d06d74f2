package plugins

import "errors"

// Errno is the status code family reported back to RPC callers.
type Errno int

const (
	ErrnoPerm     Errno = 1
	ErrnoNotFound Errno = 2
	ErrnoIO       Errno = 5
	ErrnoAccess   Errno = 13
	ErrnoFault    Errno = 14
	ErrnoBusy     Errno = 16
	ErrnoExists   Errno = 17
	ErrnoInvalid  Errno = 22
	ErrnoNoSys    Errno = 38
	ErrnoTimedOut Errno = 110
)

var errnoNames = map[Errno]string{
	ErrnoPerm:     "EPERM",
	ErrnoNotFound: "ENOENT",
	ErrnoIO:       "EIO",
	ErrnoAccess:   "EACCESS",
	ErrnoFault:    "EFAULT",
	ErrnoBusy:     "EBUSY",
	ErrnoExists:   "EEXIST",
	ErrnoInvalid:  "EINVAL",
	ErrnoNoSys:    "ENOSYS",
	ErrnoTimedOut: "ETIMEDOUT",
}

func (e Errno) Error() string {
	if name, ok := errnoNames[e]; ok {
		return name
	}
	return "UNKNOWN"
}

// ErrnoString renders err for an RPC error reply. Anything that is not an
// Errno renders as "UNKNOWN".
func ErrnoString(err error) string {
	var e Errno
	if errors.As(err, &e) {
		return e.Error()
	}
	return "UNKNOWN"
}
