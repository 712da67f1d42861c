package common

// ConstError is an error that can be declared as a constant and compared
// with errors.Is.
type ConstError string

func (err ConstError) Error() string { return string(err) }

const (
	ErrNotFound    ConstError = "not found"
	ErrExists      ConstError = "already exists"
	ErrNotDir      ConstError = "not a directory"
	ErrIsDir       ConstError = "is a directory"
	ErrNotEmpty    ConstError = "directory not empty"
	ErrBounds      ConstError = "offset out of bounds"
	ErrTooBig      ConstError = "file too large"
	ErrNoDevice    ConstError = "no such device"
	ErrInvalidName ConstError = "invalid file name"
	ErrPermission  ConstError = "bad file mode"
	ErrHasFS       ConstError = "file system already present"
	ErrBusy        ConstError = "file system busy"
)
