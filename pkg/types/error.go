package types

// ConstError is an error whose value is a string constant, which lets
// sentinels be declared in `const` blocks and compared with `errors.Is`.
type ConstError string

func (err ConstError) Error() string { return string(err) }

const (
	InvalidFileTypeErr ConstError = "invalid file type"
	InvalidModeErr     ConstError = "invalid mode"
)
