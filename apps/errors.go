package apps

import "fmt"

// ArgumentError reports an invalid command-line argument.
type ArgumentError struct {
	Flag string
	msg  string
}

func NewArgumentError(flag, format string, args ...interface{}) *ArgumentError {
	return &ArgumentError{Flag: flag, msg: fmt.Sprintf(format, args...)}
}

func (err *ArgumentError) Error() string {
	if err.Flag == "" {
		return err.msg
	}
	return fmt.Sprintf("-%s: %s", err.Flag, err.msg)
}
