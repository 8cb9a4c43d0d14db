package vm

import "errors"

var (
	// ErrInternal marks a sandbox failure that is an implementation bug
	// rather than a deterministic guest outcome. It escalates past the
	// operation result and aborts apply.
	ErrInternal = errors.New("vm: internal sandbox error")

	// ErrTrapped marks a deterministic guest failure.
	ErrTrapped = errors.New("vm: guest trapped")

	// ErrModuleCompilation is returned when contract code cannot be
	// compiled into a module.
	ErrModuleCompilation = errors.New("vm: module compilation failed")
)
