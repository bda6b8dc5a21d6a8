package pipeline

import "fmt"

// ResourceError reports a failed storage preflight check. It is raised
// before any destructive action, so the host is untouched when it surfaces.
type ResourceError struct {
	Path     string
	Required uint64
	Free     uint64
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("insufficient free storage on %s: need %d bytes, have %d",
		e.Path, e.Required, e.Free)
}

// PrivilegeError reports a build attempted without root privileges.
type PrivilegeError struct{}

func (e *PrivilegeError) Error() string {
	return "build requires root privileges for mount and subvolume operations"
}
