package kernel

import "fmt"

// ValidateName checks that a kernel name can prefix generated symbol names.
// Rules:
//   - ASCII letters, digits and underscore only
//   - Must not start with a digit
//   - Must not start with a double underscore (reserved for the implementation)
//   - At most 200 bytes
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("kernel name cannot be empty")
	}
	if len(name) > 200 {
		return fmt.Errorf("kernel name is %d bytes long, the limit is 200", len(name))
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			// valid
		case r >= '0' && r <= '9':
			if i == 0 {
				return fmt.Errorf("kernel name %q starts with a digit", name)
			}
		case r == '_':
			if i == 1 && name[0] == '_' {
				return fmt.Errorf("kernel name %q starts with a double underscore", name)
			}
		default:
			return fmt.Errorf("invalid character %q at position %d in kernel name", r, i)
		}
	}
	return nil
}
