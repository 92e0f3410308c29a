package filesystem

import (
	"fmt"
	"strings"

	"github.com/weberc2/ext2fs/pkg/directory"
	. "github.com/weberc2/ext2fs/pkg/types"
)

const (
	NotAbsolutePathErr ConstError = "not an absolute path"
	InvalidNameErr     ConstError = "invalid file name"
)

// Split returns the components of absolute path `path`, skipping empty
// components so that `//a/` and `/a` are equivalent. The root is the empty
// slice.
func Split(path string) ([]string, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("splitting path `%s`: %w", path, NotAbsolutePathErr)
	}
	var components []string
	for _, component := range strings.Split(path, "/") {
		if component != "" {
			components = append(components, component)
		}
	}
	return components, nil
}

// SplitParent returns the parent path and final component of `path`. The
// root has no parent.
func SplitParent(path string) (string, string, error) {
	components, err := Split(path)
	if err != nil {
		return "", "", err
	}
	if len(components) < 1 {
		return "", "", fmt.Errorf(
			"splitting parent of `%s`: %w",
			path,
			InvalidNameErr,
		)
	}
	last := len(components) - 1
	return "/" + strings.Join(components[:last], "/"), components[last], nil
}

// Join builds an absolute path from a parent path and a child name.
func Join(parent, name string) string {
	if strings.HasSuffix(parent, "/") {
		return parent + name
	}
	return parent + "/" + name
}

func validateName(name string) error {
	switch {
	case name == "", name == ".", name == "..", strings.Contains(name, "/"):
		return fmt.Errorf("validating name `%s`: %w", name, InvalidNameErr)
	case len(name) > MaxNameLen:
		return fmt.Errorf("validating name `%s`: %w", name, directory.NameTooLongErr)
	}
	return nil
}
