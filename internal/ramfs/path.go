package ramfs

import "strings"

// NormalizePath resolves a possibly relative path against a working
// directory into a clean absolute path. "." and empty components vanish,
// ".." pops, and the result never keeps a trailing slash.
func NormalizePath(cwd, path string) (string, error) {
	if path == "" {
		return "", ErrInvalidPath
	}

	var parts []string
	if !strings.HasPrefix(path, "/") {
		for _, p := range strings.Split(cwd, "/") {
			if p != "" {
				parts = append(parts, p)
			}
		}
	}
	for _, p := range strings.Split(path, "/") {
		switch p {
		case "", ".":
		case "..":
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
		default:
			parts = append(parts, p)
		}
	}
	return "/" + strings.Join(parts, "/"), nil
}

// splitAbs decomposes an absolute path into its components. Paths must start
// with "/" and may not contain "." or ".." once normalized.
func splitAbs(absPath string) ([]string, error) {
	if !strings.HasPrefix(absPath, "/") {
		return nil, ErrInvalidPath
	}
	if absPath == "/" {
		return nil, nil
	}
	var out []string
	for _, p := range strings.Split(absPath, "/") {
		if p == "" {
			continue
		}
		if p == "." || p == ".." {
			return nil, ErrInvalidPath
		}
		out = append(out, p)
	}
	return out, nil
}

// parentLeaf splits an absolute path into its parent directory and final
// component.
func parentLeaf(absPath string) (string, string, error) {
	comps, err := splitAbs(absPath)
	if err != nil {
		return "", "", err
	}
	if len(comps) == 0 {
		return "", "", ErrInvalidPath
	}
	leaf := comps[len(comps)-1]
	if len(comps) == 1 {
		return "/", leaf, nil
	}
	return "/" + strings.Join(comps[:len(comps)-1], "/"), leaf, nil
}
