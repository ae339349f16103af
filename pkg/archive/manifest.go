package archive

import "strings"

const ext = ".jpg"

// EntryName is the archive entry name for an item filename.
func EntryName(filename string) string {
	return filename + ext
}

// Manifest lists the expected entry name of every filename, one per line, in
// the given order. It does not depend on which captures succeeded.
func Manifest(filenames []string) string {
	lines := make([]string, len(filenames))
	for i, name := range filenames {
		lines[i] = EntryName(name)
	}
	return strings.Join(lines, "\n")
}
