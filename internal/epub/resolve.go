package epub

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// literalEscaper keeps a literal '%' or '#' in an archive path escaped, so a
// resolved path decodes back to itself and never looks like it has a fragment.
var literalEscaper = strings.NewReplacer("%", "%25", "#", "%23")

// Resolve turns href, relative to the archive directory baseDir, into an
// archive-absolute path. The path part is percent-decoded, "." and ".."
// segments are collapsed, and any fragment is re-attached unchanged.
// A leading "/" anchors href at the archive root.
func Resolve(baseDir, href string) (string, error) {
	target, fragment, err := ResolveTarget(baseDir, href)
	if err != nil {
		return "", err
	}
	if strings.Contains(href, "#") {
		target += "#" + fragment
	}
	return target, nil
}

// ResolveTarget is Resolve with the fragment returned separately instead of
// re-attached. archivePath is always fragment-free.
func ResolveTarget(baseDir, href string) (archivePath, fragment string, err error) {
	rawPath, fragment, _ := strings.Cut(href, "#")

	if isExternal(rawPath) {
		return "", "", fmt.Errorf("%w: %s", ErrExternalReference, href)
	}

	decoded, err := url.PathUnescape(rawPath)
	if err != nil {
		decoded = rawPath
	}

	joined := decoded
	if !strings.HasPrefix(decoded, "/") && baseDir != "" {
		joined = unescapeLiterals(strings.TrimSuffix(baseDir, "/")) + "/" + decoded
	}

	var stack []string
	for _, seg := range strings.Split(joined, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(stack) == 0 {
				return "", "", fmt.Errorf("%w: %s", ErrTraversalRejected, href)
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, seg)
		}
	}

	return literalEscaper.Replace(strings.Join(stack, "/")), fragment, nil
}

// ResolveFrom resolves href found inside the document at docPath.
// An empty or fragment-only href refers to docPath itself.
func ResolveFrom(docPath, href string) (string, error) {
	if href == "" || strings.HasPrefix(href, "#") {
		return docPath + href, nil
	}
	return Resolve(dirOf(docPath), href)
}

// ResolveTargetFrom is ResolveFrom with the fragment returned separately.
func ResolveTargetFrom(docPath, href string) (archivePath, fragment string, err error) {
	if href == "" || strings.HasPrefix(href, "#") {
		return docPath, strings.TrimPrefix(href, "#"), nil
	}
	return ResolveTarget(dirOf(docPath), href)
}

// StripFragment removes a "#fragment" suffix.
func StripFragment(href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		return href[:i]
	}
	return href
}

// entryPath maps a raw ZIP entry name to its archive path.
func entryPath(name string) string {
	return literalEscaper.Replace(strings.TrimPrefix(name, "./"))
}

// unescapeLiterals reverses literalEscaper for a directory that is already an
// archive path.
func unescapeLiterals(p string) string {
	return strings.NewReplacer("%25", "%", "%23", "#").Replace(p)
}

// dirOf returns the directory part of an archive path, "" for the root.
func dirOf(p string) string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// isExternal reports whether ref starts with a URI scheme ("http:", "data:", ...).
func isExternal(ref string) bool {
	if strings.HasPrefix(ref, "//") {
		return true
	}
	colon := strings.IndexByte(ref, ':')
	if colon <= 0 {
		return false
	}
	if slash := strings.IndexByte(ref, '/'); slash >= 0 && slash < colon {
		return false
	}
	for i, r := range ref[:colon] {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if isLetter {
			continue
		}
		if i > 0 && ((r >= '0' && r <= '9') || r == '+' || r == '-' || r == '.') {
			continue
		}
		return false
	}
	return true
}
