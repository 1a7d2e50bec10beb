package upload

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-z0-9_.-]`)
	windowsDeviceNames  = map[string]bool{
		"con": true, "aux": true, "prn": true, "nul": true,
		"com1": true, "com2": true, "com3": true, "com4": true,
		"lpt1": true, "lpt2": true, "lpt3": true,
	}
)

// SanitizeFilename reduces a client supplied filename to lowercase ASCII
// letters, digits, '_', '-' and '.'. Path separators and whitespace turn into
// underscores, so "My Photo.PNG" becomes "my_photo.png" and
// "../../etc/passwd" becomes "etc_passwd". The result may be empty.
func SanitizeFilename(name string) string {
	name = norm.NFKD.String(strings.ToLower(name))

	var b strings.Builder
	for _, r := range name {
		if r < 0x80 {
			b.WriteRune(r)
		}
	}
	name = b.String()

	name = strings.NewReplacer("/", " ", "\\", " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	name = strings.Trim(name, "._")

	if name != "" {
		device, _, _ := strings.Cut(name, ".")
		if windowsDeviceNames[device] {
			name = "_" + name
		}
	}

	return name
}

// FilenameRoot returns the sanitized name without its last extension, with
// any remaining dots folded into underscores.
func FilenameRoot(name string) string {
	sanitized := SanitizeFilename(name)
	if i := strings.LastIndexByte(sanitized, '.'); i > 0 {
		sanitized = sanitized[:i]
	}
	return strings.ReplaceAll(sanitized, ".", "_")
}

// DeriveStorageFilename builds "{token}-{root}.{ext}" or "{token}.{ext}".
// The token is tokenBytes of crypto/rand output, hex encoded. The root part is
// only used when useOriginalName is set and something survives sanitizing.
func DeriveStorageFilename(originalName string, useOriginalName bool, tokenBytes, maxRootLength int, ext string) (string, error) {
	token, err := randomToken(tokenBytes)
	if err != nil {
		return "", err
	}

	filename := token
	if useOriginalName && maxRootLength > 0 {
		root := FilenameRoot(originalName)
		if len(root) > maxRootLength {
			root = root[:maxRootLength]
		}
		root = strings.TrimRight(root, "_-")
		if root != "" {
			filename = token + "-" + root
		}
	}

	if ext = normalizeExtension(ext); ext != "" {
		filename += "." + ext
	}

	return filename, nil
}

func randomToken(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("token length must be positive, got %d", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
