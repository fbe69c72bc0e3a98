package archive

import (
	"path/filepath"
	"strings"
)

// ReplaceExt заменяет последнее расширение имени на suffix.
// Имя без расширения и dotfile (".bashrc") получают suffix в конец.
//
//	ReplaceExt("report.pdf", ".zip")  == "report.zip"
//	ReplaceExt("a.tar.gz", ".7z")     == "a.tar.7z"
//	ReplaceExt("README", ".tar.gz")   == "README.tar.gz"
func ReplaceExt(name, suffix string) string {
	ext := filepath.Ext(name)
	if ext == "" || ext == name {
		return name + suffix
	}
	return strings.TrimSuffix(name, ext) + suffix
}
