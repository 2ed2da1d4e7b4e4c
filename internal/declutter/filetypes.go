package declutter

import (
	"path"
	"strings"
)

// CategoryOther is the category of extensions not in the table.
const CategoryOther = "Other"

var categoryByExt = map[string]string{
	".jpg": "Images", ".jpeg": "Images", ".png": "Images", ".gif": "Images",
	".mp4": "Videos", ".avi": "Videos", ".mov": "Videos", ".mkv": "Videos",
	".pdf": "Documents", ".doc": "Documents", ".docx": "Documents",
	".mp3": "Audio", ".wav": "Audio", ".flac": "Audio",
	".zip": "Archives", ".rar": "Archives", ".7z": "Archives",
	".txt": "Text", ".md": "Text", ".json": "Text",
	".exe": "Executables", ".dmg": "Executables",
	".db": "Databases", ".sql": "Databases",
}

// FileCategory maps a file name to its type category by extension.
func FileCategory(name string) string {
	if c, ok := categoryByExt[strings.ToLower(path.Ext(name))]; ok {
		return c
	}
	return CategoryOther
}
