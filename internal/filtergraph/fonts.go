package filtergraph

import (
	"runtime"
	"strings"

	"github.com/cutroom/cutroom/internal/timeline"
)

// Platform selects the font resolution scheme. Fontconfig-backed targets get
// a family name plus style; Windows gets an absolute font-file path.
type Platform int

const (
	PlatformPOSIX Platform = iota
	PlatformWindows
)

// HostPlatform resolves the platform from the running host
func HostPlatform() Platform {
	if runtime.GOOS == "windows" {
		return PlatformWindows
	}
	return PlatformPOSIX
}

// posixFamilies maps common requested families to fontconfig-available
// equivalents on Linux targets
var posixFamilies = map[string]string{
	"arial":           "Liberation Sans",
	"helvetica":       "Liberation Sans",
	"times new roman": "Liberation Serif",
	"georgia":         "DejaVu Serif",
	"courier new":     "Liberation Mono",
	"verdana":         "DejaVu Sans",
	"impact":          "DejaVu Sans",
	"comic sans ms":   "DejaVu Sans",
}

const posixDefaultFamily = "DejaVu Sans"

// fontFiles holds the per-variant font files shipped with Windows.
// Index: 0 regular, 1 bold, 2 italic, 3 bold-italic.
var windowsFontFiles = map[string][4]string{
	"arial":           {"arial.ttf", "arialbd.ttf", "ariali.ttf", "arialbi.ttf"},
	"times new roman": {"times.ttf", "timesbd.ttf", "timesi.ttf", "timesbi.ttf"},
	"courier new":     {"cour.ttf", "courbd.ttf", "couri.ttf", "courbi.ttf"},
	"verdana":         {"verdana.ttf", "verdanab.ttf", "verdanai.ttf", "verdanaz.ttf"},
	"georgia":         {"georgia.ttf", "georgiab.ttf", "georgiai.ttf", "georgiaz.ttf"},
	"comic sans ms":   {"comic.ttf", "comicbd.ttf", "comici.ttf", "comicz.ttf"},
	"impact":          {"impact.ttf", "", "", ""},
}

const windowsFontDir = "C:/Windows/Fonts/"
const windowsDefaultFamily = "arial"

// fontParams resolves the font parameters for a text element on the
// compiler's platform
func (c *Compiler) fontParams(t *timeline.TextProps) []Param {
	family := strings.ToLower(strings.TrimSpace(t.FontFamily))

	if c.platform == PlatformWindows {
		files, ok := windowsFontFiles[family]
		if !ok {
			files = windowsFontFiles[windowsDefaultFamily]
		}
		file := files[0]
		switch {
		case t.Bold && t.Italic && files[3] != "":
			file = files[3]
		case t.Bold && files[1] != "":
			file = files[1]
		case t.Italic && files[2] != "":
			file = files[2]
		}
		return []Param{{Key: "fontfile", Value: escapePath(windowsFontDir + file)}}
	}

	resolved, ok := posixFamilies[family]
	if !ok {
		resolved = posixDefaultFamily
	}
	// drawtext has no style option; the style rides on the fontconfig
	// pattern inside the font value, colon escaped so the filter parser
	// does not split on it
	switch {
	case t.Bold && t.Italic:
		resolved += `\:style=Bold Italic`
	case t.Bold:
		resolved += `\:style=Bold`
	case t.Italic:
		resolved += `\:style=Italic`
	}
	return []Param{{Key: "font", Value: resolved}}
}
