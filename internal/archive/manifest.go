package archive

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Folder is one directory listed in the manifest.
type Folder struct {
	Name        string
	Description string
	Files       int
}

// Manifest is the human-readable summary stored as README.txt.
type Manifest struct {
	JobID       string
	Source      string
	FPS         int
	Scale       float64
	ColorSource string
	Frames      int // 0 when unknown
	Points      int // 0 when unknown
	Folders     []Folder
	Files       []string
	GeneratedAt time.Time
}

// Folder descriptions for the directories the export collaborator writes.
var folderDescriptions = map[string]string{
	"trajectory": "per-frame PLY point clouds of the tracked points",
	"pointcloud": "per-frame dense PLY point clouds",
	"cameras":    "per-frame camera pose JSON files",
}

// DescribeFolder returns the manifest description for a known export folder.
func DescribeFolder(name string) string {
	if desc, ok := folderDescriptions[name]; ok {
		return desc
	}
	return "additional export data"
}

// FormatScale renders a scale factor with at least one decimal, e.g. 1.0x.
func FormatScale(scale float64) string {
	s := strconv.FormatFloat(scale, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s + "x"
}

// RenderManifest produces the README text bundled with an export.
func RenderManifest(m Manifest) string {
	var b strings.Builder
	writeHeading(&b, "SpaTracker2 Export", '=')
	if m.JobID != "" {
		fmt.Fprintf(&b, "Job: %s\n", m.JobID)
	}
	if m.Source != "" {
		fmt.Fprintf(&b, "Source: %s\n", m.Source)
	}
	if !m.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "Generated: %s\n", m.GeneratedAt.UTC().Format(time.RFC3339))
	}
	b.WriteByte('\n')

	writeHeading(&b, "Export Settings", '-')
	fmt.Fprintf(&b, "Frame Rate: %d FPS\n", m.FPS)
	fmt.Fprintf(&b, "Scale: %s\n", FormatScale(m.Scale))
	fmt.Fprintf(&b, "Color Source: %s\n", m.ColorSource)
	if m.Frames > 0 {
		fmt.Fprintf(&b, "Frames: %d\n", m.Frames)
		if m.FPS > 0 {
			fmt.Fprintf(&b, "Duration: %.2f s\n", float64(m.Frames)/float64(m.FPS))
		}
	}
	if m.Points > 0 {
		fmt.Fprintf(&b, "Tracked Points: %d\n", m.Points)
	}
	b.WriteByte('\n')

	writeHeading(&b, "Contents", '-')
	for _, folder := range m.Folders {
		desc := folder.Description
		if desc == "" {
			desc = DescribeFolder(folder.Name)
		}
		if folder.Files > 0 {
			fmt.Fprintf(&b, "%s/ (%d files) - %s\n", folder.Name, folder.Files, desc)
		} else {
			fmt.Fprintf(&b, "%s/ - %s\n", folder.Name, desc)
		}
	}
	for _, file := range m.Files {
		fmt.Fprintf(&b, "%s\n", file)
	}
	fmt.Fprintf(&b, "%s - this file\n", ManifestName)
	b.WriteByte('\n')

	writeHeading(&b, "Importing into Blender", '-')
	b.WriteString("1. Edit > Preferences > Add-ons > Install, and select the bundled\n")
	b.WriteString("   import_spatracker2_ply.py and import_spatracker2_cameras.py scripts.\n")
	b.WriteString("2. File > Import > SpaTracker2 PLY Sequence (.ply), then choose the\n")
	b.WriteString("   first file in trajectory/ (or pointcloud/ for the dense cloud).\n")
	fmt.Fprintf(&b, "   Set the frame rate to %d FPS to match the export.\n", m.FPS)
	b.WriteString("3. File > Import > SpaTracker2 Camera Sequence (.json), then choose the\n")
	b.WriteString("   first file in cameras/ to animate the scene camera.\n")
	b.WriteString("4. Add the video file as a background image or plane texture if you\n")
	b.WriteString("   want the source footage alongside the points.\n")
	return b.String()
}

func writeHeading(b *strings.Builder, title string, underline byte) {
	b.WriteString(title)
	b.WriteByte('\n')
	b.WriteString(strings.Repeat(string(underline), len(title)))
	b.WriteByte('\n')
}
