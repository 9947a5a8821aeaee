package gateway

import (
	"fmt"
	"strings"

	domdoc "github.com/kailas-cloud/imgdex/internal/domain/document"
)

const defaultSystemPrompt = "You describe photographs for a search index. " +
	"Write two or three plain sentences about what the image most likely shows. " +
	"Use only the facts given. Do not invent people, brands or text."

// BuildPrompt renders the description request for a document: name, dimensions, size,
// capture date, location and detected objects.
func BuildPrompt(doc *domdoc.Document) string {
	a := doc.Attributes()

	var b strings.Builder
	b.WriteString("Image information:\n")
	fmt.Fprintf(&b, "- Name: %s\n", a.Name)
	if a.Width > 0 && a.Height > 0 {
		fmt.Fprintf(&b, "- Dimensions: %dx%d pixels\n", a.Width, a.Height)
	}
	if a.SizeBytes > 0 {
		fmt.Fprintf(&b, "- Size: %d bytes\n", a.SizeBytes)
	}
	if !a.CapturedAt.IsZero() {
		fmt.Fprintf(&b, "- Captured: %s\n", a.CapturedAt.UTC().Format("2006-01-02 15:04"))
	}

	location := a.Place.String()
	if location == "" {
		location = "unknown"
	}
	fmt.Fprintf(&b, "- Location: %s\n", location)
	if a.Geo != nil {
		fmt.Fprintf(&b, "- Coordinates: %.5f, %.5f\n", a.Geo.Lat, a.Geo.Lon)
	}

	objects := "none detected"
	if objs := doc.Objects(); len(objs) > 0 {
		objects = strings.Join(objs, ", ")
	}
	fmt.Fprintf(&b, "- Detected objects: %s\n", objects)

	b.WriteString("\nDescribe what this image probably shows.")
	return b.String()
}
