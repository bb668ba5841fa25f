// Package classify decides how an upstream resource should be relayed.
//
// Camera firmware is inconsistent about declaring MIME types, so URL-suffix
// heuristics are a required fallback rather than a nicety; both signals are
// consulted in a fixed order.
package classify

import "strings"

// Kind is the relay handling tag for one upstream resource.
type Kind int

const (
	// Passthrough streams the body with the upstream-declared content type.
	Passthrough Kind = iota
	// Manifest is an HLS playlist whose segment lines must be rewritten.
	Manifest
	// Segment is a single HLS .ts media segment.
	Segment
	// MJPEG is a JPEG frame or multipart-replace live stream.
	MJPEG
	// StorageListing is the camera's proprietary file-listing endpoint.
	StorageListing
	// Download is a recorded clip fetched from the camera's disk tree.
	Download
)

func (k Kind) String() string {
	switch k {
	case Manifest:
		return "manifest"
	case Segment:
		return "segment"
	case MJPEG:
		return "mjpeg"
	case StorageListing:
		return "storage"
	case Download:
		return "download"
	default:
		return "passthrough"
	}
}

// Streaming reports whether the kind is relayed chunk-by-chunk without
// buffering the whole body.
func (k Kind) Streaming() bool {
	switch k {
	case Manifest, StorageListing:
		return false
	}
	return true
}

const (
	// StoragePath is the listing endpoint on the camera control plane.
	StoragePath = "/form/getStorageFileList"
	// DownloadPrefix is the camera's recorded-clip directory tree.
	DownloadPrefix = "/disk/"

	manifestSuffix = ".m3u8"
	segmentSuffix  = ".ts"
)

// manifestTypes are the two manifest MIME strings seen in the wild.
var manifestTypes = []string{
	"application/vnd.apple.mpegurl",
	"application/x-mpegurl",
}

// Classifier classifies with camera-specific paths overridden. The zero
// value uses the defaults above, which match the supported firmware.
type Classifier struct {
	StoragePath    string
	DownloadPrefix string
}

// Classify maps a request path (or full URL) and the upstream-declared
// content type to a handling kind. First match wins.
func (c Classifier) Classify(path, contentType string) Kind {
	storagePath := c.StoragePath
	if storagePath == "" {
		storagePath = StoragePath
	}
	downloadPrefix := c.DownloadPrefix
	if downloadPrefix == "" {
		downloadPrefix = DownloadPrefix
	}

	p := strings.ToLower(stripQuery(path))
	ct := strings.ToLower(contentType)

	switch {
	case strings.HasSuffix(p, strings.ToLower(storagePath)):
		return StorageListing
	case strings.HasSuffix(p, manifestSuffix) || isManifestType(ct):
		return Manifest
	case strings.HasSuffix(p, segmentSuffix):
		return Segment
	case strings.Contains(ct, "image/jpeg") || strings.Contains(ct, "multipart/x-mixed-replace"):
		return MJPEG
	case strings.Contains(p, strings.ToLower(downloadPrefix)):
		return Download
	}
	return Passthrough
}

// Classify classifies with the default camera paths.
func Classify(path, contentType string) Kind {
	return Classifier{}.Classify(path, contentType)
}

func isManifestType(ct string) bool {
	for _, m := range manifestTypes {
		if strings.Contains(ct, m) {
			return true
		}
	}
	return false
}

func stripQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}
