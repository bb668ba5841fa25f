// Package storage parses the camera's proprietary storage-listing protocol.
//
// The listing body is a flat key=value soup correlating fields by numeric
// suffix: NAME<i>=<filename> SIZE<i>=<bytes>, with no ordering or delimiter
// guarantees. A fixed "000 Success" prefix is the only success indicator.
package storage

import (
	"regexp"
	"strconv"
	"time"
)

// recordPattern matches a NAME<i>= field followed by a SIZE<j>= field. Go's
// regexp has no backreferences, so both indices are captured and compared by
// the parser; a mismatched pair is invalid and dropped.
var recordPattern = regexp.MustCompile(`NAME(\d+)=(\S+)\s+SIZE(\d+)=(\d+)`)

// numPattern extracts the advertised record count from the status line.
var numPattern = regexp.MustCompile(`000 Success NUM=(\d+)`)

// successPrefix is the literal marker camera firmware puts on a good response.
const successPrefix = "000 Success"

// File is one recorded clip on the camera's storage.
type File struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// clipTimePattern matches the timestamp embedded in recorded-clip filenames,
// e.g. "MA_2024-01-02_03-04-05.avi".
var clipTimePattern = regexp.MustCompile(`MA_(\d{4})-(\d{2})-(\d{2})_(\d{2})-(\d{2})-(\d{2})`)

// RecordedAt parses the recording timestamp the camera embeds in clip
// filenames. ok is false when the name does not follow the convention.
func (f File) RecordedAt() (t time.Time, ok bool) {
	m := clipTimePattern.FindStringSubmatch(f.Name)
	if m == nil {
		return time.Time{}, false
	}
	n := make([]int, 6)
	for i := range n {
		n[i], _ = strconv.Atoi(m[i+1])
	}
	return time.Date(n[0], time.Month(n[1]), n[2], n[3], n[4], n[5], 0, time.Local), true
}

// Listing is the parsed storage-listing response.
type Listing struct {
	// Success reflects the top-level "000 Success" marker only; it is
	// independent of how many records parsed cleanly.
	Success bool `json:"success"`
	// Declared is the record count the firmware advertised via NUM=, or 0
	// when absent. Callers can compare it to len(Files) to detect loss.
	Declared int `json:"-"`
	// Files holds the valid records in source order.
	Files []File `json:"files"`
}

// Parse extracts (name, size) records from a raw listing body. Pairs whose
// NAME and SIZE suffixes disagree are dropped, not defaulted; partial results
// are returned even when the success marker is missing.
func Parse(body string) Listing {
	l := Listing{
		Success: len(body) >= len(successPrefix) && body[:len(successPrefix)] == successPrefix,
		Files:   []File{},
	}

	if m := numPattern.FindStringSubmatch(body); m != nil {
		l.Declared, _ = strconv.Atoi(m[1])
	}

	for _, m := range recordPattern.FindAllStringSubmatch(body, -1) {
		if m[1] != m[3] {
			continue
		}
		size, err := strconv.ParseInt(m[4], 10, 64)
		if err != nil {
			continue
		}
		l.Files = append(l.Files, File{Name: m[2], Size: size})
	}

	return l
}
