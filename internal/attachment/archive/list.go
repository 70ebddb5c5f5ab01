package archive

import (
	"archive/zip"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	apperrors "github.com/lk2023060901/attachment-store/internal/pkg/errors"
)

// MaxAbbreviatedLength bounds Entry.AbbreviatedName, in characters
const MaxAbbreviatedLength = 40

const ellipsis = "..."

// Criteria selects which entries a listing returns
type Criteria int

const (
	All Criteria = iota
	FilesOnly
	DirectoriesOnly
)

// ParseCriteria accepts "all", "files" and "dirs"
func ParseCriteria(s string) (Criteria, bool) {
	switch strings.ToLower(s) {
	case "", "all":
		return All, true
	case "files", "file":
		return FilesOnly, true
	case "dirs", "dir", "directories":
		return DirectoriesOnly, true
	}
	return All, false
}

func (c Criteria) matches(dir bool) bool {
	switch c {
	case FilesOnly:
		return !dir
	case DirectoriesOnly:
		return dir
	default:
		return true
	}
}

// Entry describes one archive entry
type Entry struct {
	Index           int       `json:"entryIndex"`
	Name            string    `json:"name"`
	AbbreviatedName string    `json:"abbreviatedName"`
	Extension       string    `json:"extension"`
	Size            int64     `json:"size"`
	Directory       bool      `json:"directory"`
	Depth           int       `json:"depth"`
	Modified        time.Time `json:"modified"`
	MimeType        string    `json:"mimetype"`
}

// Listing is a capped view over an archive
type Listing struct {
	Entries                       []Entry `json:"entries"`
	TotalNumberOfEntriesAvailable int     `json:"totalNumberOfEntriesAvailable"`
	IsMoreAvailable               bool    `json:"isMoreAvailable"`
}

// List returns up to maxEntries entries matching criteria, in archive order.
// The total counts every matching entry, including those past the cap.
func List(name string, maxEntries int, criteria Criteria) (*Listing, error) {
	r, err := zip.OpenReader(name)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrAttachmentRead, "open zip %s", name)
	}
	defer r.Close()

	listing := &Listing{Entries: []Entry{}}
	for i, f := range r.File {
		if !criteria.matches(f.FileInfo().IsDir()) {
			continue
		}
		listing.TotalNumberOfEntriesAvailable++
		if len(listing.Entries) < maxEntries {
			listing.Entries = append(listing.Entries, describe(i, f, f.Open))
		}
	}
	listing.IsMoreAvailable = listing.TotalNumberOfEntriesAvailable > len(listing.Entries)
	return listing, nil
}

func describe(index int, f *zip.File, open func() (io.ReadCloser, error)) Entry {
	dir := f.FileInfo().IsDir()
	clean := strings.TrimSuffix(f.Name, "/")

	e := Entry{
		Index:           index,
		Name:            f.Name,
		AbbreviatedName: abbreviate(clean),
		Size:            int64(f.UncompressedSize64),
		Directory:       dir,
		Depth:           strings.Count(clean, "/"),
		Modified:        f.Modified,
	}
	if !dir {
		e.Extension = extension(clean)
		e.MimeType = detectMIME(e.Extension, open)
	}
	return e
}

func extension(name string) string {
	ext := path.Ext(path.Base(name))
	return strings.TrimPrefix(ext, ".")
}

// detectMIME maps the extension first and sniffs the entry's leading bytes
// when the extension is unknown.
func detectMIME(ext string, open func() (io.ReadCloser, error)) string {
	if ext != "" {
		if t := mime.TypeByExtension("." + ext); t != "" {
			if mediaType, _, err := mime.ParseMediaType(t); err == nil {
				return mediaType
			}
			return t
		}
	}
	if open == nil {
		return "application/octet-stream"
	}

	rc, err := open()
	if err != nil {
		return "application/octet-stream"
	}
	defer rc.Close()

	m, err := mimetype.DetectReader(rc)
	if err != nil {
		return "application/octet-stream"
	}
	return m.String()
}

// abbreviate shortens a path to MaxAbbreviatedLength characters by dropping
// middle segments, keeping the first segment and as much of the tail as fits.
func abbreviate(name string) string {
	if runeLen(name) <= MaxAbbreviatedLength {
		return name
	}

	parts := strings.Split(name, "/")
	if len(parts) > 2 {
		for i := 2; i < len(parts); i++ {
			candidate := parts[0] + "/" + ellipsis + "/" + strings.Join(parts[i:], "/")
			if runeLen(candidate) <= MaxAbbreviatedLength {
				return candidate
			}
		}
	}

	// 最后一段本身过长
	runes := []rune(name)
	keep := MaxAbbreviatedLength - len(ellipsis)
	return ellipsis + string(runes[len(runes)-keep:])
}

func runeLen(s string) int {
	return len([]rune(s))
}
