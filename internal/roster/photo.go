package roster

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/disintegration/imaging"
	"github.com/goccy/go-json"

	"campusgate/internal/logging"
)

// PhotoKind tags the representation a photo arrived in.
type PhotoKind int

const (
	PhotoNone PhotoKind = iota
	PhotoHex
	PhotoPath
	PhotoRaw
	PhotoBlob
)

func (k PhotoKind) String() string {
	switch k {
	case PhotoHex:
		return "hex"
	case PhotoPath:
		return "path"
	case PhotoRaw:
		return "raw"
	case PhotoBlob:
		return "blob"
	default:
		return "none"
	}
}

// PhotoInput is a photo in one of the source representations. Data holds
// the hex text, the path, the raw image bytes or the JSON blob wrapper,
// depending on Kind.
type PhotoInput struct {
	Kind PhotoKind
	Data []byte
}

// DetectPhoto tags a raw photo column value by its content.
func DetectPhoto(raw []byte) PhotoInput {
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0:
		return PhotoInput{Kind: PhotoNone}
	case bytes.HasPrefix(trimmed, []byte("0x")) || bytes.HasPrefix(trimmed, []byte("0X")):
		return PhotoInput{Kind: PhotoHex, Data: trimmed}
	case trimmed[0] == '{' && bytes.Contains(trimmed, []byte(`"data"`)):
		return PhotoInput{Kind: PhotoBlob, Data: trimmed}
	case looksLikePath(trimmed):
		return PhotoInput{Kind: PhotoPath, Data: trimmed}
	default:
		return PhotoInput{Kind: PhotoRaw, Data: raw}
	}
}

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true}

func looksLikePath(b []byte) bool {
	if len(b) > 1024 || !utf8.Valid(b) || bytes.ContainsAny(b, "\x00\n") {
		return false
	}
	return imageExts[strings.ToLower(filepath.Ext(string(b)))]
}

// blobWrapper is the {"type":"Buffer","data":[...]} shape some drivers emit.
type blobWrapper struct {
	Type string `json:"type"`
	Data []int  `json:"data"`
}

const maxPhotoSide = 640

// PhotoNormalizer turns any PhotoInput into base64 JPEG text.
type PhotoNormalizer struct {
	fallback string
}

// NewPhotoNormalizer loads the default photo from defaultPath, or generates
// a plain grey placeholder when the path is empty or unreadable.
func NewPhotoNormalizer(defaultPath string) *PhotoNormalizer {
	n := &PhotoNormalizer{}
	if defaultPath != "" {
		enc, err := n.encodeFile(defaultPath)
		if err == nil {
			n.fallback = enc
			return n
		}
		logging.Warn().Err(err).Str("path", defaultPath).Msg("default photo unreadable, using placeholder")
	}
	placeholder := imaging.New(200, 200, color.NRGBA{R: 200, G: 200, B: 200, A: 255})
	n.fallback, _ = encodeJPEG(placeholder)
	return n
}

// Default returns the default photo as base64 JPEG.
func (n *PhotoNormalizer) Default() string {
	return n.fallback
}

// Normalize never fails: undecodable input degrades to the default photo.
func (n *PhotoNormalizer) Normalize(in PhotoInput) string {
	if in.Kind == PhotoNone {
		return n.fallback
	}
	data, err := photoBytes(in)
	if err == nil {
		var enc string
		if enc, err = reencode(data); err == nil {
			return enc
		}
	}
	logging.Warn().Err(err).Str("kind", in.Kind.String()).Msg("photo normalization failed, using default photo")
	return n.fallback
}

func (n *PhotoNormalizer) encodeFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return reencode(data)
}

func photoBytes(in PhotoInput) ([]byte, error) {
	switch in.Kind {
	case PhotoHex:
		text := strings.TrimSpace(string(in.Data))
		text = strings.TrimPrefix(strings.TrimPrefix(text, "0x"), "0X")
		return hex.DecodeString(text)
	case PhotoPath:
		return os.ReadFile(string(in.Data))
	case PhotoRaw:
		return in.Data, nil
	case PhotoBlob:
		var w blobWrapper
		if err := json.Unmarshal(in.Data, &w); err != nil {
			return nil, fmt.Errorf("decode blob wrapper: %w", err)
		}
		out := make([]byte, len(w.Data))
		for i, v := range w.Data {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("blob byte %d out of range", i)
			}
			out[i] = byte(v)
		}
		return out, nil
	default:
		return nil, errors.New("no photo data")
	}
}

func reencode(data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() > maxPhotoSide || b.Dy() > maxPhotoSide {
		img = imaging.Fit(img, maxPhotoSide, maxPhotoSide, imaging.Lanczos)
	}
	return encodeJPEG(img)
}

func encodeJPEG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
