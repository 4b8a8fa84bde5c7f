package detector

import (
	"bytes"
	"encoding/binary"
	"unicode"
)

// JPEGComment reads text from JPEG COM (0xFFFE) segments, where the
// camera firmware stamps the recognized plate.
type JPEGComment struct{}

func (JPEGComment) Name() string { return "jpeg-comment" }

func (JPEGComment) Extract(image []byte) (string, bool) {
	if len(image) < 4 || !bytes.HasPrefix(image, []byte{0xFF, 0xD8}) {
		return "", false
	}
	var comments []byte
	i := 2
	for i+4 <= len(image) {
		if image[i] != 0xFF {
			break
		}
		marker := image[i+1]
		// standalone markers carry no length
		if marker == 0xD8 || (marker >= 0xD0 && marker <= 0xD7) || marker == 0x01 {
			i += 2
			continue
		}
		if marker == 0xDA || marker == 0xD9 {
			// entropy-coded data / end of image: no more metadata
			break
		}
		length := int(binary.BigEndian.Uint16(image[i+2 : i+4]))
		if length < 2 || i+2+length > len(image) {
			break
		}
		if marker == 0xFE {
			if len(comments) > 0 {
				comments = append(comments, ' ')
			}
			comments = append(comments, image[i+4:i+2+length]...)
		}
		i += 2 + length
	}
	if len(comments) == 0 {
		return "", false
	}
	return string(comments), true
}

// TextPayload treats a mostly-printable payload as the capture text
// itself. The camera simulator posts synthetic captures in this form.
type TextPayload struct{}

func (TextPayload) Name() string { return "text-payload" }

func (TextPayload) Extract(image []byte) (string, bool) {
	if len(image) == 0 || len(image) > 64*1024 {
		return "", false
	}
	printable := 0
	for _, r := range string(image) {
		if r == unicode.ReplacementChar {
			return "", false
		}
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			printable++
		}
	}
	total := len([]rune(string(image)))
	if total == 0 || printable*100/total < 95 {
		return "", false
	}
	return string(image), true
}
