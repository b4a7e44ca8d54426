package pixiv

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"sort"
)

// defaultFrameDelay is used when the archive comes without frame timing, in ms
const defaultFrameDelay = 100

// Frame is one ugoira frame: a file inside the archive and its delay in ms
type Frame struct {
	File  string `json:"file"`
	Delay int    `json:"delay"`
}

// BuildGIF assembles the frames of a ugoira zip archive into a looping GIF.
// Without frame metadata every image in the archive is used in name order.
func BuildGIF(archive []byte, frames []Frame) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("invalid frame archive: %w", err)
	}

	files := make(map[string]*zip.File, len(zr.File))
	var names []string
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		files[zf.Name] = zf
		names = append(names, zf.Name)
	}
	if len(frames) == 0 {
		sort.Strings(names)
		for _, n := range names {
			frames = append(frames, Frame{File: n, Delay: defaultFrameDelay})
		}
	}
	if len(frames) == 0 {
		return nil, errors.New("frame archive is empty")
	}

	anim := &gif.GIF{LoopCount: 0}
	for _, fr := range frames {
		zf, ok := files[fr.File]
		if !ok {
			return nil, fmt.Errorf("frame %s missing from archive", fr.File)
		}
		img, err := decodeFrame(zf)
		if err != nil {
			return nil, fmt.Errorf("frame %s: %w", fr.File, err)
		}

		bounds := img.Bounds()
		paletted := image.NewPaletted(bounds, palette.Plan9)
		draw.FloydSteinberg.Draw(paletted, bounds, img, bounds.Min)

		delay := fr.Delay / 10
		if delay < 1 {
			delay = 1
		}
		anim.Image = append(anim.Image, paletted)
		anim.Delay = append(anim.Delay, delay)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, fmt.Errorf("failed to encode gif: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeFrame(zf *zip.File) (image.Image, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}
