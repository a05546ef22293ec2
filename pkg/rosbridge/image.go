package rosbridge

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// ErrNoImage is returned by LoadPNG before any image has been stored.
var ErrNoImage = errors.New("no image has been received yet")

// ImageInfo describes the most recently stored image.
type ImageInfo struct {
	Path       string    `json:"path"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Encoding   string    `json:"encoding"`
	ReceivedAt time.Time `json:"received_at"`
}

// ImageStore writes decoded image messages to a single file. Only the
// latest image is kept.
type ImageStore struct {
	path string

	mu   sync.Mutex
	last *ImageInfo
}

// NewImageStore creates a store writing to path.
func NewImageStore(path string) *ImageStore {
	return &ImageStore{path: path}
}

// Path returns the file the store writes to.
func (s *ImageStore) Path() string {
	return s.path
}

// imageMsg covers sensor_msgs/Image and sensor_msgs/CompressedImage.
type imageMsg struct {
	Height   int    `json:"height"`
	Width    int    `json:"width"`
	Encoding string `json:"encoding"`
	Format   string `json:"format"`
	Data     string `json:"data"`
}

// Save decodes a raw or compressed image message and writes it to the
// store's path.
func (s *ImageStore) Save(raw json.RawMessage) (*ImageInfo, error) {
	var msg imageMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode image message: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(msg.Data)
	if err != nil {
		return nil, fmt.Errorf("decode image data: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("image message has no data")
	}

	var img gocv.Mat
	if msg.Width == 0 && msg.Height == 0 && msg.Format != "" {
		img, err = gocv.IMDecode(data, gocv.IMReadColor)
		if err != nil {
			return nil, fmt.Errorf("decode %s image: %w", msg.Format, err)
		}
		msg.Encoding = msg.Format
	} else {
		img, err = rawMat(msg, data)
		if err != nil {
			return nil, err
		}
	}
	defer img.Close()
	if img.Empty() {
		return nil, errors.New("decoded image is empty")
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create image dir: %w", err)
		}
	}
	if ok := gocv.IMWrite(s.path, img); !ok {
		return nil, fmt.Errorf("write image to %s", s.path)
	}

	info := &ImageInfo{
		Path:       s.path,
		Width:      img.Cols(),
		Height:     img.Rows(),
		Encoding:   msg.Encoding,
		ReceivedAt: time.Now(),
	}
	s.mu.Lock()
	s.last = info
	s.mu.Unlock()
	return info, nil
}

// rawMat builds a BGR (or grayscale) Mat from an uncompressed image.
func rawMat(msg imageMsg, data []byte) (gocv.Mat, error) {
	if msg.Width <= 0 || msg.Height <= 0 {
		return gocv.Mat{}, fmt.Errorf("invalid image size %dx%d", msg.Width, msg.Height)
	}

	var (
		channels int
		typ      gocv.MatType
		convert  gocv.ColorConversionCode
		needConv bool
	)
	switch msg.Encoding {
	case "rgb8":
		channels, typ, convert, needConv = 3, gocv.MatTypeCV8UC3, gocv.ColorRGBToBGR, true
	case "bgr8":
		channels, typ = 3, gocv.MatTypeCV8UC3
	case "rgba8":
		channels, typ, convert, needConv = 4, gocv.MatTypeCV8UC4, gocv.ColorRGBAToBGR, true
	case "bgra8":
		channels, typ, convert, needConv = 4, gocv.MatTypeCV8UC4, gocv.ColorBGRAToBGR, true
	case "mono8", "8UC1":
		channels, typ = 1, gocv.MatTypeCV8UC1
	default:
		return gocv.Mat{}, fmt.Errorf("unsupported image encoding %q", msg.Encoding)
	}

	want := msg.Width * msg.Height * channels
	if len(data) < want {
		return gocv.Mat{}, fmt.Errorf("image data has %d bytes, want %d", len(data), want)
	}

	mat, err := gocv.NewMatFromBytes(msg.Height, msg.Width, typ, data[:want])
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("build image: %w", err)
	}
	if !needConv {
		return mat, nil
	}
	defer mat.Close()

	out := gocv.NewMat()
	gocv.CvtColor(mat, &out, convert)
	return out, nil
}

// Last returns the most recently stored image, or nil.
func (s *ImageStore) Last() *ImageInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	info := *s.last
	return &info
}

// LoadPNG reads the stored image file back.
func (s *ImageStore) LoadPNG() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoImage
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}
