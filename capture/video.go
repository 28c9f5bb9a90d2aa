// Package capture acquires luminance frames from cameras and video files
// and stamps them with the calibration and world pose of the capturing
// camera.
package capture

import (
	"errors"
	"fmt"
	"image"
	stddraw "image/draw"
	"io"
	"sync"
	"time"

	"gocv.io/x/gocv"

	planartrack "github.com/vantagecv/go-planartrack"
)

// PoseProvider returns the camera's world pose at the given capture time.
// Sources without external camera tracking use a fixed identity pose
type PoseProvider func(time.Time) planartrack.Pose

// VideoSource reads frames from a camera device or video file, converting
// each one to a luminance image
type VideoSource struct {
	cap   *gocv.VideoCapture
	frame gocv.Mat
	gray  gocv.Mat

	intrinsics planartrack.Intrinsics
	poseFn     PoseProvider

	mu     sync.Mutex
	closed bool
}

// OpenVideoFile returns a video source reading frames from a video file
func OpenVideoFile(path string, intrinsics planartrack.Intrinsics) (*VideoSource, error) {

	cap, err := gocv.VideoCaptureFile(path)

	if err != nil {
		return nil, fmt.Errorf("error opening video file %s: %w", path, err)
	}

	return newVideoSource(cap, intrinsics), nil
}

// OpenCamera returns a video source reading frames from a camera device
func OpenCamera(device int, intrinsics planartrack.Intrinsics) (*VideoSource, error) {

	cap, err := gocv.VideoCaptureDevice(device)

	if err != nil {
		return nil, fmt.Errorf("error opening camera device %d: %w", device, err)
	}

	return newVideoSource(cap, intrinsics), nil
}

func newVideoSource(cap *gocv.VideoCapture, intrinsics planartrack.Intrinsics) *VideoSource {
	return &VideoSource{
		cap:        cap,
		frame:      gocv.NewMat(),
		gray:       gocv.NewMat(),
		intrinsics: intrinsics,
		poseFn: func(time.Time) planartrack.Pose {
			return planartrack.IdentityPose()
		},
	}
}

// SetPoseProvider sets the callback supplying the camera world pose per
// frame, eg: from a headset or robot odometry feed
func (v *VideoSource) SetPoseProvider(fn PoseProvider) {

	if fn == nil {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.poseFn = fn
}

// Intrinsics returns the calibration the source stamps onto frames
func (v *VideoSource) Intrinsics() planartrack.Intrinsics {
	return v.intrinsics
}

// Next reads the next frame from the source.  Returns io.EOF when a video
// file runs out of frames.  The returned frame owns a copy of the pixels
// so it stays valid after the next read
func (v *VideoSource) Next() (*planartrack.Frame, error) {

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, errors.New("video source is closed")
	}

	if ok := v.cap.Read(&v.frame); !ok {
		return nil, io.EOF
	}

	if v.frame.Empty() {
		return nil, errors.New("read an empty frame")
	}

	gocv.CvtColor(v.frame, &v.gray, gocv.ColorBGRToGray)

	img, err := v.gray.ToImage()

	if err != nil {
		return nil, fmt.Errorf("error converting frame: %w", err)
	}

	ts := time.Now()

	return &planartrack.Frame{
		Timestamp:  ts,
		Image:      toGray(img),
		Intrinsics: v.intrinsics,
		CameraPose: v.poseFn(ts),
	}, nil
}

// LastColor copies the most recently read color frame into dest, eg: for
// annotating and re-encoding the frame that was just processed
func (v *VideoSource) LastColor(dest *gocv.Mat) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.frame.CopyTo(dest)
}

// Close releases the capture device and frame buffers
func (v *VideoSource) Close() error {

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}

	v.closed = true

	v.frame.Close()
	v.gray.Close()

	return v.cap.Close()
}

// toGray returns the image as a luminance buffer, converting only when
// the decoded type differs
func toGray(img image.Image) *image.Gray {

	if gray, ok := img.(*image.Gray); ok {
		return gray
	}

	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	stddraw.Draw(gray, gray.Bounds(), img, b.Min, stddraw.Src)

	return gray
}
