package main

import (
	"flag"
	"fmt"
	"image"
	stddraw "image/draw"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gocv.io/x/gocv"

	planartrack "github.com/vantagecv/go-planartrack"
	"github.com/vantagecv/go-planartrack/capture"
	"github.com/vantagecv/go-planartrack/detect"
	"github.com/vantagecv/go-planartrack/match"
	"github.com/vantagecv/go-planartrack/pose"
	"github.com/vantagecv/go-planartrack/render"
	"github.com/vantagecv/go-planartrack/store"
	"github.com/vantagecv/go-planartrack/stream"
	"github.com/vantagecv/go-planartrack/tracker"
)

var (
	// FPS is the number of FPS to simulate when streaming a video file
	FPS         = 30
	FPSinterval = time.Duration(float64(time.Second) / float64(FPS))
)

// ResultFrame is a struct to wrap the gocv byte buffer and error result
type ResultFrame struct {
	Buf *gocv.NativeByteBuffer
	Err error
}

// Config holds the demo settings read from cli flags
type Config struct {
	// VideoFile to loop frames from, takes precedence over Camera
	VideoFile string
	// Camera device ID to read frames from, used when VideoFile is empty
	Camera int
	// MarkerIDs to track from the builtin 4x4 dictionary
	MarkerIDs []int
	// MarkerSize is the marker side length in meters
	MarkerSize float64
	// ImageFile is an optional reference image registered as image target
	ImageFile string
	// ImageName identifies the image target
	ImageName string
	// ImageSize is the image target's longer side in meters
	ImageSize float64
	// DBFile is an optional sqlite database for image target persistence
	DBFile string
	// ProcSize is the square letterbox size video frames are processed at
	ProcSize int
	// PoolSize is the number of engines, one is reserved per stream client
	PoolSize int
	// Intrinsics of the frame source.  A zero Fx derives an estimate from
	// the frame size, video files only
	Intrinsics planartrack.Intrinsics
}

// Demo defines the struct for running the target tracking demo
type Demo struct {
	cfg Config
	// vidBuffer buffers the video frames into memory
	vidBuffer []gocv.Mat
	// camera reads live frames when no video file is given
	camera *capture.VideoSource
	// resizer letterboxes video frames to the processing size
	resizer *capture.Resizer
	// procIntr is the calibration at the processing size
	procIntr planartrack.Intrinsics
	// proto holds the reference features every engine's matcher is
	// seeded from, so feature extraction runs once
	proto *match.Matcher
	// pool of tracking engines, one is reserved per stream client
	pool *planartrack.Pool
	// hub broadcasts track status events to websocket subscribers
	hub  *stream.Hub
	font render.Font
}

// NewDemo returns an instance of Demo, a streaming HTTP server showing
// video with planar target tracking
func NewDemo(cfg Config) (*Demo, error) {

	d := &Demo{
		cfg:  cfg,
		hub:  stream.NewHub(),
		font: render.DefaultFont(),
	}

	var err error

	if cfg.VideoFile != "" {
		err = d.setupVideo()
	} else {
		err = d.setupCamera()
	}

	if err != nil {
		return nil, err
	}

	err = d.setupImageTargets()

	if err != nil {
		return nil, err
	}

	d.pool, err = planartrack.NewPool(cfg.PoolSize, d.buildEngine)

	if err != nil {
		return nil, fmt.Errorf("error creating engine pool: %w", err)
	}

	go d.hub.Run()

	return d, nil
}

// setupVideo buffers the video file frames and prepares the letterbox
// resizer and processing calibration
func (d *Demo) setupVideo() error {

	err := d.bufferVideo(d.cfg.VideoFile)

	if err != nil {
		return fmt.Errorf("error buffering video: %w", err)
	}

	width := d.vidBuffer[0].Cols()
	height := d.vidBuffer[0].Rows()

	srcIntr := d.cfg.Intrinsics

	if srcIntr.Fx == 0 {
		// no calibration given, estimate one from the frame size.  Poses
		// will be approximate
		srcIntr = planartrack.Intrinsics{
			Fx: 0.9 * float64(width),
			Fy: 0.9 * float64(width),
			Cx: float64(width) / 2,
			Cy: float64(height) / 2,
		}

		log.Printf("No calibration given, estimated focal length %.0fpx", srcIntr.Fx)
	}

	srcIntr.Width = width
	srcIntr.Height = height

	d.resizer = capture.NewResizer(width, height, d.cfg.ProcSize, d.cfg.ProcSize)
	d.procIntr = d.resizer.AdjustIntrinsics(srcIntr)

	log.Printf("Video %dx%d letterboxed to %dx%d, scale factor %.3f",
		width, height, d.cfg.ProcSize, d.cfg.ProcSize, d.resizer.ScaleFactor())

	return nil
}

// setupCamera opens the live camera device.  Live cameras process frames
// at their native resolution and need an explicit calibration for metric
// poses
func (d *Demo) setupCamera() error {

	if d.cfg.Intrinsics.Fx == 0 {
		return fmt.Errorf("camera mode needs calibration, set the -fx, -fy, -cx and -cy flags")
	}

	cam, err := capture.OpenCamera(d.cfg.Camera, d.cfg.Intrinsics)

	if err != nil {
		return fmt.Errorf("error opening camera: %w", err)
	}

	d.camera = cam
	d.procIntr = d.cfg.Intrinsics

	return nil
}

// setupImageTargets extracts or loads the reference features of image
// targets into the prototype matcher and persists newly registered ones
func (d *Demo) setupImageTargets() error {

	d.proto = match.NewMatcher(match.DefaultMatcherParams())

	var repo *store.TargetRepository

	if d.cfg.DBFile != "" {
		db, err := store.Open(d.cfg.DBFile)

		if err != nil {
			return fmt.Errorf("error opening target database: %w", err)
		}

		repo = store.NewTargetRepository(db)

		if err := repo.LoadMatcher(d.proto); err != nil {
			return fmt.Errorf("error loading stored targets: %w", err)
		}

		log.Printf("Loaded %d stored image targets", len(d.proto.Targets()))
	}

	if d.cfg.ImageFile == "" {
		return nil
	}

	target := planartrack.Target{
		Kind: planartrack.TargetImage,
		Name: d.cfg.ImageName,
		Size: float32(d.cfg.ImageSize),
	}

	ref := gocv.IMRead(d.cfg.ImageFile, gocv.IMReadGrayScale)

	if ref.Empty() {
		return fmt.Errorf("error reading reference image %s", d.cfg.ImageFile)
	}

	defer ref.Close()

	refImg, err := ref.ToImage()

	if err != nil {
		return fmt.Errorf("error converting reference image: %w", err)
	}

	err = d.proto.RegisterTarget(target, refImg)

	if err != nil {
		// already loaded from the database
		log.Printf("Image target not registered: %v", err)
		return nil
	}

	log.Printf("Registered image target %s", target)

	if repo != nil {
		width, height, kps, descs, err := d.proto.TargetFeatures(target.Name)

		if err != nil {
			return err
		}

		if err := repo.SaveImageTarget(target, width, height, kps, descs); err != nil {
			return fmt.Errorf("error storing image target: %w", err)
		}

		log.Printf("Stored image target %s with %d features", target, len(kps))
	}

	return nil
}

// buildEngine creates one tracking pipeline instance for the engine pool
func (d *Demo) buildEngine() (*planartrack.Engine, error) {

	manager := tracker.NewManager(tracker.DefaultManagerParams())

	eng, err := planartrack.NewEngine(manager)

	if err != nil {
		return nil, err
	}

	estimator := pose.NewEstimator(pose.DefaultEstimatorParams())

	// marker pipeline
	detector := detect.NewDetector(detect.Dict4x4(), detect.DefaultDetectorParams())
	markerSrc := pose.NewMarkerSource(detector, estimator)

	for _, id := range d.cfg.MarkerIDs {
		err = markerSrc.RegisterTarget(planartrack.Target{
			Kind:       planartrack.TargetMarker,
			Dictionary: detector.Dictionary().Name(),
			ID:         id,
			Size:       float32(d.cfg.MarkerSize),
		})

		if err != nil {
			return nil, err
		}
	}

	eng.AttachSource(markerSrc)

	// image pipeline, seeded from the prototype's extracted features
	if targets := d.proto.Targets(); len(targets) > 0 {

		m := match.NewMatcher(match.DefaultMatcherParams())

		for _, t := range targets {
			width, height, kps, descs, err := d.proto.TargetFeatures(t.Name)

			if err != nil {
				return nil, err
			}

			if err := m.RegisterPrecomputed(t, width, height, kps, descs); err != nil {
				return nil, err
			}
		}

		eng.AttachSource(pose.NewImageSource(m, estimator))
	}

	// push this engine's status transitions to websocket subscribers
	stream.AttachManager(d.hub, manager)

	return eng, nil
}

// bufferVideo reads in the video frames and saves them to a buffer
func (d *Demo) bufferVideo(vidFile string) error {

	video, err := gocv.VideoCaptureFile(vidFile)

	if err != nil {
		return err
	}

	defer video.Close()

	d.vidBuffer = make([]gocv.Mat, 0)

	for {
		img := gocv.NewMat()

		if ok := video.Read(&img); !ok {
			// reached last video frame
			break
		}

		if img.Empty() {
			continue
		}

		d.vidBuffer = append(d.vidBuffer, img)
	}

	if len(d.vidBuffer) == 0 {
		return fmt.Errorf("video file %s has no frames", vidFile)
	}

	return nil
}

// nextFrame acquires the color image and tracking frame for the given
// buffer position.  The returned Mat is owned by the caller
func (d *Demo) nextFrame(frameNum int) (gocv.Mat, *planartrack.Frame, error) {

	if d.camera != nil {
		frame, err := d.camera.Next()

		if err != nil {
			return gocv.Mat{}, nil, err
		}

		img := gocv.NewMat()
		d.camera.LastColor(&img)

		return img, frame, nil
	}

	img := gocv.NewMat()
	d.resizer.LetterBoxResize(d.vidBuffer[frameNum], &img, render.Black)

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	goImg, err := gray.ToImage()

	if err != nil {
		img.Close()
		return gocv.Mat{}, nil, fmt.Errorf("error converting frame: %w", err)
	}

	return img, &planartrack.Frame{
		Timestamp:  time.Now(),
		Image:      toGray(goImg),
		Intrinsics: d.procIntr,
		CameraPose: planartrack.IdentityPose(),
	}, nil
}

// Stream is the HTTP handler function used to stream video frames to browser
func (d *Demo) Stream(w http.ResponseWriter, r *http.Request) {

	log.Printf("New client connection established")

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")

	// reserve a tracking engine for the life of this stream as it keeps
	// track state between frames
	eng := d.pool.Get()

	defer func() {
		eng.Reset()
		d.pool.Return(eng)
	}()

	// create a trails history
	trail := tracker.NewPoseTrail(90)

	// pointer to position in video buffer
	frameNum := -1

	// used for calculating FPS
	frameCount := 0
	startTime := time.Now()
	fps := float64(0)

	ticker := time.NewTicker(FPSinterval)
	defer ticker.Stop()

	// chan to receive processed frames
	recvFrame := make(chan ResultFrame, 30)

loop:
	for {
		select {
		case <-r.Context().Done():
			log.Printf("Client disconnected")
			break loop

		// simulate reading a web camera at a fixed FPS
		case <-ticker.C:

			frameNum++
			if d.camera == nil && frameNum > len(d.vidBuffer)-1 {
				// last frame reached so loop back to start of video
				frameNum = 0
				// clear track state and trail data
				eng.Reset()
				trail.Reset()
			}

			img, frame, err := d.nextFrame(frameNum)

			if err == io.EOF {
				log.Printf("Camera stream ended")
				break loop
			}

			if err != nil {
				log.Printf("Error acquiring frame: %v", err)
				continue
			}

			go d.ProcessFrame(img, frame, eng, trail, fps, frameNum, recvFrame)

		case buf := <-recvFrame:

			if buf.Err != nil {
				log.Printf("Error occured during ProcessFrame: %v", buf.Err)

			} else {
				// Write the image to the response writer
				w.Write([]byte("--frame\r\n"))
				w.Write([]byte("Content-Type: image/jpeg\r\n\r\n"))
				w.Write(buf.Buf.GetBytes())
				w.Write([]byte("\r\n"))

				// Flush the buffer
				flusher, ok := w.(http.Flusher)
				if ok {
					flusher.Flush()
				}

				buf.Buf.Close()
			}

			// calculate FPS
			frameCount++
			elapsed := time.Since(startTime).Seconds()

			if elapsed >= 1.0 {
				fps = float64(frameCount) / elapsed
				frameCount = 0
				startTime = time.Now()
			}
		}
	}
}

// ProcessFrame runs target detection and tracking on one frame, annotates
// the image and returns the result encoded as a JPG file
func (d *Demo) ProcessFrame(img gocv.Mat, frame *planartrack.Frame,
	eng *planartrack.Engine, trail *tracker.PoseTrail, fps float64,
	frameNum int, retChan chan<- ResultFrame) {

	defer img.Close()

	processStart := time.Now()

	// the raw sightings of this exact frame drive the outline rendering
	observations, snaps, err := eng.ProcessObserved(frame)

	if err != nil {
		retChan <- ResultFrame{Err: err}
		return
	}

	trackEnd := time.Now()

	// add tracked targets to history trail
	for _, snap := range snaps {
		trail.Add(snap)
	}

	// push this frame's track state to websocket subscribers
	stream.BroadcastSnapshots(d.hub, frame.Timestamp, snaps)

	d.AnnotateImg(img, frame, observations, snaps, trail, fps, frameNum,
		time.Since(processStart), trackEnd.Sub(processStart))

	// Encode the image to JPEG format
	buf, err := gocv.IMEncode(".jpg", img)

	retChan <- ResultFrame{
		Buf: buf,
		Err: err,
	}
}

// AnnotateImg draws the target outlines, pose gizmos, trails and
// processing statistics on the given image Mat
func (d *Demo) AnnotateImg(img gocv.Mat, frame *planartrack.Frame,
	observations []planartrack.Observation, snaps []planartrack.TrackSnapshot,
	trail *tracker.PoseTrail, fps float64, frameNum int,
	total, tracking time.Duration) {

	render.TargetOutlines(&img, observations, d.font, 1)

	// axis gizmo scaled to half the marker size
	render.TrackGizmos(&img, snaps, frame.CameraPose, frame.Intrinsics,
		d.cfg.MarkerSize/2, 2)

	render.Trail(&img, snaps, trail, frame.CameraPose, frame.Intrinsics,
		render.DefaultTrailStyle())

	// blank out background video
	rect := image.Rect(0, 0, img.Cols(), 20)
	gocv.Rectangle(&img, rect, render.Black, -1)

	// add FPS, track count, and frame number to top of image
	gocv.PutTextWithParams(&img,
		fmt.Sprintf("Frame: %d, FPS: %.2f, Tracking: %.2fms, Total: %.2fms, Tracks: %d",
			frameNum, fps,
			float32(tracking)/float32(time.Millisecond),
			float32(total)/float32(time.Millisecond),
			len(snaps)),
		image.Pt(4, 14), d.font.Face, d.font.Scale, render.Pink, 1,
		gocv.LineAA, false)
}

// Close frees buffered video frames and shuts down the pipeline
func (d *Demo) Close() {

	d.hub.Stop()
	d.pool.Close()

	for _, img := range d.vidBuffer {
		img.Close()
	}

	if d.camera != nil {
		d.camera.Close()
	}

	if d.resizer != nil {
		d.resizer.Close()
	}
}

// toGray returns the image as a luminance buffer
func toGray(img image.Image) *image.Gray {

	if gray, ok := img.(*image.Gray); ok {
		return gray
	}

	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	stddraw.Draw(gray, gray.Bounds(), img, b.Min, stddraw.Src)

	return gray
}

// parseMarkerIDs converts a comma delimited ID list
func parseMarkerIDs(str string) ([]int, error) {

	var ids []int

	for _, word := range strings.Split(str, ",") {
		trimmed := strings.TrimSpace(word)

		if trimmed == "" {
			continue
		}

		id, err := strconv.Atoi(trimmed)

		if err != nil {
			return nil, fmt.Errorf("invalid marker ID %q", trimmed)
		}

		ids = append(ids, id)
	}

	return ids, nil
}

// envStr returns the environment variable value or a default
func envStr(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return def
}

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// optional .env file provides flag defaults
	godotenv.Load()

	// read in cli flags
	vidFile := flag.String("v", envStr("PLANARTRACK_VIDEO", ""), "Video file to track targets in, loops forever")
	camDevice := flag.Int("c", 0, "Camera device ID to read frames from when no video file is given")
	httpAddr := flag.String("a", envStr("PLANARTRACK_ADDR", "localhost:8080"), "HTTP Address to run server on, format address:port")
	markerIDs := flag.String("ids", "0,1,2,3", "Comma delimited marker IDs of the builtin 4x4 dictionary to track")
	markerSize := flag.Float64("ms", 0.05, "Marker side length in meters")
	imgFile := flag.String("img", "", "Reference image file to register as an image target")
	imgName := flag.String("name", "poster", "Name of the image target")
	imgSize := flag.Float64("is", 0.2, "Image target longer side in meters")
	dbFile := flag.String("db", envStr("PLANARTRACK_DB", ""), "SQLite database file for image target persistence")
	procSize := flag.Int("p", 640, "Letterbox size video frames are processed at")
	poolSize := flag.Int("s", 3, "Size of engine pool, one engine is reserved per stream client")
	fx := flag.Float64("fx", 0, "Camera focal length X in pixels, zero estimates from frame size")
	fy := flag.Float64("fy", 0, "Camera focal length Y in pixels")
	cx := flag.Float64("cx", 0, "Camera principal point X in pixels")
	cy := flag.Float64("cy", 0, "Camera principal point Y in pixels")
	k1 := flag.Float64("k1", 0, "First radial distortion coefficient")
	k2 := flag.Float64("k2", 0, "Second radial distortion coefficient")

	flag.Parse()

	ids, err := parseMarkerIDs(*markerIDs)

	if err != nil {
		log.Fatalf("Error parsing marker IDs: %v", err)
	}

	demo, err := NewDemo(Config{
		VideoFile:  *vidFile,
		Camera:     *camDevice,
		MarkerIDs:  ids,
		MarkerSize: *markerSize,
		ImageFile:  *imgFile,
		ImageName:  *imgName,
		ImageSize:  *imgSize,
		DBFile:     *dbFile,
		ProcSize:   *procSize,
		PoolSize:   *poolSize,
		Intrinsics: planartrack.Intrinsics{
			Fx: *fx, Fy: *fy, Cx: *cx, Cy: *cy, K1: *k1, K2: *k2,
		},
	})

	if err != nil {
		log.Fatalf("Error creating demo: %v", err)
	}

	defer demo.Close()

	http.HandleFunc("/stream", demo.Stream)
	http.HandleFunc("/events", stream.Handler(demo.hub))

	// start http server
	log.Println(fmt.Sprintf("Open browser and view video at http://%s/stream, "+
		"track events stream at ws://%s/events", *httpAddr, *httpAddr))
	log.Fatal(http.ListenAndServe(*httpAddr, nil))
}
