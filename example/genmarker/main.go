package main

import (
	"flag"
	"fmt"
	"image/png"
	"log"
	"os"
	"path/filepath"

	"github.com/vantagecv/go-planartrack/detect"
)

// writeMarker renders one marker to a PNG file
func writeMarker(dict *detect.Dictionary, id, cellPixels int, file string) error {

	img, err := dict.DrawMarker(id, cellPixels)

	if err != nil {
		return err
	}

	out, err := os.Create(file)

	if err != nil {
		return fmt.Errorf("error creating %s: %w", file, err)
	}

	defer out.Close()

	if err := png.Encode(out, img); err != nil {
		return fmt.Errorf("error encoding %s: %w", file, err)
	}

	return nil
}

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	id := flag.Int("i", 0, "Marker ID to render")
	all := flag.Bool("all", false, "Render every marker in the dictionary")
	cellPixels := flag.Int("c", 64, "Pixels per marker cell")
	outDir := flag.String("o", ".", "Directory to write marker PNG files to")

	flag.Parse()

	dict := detect.Dict4x4()

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatalf("Error creating output directory: %v", err)
	}

	ids := []int{*id}

	if *all {
		ids = make([]int, dict.Size())

		for i := range ids {
			ids[i] = i
		}
	}

	for _, next := range ids {

		file := filepath.Join(*outDir,
			fmt.Sprintf("%s_%02d.png", dict.Name(), next))

		if err := writeMarker(dict, next, *cellPixels, file); err != nil {
			log.Fatalf("Error writing marker %d: %v", next, err)
		}

		log.Printf("Wrote %s", file)
	}

	side := dict.GridSize() * *cellPixels
	log.Printf("Markers are %dx%d pixels, print with a white border and "+
		"measure the printed side length for the tracker's marker size", side, side)
}
