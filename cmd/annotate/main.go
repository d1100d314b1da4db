package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/menta2k/photo-annotator/internal/utils"
	"github.com/menta2k/photo-annotator/pkg/catalog"
	"github.com/menta2k/photo-annotator/pkg/loader"
	"github.com/menta2k/photo-annotator/pkg/render"
	"github.com/menta2k/photo-annotator/pkg/submit"
	"github.com/menta2k/photo-annotator/pkg/types"
)

func main() {
	var in, annotationsPath, outDir, ext string
	var quality, width, height, stroke int
	var lossless, labels, doSubmit, verbose bool
	var endpoint, catalogURL string
	var timeout time.Duration

	flag.StringVar(&in, "in", "", "input image path or URL (jpg/png/gif/webp)")
	flag.StringVar(&annotationsPath, "annotations", "", "JSON file with an array of annotation records")
	flag.StringVar(&outDir, "out", "out", "output directory")

	flag.StringVar(&ext, "ext", "", "output format: png|jpg|webp (default: the input's format, else png)")
	flag.IntVar(&quality, "quality", 90, "JPEG/WebP output quality (1-100)")
	flag.BoolVar(&lossless, "lossless", false, "WebP output lossless mode")

	flag.IntVar(&width, "width", 500, "surface width (px)")
	flag.IntVar(&height, "height", 500, "surface height (px)")
	flag.IntVar(&stroke, "stroke", 2, "rectangle stroke width (px)")
	flag.BoolVar(&labels, "labels", true, "draw product labels above rectangles")

	flag.StringVar(&catalogURL, "catalog", "", "products endpoint used to label catalog annotations")
	flag.BoolVar(&doSubmit, "submit", false, "upload the image and annotations after rendering")
	flag.StringVar(&endpoint, "endpoint", "https://strefa.indigo-nails.com/api/upload", "upload endpoint")
	flag.DurationVar(&timeout, "timeout", 60*time.Second, "catalog and upload request timeout")
	flag.BoolVar(&verbose, "v", false, "verbose logging")

	flag.Parse()
	if in == "" {
		log.Fatalf("usage: %s -in photo.jpg|URL [-annotations records.json] [-out outdir] [-ext png|jpg|webp] [-catalog url] [-submit -endpoint url]", filepath.Base(os.Args[0]))
	}

	mode := "release"
	if verbose {
		mode = "debug"
	}
	if err := utils.InitLogger(mode); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer utils.Sync()

	if annotationsPath != "" && !utils.FileExists(annotationsPath) {
		log.Fatalf("annotations file not found: %s", annotationsPath)
	}
	ext = outputFormat(in, ext)

	if err := utils.EnsureDir(outDir); err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()

	src, err := loader.New().LoadSmart(ctx, in)
	if err != nil {
		log.Fatal(err)
	}
	info := src.Info()
	log.Printf("loaded %s (%dx%d, %s)", info.Filename, info.Width, info.Height, utils.FormatFileSize(int64(info.Size)))

	var records []types.Record
	if annotationsPath != "" {
		data, err := os.ReadFile(annotationsPath)
		if err != nil {
			log.Fatal(err)
		}
		if err := json.Unmarshal(data, &records); err != nil {
			log.Fatalf("invalid annotations file: %v", err)
		}
	}

	annotations := make([]types.Annotation, 0, len(records))
	for _, r := range records {
		annotations = append(annotations, r.Annotation())
	}

	if catalogURL != "" {
		products, err := catalog.NewClient(catalogURL, timeout, utils.Logger).Fetch(ctx)
		if err != nil {
			log.Printf("catalog fetch failed, using product ids as labels: %v", err)
		} else {
			relabel(annotations, products)
		}
	}

	cfg := render.DefaultConfig()
	cfg.Width, cfg.Height, cfg.Stroke, cfg.ShowLabels = width, height, stroke, labels
	frame := render.NewWithConfig(cfg).Render(render.Scene{Base: src.Image, Annotations: annotations})

	outPath := utils.GenerateOutputFilename(in, outDir, "_annotated", ext)
	f, err := os.Create(outPath)
	if err != nil {
		log.Fatal(err)
	}
	if err := render.Encode(f, frame, ext, quality, lossless); err != nil {
		f.Close()
		log.Fatalf("encode %s failed: %v", outPath, err)
	}
	if err := f.Close(); err != nil {
		log.Fatal(err)
	}
	log.Printf("wrote %s (%d annotations)", outPath, len(annotations))

	if !doSubmit {
		return
	}

	resp, err := submit.NewClient(endpoint, timeout, utils.Logger).Submit(ctx, submit.Upload{
		Filename:    src.Filename,
		ContentType: src.ContentType,
		Data:        src.Data,
		Records:     records,
	})
	if err != nil {
		log.Fatalf("upload failed: %v", err)
	}
	log.Printf("upload response: %s", resp)
}

// outputFormat returns the -ext flag, or the input's own format when the
// flag is empty and the format can be encoded
func outputFormat(in, ext string) string {
	if ext != "" {
		return strings.ToLower(ext)
	}
	switch e := utils.GetFileExtension(in); e {
	case "png", "jpg", "jpeg", "webp":
		return e
	}
	return "png"
}

// relabel replaces id labels of catalog annotations with catalog names.
// Ids match by text, so a record's "3" finds the catalog's 3.
func relabel(annotations []types.Annotation, products []types.ProductRef) {
	names := make(map[string]string, len(products))
	for _, p := range products {
		names[p.ID.String()] = p.Label
	}
	for i := range annotations {
		a := &annotations[i]
		if a.Kind != types.TagCatalog || a.Product == nil {
			continue
		}
		if name, ok := names[a.Product.ID.String()]; ok {
			a.Product = &types.ProductRef{ID: a.Product.ID, Label: name}
		}
	}
}
