package main

import (
	"errors"
	"flag"
	"fmt"
	"image/png"
	"log"
	"os"
	"strings"

	"github.com/asandstrom/camcal/pkg/chart"
	"github.com/asandstrom/camcal/pkg/cmath"
	"github.com/asandstrom/camcal/pkg/correction"
	"github.com/asandstrom/camcal/pkg/imageio"
	"github.com/asandstrom/camcal/pkg/pipeline"
	"github.com/asandstrom/camcal/pkg/sensor"
	"github.com/asandstrom/camcal/pkg/whitebal"
	"gopkg.in/yaml.v2"
)

var (
	fConfig     string
	fVerbosity  int
	fWBAlgo     string
	fWBPreset   string
	fChart      string
	fWindow     int
	fIlluminant string
	fProvenance string
	fMatrixFile string
	fOutput     string
	fOverlay    string
	fHDROut     string
	fMosaic     bool
	fBlackLevel float64
	fReport     string
)

func init() {
	flag.StringVar(&fConfig, "config", "", "YAML config file; flags override it")
	flag.IntVar(&fVerbosity, "v", 0, "how verbose to get")
	flag.StringVar(&fWBAlgo, "wb", "", "white balance algorithm: average, grey-world, max-white, retinex")
	flag.StringVar(&fWBPreset, "preset", "", "white balance from metadata instead: camera, daylight, or illuminant")
	flag.StringVar(&fChart, "chart", "", "reference chart to detect, e.g. CCC or XRCCPP_24")
	flag.IntVar(&fWindow, "window", 0, "patch sampling window, in pixels")
	flag.StringVar(&fIlluminant, "illuminant", "", "reference illuminant, e.g. D65")
	flag.StringVar(&fProvenance, "provenance", "", "transform source: embedded or computed")
	flag.StringVar(&fMatrixFile, "matrix", "", "YAML file with a computed camera-to-XYZ matrix")
	flag.StringVar(&fOutput, "o", "corrected.png", "corrected image output file")
	flag.StringVar(&fOverlay, "overlay", "", "write the detected chart annotation here")
	flag.StringVar(&fHDROut, "hdr", "", "also write the white-balanced image as Radiance RGBE")
	flag.BoolVar(&fMosaic, "mosaic", false, "input is an undemosaiced RGGB sensor dump; reconstruct it first")
	flag.Float64Var(&fBlackLevel, "black", 0, "sensor black level to subtract when reconstructing")
	flag.StringVar(&fReport, "report", "", "write the per-patch assessment as YAML here")
	flag.Parse()

	log.Printf("camcal starting\n")
}

func loadConfig() pipeline.Config {
	cfg := pipeline.NewConfig()
	if fConfig != "" {
		c, err := pipeline.LoadConfig(fConfig)
		if err != nil {
			log.Fatal(err)
		}
		cfg = c
	}
	if fWBAlgo != "" {
		cfg.WBAlgorithm = fWBAlgo
	}
	if fWBPreset != "" {
		cfg.WBPreset = fWBPreset
	}
	if fChart != "" {
		cfg.Chart = fChart
	}
	if fWindow > 0 {
		cfg.WindowSize = fWindow
	}
	if fIlluminant != "" {
		cfg.Illuminant = fIlluminant
	}
	if fProvenance != "" {
		cfg.TransformProvenance = fProvenance
	}
	if fMatrixFile != "" {
		cfg.MatrixFile = fMatrixFile
	}
	if fVerbosity > 0 {
		cfg.Verbosity = fVerbosity
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	return cfg
}

func main() {
	cfg := loadConfig()
	if cfg.Verbosity > 0 {
		log.Printf("Final configuration:-\n\n%s\n", cfg.AsYaml())
	}
	if flag.NArg() != 1 {
		log.Fatalf("usage: camcal [flags] photo.{png,tif,jpg}")
	}
	filename := flag.Arg(0)

	img, err := imageio.Load(filename)
	if err != nil {
		log.Fatal(err)
	}
	meta := sensor.Metadata{
		VisibleWidth:  img.W,
		VisibleHeight: img.H,
		WhiteLevel:    img.FullScale(),
	}
	// Processed inputs carry no RAW metadata; their channels are sRGB,
	// so the embedded XYZ-to-camera direction is the XYZ-to-sRGB matrix.
	xs := correction.XYZToSRGBD65
	meta.CamXYZ = [][3]float64{
		{xs[0], xs[1], xs[2]},
		{xs[3], xs[4], xs[5]},
		{xs[6], xs[7], xs[8]},
	}
	if fMosaic {
		meta.Descriptor = "RGBG"
		meta.Pattern = sensor.RGGB()
		meta.BlackLevels = [4]float64{fBlackLevel, fBlackLevel, fBlackLevel, fBlackLevel}
		grid, err := cmath.NewFloatGridFromValues(img.W, img.H, img.Pix[0])
		if err != nil {
			log.Fatal(err)
		}
		img, err = sensor.Reconstruct(grid, meta)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("reconstructed %s", img)
	}
	if ex, err := imageio.LoadExif(filename); err == nil {
		meta.CameraMake, meta.CameraModel = ex.CameraMake, ex.CameraModel
		if cfg.Verbosity > 0 {
			log.Printf("EXIF: %s %s ISO %d f/%.1f %s", ex.CameraMake, ex.CameraModel, ex.ISO, ex.FNumber, ex.ExposureTime)
		}
	}

	state := pipeline.NewState(filename, img, meta, cfg.Illuminant, cfg.ObserverAngle())

	// Detect the chart first so it can feed both white balance and the
	// final assessment.
	var instance *chart.Instance
	if cfg.Chart != "" {
		cat, err := chart.NewCatalogue(cfg.ChartRefDir, cfg.ChartOverrides)
		if err != nil {
			log.Fatal(err)
		}
		dcfg := chart.DefaultDetectConfig()
		dcfg.RatioThreshold = cfg.RatioThreshold
		dcfg.MinMatchFraction = cfg.MinMatchFraction
		instance, err = chart.Detect(img, cfg.Chart, cat, dcfg)
		switch {
		case errors.Is(err, chart.ErrNotFound):
			log.Printf("chart %s not found in %s, continuing without it", cfg.Chart, filename)
			instance = nil
		case err != nil:
			log.Fatal(err)
		default:
			state.Instances = append(state.Instances, instance)
			log.Printf("chart %s matched", cfg.Chart)
		}
	}

	multipliers := chooseMultipliers(cfg, state, instance)
	state.SetMultipliers(multipliers)
	log.Printf("white balance multipliers %s", multipliers)

	if cfg.TransformProvenance == "computed" {
		m, err := correction.FromYAMLFile(cfg.MatrixFile)
		if err != nil {
			log.Fatal(err)
		}
		state.SetTransform(m)
	}
	if err := state.ApplyColourCorrection(); err != nil {
		log.Fatal(err)
	}
	if cfg.Verbosity > 0 {
		log.Printf("white balanced levels:\n%s", whitebal.DescribeLevels(state.WhiteBalanced))
	}

	if fHDROut != "" {
		if err := imageio.WriteToHDR(state.WhiteBalanced, fHDROut); err != nil {
			log.Fatal(err)
		}
	}
	if err := imageio.Save(state.Corrected, fOutput); err != nil {
		log.Fatal(err)
	}
	log.Printf("wrote %s", fOutput)

	if instance != nil {
		if _, err := instance.SamplePatches(state.Corrected, cfg.WindowSize); err != nil {
			log.Fatal(err)
		}
		report(state, instance, cfg)
		if fOverlay != "" {
			writeOverlay(state, instance, cfg)
		}
	}
}

// chooseMultipliers prefers a detected neutral patch, then falls back
// to statistical estimation over the chart-masked image.
func chooseMultipliers(cfg pipeline.Config, state *pipeline.State, instance *chart.Instance) whitebal.Multipliers {
	if cfg.WBPreset == "illuminant" {
		cm, err := correction.FromEmbedded(state.Meta)
		if err != nil {
			log.Fatal(err)
		}
		m, err := whitebal.FromIlluminant(cm.M, state.Illuminant, state.Observer)
		if err != nil {
			log.Fatal(err)
		}
		return m
	}
	if cfg.WBPreset != "" {
		m, err := whitebal.FromPreset(state.Meta, cfg.WBPreset)
		if err != nil {
			log.Fatal(err)
		}
		return m
	}
	if instance != nil {
		if id, err := chart.NeutralPatchID(instance.Layout); err == nil {
			if samples, err := instance.SamplePatches(state.Raw, cfg.WindowSize); err == nil {
				v := samples[id]
				if m, err := whitebal.FromPatch(v[0], v[1], v[2]); err == nil {
					log.Printf("white balance from neutral patch %s", id)
					return m
				}
			}
		}
		masked := pipeline.MaskInstanceRegion(state.Raw, instance)
		m, err := whitebal.Estimate(masked, cfg.WBAlgorithm)
		if err != nil {
			log.Fatal(err)
		}
		return m
	}
	m, err := whitebal.Estimate(state.Raw, cfg.WBAlgorithm)
	if err != nil {
		log.Fatal(err)
	}
	return m
}

func report(state *pipeline.State, instance *chart.Instance, cfg pipeline.Config) {
	refs := chart.ClassicReferenceXYZ()
	a, err := state.Assess(instance, refs, cfg.WindowSize)
	if err != nil {
		log.Printf("assessment skipped: %v", err)
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "patch   deltaE   deltaE2000\n")
	for _, m := range a.Patches {
		fmt.Fprintf(&b, "%-6s  %6.2f   %6.2f\n", m.ID, m.DeltaE, m.DeltaE2000)
	}
	fmt.Fprintf(&b, "mean    %6.2f   %6.2f\n", a.MeanDeltaE, a.MeanDeltaE2000)
	for id, why := range a.Skipped {
		fmt.Fprintf(&b, "skipped %s: %s\n", id, why)
	}
	log.Printf("assessment for %s:\n%s", state.Path, b.String())

	if fReport != "" {
		out, err := yaml.Marshal(a)
		if err != nil {
			log.Fatalf("marshalling assessment: %v", err)
		}
		if err := os.WriteFile(fReport, out, 0644); err != nil {
			log.Fatalf("open+w '%s': %v", fReport, err)
		}
		log.Printf("wrote %s", fReport)
	}
}

func writeOverlay(state *pipeline.State, instance *chart.Instance, cfg pipeline.Config) {
	annotated := instance.Overlay(state.Corrected, cfg.WindowSize, chart.DefaultOverlayStyle())
	f, err := os.Create(fOverlay)
	if err != nil {
		log.Fatalf("open+w '%s': %v", fOverlay, err)
	}
	defer f.Close()
	if err := png.Encode(f, annotated); err != nil {
		log.Fatalf("encoding '%s': %v", fOverlay, err)
	}
	log.Printf("wrote %s", fOverlay)
}
