package main

import (
	"bufio"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	butteraugli "github.com/jasonmoo/go-butteraugli"
)

// compareEnv holds the flags of the compare command.
type compareEnv struct {
	output      string
	good        float64
	bad         float64
	hfAsymmetry float64
	norm        float64
	workers     int
	timeout     time.Duration
	verbose     bool
}

func main() {
	if err := compareCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// compareCmd returns the definition of the root command.
func compareCmd() *cobra.Command {
	env := &compareEnv{}
	cmd := &cobra.Command{
		Use:   "compare_images <image1> <image2>",
		Short: "Print the butteraugli distance between two images",
		Long: `
Decodes two images of the same size (png, jpeg, gif, bmp, tiff or webp),
compares them and prints the butteraugli distance. A distance below 1.0 means
the images look the same.

With --output, a heat map of the per-pixel distance is written as PNM or PNG,
chosen by the file extension.
`,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE:         env.runCompareCmd,
	}

	cmd.Flags().StringVarP(&env.output, "output", "o", "", "Write a heat map to this path (.pnm, .ppm or .png)")
	cmd.Flags().Float64Var(&env.good, "good", butteraugli.GoodThreshold(), "Heat map level for a just noticeable difference")
	cmd.Flags().Float64Var(&env.bad, "bad", butteraugli.BadThreshold(), "Heat map level for a clearly visible difference")
	cmd.Flags().Float64Var(&env.hfAsymmetry, "hf-asymmetry", 1.0, "Weight of added high frequency artefacts against lost detail")
	cmd.Flags().Float64Var(&env.norm, "norm", 0, "Pool the diffmap with this p-norm instead of the maximum")
	cmd.Flags().IntVar(&env.workers, "workers", 0, "Number of worker goroutines (0 uses GOMAXPROCS)")
	cmd.Flags().DurationVar(&env.timeout, "timeout", 0, "Abort the comparison after this long")
	cmd.Flags().BoolVarP(&env.verbose, "verbose", "v", false, "Log pipeline stages to stderr")

	return cmd
}

func (e *compareEnv) runCompareCmd(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if e.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	butteraugli.SetLogger(logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	img1, err := decodeImage(args[0])
	if err != nil {
		logger.Error("decode failed", "err", err)
		return err
	}
	img2, err := decodeImage(args[1])
	if err != nil {
		logger.Error("decode failed", "err", err)
		return err
	}

	opts := []butteraugli.Option{
		butteraugli.WithHFAsymmetry(e.hfAsymmetry),
		butteraugli.WithThresholds(e.good, e.bad),
	}
	if e.norm > 0 {
		opts = append(opts, butteraugli.WithNorm(e.norm))
	}
	if e.workers > 0 {
		opts = append(opts, butteraugli.WithWorkers(e.workers))
	}

	score, err := butteraugli.CompareImagesContext(ctx, img1, img2, opts...)
	if err != nil {
		err = errors.Wrapf(err, "comparing %q and %q", args[0], args[1])
		logger.Error("butteraugli failed", "err", err)
		return err
	}

	x, y := score.Worst()
	logger.Debug("compared",
		"distance", score.Distance,
		"fuzzy_class", score.FuzzyClass,
		"worst_x", x,
		"worst_y", y)
	fmt.Fprintln(cmd.OutOrStdout(), score.Distance)

	if e.output != "" {
		if err := writeHeatMap(e.output, score); err != nil {
			logger.Error("writing heat map failed", "err", err)
			return err
		}
	}
	return nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %q", path)
	}
	defer f.Close()

	img, _, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %q", path)
	}
	return img, nil
}

func writeHeatMap(path string, score *butteraugli.Score) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %q", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "closing %q", path)
		}
	}()

	xsize, ysize := score.DiffMap.Width(), score.DiffMap.Height()
	heat := score.HeatMap()

	w := bufio.NewWriter(f)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		img := image.NewNRGBA(image.Rect(0, 0, xsize, ysize))
		for i := 0; i < xsize*ysize; i++ {
			copy(img.Pix[4*i:4*i+3], heat[3*i:3*i+3])
			img.Pix[4*i+3] = 255
		}
		if err := png.Encode(w, img); err != nil {
			return errors.Wrapf(err, "encoding %q", path)
		}
	default:
		if _, err := fmt.Fprintf(w, "P6\n%d %d\n255\n", xsize, ysize); err != nil {
			return errors.Wrapf(err, "writing %q", path)
		}
		if _, err := w.Write(heat); err != nil {
			return errors.Wrapf(err, "writing %q", path)
		}
	}
	return errors.Wrapf(w.Flush(), "flushing %q", path)
}
