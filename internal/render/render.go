// Package render draws the temperature trace and its trend to a PNG file.
package render

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/thermotrend/internal/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const (
	secondsPerDay = 86400

	defaultWidth  = 6.4 * vg.Inch
	defaultHeight = 4.8 * vg.Inch
	defaultDPI    = 300
)

// Plot is everything drawn in one image. Times are day numbers; missing
// samples are skipped.
type Plot struct {
	Times       []float64
	Values      []float64
	TrendTimes  []float64
	TrendValues []float64
	Title       string
	Units       string
}

// Title formats the plot title from the latest value and slope per hour.
func Title(prefix string, value, slope float64, units string) string {
	return fmt.Sprintf("%s: T=%.1f°%s, dT/dt=%+.1f°%s/hr", prefix, value, units, slope, units)
}

// PNGRenderer writes plots to a fixed path, replacing the file only once
// the new image has been written completely.
type PNGRenderer struct {
	path     string
	width    vg.Length
	height   vg.Length
	dpi      int
	location *time.Location
}

func NewPNGRenderer(path string) *PNGRenderer {
	return &PNGRenderer{
		path:     path,
		width:    defaultWidth,
		height:   defaultHeight,
		dpi:      defaultDPI,
		location: time.Local,
	}
}

func (r *PNGRenderer) Path() string {
	return r.path
}

// Render draws p and replaces the image on disk.
func (r *PNGRenderer) Render(ctx context.Context, p Plot) error {
	errFactory := errors.New()

	if err := ctx.Err(); err != nil {
		return errFactory.Wrap(errors.ErrRender, err)
	}

	trace := points(p.Times, p.Values)
	if len(trace) == 0 {
		return errFactory.WithMessage(errors.ErrRender, "no samples to plot")
	}

	pl := plot.New()
	pl.Title.Text = p.Title
	pl.X.Label.Text = "Time"
	pl.Y.Label.Text = fmt.Sprintf("Temperature [°%s]", p.Units)
	pl.X.Tick.Marker = plot.TimeTicks{
		Format: "Jan 2\n15:04",
		Time:   plot.UnixTimeIn(r.location),
	}
	pl.Add(plotter.NewGrid())

	line, err := plotter.NewLine(trace)
	if err != nil {
		return errFactory.Wrap(errors.ErrRender, err)
	}
	line.LineStyle.Width = vg.Points(1.5)
	line.LineStyle.Color = plotutil.Color(0)
	pl.Add(line)

	if fitted := points(p.TrendTimes, p.TrendValues); len(fitted) > 0 {
		trendLine, err := plotter.NewLine(fitted)
		if err != nil {
			return errFactory.Wrap(errors.ErrRender, err)
		}
		trendLine.LineStyle.Width = vg.Points(1)
		trendLine.LineStyle.Color = plotutil.Color(1)
		pl.Add(trendLine)
	}

	if err := r.save(pl); err != nil {
		return errFactory.Wrap(errors.ErrRender, err)
	}

	return nil
}

func (r *PNGRenderer) save(pl *plot.Plot) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}

	c := vgimg.NewWith(
		vgimg.UseWH(r.width, r.height),
		vgimg.UseDPI(r.dpi),
	)
	pl.Draw(draw.New(c))

	tmp := filepath.Join(filepath.Dir(r.path), "temp."+filepath.Base(r.path))
	if err := writePNG(tmp, c); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return err
	}

	return nil
}

func writePNG(path string, c *vgimg.Canvas) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(f)
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(bw); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

// points converts day numbers to Unix seconds and drops missing samples.
func points(times, values []float64) plotter.XYs {
	n := len(times)
	if len(values) < n {
		n = len(values)
	}

	xys := make(plotter.XYs, 0, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(times[i]) || math.IsNaN(values[i]) || math.IsInf(values[i], 0) {
			continue
		}
		xys = append(xys, plotter.XY{X: times[i] * secondsPerDay, Y: values[i]})
	}

	return xys
}
