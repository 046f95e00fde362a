// Command morplot reduces a benchmark RC-ladder system with IRKA and with
// its model-function accelerated variant (CIRKA), reports the fixed points,
// and writes a magnitude-response comparison plot.
package main

import (
	goflag "flag"
	"fmt"
	"math"
	"math/cmplx"

	flag "github.com/spf13/pflag"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"k8s.io/klog/v2"

	"github.com/frankldm/sssMOR/mor"
	"github.com/frankldm/sssMOR/ssm"
)

func main() {
	var (
		order   = flag.Int("order", 200, "order of the benchmark RC ladder")
		q       = flag.Int("q", 6, "reduced order (number of shifts)")
		maxIter = flag.Int("max-iter", 50, "IRKA iteration budget")
		out     = flag.String("out", "response.png", "output plot file")
		verbose = flag.Bool("verbose", false, "log per-iteration traces")
	)
	klog.InitFlags(nil)
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	flag.Parse()
	if *verbose {
		_ = goflag.Set("v", "1")
	}
	log := klog.NewKlogr()

	sys := ssm.NewRCLadder(*order, 1, 1)

	// Spread the initial shifts logarithmically over the band of interest.
	s0 := make([]complex128, *q)
	for i := range s0 {
		s0[i] = complex(math.Pow(10, -2+4*float64(i)/float64(*q-1)), 0)
	}

	irkaRes, err := mor.IRKA(sys, s0, mor.IRKAOptions{MaxIter: *maxIter, Logger: log})
	if err != nil {
		klog.Exitf("irka: %v", err)
	}
	report(log, "irka", irkaRes.Converged, irkaRes.Iterations, irkaRes.Shifts)

	cirkaRes, err := mor.Cirka(sys, s0, mor.CirkaOptions{
		IRKA:     mor.IRKAOptions{MaxIter: *maxIter, Logger: log},
		ModelFct: mor.ModelFctOptions{Logger: log},
	})
	if err != nil {
		klog.Exitf("cirka: %v", err)
	}
	report(log, "cirka", cirkaRes.Converged, cirkaRes.OuterIterations, cirkaRes.Shifts)

	if err := writePlot(*out, sys, irkaRes.Sysr, cirkaRes.Sysr); err != nil {
		klog.Exitf("plot: %v", err)
	}
	fmt.Printf("wrote %s\n", *out)
}

func report(log klog.Logger, name string, converged bool, iters int, shifts []complex128) {
	log.Info("reduction finished", "method", name, "converged", converged, "iterations", iters)
	for _, s := range shifts {
		log.V(1).Info("fixed-point shift", "method", name, "shift", fmt.Sprintf("%v", s))
	}
}

func writePlot(path string, systems ...*ssm.LinearSystem) error {
	names := []string{"full", "irka", "cirka"}
	p := plot.New()
	p.Title.Text = "Magnitude response"
	p.X.Label.Text = "frequency [rad/s]"
	p.Y.Label.Text = "|H(iw)| [dB]"
	p.X.Scale = plot.LogScale{}
	p.X.Tick.Marker = plot.LogTicks{Prec: -1}

	var args []interface{}
	for i, sys := range systems {
		pts, err := magnitudePoints(sys)
		if err != nil {
			return err
		}
		args = append(args, names[i], pts)
	}
	if err := plotutil.AddLines(p, args...); err != nil {
		return err
	}
	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return err
	}
	return nil
}

func magnitudePoints(sys *ssm.LinearSystem) (plotter.XYs, error) {
	const samples = 200
	pts := make(plotter.XYs, samples)
	for i := 0; i < samples; i++ {
		w := math.Pow(10, -3+6*float64(i)/float64(samples-1))
		h, err := sys.TransferFunctionAt(complex(0, w))
		if err != nil {
			return nil, err
		}
		pts[i].X = w
		pts[i].Y = 20 * math.Log10(cmplx.Abs(h.At(0, 0)))
	}
	return pts, nil
}
