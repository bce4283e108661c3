// Package main provides the sparse CLI.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/sparse"
	"github.com/born-ml/sparse/internal/accel"
)

const version = "v0.1.0-dev"

func usage(w io.Writer) {
	fmt.Fprintf(w, "sparse %s - sparse linear algebra runtime\n\n", version)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  version                        Show version")
	fmt.Fprintln(w, "  devices                        List registered accelerators")
	fmt.Fprintln(w, "  extract-row -file F -row I     Print row I of a .mtx or .spm matrix")
	fmt.Fprintln(w, "  convert -in F.mtx -out F.spm   Convert a Matrix Market file to a snapshot")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "The %s environment variable selects the accelerator (\"none\" disables it).\n", sparse.EnvAccelerator)
}

func main() {
	klog.InitFlags(nil)
	flag.Usage = func() { usage(flag.CommandLine.Output()) }
	flag.Parse()
	defer klog.Flush()

	os.Exit(run(flag.Args(), os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stdout)
		return 0
	}
	var err error
	switch args[0] {
	case "version":
		fmt.Fprintf(stdout, "sparse %s\n", version)
	case "devices":
		err = devices(stdout)
	case "extract-row":
		err = extractRow(args[1:], stdout)
	case "convert":
		err = convert(args[1:], stdout)
	default:
		usage(stderr)
		return 2
	}
	if err != nil {
		klog.Errorf("%s: %v", args[0], err)
		fmt.Fprintf(stderr, "sparse %s: %v (status %s)\n", args[0], err, sparse.StatusOf(err))
		return 1
	}
	return 0
}

func devices(w io.Writer) error {
	for _, name := range accel.Registered() {
		lib, err := sparse.New(sparse.WithAccelerator(name))
		if err != nil {
			fmt.Fprintf(w, "%-8s unavailable: %v\n", name, err)
			continue
		}
		acc := lib.Accelerator()
		fmt.Fprintf(w, "%-8s %s (dialect %s, wgs %d, queues %d)\n",
			name, acc.Description(), acc.Dialect(), acc.DefaultWorkgroupSize(), len(acc.Queues()))
		if err := lib.Release(); err != nil {
			return err
		}
	}
	return nil
}

func extractRow(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("extract-row", flag.ContinueOnError)
	file := fs.String("file", "", "Matrix Market file")
	row := fs.Int("row", 0, "row index (0-based)")
	accelerator := fs.String("accel", "", "accelerator config, e.g. cpu:wgs=32 or none")
	host := fs.Bool("host", false, "run on the host executors")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("missing -file")
	}

	var opts []sparse.Option
	switch {
	case *accelerator == "none":
		opts = append(opts, sparse.WithNoAcceleration())
	case *accelerator != "":
		opts = append(opts, sparse.WithAccelerator(*accelerator))
	}
	lib, err := sparse.New(opts...)
	if err != nil {
		return err
	}
	defer func() { _ = lib.Release() }()

	m, err := loadMatrix(lib, *file)
	if err != nil {
		return err
	}
	defer m.Release()

	placement := sparse.Auto
	if *host {
		placement = sparse.Host
	}
	r := sparse.NewVector[float64](lib, m.Cols())
	defer r.Release()
	if err := sparse.Dispatch(lib, sparse.NewExtractRow(r, m, *row, sparse.Identity[float64](), sparse.On(placement))); err != nil {
		return err
	}
	keys, vals, err := r.Read()
	if err != nil {
		return err
	}

	entries := make([]string, len(keys))
	for k := range keys {
		entries[k] = fmt.Sprintf("%d:%g", keys[k], vals[k])
	}
	fmt.Fprintf(w, "row %d (%d entries): %s\n", *row, len(keys), strings.Join(entries, " "))
	return nil
}

func convert(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	in := fs.String("in", "", "Matrix Market input file")
	out := fs.String("out", "", "snapshot output file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return errors.New("missing -in or -out")
	}

	lib, err := sparse.New(sparse.WithNoAcceleration())
	if err != nil {
		return err
	}
	defer func() { _ = lib.Release() }()

	m, err := loadMatrix(lib, *in)
	if err != nil {
		return err
	}
	defer m.Release()
	if err := sparse.SaveMatrix(*out, m, map[string]string{"source": filepath.Base(*in)}); err != nil {
		return err
	}
	fmt.Fprintf(w, "wrote %s (%d x %d)\n", *out, m.Rows(), m.Cols())
	return nil
}

// loadMatrix reads a .spm snapshot or, for any other extension, a Matrix Market file.
func loadMatrix(lib *sparse.Library, path string) (*sparse.Matrix[float64], error) {
	if filepath.Ext(path) == ".spm" {
		return sparse.LoadMatrix[float64](lib, path)
	}
	//nolint:gosec // G304: reading a user-supplied matrix file is the purpose of this command
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return sparse.ReadMatrixMarket[float64](lib, f)
}
