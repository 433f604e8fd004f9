// gen-diagrams renders every sample workflow under examples/workflows into
// docs/diagrams as Mermaid, ASCII, SVG and PNG.
// Run: go run ./cmd/gen-diagrams
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rendis/flowplan/internal/builder"
	"github.com/rendis/flowplan/internal/diagram"
	"github.com/rendis/flowplan/internal/loader"
)

func main() {
	ctx := context.Background()

	ld, err := loader.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loader: %v\n", err)
		os.Exit(1)
	}

	files, err := filepath.Glob(filepath.Join("examples", "workflows", "*"))
	if err != nil || len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no sample workflows found; run from the repository root")
		os.Exit(1)
	}

	outDir := filepath.Join("docs", "diagrams")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", outDir, err)
		os.Exit(1)
	}

	home, _ := os.UserHomeDir()
	binDir := filepath.Join(home, ".flowplan", "bin")

	failed := 0
	for _, file := range files {
		if err := render(ctx, ld, file, outDir, binDir); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", file, err)
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func render(ctx context.Context, ld *loader.Loader, file, outDir, binDir string) error {
	def, err := ld.LoadFile(file)
	if err != nil {
		return err
	}
	plan, err := builder.Build(def)
	if err != nil {
		return err
	}
	model, err := diagram.Build(plan)
	if err != nil {
		return err
	}

	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	write := func(ext string, data []byte) error {
		path := filepath.Join(outDir, base+ext)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		fmt.Printf("Written: %s (%d bytes)\n", path, len(data))
		return nil
	}

	ascii := diagram.RenderASCIIAuto(ctx, model, binDir)
	fmt.Printf("=== %s ===\n%s\n", base, ascii)
	if err := write(".txt", []byte(ascii)); err != nil {
		return err
	}
	if err := write(".md", []byte("```mermaid\n"+diagram.RenderMermaid(model)+"```\n")); err != nil {
		return err
	}
	for _, format := range []diagram.ImageFormat{diagram.FormatSVG, diagram.FormatPNG} {
		data, err := diagram.RenderImage(ctx, model, format)
		if err != nil {
			return err
		}
		if err := write("."+string(format), data); err != nil {
			return err
		}
	}
	return nil
}
