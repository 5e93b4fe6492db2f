// Command seed imports a course catalog and league thresholds from a YAML
// or XLSX file, or writes an empty XLSX template.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/codeowl/platform/internal/app"
	"github.com/codeowl/platform/internal/content"
	"github.com/codeowl/platform/pkg/logger"
)

func main() {
	file := flag.String("file", "", "course file to import (.yaml, .yml or .xlsx)")
	template := flag.String("template", "", "write an empty XLSX template to this path and exit")
	flag.Parse()

	if *template != "" {
		if err := writeTemplate(*template); err != nil {
			log.Fatalf("Failed to write template: %v", err)
		}
		log.Printf("Template written to %s", *template)
		return
	}
	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := app.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	lg := logger.Get().Named("seed")

	course, err := content.LoadFile(*file)
	if err != nil {
		lg.Fatal("failed to read course", zap.Error(err))
	}

	container, err := app.New(cfg)
	if err != nil {
		lg.Fatal("failed to initialize", zap.Error(err))
	}
	defer container.Close() //nolint:errcheck

	stats, err := content.NewImporter(container.DB).Import(context.Background(), course)
	if err != nil {
		lg.Fatal("import failed", zap.Error(err))
	}
	lg.Info("import complete", zap.String("file", *file), zap.Stringer("stats", stats))
}

func writeTemplate(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := content.WriteTemplate(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
